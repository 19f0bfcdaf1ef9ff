package scraper

import (
	"errors"
	"fmt"
	"strings"

	"centris_importer/models"
)

var (
	ErrInvalidInput = errors.New("invalid listing url")
	ErrFetchFailed  = errors.New("fetch failed")
	ErrNoImages     = errors.New("no images could be processed")
)

// FetchError describes why the listing page could not be retrieved.
type FetchError struct {
	URL     string
	Status  int
	Timeout bool
	Reason  string
	Err     error
}

func (e *FetchError) Error() string {
	var b strings.Builder
	b.WriteString("fetch ")
	b.WriteString(e.URL)
	b.WriteString(": ")
	switch {
	case e.Timeout:
		b.WriteString("timed out")
	case e.Status != 0 && e.Reason == "":
		fmt.Fprintf(&b, "status %d", e.Status)
	default:
		b.WriteString(e.Reason)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool { return target == ErrFetchFailed }

// AggregateImageError is returned when every image candidate failed.
type AggregateImageError struct {
	Errors []models.ImageError
}

func (e *AggregateImageError) Error() string {
	return ErrNoImages.Error() + ": " + e.Details()
}

// Details joins every per-image failure into one line.
func (e *AggregateImageError) Details() string {
	parts := make([]string, len(e.Errors))
	for i := range e.Errors {
		parts[i] = e.Errors[i].Error()
	}
	return strings.Join(parts, "; ")
}

func (e *AggregateImageError) Is(target error) bool { return target == ErrNoImages }
