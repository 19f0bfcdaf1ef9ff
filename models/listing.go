package models

import (
	"time"

	"github.com/google/uuid"
)

// ListingSource is the fetched markup of a listing page. It lives only for
// the duration of one import.
type ListingSource struct {
	URL  string
	HTML string
}

// ExtractedFields holds the attributes read out of a listing page.
// Title is always set; everything else is optional.
type ExtractedFields struct {
	Title        string
	Description  *string
	Price        *int64
	Address      *string
	City         *string
	PostalCode   *string
	Bedrooms     *int
	Bathrooms    *int
	PropertyType string
}

type ImageRegion string

const (
	RegionPrimary   ImageRegion = "primary"
	RegionThumbnail ImageRegion = "thumbnail"
	RegionGallery   ImageRegion = "gallery"
	RegionGeneric   ImageRegion = "generic"
)

// ImageCandidate is an image URL found on the page, before validation.
// Canonical is set when the URL was synthesized from a known identifier and
// needs no further normalization.
type ImageCandidate struct {
	URL       string
	Region    ImageRegion
	Canonical bool
}

// MaterializedImage is an image copied into application-owned storage.
type MaterializedImage struct {
	Index       int
	SourceURL   string
	Key         string
	PublicURL   string
	ContentType string
	Size        int64
}

// ImageError records why a single image could not be materialized.
type ImageError struct {
	URL    string `json:"url"`
	Reason string `json:"reason"`
}

func (e *ImageError) Error() string {
	return e.URL + ": " + e.Reason
}

// ListingRecord is the persisted listing produced by an import.
type ListingRecord struct {
	ID           uuid.UUID `json:"id" db:"id"`
	UserID       string    `json:"user_id" db:"user_id"`
	SourceURL    string    `json:"centris_url" db:"centris_url"`
	CentrisID    string    `json:"centris_id" db:"centris_id"`
	Title        string    `json:"title" db:"title"`
	Description  *string   `json:"description" db:"description"`
	Price        *float64  `json:"price" db:"price"`
	Address      *string   `json:"address" db:"address"`
	City         *string   `json:"city" db:"city"`
	PostalCode   *string   `json:"postal_code" db:"postal_code"`
	Bedrooms     *int      `json:"bedrooms" db:"bedrooms"`
	Bathrooms    *int      `json:"bathrooms" db:"bathrooms"`
	PropertyType string    `json:"property_type" db:"property_type"`
	Images       []string  `json:"images" db:"images"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
