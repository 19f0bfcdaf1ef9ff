package scraper

import (
	"fmt"
	"strings"
)

// Validator accepts only URLs that belong to the supported listing source.
type Validator struct {
	domainMarker string
}

func NewValidator(domainMarker string) *Validator {
	return &Validator{domainMarker: strings.ToLower(domainMarker)}
}

func (v *Validator) Valid(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" || v.domainMarker == "" {
		return false
	}
	return strings.Contains(strings.ToLower(raw), v.domainMarker)
}

func (v *Validator) Validate(raw string) error {
	if !v.Valid(raw) {
		return fmt.Errorf("%w: %q", ErrInvalidInput, raw)
	}
	return nil
}
