package scraper

import (
	"errors"
	"testing"
)

func TestValidator_AcceptsSourceURLs(t *testing.T) {
	v := NewValidator("centris.ca")
	for _, u := range []string{
		"https://www.centris.ca/fr/condo~a-vendre~montreal/12345678",
		"  https://WWW.CENTRIS.CA/en/houses~for-sale/87654321  ",
	} {
		if err := v.Validate(u); err != nil {
			t.Fatalf("expected %q to be accepted: %v", u, err)
		}
	}
}

func TestValidator_RejectsOtherURLs(t *testing.T) {
	v := NewValidator("centris.ca")
	for _, u := range []string{
		"",
		"   ",
		"https://www.realtor.ca/real-estate/29279012/939-chateau-windsor",
		"not a url",
	} {
		err := v.Validate(u)
		if err == nil {
			t.Fatalf("expected %q to be rejected", u)
		}
		if !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput, got %v", err)
		}
	}
}

func TestValidator_EmptyMarkerRejectsEverything(t *testing.T) {
	if NewValidator("").Valid("https://www.centris.ca/fr/12345678") {
		t.Fatalf("validator without a marker must reject")
	}
}
