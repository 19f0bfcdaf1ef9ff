package scraper

import (
	"fmt"
	"net/url"
	"strings"

	"centris_importer/config"
	"centris_importer/identity"
)

type Preset int

const (
	// PresetGallery asks the media host for an explicit width/height crop.
	PresetGallery Preset = iota
	// PresetQuality asks for the full-quality variant.
	PresetQuality
)

// ParsePreset maps a configuration name to a Preset. Unknown names fall
// back to PresetGallery.
func ParsePreset(name string) Preset {
	if strings.EqualFold(strings.TrimSpace(name), "quality") {
		return PresetQuality
	}
	return PresetGallery
}

// Normalizer turns candidate image URLs into canonical media-host URLs.
// It holds no mutable state; Normalize is pure.
type Normalizer struct {
	mediaHost string
	markers   []string
	width     int
	height    int
}

func NewNormalizer(src *config.SourceConfig) *Normalizer {
	markers := make([]string, 0, len(src.MediaMarkers))
	for _, m := range src.MediaMarkers {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			markers = append(markers, m)
		}
	}
	width, height := src.GalleryWidth, src.GalleryHeight
	if width <= 0 {
		width = 1024
	}
	if height <= 0 {
		height = 1024
	}
	return &Normalizer{
		mediaHost: src.MediaHost,
		markers:   markers,
		width:     width,
		height:    height,
	}
}

// HasMarker reports whether raw points at the source's media host.
func (n *Normalizer) HasMarker(raw string) bool {
	lower := strings.ToLower(raw)
	for _, m := range n.markers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// Normalize returns the canonical URL for raw, or false when raw is not a
// recognizable source image.
func (n *Normalizer) Normalize(raw string, preset Preset) (string, bool) {
	if !n.HasMarker(raw) {
		return "", false
	}
	id, ok := identity.ImageID(raw)
	if !ok {
		return "", false
	}
	return n.Canonical(id, preset), true
}

// Canonical builds the media URL for a known identifier.
func (n *Normalizer) Canonical(id string, preset Preset) string {
	q := url.Values{}
	q.Set("id", strings.ToUpper(id))
	q.Set("t", "pi")
	switch preset {
	case PresetQuality:
		q.Set("f", "I")
	default:
		q.Set("w", fmt.Sprint(n.width))
		q.Set("h", fmt.Sprint(n.height))
		q.Set("sm", "c")
	}
	u := url.URL{
		Scheme:   "https",
		Host:     n.mediaHost,
		Path:     "/media.ashx",
		RawQuery: q.Encode(),
	}
	return u.String()
}
