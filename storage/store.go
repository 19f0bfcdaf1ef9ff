package storage

import (
	"context"
	"io"

	"centris_importer/models"
)

// CacheForever is the Cache-Control value used for materialized images.
const CacheForever = "public, max-age=31536000, immutable"

// ObjectStore holds application-owned copies of listing images.
type ObjectStore interface {
	Upload(ctx context.Context, key string, data io.Reader, contentType, cacheControl string) (string, error)
	PublicURL(key string) string
}

// ListingStore persists imported listings.
type ListingStore interface {
	InsertListing(ctx context.Context, l *models.ListingRecord) error
}
