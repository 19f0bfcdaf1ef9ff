package services

import (
	"time"

	"github.com/google/uuid"

	"centris_importer/identity"
	"centris_importer/models"
	"centris_importer/scraper"
)

// MaxPrice is the largest value the listings.price column (numeric(12,2)) holds.
const MaxPrice = 9_999_999_999.99

// AssembleInput is everything a listing record is built from.
type AssembleInput struct {
	ID        uuid.UUID
	UserID    string
	SourceURL string
	Fields    models.ExtractedFields
	Images    []string
	CreatedAt time.Time
}

// AssembleListing merges extracted fields and stored image URLs into the
// record that gets persisted. Optional fields stay nil when absent.
func AssembleListing(in AssembleInput) *models.ListingRecord {
	id := in.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	createdAt := in.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	f := in.Fields
	title := f.Title
	if title == "" {
		title = scraper.PlaceholderTitle
	}
	propertyType := f.PropertyType
	if propertyType == "" {
		propertyType = scraper.DefaultPropertyType
	}

	var price *float64
	if f.Price != nil {
		price = ClampPrice(float64(*f.Price))
	}

	var images []string
	if len(in.Images) > 0 {
		images = append([]string(nil), in.Images...)
	}

	return &models.ListingRecord{
		ID:           id,
		UserID:       in.UserID,
		SourceURL:    in.SourceURL,
		CentrisID:    identity.SourceID(in.SourceURL),
		Title:        title,
		Description:  f.Description,
		Price:        price,
		Address:      f.Address,
		City:         f.City,
		PostalCode:   f.PostalCode,
		Bedrooms:     f.Bedrooms,
		Bathrooms:    f.Bathrooms,
		PropertyType: propertyType,
		Images:       images,
		CreatedAt:    createdAt,
	}
}

// ClampPrice returns nil for prices that are not positive or that exceed
// MaxPrice.
func ClampPrice(v float64) *float64 {
	if v <= 0 || v > MaxPrice {
		return nil
	}
	return &v
}
