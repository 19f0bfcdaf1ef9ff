package scraper

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"centris_importer/models"
)

// ParseDocument builds the goquery tree for a fetched page.
func ParseDocument(src *models.ListingSource) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src.HTML))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}
