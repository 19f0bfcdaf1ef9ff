package scraper

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"centris_importer/config"
	"centris_importer/models"
)

const centrisPageURL = "https://www.centris.ca/fr/condo~a-vendre~montreal-ville-marie/12345678?view=Summary"

func loadFixture(t *testing.T, name string) []byte {
	t.Helper()
	path := filepath.Join("testdata", name)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read fixture %s: %v", name, err)
	}
	return data
}

func loadDocument(t *testing.T, name string) *goquery.Document {
	t.Helper()
	doc, err := ParseDocument(&models.ListingSource{URL: centrisPageURL, HTML: string(loadFixture(t, name))})
	if err != nil {
		t.Fatalf("parse fixture %s: %v", name, err)
	}
	return doc
}

func docFromString(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	return doc
}

func exampleSource() *config.SourceConfig {
	return &config.SourceConfig{
		ID:            "example",
		DomainMarker:  "example-source.ca",
		SiteURL:       "https://www.example-source.ca",
		MediaHost:     "media.example-source.ca",
		MediaMarkers:  []string{"media.example-source.ca"},
		GalleryWidth:  1024,
		GalleryHeight: 1024,
	}
}
