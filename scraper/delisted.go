package scraper

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	delistedPhrases = []string{
		"this listing is no longer available",
		"listing has been removed",
		"property is no longer listed",
		"cette propriété n'est plus disponible",
		"cette inscription n'est plus disponible",
	}

	// hiddenContent never renders as a notice to the visitor.
	hiddenContent = `script, style, template, noscript, [hidden], [aria-hidden="true"], [style*="display:none"], [style*="display: none"]`

	delistedRedirects = []string{
		"/search",
		"propertysearchtypeid",
		"notfound",
	}
)

// isDelistedPage reports whether the visible text of the page says the
// listing was taken down.
func isDelistedPage(html string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false
	}
	doc.Find(hiddenContent).Remove()
	lower := strings.ToLower(doc.Find("body").Text())
	for _, phrase := range delistedPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// isDelistRedirect reports whether the source sent us to a search or error
// page instead of the listing.
func isDelistRedirect(location string) bool {
	lower := strings.ToLower(location)
	for _, pattern := range delistedRedirects {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}
