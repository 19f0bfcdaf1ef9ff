package identity

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	imageIDRegex    = regexp.MustCompile(`[0-9A-Fa-f]{32}`)
	strictIDRegex   = regexp.MustCompile(`^[0-9A-Fa-f]{32}$`)
	postalCodeRegex = regexp.MustCompile(`(?i)\b([ABCEGHJ-NPRSTVXY]\d[ABCEGHJ-NPRSTV-Z])\s?(\d[ABCEGHJ-NPRSTV-Z]\d)\b`)
)

// SourceID returns the last non-empty path segment of a listing URL with the
// query string and fragment removed.
func SourceID(listingURL string) string {
	raw := strings.TrimSpace(listingURL)
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		raw = raw[:i]
	}

	path := raw
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		path = u.Path
	}

	segments := strings.Split(path, "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if seg := strings.TrimSpace(segments[i]); seg != "" {
			return seg
		}
	}
	return ""
}

// ImageID extracts the 32-character hexadecimal media identifier from an
// image URL. A strict "id" query parameter wins; otherwise the first 32-hex
// run anywhere in the string is used. Identifiers are upper-cased so that
// differently-cased URLs collapse to the same image.
func ImageID(rawURL string) (string, bool) {
	if u, err := url.Parse(rawURL); err == nil {
		if id := u.Query().Get("id"); strictIDRegex.MatchString(id) {
			return strings.ToUpper(id), true
		}
	}

	if m := imageIDRegex.FindString(rawURL); m != "" {
		return strings.ToUpper(m), true
	}
	return "", false
}

// FindImageID scans arbitrary text (e.g. an onclick handler) for an identifier.
func FindImageID(text string) (string, bool) {
	if m := imageIDRegex.FindString(text); m != "" {
		return strings.ToUpper(m), true
	}
	return "", false
}

// PostalCode finds a Canadian postal code in free text and returns it in
// "A1A 1A1" form.
func PostalCode(text string) (string, bool) {
	m := postalCodeRegex.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return strings.ToUpper(m[1]) + " " + strings.ToUpper(m[2]), true
}
