package scraper

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"centris_importer/identity"
	"centris_importer/models"
)

const (
	PlaceholderTitle    = "Untitled Property"
	DefaultPropertyType = "residential"
)

// Locator finds a field value in the page. When Attr is set the attribute
// value is used instead of the element text.
type Locator struct {
	Selector string
	Attr     string
}

// Locator tables, most site-specific first. The last title locator is the
// bare top-level heading so a listing always gets a real title when the page
// has one.
var (
	TitleLocators = []Locator{
		{Selector: `h1[itemprop="category"] span`},
		{Selector: `[data-id="PageTitle"]`},
		{Selector: `.property-title h1`},
		{Selector: `.legacy-reset h1`},
		{Selector: `meta[property="og:title"]`, Attr: "content"},
		{Selector: `h1`},
	}

	PriceLocators = []Locator{
		{Selector: `#BuyPrice`},
		{Selector: `.price-container .price span`},
		{Selector: `[itemprop="price"]`, Attr: "content"},
		{Selector: `[itemprop="price"]`},
		{Selector: `.price span`},
		{Selector: `.price`},
		{Selector: `meta[property="product:price:amount"]`, Attr: "content"},
	}

	DescriptionLocators = []Locator{
		{Selector: `[itemprop="description"]`},
		{Selector: `.property-description`},
		{Selector: `#description`},
		{Selector: `meta[property="og:description"]`, Attr: "content"},
		{Selector: `meta[name="description"]`, Attr: "content"},
	}

	AddressLocators = []Locator{
		{Selector: `h2[itemprop="address"]`},
		{Selector: `[itemprop="streetAddress"]`},
		{Selector: `.property-address`},
		{Selector: `.address`},
	}

	CityLocators = []Locator{
		{Selector: `[itemprop="addressLocality"]`},
		{Selector: `.property-city`},
		{Selector: `.city`},
	}

	BedroomLocators = []Locator{
		{Selector: `.teaser .cac`},
		{Selector: `.cac`},
		{Selector: `[data-id="bedrooms"]`},
		{Selector: `.bedrooms`},
	}

	BathroomLocators = []Locator{
		{Selector: `.teaser .sdb`},
		{Selector: `.sdb`},
		{Selector: `[data-id="bathrooms"]`},
		{Selector: `.bathrooms`},
	}
)

var (
	whitespaceRegex = regexp.MustCompile(`\s+`)
	digitRunRegex   = regexp.MustCompile(`\d+`)
	parenRegex      = regexp.MustCompile(`\s*\([^)]*\)`)
)

// ExtractFields reads every listing attribute from doc. Missing fields are
// left nil; only the title is guaranteed.
func ExtractFields(doc *goquery.Document) models.ExtractedFields {
	fields := models.ExtractedFields{
		Title:        PlaceholderTitle,
		PropertyType: DefaultPropertyType,
	}

	if title, ok := FirstMatch(doc, TitleLocators); ok {
		fields.Title = title
	}

	if text, ok := FirstMatch(doc, PriceLocators); ok {
		if price, ok := ParsePrice(text); ok {
			fields.Price = &price
		}
	}
	if fields.Price == nil {
		if price, ok := structuredPrice(doc); ok {
			fields.Price = &price
		}
	}

	if desc, ok := firstMatchRaw(doc, DescriptionLocators); ok {
		fields.Description = &desc
	}

	if addr, ok := FirstMatch(doc, AddressLocators); ok {
		fields.Address = &addr
	}

	if city, ok := FirstMatch(doc, CityLocators); ok {
		fields.City = &city
	} else if fields.Address != nil {
		if city, ok := cityFromAddress(*fields.Address); ok {
			fields.City = &city
		}
	}

	for _, text := range []*string{fields.Address, fields.City} {
		if text == nil {
			continue
		}
		if code, ok := identity.PostalCode(*text); ok {
			fields.PostalCode = &code
			break
		}
	}

	if text, ok := FirstMatch(doc, BedroomLocators); ok {
		if n, ok := ParseFirstInt(text); ok {
			fields.Bedrooms = &n
		}
	}

	if text, ok := FirstMatch(doc, BathroomLocators); ok {
		if n, ok := ParseFirstInt(text); ok {
			fields.Bathrooms = &n
		}
	}

	return fields
}

// FirstMatch evaluates locators in order and returns the first non-empty
// value with whitespace collapsed.
func FirstMatch(doc *goquery.Document, locators []Locator) (string, bool) {
	return lookup(doc, locators, func(s string) string {
		return strings.TrimSpace(whitespaceRegex.ReplaceAllString(s, " "))
	})
}

func firstMatchRaw(doc *goquery.Document, locators []Locator) (string, bool) {
	return lookup(doc, locators, strings.TrimSpace)
}

func lookup(doc *goquery.Document, locators []Locator, clean func(string) string) (string, bool) {
	for _, loc := range locators {
		var value string
		doc.Find(loc.Selector).EachWithBreak(func(i int, s *goquery.Selection) bool {
			if loc.Attr != "" {
				attr, _ := s.Attr(loc.Attr)
				value = clean(attr)
			} else {
				value = clean(s.Text())
			}
			return value == ""
		})
		if value != "" {
			return value, true
		}
	}
	return "", false
}

// ParseFirstInt returns the first run of digits in text, ignoring whitespace.
func ParseFirstInt(text string) (int, bool) {
	compact := whitespaceRegex.ReplaceAllString(text, "")
	run := digitRunRegex.FindString(compact)
	if run == "" {
		return 0, false
	}
	n, err := strconv.Atoi(run)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ParsePrice drops every non-digit character ("349 900 $" -> 349900).
func ParsePrice(text string) (int64, bool) {
	var b strings.Builder
	for _, c := range text {
		if c >= '0' && c <= '9' {
			b.WriteRune(c)
		}
	}
	if b.Len() == 0 {
		return 0, false
	}
	n, err := strconv.ParseInt(b.String(), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// cityFromAddress takes the last comma-separated part of an address,
// without any parenthesized borough ("Montréal (Ville-Marie)" -> "Montréal").
func cityFromAddress(address string) (string, bool) {
	parts := strings.Split(address, ",")
	if len(parts) < 2 {
		return "", false
	}
	city := strings.TrimSpace(parenRegex.ReplaceAllString(parts[len(parts)-1], ""))
	if city == "" || digitRunRegex.MatchString(city) {
		return "", false
	}
	return city, true
}

// structuredPrice reads the offer price from JSON-LD blocks, for pages whose
// visible price markup did not match any locator.
func structuredPrice(doc *goquery.Document) (int64, bool) {
	var price int64
	var found bool
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(i int, s *goquery.Selection) bool {
		var data any
		if err := json.Unmarshal([]byte(s.Text()), &data); err != nil {
			return true
		}
		price, found = findPrice(data)
		return !found
	})
	return price, found
}

func findPrice(v any) (int64, bool) {
	switch t := v.(type) {
	case map[string]any:
		if p, ok := priceValue(t["price"]); ok {
			return p, true
		}
		for _, key := range []string{"offers", "@graph"} {
			if p, ok := findPrice(t[key]); ok {
				return p, true
			}
		}
	case []any:
		for _, item := range t {
			if p, ok := findPrice(item); ok {
				return p, true
			}
		}
	}
	return 0, false
}

func priceValue(v any) (int64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if f <= 0 {
		return 0, false
	}
	return int64(math.Round(f)), true
}
