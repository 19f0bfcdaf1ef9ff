package scraper

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"centris_importer/identity"
	"centris_importer/models"
)

var (
	primaryViewerSelectors = []string{
		`#divMainPhoto img`,
		`.main-photo img`,
		`.primary-photo img`,
		`#photo-viewer img`,
		`img#mainPhoto`,
	}

	thumbnailSelectors = []string{
		`#divThumbnails [onclick]`,
		`#divThumbnails img`,
		`.photo-thumbnails [onclick]`,
		`.photo-thumbnails img`,
		`.thumbnails [onclick]`,
		`.thumbnails img`,
		`.thumbnail`,
		`[onclick*="ShowPhoto"]`,
	}

	gallerySelectors = []string{
		`.gallery img`,
		`.photo-gallery img`,
		`.image-gallery img`,
		`.carousel img`,
		`.swiper-slide img`,
		`.lSSlideOuter img`,
	}

	imageAttrs = []string{"src", "data-src", "data-original", "srcset"}
)

// ExtractImages runs every pass in precedence order (primary viewer,
// thumbnails, galleries, generic fallback) and returns the candidates with
// duplicate URLs removed, keeping the first occurrence.
func ExtractImages(doc *goquery.Document, pageURL string, n *Normalizer) []models.ImageCandidate {
	base, _ := url.Parse(pageURL)

	passes := [][]models.ImageCandidate{
		PrimaryViewerImages(doc, base),
		ThumbnailImages(doc, base, func(id string) string { return n.Canonical(id, PresetGallery) }),
		GalleryImages(doc, base),
		GenericImages(doc, base, n.HasMarker),
	}

	return MergeCandidates(passes...)
}

// MergeCandidates concatenates passes and drops repeated URLs.
func MergeCandidates(passes ...[]models.ImageCandidate) []models.ImageCandidate {
	seen := make(map[string]struct{})
	var out []models.ImageCandidate
	for _, pass := range passes {
		for _, c := range pass {
			if _, dup := seen[c.URL]; dup {
				continue
			}
			seen[c.URL] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}

func PrimaryViewerImages(doc *goquery.Document, base *url.URL) []models.ImageCandidate {
	return collect(doc, primaryViewerSelectors, base, models.RegionPrimary, nil)
}

// ThumbnailImages also reads identifiers out of onclick handlers and turns
// them straight into canonical URLs with synth.
func ThumbnailImages(doc *goquery.Document, base *url.URL, synth func(id string) string) []models.ImageCandidate {
	var out []models.ImageCandidate
	for _, sel := range thumbnailSelectors {
		doc.Find(sel).Each(func(i int, s *goquery.Selection) {
			if onclick, ok := s.Attr("onclick"); ok && synth != nil {
				if id, ok := identity.FindImageID(onclick); ok {
					out = append(out, models.ImageCandidate{
						URL:       synth(id),
						Region:    models.RegionThumbnail,
						Canonical: true,
					})
				}
			}
			imgs := s.Find("img")
			if goquery.NodeName(s) == "img" {
				imgs = s
			}
			imgs.Each(func(j int, img *goquery.Selection) {
				for _, u := range attrURLs(img, base) {
					out = append(out, models.ImageCandidate{URL: u, Region: models.RegionThumbnail})
				}
			})
		})
	}
	return out
}

func GalleryImages(doc *goquery.Document, base *url.URL) []models.ImageCandidate {
	return collect(doc, gallerySelectors, base, models.RegionGallery, nil)
}

// GenericImages is the last resort: every img whose URL passes keep.
func GenericImages(doc *goquery.Document, base *url.URL, keep func(string) bool) []models.ImageCandidate {
	return collect(doc, []string{"img"}, base, models.RegionGeneric, keep)
}

func collect(doc *goquery.Document, selectors []string, base *url.URL, region models.ImageRegion, keep func(string) bool) []models.ImageCandidate {
	var out []models.ImageCandidate
	for _, sel := range selectors {
		doc.Find(sel).Each(func(i int, s *goquery.Selection) {
			for _, u := range attrURLs(s, base) {
				if keep != nil && !keep(u) {
					continue
				}
				out = append(out, models.ImageCandidate{URL: u, Region: region})
			}
		})
	}
	return out
}

// attrURLs reads src, data-src, data-original and every srcset entry.
func attrURLs(s *goquery.Selection, base *url.URL) []string {
	var urls []string
	for _, attr := range imageAttrs {
		val, ok := s.Attr(attr)
		if !ok {
			continue
		}
		val = strings.TrimSpace(val)
		if val == "" {
			continue
		}
		if attr == "srcset" {
			for _, entry := range strings.Split(val, ",") {
				fields := strings.Fields(entry)
				if len(fields) == 0 {
					continue
				}
				if u, ok := resolve(fields[0], base); ok {
					urls = append(urls, u)
				}
			}
			continue
		}
		if u, ok := resolve(val, base); ok {
			urls = append(urls, u)
		}
	}
	return urls
}

func resolve(raw string, base *url.URL) (string, bool) {
	if strings.HasPrefix(raw, "data:") || strings.HasPrefix(raw, "javascript:") {
		return "", false
	}
	if strings.HasPrefix(raw, "//") {
		return "https:" + raw, true
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	if u.IsAbs() {
		return u.String(), true
	}
	if base == nil {
		return "", false
	}
	return base.ResolveReference(u).String(), true
}
