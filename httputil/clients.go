package httputil

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"centris_importer/config"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

type Clients struct {
	Scraping *http.Client // proxied when PROXY_URL is set, for the listing site and its media host
	API      *http.Client // direct, for Supabase/S3
}

func NewClients(proxyCfg *config.ProxyConfig, scrapeTimeout time.Duration) *Clients {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if proxyCfg != nil && proxyCfg.URL != "" {
		if proxyURL, err := url.Parse(proxyCfg.URL); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	return &Clients{
		Scraping: &http.Client{
			Timeout:   scrapeTimeout,
			Transport: transport,
		},
		API: &http.Client{Timeout: 30 * time.Second},
	}
}

// SetBrowserHeaders makes a request look like it came from a browser that
// was already on the source site.
func SetBrowserHeaders(req *http.Request, siteURL, accept string) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", accept)
	req.Header.Set("Accept-Language", "fr-CA,fr;q=0.9,en-US;q=0.8,en;q=0.7")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")
	if siteURL != "" {
		site := strings.TrimRight(siteURL, "/")
		req.Header.Set("Referer", site+"/")
		req.Header.Set("Origin", site)
	}
}

const (
	AcceptHTML  = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8"
	AcceptImage = "image/avif,image/webp,image/apng,image/*,*/*;q=0.8"
)
