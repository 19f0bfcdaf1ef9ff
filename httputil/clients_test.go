package httputil

import (
	"net/http"
	"testing"
	"time"

	"centris_importer/config"
)

func TestSetBrowserHeaders(t *testing.T) {
	req, _ := http.NewRequest("GET", "https://www.centris.ca/fr/condo~a-vendre~montreal/12345678", nil)
	SetBrowserHeaders(req, "https://www.centris.ca/", AcceptHTML)

	if req.Header.Get("Referer") != "https://www.centris.ca/" {
		t.Fatalf("unexpected referer %q", req.Header.Get("Referer"))
	}
	if req.Header.Get("Origin") != "https://www.centris.ca" {
		t.Fatalf("unexpected origin %q", req.Header.Get("Origin"))
	}
	if req.Header.Get("User-Agent") == "" || req.Header.Get("Accept") != AcceptHTML {
		t.Fatalf("missing browser headers: %v", req.Header)
	}
}

func TestNewClients_ProxyOnlyOnScraping(t *testing.T) {
	clients := NewClients(&config.ProxyConfig{URL: "http://proxy.local:3128"}, 30*time.Second)

	if clients.Scraping.Timeout != 30*time.Second {
		t.Fatalf("unexpected scraping timeout %v", clients.Scraping.Timeout)
	}
	tr, ok := clients.Scraping.Transport.(*http.Transport)
	if !ok || tr.Proxy == nil {
		t.Fatalf("expected proxied transport")
	}
	req, _ := http.NewRequest("GET", "https://www.centris.ca/", nil)
	proxyURL, err := tr.Proxy(req)
	if err != nil || proxyURL == nil || proxyURL.Host != "proxy.local:3128" {
		t.Fatalf("unexpected proxy %v (%v)", proxyURL, err)
	}
	if clients.API.Transport != nil {
		t.Fatalf("API client should use the default transport")
	}
}
