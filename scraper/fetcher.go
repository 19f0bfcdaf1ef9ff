package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"centris_importer/httputil"
	"centris_importer/models"
)

const (
	DefaultFetchTimeout  = 30 * time.Second
	DefaultMinBodyLength = 1000
	maxPageSize          = 10 * 1024 * 1024
)

// Fetcher downloads listing pages. It never retries.
type Fetcher struct {
	client        *http.Client
	siteURL       string
	timeout       time.Duration
	minBodyLength int
	logger        *slog.Logger
}

func NewFetcher(client *http.Client, siteURL string, timeout time.Duration, minBodyLength int, logger *slog.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{}
	}
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	if minBodyLength <= 0 {
		minBodyLength = DefaultMinBodyLength
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		client:        client,
		siteURL:       siteURL,
		timeout:       timeout,
		minBodyLength: minBodyLength,
		logger:        logger.With("component", "fetcher"),
	}
}

// Fetch retrieves the raw markup for listingURL. Every failure is a
// *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, listingURL string) (*models.ListingSource, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", listingURL, nil)
	if err != nil {
		return nil, &FetchError{URL: listingURL, Reason: "create request", Err: err}
	}
	httputil.SetBrowserHeaders(req, f.siteURL, httputil.AcceptHTML)

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: listingURL, Reason: "request", Timeout: isTimeout(ctx, err), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: listingURL, Status: resp.StatusCode}
	}

	if resp.Request != nil && resp.Request.URL.String() != req.URL.String() && isDelistRedirect(resp.Request.URL.RequestURI()) {
		return nil, &FetchError{URL: listingURL, Status: resp.StatusCode, Reason: "listing no longer available, redirected to " + resp.Request.URL.String()}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return nil, &FetchError{URL: listingURL, Status: resp.StatusCode, Reason: "read body", Timeout: isTimeout(ctx, err), Err: err}
	}

	if len(body) <= f.minBodyLength {
		return nil, &FetchError{
			URL:    listingURL,
			Status: resp.StatusCode,
			Reason: fmt.Sprintf("page too short (%d bytes), likely blocked or empty", len(body)),
		}
	}

	if isDelistedPage(string(body)) {
		return nil, &FetchError{URL: listingURL, Status: resp.StatusCode, Reason: "listing no longer available"}
	}

	f.logger.Debug("fetched listing page", "url", listingURL, "bytes", len(body), "elapsed", time.Since(start))

	return &models.ListingSource{URL: listingURL, HTML: string(body)}, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
