package workers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"centris_importer/httputil"
	"centris_importer/models"
	"centris_importer/storage"
)

const (
	DefaultImageWorkers = 6
	maxImageBytes       = 50 * 1024 * 1024
	keyPrefix           = "listings/"
)

// Materializer downloads listing images from the source media host and
// re-uploads them into application-owned object storage.
type Materializer struct {
	client  *http.Client
	store   storage.ObjectStore
	siteURL string
	workers int
	timeout time.Duration
	logger  *slog.Logger
	newName func() string
}

func NewMaterializer(client *http.Client, store storage.ObjectStore, siteURL string, workers int, timeout time.Duration, logger *slog.Logger) *Materializer {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	if workers <= 0 {
		workers = DefaultImageWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Materializer{
		client:  client,
		store:   store,
		siteURL: siteURL,
		workers: workers,
		timeout: timeout,
		logger:  logger.With("component", "materializer"),
		newName: func() string { return uuid.NewString() },
	}
}

// Materialize copies one image. Failures come back as an ImageError rather
// than an error so the batch keeps going.
func (m *Materializer) Materialize(ctx context.Context, index int, imageURL string) (models.MaterializedImage, *models.ImageError) {
	result := models.MaterializedImage{Index: index, SourceURL: imageURL}

	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	data, contentType, err := m.download(ctx, imageURL)
	if err != nil {
		return result, &models.ImageError{URL: imageURL, Reason: err.Error()}
	}

	key := keyPrefix + m.newName() + guessExtension(imageURL, contentType)
	publicURL, err := m.store.Upload(ctx, key, bytes.NewReader(data), contentType, storage.CacheForever)
	if err != nil {
		return result, &models.ImageError{URL: imageURL, Reason: fmt.Sprintf("upload: %v", err)}
	}

	result.Key = key
	result.PublicURL = publicURL
	result.ContentType = contentType
	result.Size = int64(len(data))
	return result, nil
}

func (m *Materializer) download(ctx context.Context, imageURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	httputil.SetBrowserHeaders(req, m.siteURL, httputil.AcceptImage)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("download status: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, "", fmt.Errorf("read body: %w", err)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("empty body")
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}
	return data, contentType, nil
}

// MaterializeAll copies every URL with at most m.workers downloads in flight.
// Successes keep the order of urls. The returned error is only set when ctx
// ended before the batch finished.
func (m *Materializer) MaterializeAll(ctx context.Context, urls []string) ([]models.MaterializedImage, []models.ImageError, error) {
	type slot struct {
		image models.MaterializedImage
		err   *models.ImageError
	}
	slots := make([]slot, len(urls))

	var g errgroup.Group
	g.SetLimit(m.workers)
	for i, u := range urls {
		g.Go(func() error {
			if ctx.Err() != nil {
				slots[i].err = &models.ImageError{URL: u, Reason: ctx.Err().Error()}
				return nil
			}
			img, imgErr := m.Materialize(ctx, i, u)
			slots[i] = slot{image: img, err: imgErr}
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	var images []models.MaterializedImage
	var errs []models.ImageError
	for _, s := range slots {
		if s.err != nil {
			m.logger.Warn("image failed", "url", s.err.URL, "reason", s.err.Reason)
			errs = append(errs, *s.err)
			continue
		}
		m.logger.Debug("image stored", "url", s.image.SourceURL, "key", s.image.Key, "size", s.image.Size)
		images = append(images, s.image)
	}
	return images, errs, nil
}

// guessExtension prefers the response content type, then the URL path.
func guessExtension(rawURL, contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}

	switch mediaType {
	case "image/jpeg", "image/jpg", "image/pjpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/avif":
		return ".avif"
	}

	if i := strings.IndexAny(rawURL, "?#"); i >= 0 {
		rawURL = rawURL[:i]
	}
	ext := strings.ToLower(path.Ext(rawURL))
	if isImageExt(ext) {
		return ext
	}
	return ".jpg"
}

func isImageExt(ext string) bool {
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp", ".tiff":
		return true
	}
	return false
}
