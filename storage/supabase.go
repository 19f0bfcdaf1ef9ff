package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"centris_importer/config"
	"centris_importer/models"
)

// SupabaseStore inserts listings through the PostgREST endpoint.
type SupabaseStore struct {
	url        string
	serviceKey string
	client     *http.Client
}

func NewSupabaseStore(cfg *config.SupabaseConfig, client *http.Client) *SupabaseStore {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &SupabaseStore{
		url:        strings.TrimRight(cfg.URL, "/"),
		serviceKey: cfg.ServiceKey,
		client:     client,
	}
}

func (s *SupabaseStore) InsertListing(ctx context.Context, l *models.ListingRecord) error {
	data, err := json.Marshal(l)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.url+"/rest/v1/listings", bytes.NewReader(data))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=minimal")
	s.authorize(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("supabase error %d: %s", resp.StatusCode, string(body))
	}

	return nil
}

func (s *SupabaseStore) authorize(req *http.Request) {
	req.Header.Set("apikey", s.serviceKey)
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
}

// SupabaseStorage uploads objects to a public Supabase Storage bucket.
type SupabaseStorage struct {
	SupabaseStore
	bucket string
}

func NewSupabaseStorage(cfg *config.SupabaseConfig, client *http.Client) *SupabaseStorage {
	return &SupabaseStorage{
		SupabaseStore: *NewSupabaseStore(cfg, client),
		bucket:        cfg.Bucket,
	}
}

func (s *SupabaseStorage) Upload(ctx context.Context, key string, data io.Reader, contentType, cacheControl string) (string, error) {
	endpoint := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.url, url.PathEscape(s.bucket), escapeKey(key))

	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, data)
	if err != nil {
		return "", err
	}

	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "false")
	if cacheControl != "" {
		req.Header.Set("Cache-Control", cacheControl)
	}
	s.authorize(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("supabase storage error %d: %s", resp.StatusCode, string(body))
	}

	return s.PublicURL(key), nil
}

func (s *SupabaseStorage) PublicURL(key string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.url, url.PathEscape(s.bucket), escapeKey(key))
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
