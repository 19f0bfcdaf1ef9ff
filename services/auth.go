package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"centris_importer/config"
)

var ErrUnauthorized = errors.New("unauthorized")

// Authenticator resolves a bearer token to the id of the user it belongs to.
type Authenticator interface {
	UserID(ctx context.Context, bearer string) (string, error)
}

// SupabaseAuth validates access tokens against the Supabase auth API.
type SupabaseAuth struct {
	url     string
	anonKey string
	client  *http.Client
}

func NewSupabaseAuth(cfg *config.SupabaseConfig, client *http.Client) *SupabaseAuth {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &SupabaseAuth{
		url:     strings.TrimRight(cfg.URL, "/"),
		anonKey: cfg.AnonKey,
		client:  client,
	}
}

func (a *SupabaseAuth) UserID(ctx context.Context, bearer string) (string, error) {
	token := strings.TrimSpace(bearer)
	if token == "" {
		return "", ErrUnauthorized
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.url+"/auth/v1/user", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("apikey", a.anonKey)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("auth request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", ErrUnauthorized
	case resp.StatusCode >= 400:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("supabase auth error %d: %s", resp.StatusCode, string(body))
	}

	var user struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return "", fmt.Errorf("decode user: %w", err)
	}
	if user.ID == "" {
		return "", ErrUnauthorized
	}
	return user.ID, nil
}
