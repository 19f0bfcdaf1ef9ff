package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"centris_importer/models"
	"centris_importer/scraper"
	"centris_importer/services"
)

type handler struct {
	importer Importer
	timeout  time.Duration
	logger   *slog.Logger
}

type scrapeRequest struct {
	URL string `json:"url"`
}

type listingResponse struct {
	ID           string   `json:"id"`
	CentrisID    string   `json:"centris_id"`
	Title        string   `json:"title"`
	Description  *string  `json:"description"`
	Price        *float64 `json:"price"`
	Address      *string  `json:"address"`
	City         *string  `json:"city"`
	PostalCode   *string  `json:"postal_code"`
	Bedrooms     *int     `json:"bedrooms"`
	Bathrooms    *int     `json:"bathrooms"`
	PropertyType string   `json:"property_type"`
	Images       []string `json:"images"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toResponse(l *models.ListingRecord) listingResponse {
	return listingResponse{
		ID:           l.ID.String(),
		CentrisID:    l.CentrisID,
		Title:        l.Title,
		Description:  l.Description,
		Price:        l.Price,
		Address:      l.Address,
		City:         l.City,
		PostalCode:   l.PostalCode,
		Bedrooms:     l.Bedrooms,
		Bathrooms:    l.Bathrooms,
		PropertyType: l.PropertyType,
		Images:       l.Images,
	}
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) scrapeListing(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With("request_id", middleware.GetReqID(r.Context()))

	var req scrapeRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 64*1024)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "URL is required", "")
		return
	}

	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	result, err := h.importer.Import(ctx, services.ImportRequest{
		URL:    req.URL,
		UserID: userIDFrom(ctx),
	})
	if err != nil {
		status, msg, details := statusFor(err)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			status, msg, details = http.StatusGatewayTimeout, "Import timed out", err.Error()
		}
		if status >= 500 {
			logger.Error("scrape failed", "url", req.URL, "error", err)
		} else {
			logger.Info("scrape rejected", "url", req.URL, "error", err)
		}
		writeError(w, status, msg, details)
		return
	}

	writeJSON(w, http.StatusOK, toResponse(result.Listing))
}

// statusFor maps pipeline errors to an HTTP status and a safe message.
func statusFor(err error) (int, string, string) {
	var agg *scraper.AggregateImageError
	switch {
	case errors.Is(err, scraper.ErrInvalidInput):
		return http.StatusBadRequest, "Invalid Centris URL", ""
	case errors.Is(err, services.ErrUnauthorized):
		return http.StatusUnauthorized, "Unauthorized", ""
	case errors.As(err, &agg):
		return http.StatusInternalServerError, "No images could be processed", agg.Details()
	case errors.Is(err, scraper.ErrFetchFailed):
		return http.StatusInternalServerError, "Failed to fetch listing page", err.Error()
	case errors.Is(err, services.ErrPersist):
		return http.StatusInternalServerError, "Failed to save listing", err.Error()
	default:
		return http.StatusInternalServerError, "Failed to import listing", err.Error()
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, details string) {
	writeJSON(w, status, errorResponse{Error: msg, Details: details})
}
