package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"centris_importer/events"
	"centris_importer/identity"
	"centris_importer/models"
	"centris_importer/scraper"
	"centris_importer/storage"
)

var ErrPersist = errors.New("failed to save listing")

// PageFetcher retrieves the markup of a listing page.
type PageFetcher interface {
	Fetch(ctx context.Context, listingURL string) (*models.ListingSource, error)
}

// ImageMaterializer copies canonical image URLs into owned storage.
type ImageMaterializer interface {
	MaterializeAll(ctx context.Context, urls []string) ([]models.MaterializedImage, []models.ImageError, error)
}

// RunRecorder keeps the local history of import attempts.
type RunRecorder interface {
	CreateRun(ctx context.Context, run *models.ImportRun) (int64, error)
	FinishRun(ctx context.Context, run *models.ImportRun) error
}

type ImportRequest struct {
	URL    string
	UserID string
}

type ImportResult struct {
	Listing     *models.ListingRecord
	Candidates  int
	ImageErrors []models.ImageError
}

// ImportService runs one listing import from URL to persisted record.
type ImportService struct {
	source     string
	validator  *scraper.Validator
	fetcher    PageFetcher
	normalizer *scraper.Normalizer
	preset     scraper.Preset
	images     ImageMaterializer
	listings   storage.ListingStore
	publisher  events.Publisher
	runs       RunRecorder
	logger     *slog.Logger
	now        func() time.Time
}

type ImportDeps struct {
	SourceID   string
	Validator  *scraper.Validator
	Fetcher    PageFetcher
	Normalizer *scraper.Normalizer
	Preset     scraper.Preset
	Images     ImageMaterializer
	Listings   storage.ListingStore
	Publisher  events.Publisher
	Runs       RunRecorder
	Logger     *slog.Logger
}

func NewImportService(d ImportDeps) *ImportService {
	publisher := d.Publisher
	if publisher == nil {
		publisher = events.Noop{}
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ImportService{
		source:     d.SourceID,
		validator:  d.Validator,
		fetcher:    d.Fetcher,
		normalizer: d.Normalizer,
		preset:     d.Preset,
		images:     d.Images,
		listings:   d.Listings,
		publisher:  publisher,
		runs:       d.Runs,
		logger:     logger.With("component", "import"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Import validates, fetches, extracts, materializes and persists one
// listing. A rejected URL returns scraper.ErrInvalidInput before any network
// call is made.
func (s *ImportService) Import(ctx context.Context, req ImportRequest) (*ImportResult, error) {
	if err := s.validator.Validate(req.URL); err != nil {
		return nil, err
	}

	run := &models.ImportRun{
		URL:       req.URL,
		SourceID:  s.source,
		UserID:    req.UserID,
		Status:    models.RunStatusRunning,
		StartedAt: s.now(),
	}
	s.startRun(ctx, run)

	result, err := s.run(ctx, req, run)
	s.finishRun(ctx, run, err)
	if err != nil {
		s.logger.Error("import failed", "url", req.URL, "error", err)
		return nil, err
	}

	s.logger.Info("listing imported",
		"url", req.URL,
		"listing_id", result.Listing.ID,
		"centris_id", result.Listing.CentrisID,
		"images", len(result.Listing.Images),
		"image_errors", len(result.ImageErrors),
	)
	return result, nil
}

func (s *ImportService) run(ctx context.Context, req ImportRequest, run *models.ImportRun) (*ImportResult, error) {
	src, err := s.fetcher.Fetch(ctx, req.URL)
	if err != nil {
		return nil, err
	}

	doc, err := scraper.ParseDocument(src)
	if err != nil {
		return nil, fmt.Errorf("parse listing page: %w", err)
	}

	fields := scraper.ExtractFields(doc)
	candidates := scraper.ExtractImages(doc, src.URL, s.normalizer)
	imageURLs := s.CanonicalImages(candidates)
	run.CandidatesFound = len(imageURLs)

	var stored []string
	var imageErrs []models.ImageError
	if len(imageURLs) > 0 {
		images, errs, err := s.images.MaterializeAll(ctx, imageURLs)
		if err != nil {
			return nil, fmt.Errorf("materialize images: %w", err)
		}
		if len(images) == 0 && len(errs) > 0 {
			run.ImageErrors = len(errs)
			return nil, &scraper.AggregateImageError{Errors: errs}
		}
		for _, img := range images {
			stored = append(stored, img.PublicURL)
		}
		imageErrs = errs
	}
	run.ImagesSaved = len(stored)
	run.ImageErrors = len(imageErrs)

	listing := AssembleListing(AssembleInput{
		UserID:    req.UserID,
		SourceURL: req.URL,
		Fields:    fields,
		Images:    stored,
		CreatedAt: s.now(),
	})

	if err := s.listings.InsertListing(ctx, listing); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersist, err)
	}
	run.ListingID = listing.ID.String()

	if err := s.publisher.PublishListingImported(ctx, listing); err != nil {
		s.logger.Warn("failed to publish listing event", "listing_id", listing.ID, "error", err)
	}

	return &ImportResult{
		Listing:     listing,
		Candidates:  len(imageURLs),
		ImageErrors: imageErrs,
	}, nil
}

// CanonicalImages normalizes candidates with the service preset and keeps the
// first URL seen for each image identifier. Rejected candidates are dropped.
func (s *ImportService) CanonicalImages(candidates []models.ImageCandidate) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, c := range candidates {
		canonical, ok := c.URL, true
		if !c.Canonical {
			canonical, ok = s.normalizer.Normalize(c.URL, s.preset)
		}
		var id string
		if ok {
			id, ok = identity.ImageID(canonical)
		}
		if !ok {
			s.logger.Debug("image candidate rejected", "url", c.URL, "region", c.Region)
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if c.Canonical {
			canonical = s.normalizer.Canonical(id, s.preset)
		}
		out = append(out, canonical)
	}
	return out
}

func (s *ImportService) startRun(ctx context.Context, run *models.ImportRun) {
	if s.runs == nil {
		return
	}
	id, err := s.runs.CreateRun(ctx, run)
	if err != nil {
		s.logger.Warn("failed to record run", "url", run.URL, "error", err)
		return
	}
	run.ID = id
}

func (s *ImportService) finishRun(ctx context.Context, run *models.ImportRun, err error) {
	if s.runs == nil || run.ID == 0 {
		return
	}
	finished := s.now()
	run.FinishedAt = &finished
	run.Status = models.RunStatusCompleted
	if err != nil {
		run.Status = models.RunStatusFailed
		run.ErrorMessage = err.Error()
	}
	if ferr := s.runs.FinishRun(context.WithoutCancel(ctx), run); ferr != nil {
		s.logger.Warn("failed to finish run", "run_id", run.ID, "error", ferr)
	}
}
