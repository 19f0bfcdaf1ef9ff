package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"centris_importer/config"
	"centris_importer/models"
	"centris_importer/scraper"
	"centris_importer/workers"
)

const exampleListingURL = "https://www.example-source.ca/listing/ABCDEF1234567890ABCDEF1234567890?t=pi"

func loadFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("failed to read fixture %s: %v", name, err)
	}
	return data
}

func exampleSource() *config.SourceConfig {
	return &config.SourceConfig{
		ID:            "example",
		DomainMarker:  "example-source.ca",
		SiteURL:       "https://www.example-source.ca",
		MediaHost:     "media.example-source.ca",
		MediaMarkers:  []string{"media.example-source.ca"},
		GalleryWidth:  1024,
		GalleryHeight: 1024,
	}
}

// fakeSite answers every request in-process: the listing host serves page,
// the media host serves an image unless its id is in failing.
type fakeSite struct {
	page    []byte
	failing map[string]bool
	calls   int32

	// blockMedia holds media requests until they are cancelled; each held
	// request is announced on mediaStarted.
	blockMedia   bool
	mediaStarted chan struct{}
}

func (s *fakeSite) RoundTrip(req *http.Request) (*http.Response, error) {
	atomic.AddInt32(&s.calls, 1)
	rec := httptest.NewRecorder()
	switch req.URL.Host {
	case "www.example-source.ca":
		rec.Header().Set("Content-Type", "text/html; charset=utf-8")
		rec.Write(s.page)
	case "media.example-source.ca":
		if s.blockMedia {
			select {
			case s.mediaStarted <- struct{}{}:
			default:
			}
			<-req.Context().Done()
			return nil, req.Context().Err()
		}
		id := strings.ToUpper(req.URL.Query().Get("id"))
		if s.failing[id] {
			http.Error(rec, "gone", http.StatusNotFound)
			break
		}
		rec.Header().Set("Content-Type", "image/jpeg")
		rec.WriteString("jpeg-" + id)
	default:
		http.NotFound(rec, req)
	}
	resp := rec.Result()
	resp.Request = req
	return resp, nil
}

type memObjects struct {
	mu   sync.Mutex
	keys []string
}

func (m *memObjects) Upload(ctx context.Context, key string, data io.Reader, contentType, cacheControl string) (string, error) {
	io.Copy(io.Discard, data)
	m.mu.Lock()
	m.keys = append(m.keys, key)
	m.mu.Unlock()
	return m.PublicURL(key), nil
}

func (m *memObjects) PublicURL(key string) string {
	return "https://storage.app.test/property-images/" + key
}

type memListings struct {
	inserted []*models.ListingRecord
	err      error
}

func (m *memListings) InsertListing(ctx context.Context, l *models.ListingRecord) error {
	if m.err != nil {
		return m.err
	}
	m.inserted = append(m.inserted, l)
	return nil
}

type memRuns struct {
	created  []models.ImportRun
	finished []models.ImportRun
}

func (m *memRuns) CreateRun(ctx context.Context, run *models.ImportRun) (int64, error) {
	m.created = append(m.created, *run)
	return int64(len(m.created)), nil
}

func (m *memRuns) FinishRun(ctx context.Context, run *models.ImportRun) error {
	m.finished = append(m.finished, *run)
	return nil
}

type harness struct {
	site     *fakeSite
	objects  *memObjects
	listings *memListings
	runs     *memRuns
	svc      *ImportService
}

func newHarness(t *testing.T, page []byte, failing ...string) *harness {
	t.Helper()
	src := exampleSource()
	site := &fakeSite{page: page, failing: map[string]bool{}}
	for _, id := range failing {
		site.failing[strings.ToUpper(id)] = true
	}
	client := &http.Client{Transport: site}

	h := &harness{
		site:     site,
		objects:  &memObjects{},
		listings: &memListings{},
		runs:     &memRuns{},
	}
	h.svc = NewImportService(ImportDeps{
		SourceID:   src.ID,
		Validator:  scraper.NewValidator(src.DomainMarker),
		Fetcher:    scraper.NewFetcher(client, src.SiteURL, time.Second, 0, nil),
		Normalizer: scraper.NewNormalizer(src),
		Preset:     scraper.PresetGallery,
		Images:     workers.NewMaterializer(client, h.objects, src.SiteURL, 3, time.Second, nil),
		Listings:   h.listings,
		Runs:       h.runs,
	})
	return h
}

// galleryPage builds a listing page with one gallery image per id.
func galleryPage(ids ...string) []byte {
	var b strings.Builder
	b.WriteString("<html><body><h1>Duplex lumineux</h1><div class=\"price\">349 900 $</div><div class=\"gallery\">")
	for _, id := range ids {
		fmt.Fprintf(&b, `<img src="https://media.example-source.ca/media.ashx?id=%s&amp;t=pi&amp;w=320">`, id)
	}
	b.WriteString("</div><p>")
	b.WriteString(strings.Repeat("Grand duplex au coeur du quartier. ", 40))
	b.WriteString("</p></body></html>")
	return []byte(b.String())
}

func hexID(n int) string {
	return fmt.Sprintf("%032X", n)
}

func TestImport_EndToEnd(t *testing.T) {
	h := newHarness(t, loadFixture(t, "sparse_listing.html"))

	result, err := h.svc.Import(context.Background(), ImportRequest{URL: exampleListingURL, UserID: "user-1"})
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}

	l := result.Listing
	if l.Title != "Beautiful Condo" {
		t.Fatalf("expected title Beautiful Condo, got %q", l.Title)
	}
	if l.Price == nil || *l.Price != 275000 {
		t.Fatalf("expected price 275000, got %v", l.Price)
	}
	if l.CentrisID != "ABCDEF1234567890ABCDEF1234567890" {
		t.Fatalf("unexpected centris_id %q", l.CentrisID)
	}
	if l.UserID != "user-1" || l.SourceURL != exampleListingURL {
		t.Fatalf("unexpected owner/source: %q %q", l.UserID, l.SourceURL)
	}
	if len(l.Images) != 2 || l.Images[0] == l.Images[1] {
		t.Fatalf("expected two distinct images, got %v", l.Images)
	}
	for _, img := range l.Images {
		if !strings.HasPrefix(img, "https://storage.app.test/property-images/listings/") {
			t.Fatalf("image not application hosted: %s", img)
		}
	}
	if len(h.listings.inserted) != 1 || h.listings.inserted[0] != l {
		t.Fatalf("expected the listing to be persisted once")
	}

	if len(h.runs.finished) != 1 {
		t.Fatalf("expected one finished run, got %d", len(h.runs.finished))
	}
	run := h.runs.finished[0]
	if run.Status != models.RunStatusCompleted || run.ImagesSaved != 2 || run.ListingID != l.ID.String() {
		t.Fatalf("unexpected run record: %+v", run)
	}
}

func TestImport_InvalidURLMakesNoNetworkCalls(t *testing.T) {
	h := newHarness(t, loadFixture(t, "sparse_listing.html"))

	for _, raw := range []string{"", "https://www.realtor.ca/listing/123", "not a url"} {
		_, err := h.svc.Import(context.Background(), ImportRequest{URL: raw})
		if !errors.Is(err, scraper.ErrInvalidInput) {
			t.Fatalf("%q: expected ErrInvalidInput, got %v", raw, err)
		}
	}
	if calls := atomic.LoadInt32(&h.site.calls); calls != 0 {
		t.Fatalf("expected no network calls, got %d", calls)
	}
	if len(h.runs.created) != 0 {
		t.Fatalf("rejected urls should not be recorded")
	}
}

func TestImport_PartialImageFailure(t *testing.T) {
	ids := []string{hexID(1), hexID(2), hexID(3), hexID(4), hexID(5)}
	h := newHarness(t, galleryPage(ids...), ids[1], ids[3])

	result, err := h.svc.Import(context.Background(), ImportRequest{URL: exampleListingURL})
	if err != nil {
		t.Fatalf("expected success with partial images, got %v", err)
	}
	if len(result.Listing.Images) != 3 {
		t.Fatalf("expected 3 images, got %d", len(result.Listing.Images))
	}
	if len(result.ImageErrors) != 2 {
		t.Fatalf("expected 2 image errors, got %d", len(result.ImageErrors))
	}
	if !strings.Contains(result.ImageErrors[0].URL, ids[1]) || !strings.Contains(result.ImageErrors[1].URL, ids[3]) {
		t.Fatalf("unexpected failures: %+v", result.ImageErrors)
	}
}

func TestImport_AllImagesFail(t *testing.T) {
	ids := []string{hexID(10), hexID(11), hexID(12)}
	h := newHarness(t, galleryPage(ids...), ids...)

	_, err := h.svc.Import(context.Background(), ImportRequest{URL: exampleListingURL})
	if !errors.Is(err, scraper.ErrNoImages) {
		t.Fatalf("expected ErrNoImages, got %v", err)
	}
	var agg *scraper.AggregateImageError
	if !errors.As(err, &agg) || len(agg.Errors) != 3 {
		t.Fatalf("expected aggregate of 3 errors, got %v", err)
	}
	if strings.Count(agg.Details(), "; ") != 2 {
		t.Fatalf("expected joined details, got %q", agg.Details())
	}
	if len(h.listings.inserted) != 0 {
		t.Fatal("no listing should be created")
	}
	if run := h.runs.finished[0]; run.Status != models.RunStatusFailed || run.ImageErrors != 3 {
		t.Fatalf("unexpected run record: %+v", run)
	}
}

func TestImport_CancelledDuringImages(t *testing.T) {
	ids := []string{hexID(20), hexID(21), hexID(22)}
	h := newHarness(t, galleryPage(ids...))
	h.site.blockMedia = true
	h.site.mediaStarted = make(chan struct{}, len(ids))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-h.site.mediaStarted
		cancel()
	}()

	done := make(chan error, 1)
	go func() {
		_, err := h.svc.Import(ctx, ImportRequest{URL: exampleListingURL, UserID: "user-1"})
		done <- err
	}()

	var err error
	select {
	case err = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("import did not stop after cancellation")
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(h.listings.inserted) != 0 {
		t.Fatal("no listing should be persisted after cancellation")
	}
	if len(h.objects.keys) != 0 {
		t.Fatalf("no images should be uploaded, got %v", h.objects.keys)
	}
	if len(h.runs.finished) != 1 || h.runs.finished[0].Status != models.RunStatusFailed {
		t.Fatalf("expected one failed run, got %+v", h.runs.finished)
	}
}

func TestImport_NoCandidatesStillCreatesListing(t *testing.T) {
	h := newHarness(t, galleryPage())

	result, err := h.svc.Import(context.Background(), ImportRequest{URL: exampleListingURL})
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if result.Listing.Images != nil {
		t.Fatalf("expected nil images, got %v", result.Listing.Images)
	}
	if result.Listing.Price == nil || *result.Listing.Price != 349900 {
		t.Fatalf("unexpected price %v", result.Listing.Price)
	}
}

func TestImport_PersistFailure(t *testing.T) {
	h := newHarness(t, loadFixture(t, "sparse_listing.html"))
	h.listings.err = errors.New("duplicate key")

	_, err := h.svc.Import(context.Background(), ImportRequest{URL: exampleListingURL})
	if !errors.Is(err, ErrPersist) {
		t.Fatalf("expected ErrPersist, got %v", err)
	}
}

func TestImport_FetchFailure(t *testing.T) {
	h := newHarness(t, []byte("<html>blocked</html>"))

	_, err := h.svc.Import(context.Background(), ImportRequest{URL: exampleListingURL})
	if !errors.Is(err, scraper.ErrFetchFailed) {
		t.Fatalf("expected ErrFetchFailed, got %v", err)
	}
	if len(h.objects.keys) != 0 {
		t.Fatal("no images should be uploaded")
	}
}

func TestCanonicalImages_DedupesByIdentifier(t *testing.T) {
	h := newHarness(t, nil)
	id := "0123456789abcdef0123456789abcdef"

	got := h.svc.CanonicalImages([]models.ImageCandidate{
		{URL: "https://media.example-source.ca/media.ashx?id=" + id + "&w=320", Region: models.RegionPrimary},
		{URL: "https://media.example-source.ca/media.ashx?id=" + strings.ToUpper(id) + "&w=640", Region: models.RegionGallery},
		{URL: "https://cdn.other.test/" + id + ".jpg", Region: models.RegionGeneric},
		{URL: "https://media.example-source.ca/logo.png", Region: models.RegionGeneric},
	})
	if len(got) != 1 {
		t.Fatalf("expected one canonical url, got %v", got)
	}
	want := "https://media.example-source.ca/media.ashx?h=1024&id=0123456789ABCDEF0123456789ABCDEF&sm=c&t=pi&w=1024"
	if got[0] != want {
		t.Fatalf("expected %s, got %s", want, got[0])
	}
}
