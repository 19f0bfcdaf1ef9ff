package workers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	headers map[string]string
	fail    bool
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}, headers: map[string]string{}}
}

func (s *memStore) Upload(ctx context.Context, key string, data io.Reader, contentType, cacheControl string) (string, error) {
	if s.fail {
		return "", errors.New("bucket unavailable")
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = b
	s.headers[key] = cacheControl
	return s.PublicURL(key), nil
}

func (s *memStore) PublicURL(key string) string {
	return "https://cdn.test/" + key
}

// imageServer serves a WebP for /img/<n> and 404 for anything under /missing/.
func imageServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/missing/") {
			http.NotFound(w, r)
			return
		}
		if r.URL.Path == "/empty" {
			w.WriteHeader(http.StatusOK)
			return
		}
		if r.Header.Get("Accept") == "" || r.Header.Get("User-Agent") == "" {
			t.Errorf("missing browser headers on %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "image/webp")
		fmt.Fprintf(w, "bytes-of-%s", r.URL.Path)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestMaterialize_Success(t *testing.T) {
	srv := imageServer(t)
	store := newMemStore()
	m := NewMaterializer(srv.Client(), store, "https://www.example-source.ca", 2, time.Second, nil)

	img, imgErr := m.Materialize(context.Background(), 3, srv.URL+"/img/1")
	if imgErr != nil {
		t.Fatalf("unexpected image error: %v", imgErr)
	}
	if img.Index != 3 || img.ContentType != "image/webp" {
		t.Fatalf("unexpected result: %+v", img)
	}
	if !strings.HasPrefix(img.Key, "listings/") || !strings.HasSuffix(img.Key, ".webp") {
		t.Fatalf("unexpected key %q", img.Key)
	}
	if img.PublicURL != "https://cdn.test/"+img.Key {
		t.Fatalf("unexpected public url %q", img.PublicURL)
	}
	if got := store.headers[img.Key]; !strings.Contains(got, "max-age=31536000") {
		t.Fatalf("expected long cache lifetime, got %q", got)
	}
}

func TestMaterialize_EmptyBody(t *testing.T) {
	srv := imageServer(t)
	m := NewMaterializer(srv.Client(), newMemStore(), "", 1, time.Second, nil)

	_, imgErr := m.Materialize(context.Background(), 0, srv.URL+"/empty")
	if imgErr == nil || !strings.Contains(imgErr.Reason, "empty") {
		t.Fatalf("expected empty body error, got %v", imgErr)
	}
}

func TestMaterialize_UploadFailure(t *testing.T) {
	srv := imageServer(t)
	store := newMemStore()
	store.fail = true
	m := NewMaterializer(srv.Client(), store, "", 1, time.Second, nil)

	_, imgErr := m.Materialize(context.Background(), 0, srv.URL+"/img/1")
	if imgErr == nil || !strings.HasPrefix(imgErr.Reason, "upload:") {
		t.Fatalf("expected upload error, got %v", imgErr)
	}
}

func TestMaterializeAll_PartialFailure(t *testing.T) {
	srv := imageServer(t)
	store := newMemStore()
	m := NewMaterializer(srv.Client(), store, "", 3, time.Second, nil)

	urls := []string{
		srv.URL + "/img/a",
		srv.URL + "/missing/b",
		srv.URL + "/img/c",
		srv.URL + "/missing/d",
		srv.URL + "/img/e",
	}
	images, errs, err := m.MaterializeAll(context.Background(), urls)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(images) != 3 || len(errs) != 2 {
		t.Fatalf("expected 3 images and 2 errors, got %d and %d", len(images), len(errs))
	}

	wantOrder := []string{urls[0], urls[2], urls[4]}
	for i, img := range images {
		if img.SourceURL != wantOrder[i] {
			t.Fatalf("image %d: expected %s, got %s", i, wantOrder[i], img.SourceURL)
		}
	}
	if errs[0].URL != urls[1] || errs[1].URL != urls[3] {
		t.Fatalf("unexpected error order: %+v", errs)
	}
	if len(store.objects) != 3 {
		t.Fatalf("expected 3 uploads, got %d", len(store.objects))
	}
}

func TestMaterializeAll_RespectsWorkerLimit(t *testing.T) {
	var inFlight, peak int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&inFlight, 1)
		defer atomic.AddInt32(&inFlight, -1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("jpeg"))
	}))
	defer srv.Close()

	m := NewMaterializer(srv.Client(), newMemStore(), "", 2, time.Second, nil)
	urls := make([]string, 8)
	for i := range urls {
		urls[i] = fmt.Sprintf("%s/img/%d", srv.URL, i)
	}
	images, _, err := m.MaterializeAll(context.Background(), urls)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(images) != 8 {
		t.Fatalf("expected 8 images, got %d", len(images))
	}
	if p := atomic.LoadInt32(&peak); p > 2 {
		t.Fatalf("expected at most 2 concurrent downloads, saw %d", p)
	}
}

func TestMaterializeAll_Cancelled(t *testing.T) {
	srv := imageServer(t)
	m := NewMaterializer(srv.Client(), newMemStore(), "", 2, time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := m.MaterializeAll(ctx, []string{srv.URL + "/img/1", srv.URL + "/img/2"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestMaterializeAll_CancelAbortsInFlightDownloads(t *testing.T) {
	started := make(chan struct{}, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		<-r.Context().Done()
	}))
	defer srv.Close()

	m := NewMaterializer(srv.Client(), newMemStore(), "", 2, time.Minute, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type outcome struct {
		images int
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		images, _, err := m.MaterializeAll(ctx, []string{srv.URL + "/img/1", srv.URL + "/img/2", srv.URL + "/img/3"})
		done <- outcome{len(images), err}
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("download never started")
	}
	cancel()

	select {
	case out := <-done:
		if !errors.Is(out.err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", out.err)
		}
		if out.images != 0 {
			t.Fatalf("expected no images, got %d", out.images)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("in-flight downloads were not aborted")
	}
}

func TestGuessExtension(t *testing.T) {
	tests := []struct {
		url, contentType, want string
	}{
		{"https://m.test/media.ashx?id=1", "image/png", ".png"},
		{"https://m.test/media.ashx?id=1", "image/jpeg; charset=binary", ".jpg"},
		{"https://m.test/photo.gif?v=2", "application/octet-stream", ".gif"},
		{"https://m.test/media.ashx?id=1", "", ".jpg"},
	}
	for _, tt := range tests {
		if got := guessExtension(tt.url, tt.contentType); got != tt.want {
			t.Errorf("guessExtension(%q, %q) = %q, want %q", tt.url, tt.contentType, got, tt.want)
		}
	}
}
