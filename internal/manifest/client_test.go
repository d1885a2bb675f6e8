package manifest_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tesorrells/jellyfin-sync/internal/manifest"
	"github.com/tesorrells/jellyfin-sync/internal/services"
)

const manifestBody = `{"group":"family","items":[{"title":"A","torrent":"magnet:?xt=urn:btih:abc","path":"a.mp4"}]}`

func TestFetchSucceedsFirstAttempt(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(manifestBody))
	}))
	defer srv.Close()

	client := manifest.NewClient(3, nil, manifest.WithBackoffBase(time.Millisecond, 0))
	m, err := client.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if m.Group != "family" || len(m.Items) != 1 || m.Items[0].Magnet != "magnet:?xt=urn:btih:abc" {
		t.Fatalf("unexpected manifest: %+v", m)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected one request, got %d", hits.Load())
	}
}

func TestFetchRetriesUpToConfiguredAttempts(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := manifest.NewClient(4, nil, manifest.WithBackoffBase(time.Millisecond, 0))
	_, err := client.Fetch(context.Background(), srv.URL)
	if !errors.Is(err, services.ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
	if hits.Load() != 4 {
		t.Fatalf("expected exactly 4 attempts, got %d", hits.Load())
	}
}

func TestFetchWaitsGrowBetweenRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	var waits []time.Duration
	client := manifest.NewClient(4, nil,
		manifest.WithBackoffBase(10*time.Millisecond, 3*time.Millisecond),
		manifest.WithSleep(func(_ context.Context, d time.Duration) error {
			waits = append(waits, d)
			return nil
		}))
	if _, err := client.Fetch(context.Background(), srv.URL); !errors.Is(err, services.ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}

	if len(waits) != 3 {
		t.Fatalf("expected 3 waits for 4 attempts, got %v", waits)
	}
	// Doubling dominates the jitter (max 3ms on a 10ms base), so each wait
	// must strictly exceed the one before it.
	for i := 1; i < len(waits); i++ {
		if waits[i] <= waits[i-1] {
			t.Fatalf("wait %d (%v) did not grow past wait %d (%v)", i, waits[i], i-1, waits[i-1])
		}
	}
	if waits[0] < 10*time.Millisecond {
		t.Fatalf("first wait %v below the configured base", waits[0])
	}
}

func TestFetchRecoversMidRetry(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(manifestBody))
	}))
	defer srv.Close()

	client := manifest.NewClient(5, nil, manifest.WithBackoffBase(time.Millisecond, 0))
	m, err := client.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if m.Group != "family" {
		t.Fatalf("unexpected manifest: %+v", m)
	}
	if hits.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", hits.Load())
	}
}

func TestFetchHonorsContextDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	client := manifest.NewClient(5, nil, manifest.WithBackoffBase(time.Hour, 0))
	_, err := client.Fetch(ctx, srv.URL)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context deadline, got %v", err)
	}
}

func TestFetchRejectsMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	client := manifest.NewClient(2, nil, manifest.WithBackoffBase(time.Millisecond, 0))
	if _, err := client.Fetch(context.Background(), srv.URL); err == nil {
		t.Fatal("expected decode failure")
	}
}
