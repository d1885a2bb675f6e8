package sync_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tesorrells/jellyfin-sync/internal/integrity"
	"github.com/tesorrells/jellyfin-sync/internal/manifest"
	"github.com/tesorrells/jellyfin-sync/internal/services"
	syncpkg "github.com/tesorrells/jellyfin-sync/internal/sync"
)

type fakeManifests struct {
	manifest *manifest.Manifest
	err      error
	onFetch  func()
}

func (f *fakeManifests) Fetch(ctx context.Context, url string) (*manifest.Manifest, error) {
	if f.onFetch != nil {
		f.onFetch()
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.manifest, nil
}

type payload struct {
	rel  string
	data []byte
}

// fakeFetcher simulates the transfer executable: each magnet maps to a file
// written under the destination directory.
type fakeFetcher struct {
	calls    atomic.Int32
	payloads map[string]payload
	failures int
	onFetch  func()
}

func (f *fakeFetcher) Fetch(ctx context.Context, magnet, destDir string) error {
	f.calls.Add(1)
	if f.onFetch != nil {
		f.onFetch()
	}
	if f.failures > 0 {
		f.failures--
		return services.Wrap(services.ErrTransfer, "transfer", "fetch", magnet, errors.New("exit status 1"))
	}
	p, ok := f.payloads[magnet]
	if !ok {
		return services.Wrap(services.ErrTransfer, "transfer", "fetch", magnet, errors.New("unknown magnet"))
	}
	path := filepath.Join(destDir, p.rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, p.data, 0o644)
}

type fakeRefresher struct {
	calls atomic.Int32
}

func (f *fakeRefresher) Refresh(ctx context.Context) error {
	f.calls.Add(1)
	return nil
}

type fixture struct {
	storage    string
	quarantine string
	fetcher    *fakeFetcher
	refresher  *fakeRefresher
	manifests  *fakeManifests
}

func noSleep(context.Context, time.Duration) error { return nil }

func newFixture(t *testing.T, items []manifest.Item) (*syncpkg.Reconciler, *fixture) {
	t.Helper()
	storage := t.TempDir()
	fx := &fixture{
		storage:    storage,
		quarantine: filepath.Join(storage, "quarantine"),
		fetcher:    &fakeFetcher{payloads: make(map[string]payload)},
		refresher:  &fakeRefresher{},
		manifests:  &fakeManifests{manifest: &manifest.Manifest{Group: "family", Items: items}},
	}
	rec := syncpkg.NewReconciler(
		syncpkg.Options{
			ManifestURL:  "http://curator/manifest/family.json",
			Group:        "family",
			StorageDir:   storage,
			FetchRetries: 3,
			MinFreeGB:    0,
		},
		fx.manifests, fx.fetcher, fx.refresher, nil,
		syncpkg.WithFetchBackoff(noSleep),
	)
	return rec, fx
}

func item(title, magnet, rel, sha string) manifest.Item {
	return manifest.Item{Title: title, Magnet: magnet, Path: rel, SHA256: sha}
}

func TestSkipsPresentVerifiedItem(t *testing.T) {
	data := []byte("content X")
	it := item("A", "addr1", "a.mp4", integrity.Sum(data))
	rec, fx := newFixture(t, []manifest.Item{it})
	if err := os.WriteFile(filepath.Join(fx.storage, "a.mp4"), data, 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	result := rec.ReconcileItem(context.Background(), it)
	if result.Outcome != syncpkg.OutcomeSkipped {
		t.Fatalf("expected Skipped, got %v (%v)", result.Outcome, result.Err)
	}
	if fx.fetcher.calls.Load() != 0 {
		t.Fatalf("expected zero fetch calls, got %d", fx.fetcher.calls.Load())
	}
}

func TestSkipsPresentItemWithoutHash(t *testing.T) {
	it := item("A", "addr1", "a.mp4", "")
	rec, fx := newFixture(t, []manifest.Item{it})
	if err := os.WriteFile(filepath.Join(fx.storage, "a.mp4"), []byte("anything"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	result := rec.ReconcileItem(context.Background(), it)
	if result.Outcome != syncpkg.OutcomeSkipped {
		t.Fatalf("expected Skipped, got %v", result.Outcome)
	}
	if fx.fetcher.calls.Load() != 0 {
		t.Fatal("existence-only check must not fetch")
	}
}

func TestDeletesStaleFileBeforeRefetch(t *testing.T) {
	good := []byte("good content")
	it := item("A", "addr1", "a.mp4", integrity.Sum(good))
	rec, fx := newFixture(t, []manifest.Item{it})
	dest := filepath.Join(fx.storage, "a.mp4")
	if err := os.WriteFile(dest, []byte("stale"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	fx.fetcher.payloads["addr1"] = payload{rel: "a.mp4", data: good}
	fx.fetcher.onFetch = func() {
		if _, err := os.Stat(dest); !errors.Is(err, os.ErrNotExist) {
			t.Error("stale file still present when fetch started")
		}
	}

	result := rec.ReconcileItem(context.Background(), it)
	if result.Outcome != syncpkg.OutcomeFetched {
		t.Fatalf("expected Fetched, got %v (%v)", result.Outcome, result.Err)
	}
	if fx.fetcher.calls.Load() != 1 {
		t.Fatalf("expected one fetch, got %d", fx.fetcher.calls.Load())
	}
}

func TestQuarantinesPostFetchMismatch(t *testing.T) {
	it := item("A", "addr1", "a.mp4", integrity.Sum([]byte("expected")))
	rec, fx := newFixture(t, []manifest.Item{it})
	fx.fetcher.payloads["addr1"] = payload{rel: "a.mp4", data: []byte("corrupted")}

	result := rec.ReconcileItem(context.Background(), it)
	if result.Outcome != syncpkg.OutcomeQuarantined {
		t.Fatalf("expected Quarantined, got %v (%v)", result.Outcome, result.Err)
	}
	if !errors.Is(result.Err, services.ErrIntegrity) {
		t.Fatalf("expected ErrIntegrity, got %v", result.Err)
	}

	if _, err := os.Stat(filepath.Join(fx.storage, "a.mp4")); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("corrupted file left in primary location")
	}
	data, err := os.ReadFile(filepath.Join(fx.quarantine, "a.mp4"))
	if err != nil {
		t.Fatalf("quarantined file missing: %v", err)
	}
	if string(data) != "corrupted" {
		t.Fatal("quarantined content altered")
	}
}

func TestFetchesMissingItem(t *testing.T) {
	data := []byte("payload")
	it := item("A", "addr1", "movies/a.mp4", integrity.Sum(data))
	rec, fx := newFixture(t, []manifest.Item{it})
	fx.fetcher.payloads["addr1"] = payload{rel: "movies/a.mp4", data: data}

	result := rec.ReconcileItem(context.Background(), it)
	if result.Outcome != syncpkg.OutcomeFetched {
		t.Fatalf("expected Fetched, got %v (%v)", result.Outcome, result.Err)
	}
	if _, err := os.Stat(filepath.Join(fx.storage, "movies", "a.mp4")); err != nil {
		t.Fatalf("fetched file missing: %v", err)
	}
}

func TestInsufficientSpaceSkipsFetch(t *testing.T) {
	it := item("A", "addr1", "a.mp4", "")
	rec, fx := newFixture(t, []manifest.Item{it})
	rec = syncpkg.NewReconciler(
		syncpkg.Options{StorageDir: fx.storage, FetchRetries: 3, MinFreeGB: 5, Group: "family"},
		fx.manifests, fx.fetcher, fx.refresher, nil,
		syncpkg.WithFetchBackoff(noSleep),
		syncpkg.WithSpaceChecker(func(string, int) (bool, error) { return false, nil }),
	)

	result := rec.ReconcileItem(context.Background(), it)
	if result.Outcome != syncpkg.OutcomeFetchFailed {
		t.Fatalf("expected FetchFailed, got %v", result.Outcome)
	}
	if !errors.Is(result.Err, services.ErrResource) {
		t.Fatalf("expected ErrResource, got %v", result.Err)
	}
	if result.Attempts != 0 {
		t.Fatalf("expected zero attempts, got %d", result.Attempts)
	}
	if fx.fetcher.calls.Load() != 0 {
		t.Fatal("no fetch may start without disk space")
	}
	if _, err := os.Stat(filepath.Join(fx.storage, "a.mp4")); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("destination file must not be created")
	}
}

func TestFetchRetriesThenAbandons(t *testing.T) {
	it := item("A", "addr1", "a.mp4", "")
	rec, fx := newFixture(t, []manifest.Item{it})
	fx.fetcher.failures = 10 // more failures than allowed attempts

	result := rec.ReconcileItem(context.Background(), it)
	if result.Outcome != syncpkg.OutcomeFetchFailed {
		t.Fatalf("expected FetchFailed, got %v", result.Outcome)
	}
	if fx.fetcher.calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", fx.fetcher.calls.Load())
	}
	if result.Attempts != 3 {
		t.Fatalf("expected attempts=3, got %d", result.Attempts)
	}
	if !errors.Is(result.Err, services.ErrTransfer) {
		t.Fatalf("expected ErrTransfer, got %v", result.Err)
	}
}

func TestTransientFetchFailureRecovers(t *testing.T) {
	data := []byte("payload")
	it := item("A", "addr1", "a.mp4", integrity.Sum(data))
	rec, fx := newFixture(t, []manifest.Item{it})
	fx.fetcher.failures = 2
	fx.fetcher.payloads["addr1"] = payload{rel: "a.mp4", data: data}

	result := rec.ReconcileItem(context.Background(), it)
	if result.Outcome != syncpkg.OutcomeFetched {
		t.Fatalf("expected Fetched, got %v (%v)", result.Outcome, result.Err)
	}
	if result.Attempts != 3 {
		t.Fatalf("expected success on attempt 3, got %d", result.Attempts)
	}
}

func TestRejectsTraversalPath(t *testing.T) {
	it := item("Evil", "addr1", "../outside.mp4", "")
	rec, fx := newFixture(t, []manifest.Item{it})

	result := rec.ReconcileItem(context.Background(), it)
	if result.Outcome != syncpkg.OutcomeFetchFailed {
		t.Fatalf("expected FetchFailed, got %v", result.Outcome)
	}
	if !errors.Is(result.Err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", result.Err)
	}
	if fx.fetcher.calls.Load() != 0 {
		t.Fatal("traversal item must not fetch")
	}
}

func TestRunCycleIsIdempotent(t *testing.T) {
	data := []byte("payload")
	it := item("A", "addr1", "a.mp4", integrity.Sum(data))
	rec, fx := newFixture(t, []manifest.Item{it})
	fx.fetcher.payloads["addr1"] = payload{rel: "a.mp4", data: data}

	first := rec.RunCycle(context.Background())
	if first.Count(syncpkg.OutcomeFetched) != 1 {
		t.Fatalf("first cycle should fetch: %+v", first)
	}
	if first.CycleID == "" {
		t.Fatal("cycle report missing identifier")
	}

	second := rec.RunCycle(context.Background())
	if second.Count(syncpkg.OutcomeSkipped) != 1 || second.Count(syncpkg.OutcomeFetched) != 0 {
		t.Fatalf("second cycle should skip everything: %+v", second)
	}
	if fx.fetcher.calls.Load() != 1 {
		t.Fatalf("second cycle performed fetches: %d total calls", fx.fetcher.calls.Load())
	}
	if fx.refresher.calls.Load() != 2 {
		t.Fatalf("refresh must run every cycle, got %d", fx.refresher.calls.Load())
	}
}

func TestCycleContinuesPastFailingItems(t *testing.T) {
	good := []byte("payload")
	items := []manifest.Item{
		item("Bad", "unknown-addr", "bad.mp4", ""),
		item("Good", "addr2", "good.mp4", integrity.Sum(good)),
	}
	rec, fx := newFixture(t, items)
	fx.fetcher.payloads["addr2"] = payload{rel: "good.mp4", data: good}

	report := rec.RunCycle(context.Background())
	if report.Count(syncpkg.OutcomeFetchFailed) != 1 || report.Count(syncpkg.OutcomeFetched) != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if fx.refresher.calls.Load() != 1 {
		t.Fatal("refresh must still run after item failures")
	}
}

func TestManifestFailureEndsCycleEarly(t *testing.T) {
	rec, fx := newFixture(t, nil)
	fx.manifests.err = services.Wrap(services.ErrNetwork, "manifest", "fetch", "attempts exhausted", errors.New("connection refused"))

	report := rec.RunCycle(context.Background())
	if report.ManifestErr == nil {
		t.Fatal("expected manifest error in report")
	}
	if len(report.Items) != 0 {
		t.Fatal("no items may be processed without a manifest")
	}
	if fx.refresher.calls.Load() != 0 {
		t.Fatal("refresh must not run when the cycle ends early")
	}
}
