package history_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/tesorrells/jellyfin-sync/internal/history"
	"github.com/tesorrells/jellyfin-sync/internal/manifest"
	"github.com/tesorrells/jellyfin-sync/internal/sync"
)

func openStore(t *testing.T) *history.Store {
	t.Helper()
	store, err := history.OpenPath(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleReport(id string, started time.Time) sync.Report {
	return sync.Report{
		CycleID:  id,
		Group:    "family",
		Started:  started,
		Finished: started.Add(time.Minute),
		Items: []sync.ItemResult{
			{
				Item:    manifest.Item{Title: "Movie A", Magnet: "magnet:?xt=a", Path: "a.mp4"},
				Outcome: sync.OutcomeFetched, Attempts: 1,
			},
			{
				Item:    manifest.Item{Title: "Movie B", Magnet: "magnet:?xt=b", Path: "b.mp4"},
				Outcome: sync.OutcomeSkipped,
			},
			{
				Item:    manifest.Item{Title: "Movie C", Magnet: "magnet:?xt=c", Path: "c.mp4"},
				Outcome: sync.OutcomeFetchFailed, Attempts: 3, Err: errors.New("exit status 1"),
			},
		},
	}
}

func TestRecordAndReadBack(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	if err := store.RecordCycle(ctx, sampleReport("cycle-1", started)); err != nil {
		t.Fatalf("record cycle: %v", err)
	}

	cycles, err := store.RecentCycles(ctx, 10)
	if err != nil {
		t.Fatalf("recent cycles: %v", err)
	}
	if len(cycles) != 1 {
		t.Fatalf("expected 1 cycle, got %d", len(cycles))
	}
	c := cycles[0]
	if c.ID != "cycle-1" || c.Group != "family" {
		t.Fatalf("unexpected cycle: %+v", c)
	}
	if c.Fetched != 1 || c.Skipped != 1 || c.Failed != 1 || c.Quarantined != 0 {
		t.Fatalf("unexpected counts: %+v", c)
	}
	if !c.Started.Equal(started) {
		t.Fatalf("started round-trip mismatch: %v", c.Started)
	}

	items, err := store.CycleItems(ctx, "cycle-1")
	if err != nil {
		t.Fatalf("cycle items: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	if items[0].Title != "Movie A" || items[0].Outcome != "fetched" {
		t.Fatalf("unexpected first item: %+v", items[0])
	}
	if items[2].Error != "exit status 1" || items[2].Attempts != 3 {
		t.Fatalf("unexpected failed item: %+v", items[2])
	}
}

func TestRecentCyclesOrderAndLimit(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		report := sync.Report{
			CycleID:  string(rune('a' + i)),
			Group:    "family",
			Started:  base.Add(time.Duration(i) * time.Hour),
			Finished: base.Add(time.Duration(i)*time.Hour + time.Minute),
		}
		if err := store.RecordCycle(ctx, report); err != nil {
			t.Fatalf("record cycle %d: %v", i, err)
		}
	}

	cycles, err := store.RecentCycles(ctx, 3)
	if err != nil {
		t.Fatalf("recent cycles: %v", err)
	}
	if len(cycles) != 3 {
		t.Fatalf("expected 3 cycles, got %d", len(cycles))
	}
	if cycles[0].ID != "e" || cycles[2].ID != "c" {
		t.Fatalf("wrong order: %s, %s", cycles[0].ID, cycles[2].ID)
	}
}

func TestSubSecondCyclesOrderChronologically(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	// 100ms and 150ms into the same second. Trimmed fractional seconds
	// (".1Z" vs ".15Z") would sort these backwards as text.
	early := sync.Report{CycleID: "early", Group: "family",
		Started: base.Add(100 * time.Millisecond), Finished: base.Add(time.Second)}
	late := sync.Report{CycleID: "late", Group: "family",
		Started: base.Add(150 * time.Millisecond), Finished: base.Add(time.Second)}
	if err := store.RecordCycle(ctx, early); err != nil {
		t.Fatalf("record early: %v", err)
	}
	if err := store.RecordCycle(ctx, late); err != nil {
		t.Fatalf("record late: %v", err)
	}

	cycles, err := store.RecentCycles(ctx, 10)
	if err != nil {
		t.Fatalf("recent cycles: %v", err)
	}
	if len(cycles) != 2 || cycles[0].ID != "late" || cycles[1].ID != "early" {
		t.Fatalf("wrong order: %+v", cycles)
	}

	// A cutoff between the two prunes only the earlier cycle.
	n, err := store.Prune(ctx, base.Add(120*time.Millisecond))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 pruned cycle, got %d", n)
	}
	cycles, err = store.RecentCycles(ctx, 10)
	if err != nil {
		t.Fatalf("recent cycles after prune: %v", err)
	}
	if len(cycles) != 1 || cycles[0].ID != "late" {
		t.Fatalf("wrong survivor: %+v", cycles)
	}
}

func TestManifestErrorPersisted(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	report := sync.Report{
		CycleID:     "cycle-err",
		Group:       "family",
		Started:     time.Now().UTC(),
		Finished:    time.Now().UTC(),
		ManifestErr: errors.New("connection refused"),
	}
	if err := store.RecordCycle(ctx, report); err != nil {
		t.Fatalf("record cycle: %v", err)
	}

	cycles, err := store.RecentCycles(ctx, 1)
	if err != nil {
		t.Fatalf("recent cycles: %v", err)
	}
	if cycles[0].ManifestError != "connection refused" {
		t.Fatalf("manifest error not persisted: %+v", cycles[0])
	}
}

func TestPruneRemovesOldCycles(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	if err := store.RecordCycle(ctx, sampleReport("old", old)); err != nil {
		t.Fatalf("record old: %v", err)
	}
	if err := store.RecordCycle(ctx, sampleReport("recent", recent)); err != nil {
		t.Fatalf("record recent: %v", err)
	}

	n, err := store.Prune(ctx, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 pruned cycle, got %d", n)
	}

	cycles, err := store.RecentCycles(ctx, 10)
	if err != nil {
		t.Fatalf("recent cycles: %v", err)
	}
	if len(cycles) != 1 || cycles[0].ID != "recent" {
		t.Fatalf("unexpected survivors: %+v", cycles)
	}

	items, err := store.CycleItems(ctx, "old")
	if err != nil {
		t.Fatalf("cycle items: %v", err)
	}
	if len(items) != 0 {
		t.Fatal("items of pruned cycle must cascade")
	}
}
