package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/tesorrells/jellyfin-sync/internal/diskspace"
	"github.com/tesorrells/jellyfin-sync/internal/integrity"
	"github.com/tesorrells/jellyfin-sync/internal/jellyfin"
	"github.com/tesorrells/jellyfin-sync/internal/logging"
	"github.com/tesorrells/jellyfin-sync/internal/manifest"
	"github.com/tesorrells/jellyfin-sync/internal/services"
	"github.com/tesorrells/jellyfin-sync/internal/transfer"
)

const fetchBackoffBase = 30 * time.Second

// SpaceChecker abstracts the disk-space guard for tests.
type SpaceChecker func(path string, minFreeGB int) (bool, error)

// Verifier abstracts content-hash verification for tests.
type Verifier func(path, expected string) (bool, error)

// Options bundles reconciler policy knobs.
type Options struct {
	ManifestURL   string
	Group         string
	StorageDir    string
	QuarantineDir string
	FetchRetries  int
	MinFreeGB     int
}

// Reconciler applies manifest state to the local storage root.
type Reconciler struct {
	opts      Options
	manifests manifest.Fetcher
	fetcher   transfer.Fetcher
	refresher jellyfin.Refresher
	hasSpace  SpaceChecker
	verify    Verifier
	sleepFn   func(context.Context, time.Duration) error
	logger    *slog.Logger
}

// ReconcilerOption customizes reconciler internals, primarily for tests.
type ReconcilerOption func(*Reconciler)

// WithSpaceChecker overrides the disk-space guard.
func WithSpaceChecker(fn SpaceChecker) ReconcilerOption {
	return func(r *Reconciler) {
		if fn != nil {
			r.hasSpace = fn
		}
	}
}

// WithVerifier overrides hash verification.
func WithVerifier(fn Verifier) ReconcilerOption {
	return func(r *Reconciler) {
		if fn != nil {
			r.verify = fn
		}
	}
}

// WithFetchBackoff overrides the per-attempt sleep (tests use a no-op).
func WithFetchBackoff(fn func(context.Context, time.Duration) error) ReconcilerOption {
	return func(r *Reconciler) {
		if fn != nil {
			r.sleepFn = fn
		}
	}
}

// NewReconciler wires the reconciler with its collaborators.
func NewReconciler(opts Options, manifests manifest.Fetcher, fetcher transfer.Fetcher, refresher jellyfin.Refresher, logger *slog.Logger, rOpts ...ReconcilerOption) *Reconciler {
	if opts.FetchRetries < 1 {
		opts.FetchRetries = 1
	}
	if opts.QuarantineDir == "" {
		opts.QuarantineDir = filepath.Join(opts.StorageDir, "quarantine")
	}
	r := &Reconciler{
		opts:      opts,
		manifests: manifests,
		fetcher:   fetcher,
		refresher: refresher,
		hasSpace:  diskspace.HasFreeSpace,
		verify:    integrity.Verify,
		sleepFn:   sleepCtx,
		logger:    logging.NewComponentLogger(logger, "sync"),
	}
	for _, opt := range rOpts {
		opt(r)
	}
	return r
}

// RunCycle executes one full reconciliation cycle: fetch manifest, reconcile
// every item in manifest order, then trigger the indexer refresh. Per-item
// failures never abort the cycle; a manifest failure ends it early.
func (r *Reconciler) RunCycle(ctx context.Context) Report {
	report := Report{
		CycleID: uuid.NewString(),
		Group:   r.opts.Group,
		Started: time.Now().UTC(),
	}
	logger := r.logger.With(logging.String(logging.FieldCycleID, report.CycleID))

	m, err := r.manifests.Fetch(ctx, r.opts.ManifestURL)
	if err != nil {
		logger.Error("manifest fetch exhausted, ending cycle", logging.Args(logging.Error(err))...)
		report.ManifestErr = err
		report.Finished = time.Now().UTC()
		return report
	}

	logger.Info("processing manifest",
		logging.Args(logging.String(logging.FieldGroup, m.Group), logging.Int("items", len(m.Items)))...)

	for _, item := range m.Items {
		result := r.ReconcileItem(ctx, item)
		report.Items = append(report.Items, result)
		if result.Err != nil {
			logger.Error("item reconciliation failed", logging.Args(
				logging.String(logging.FieldItem, item.Title),
				logging.String(logging.FieldOutcome, result.Outcome.String()),
				logging.Error(result.Err))...)
		}
	}

	// The refresh runs even when some items failed; anything fetched should
	// surface in the library now rather than a cycle later.
	r.triggerRefresh(ctx, logger)

	report.Finished = time.Now().UTC()
	logger.Info("cycle complete", logging.Args(
		logging.Int("fetched", report.Count(OutcomeFetched)),
		logging.Int("skipped", report.Count(OutcomeSkipped)),
		logging.Int("failed", report.Count(OutcomeFetchFailed)),
		logging.Int("quarantined", report.Count(OutcomeQuarantined)))...)
	return report
}

func (r *Reconciler) triggerRefresh(ctx context.Context, logger *slog.Logger) {
	if r.refresher == nil {
		return
	}
	if err := r.refresher.Refresh(ctx); err != nil {
		logger.Warn("library refresh failed", logging.Args(logging.Error(err))...)
		return
	}
	logger.Info("library refresh triggered")
}

// ReconcileItem ensures one declared item exists locally and is verified,
// fetching it when missing or corrupted.
func (r *Reconciler) ReconcileItem(ctx context.Context, item manifest.Item) ItemResult {
	dest, err := manifest.SafeJoin(r.opts.StorageDir, item.Path)
	if err != nil {
		return ItemResult{Item: item, Outcome: OutcomeFetchFailed,
			Err: services.Wrap(services.ErrConfiguration, "sync", "reconcile", item.Path, err)}
	}
	logger := r.logger.With(logging.String(logging.FieldItem, item.Title))

	if _, statErr := os.Stat(dest); statErr == nil {
		if item.SHA256 == "" {
			logger.Info("already present, no hash declared", logging.Args(logging.String(logging.FieldPath, dest))...)
			return ItemResult{Item: item, Outcome: OutcomeSkipped}
		}
		ok, verifyErr := r.verify(dest, item.SHA256)
		if verifyErr != nil {
			return ItemResult{Item: item, Outcome: OutcomeFetchFailed, Err: verifyErr}
		}
		if ok {
			logger.Info("already present and verified", logging.Args(logging.String(logging.FieldPath, dest))...)
			return ItemResult{Item: item, Outcome: OutcomeSkipped}
		}
		// Stale content must be removed before the executable writes anew.
		logger.Warn("hash mismatch, re-downloading", logging.Args(logging.String(logging.FieldPath, dest))...)
		if err := os.Remove(dest); err != nil && !errors.Is(err, os.ErrNotExist) {
			return ItemResult{Item: item, Outcome: OutcomeFetchFailed,
				Err: fmt.Errorf("remove stale file: %w", err)}
		}
	} else if !errors.Is(statErr, os.ErrNotExist) {
		return ItemResult{Item: item, Outcome: OutcomeFetchFailed,
			Err: fmt.Errorf("stat destination: %w", statErr)}
	}

	// Re-checked immediately before each item's fetch; space moves as the
	// cycle progresses.
	ok, spaceErr := r.hasSpace(r.opts.StorageDir, r.opts.MinFreeGB)
	if spaceErr != nil {
		return ItemResult{Item: item, Outcome: OutcomeFetchFailed, Err: spaceErr}
	}
	if !ok {
		return ItemResult{Item: item, Outcome: OutcomeFetchFailed,
			Err: services.Wrap(services.ErrResource, "sync", "fetch",
				fmt.Sprintf("free space below %d GB floor", r.opts.MinFreeGB), nil)}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return ItemResult{Item: item, Outcome: OutcomeFetchFailed,
			Err: fmt.Errorf("create parent directory: %w", err)}
	}

	attempts, fetchErr := r.fetchWithRetry(ctx, item, logger)
	if fetchErr != nil {
		return ItemResult{Item: item, Outcome: OutcomeFetchFailed, Attempts: attempts, Err: fetchErr}
	}

	if item.SHA256 != "" {
		ok, verifyErr := r.verify(dest, item.SHA256)
		if verifyErr != nil {
			return ItemResult{Item: item, Outcome: OutcomeFetchFailed, Attempts: attempts, Err: verifyErr}
		}
		if !ok {
			if err := r.quarantine(dest); err != nil {
				return ItemResult{Item: item, Outcome: OutcomeQuarantined, Attempts: attempts, Err: err}
			}
			logger.Error("hash mismatch after download, quarantined",
				logging.Args(logging.String(logging.FieldPath, dest))...)
			return ItemResult{Item: item, Outcome: OutcomeQuarantined, Attempts: attempts,
				Err: services.Wrap(services.ErrIntegrity, "sync", "verify", item.Path, nil)}
		}
	}

	logger.Info("fetched", logging.Args(
		logging.String(logging.FieldPath, dest), logging.Int(logging.FieldAttempt, attempts))...)
	return ItemResult{Item: item, Outcome: OutcomeFetched, Attempts: attempts}
}

// fetchWithRetry runs bounded attempts with linear backoff scaled by the
// attempt number.
func (r *Reconciler) fetchWithRetry(ctx context.Context, item manifest.Item, logger *slog.Logger) (int, error) {
	var lastErr error
	for attempt := 1; attempt <= r.opts.FetchRetries; attempt++ {
		err := r.fetcher.Fetch(ctx, item.Magnet, r.opts.StorageDir)
		if err == nil {
			return attempt, nil
		}
		lastErr = err
		logger.Warn("download failed", logging.Args(
			logging.Int(logging.FieldAttempt, attempt),
			logging.Int("max_attempts", r.opts.FetchRetries),
			logging.Error(err))...)
		if attempt == r.opts.FetchRetries {
			break
		}
		if err := r.sleepFn(ctx, fetchBackoffBase*time.Duration(attempt)); err != nil {
			return attempt, err
		}
	}
	return r.opts.FetchRetries, services.Wrap(services.ErrTransfer, "sync", "fetch",
		fmt.Sprintf("giving up after %d attempts", r.opts.FetchRetries), lastErr)
}

// quarantine moves a corrupted download aside for inspection. Quarantined
// files are never deleted automatically; cleanup is manual.
func (r *Reconciler) quarantine(dest string) error {
	if err := os.MkdirAll(r.opts.QuarantineDir, 0o755); err != nil {
		return fmt.Errorf("create quarantine directory: %w", err)
	}
	target := filepath.Join(r.opts.QuarantineDir, filepath.Base(dest))
	if err := os.Rename(dest, target); err != nil {
		return fmt.Errorf("quarantine %s: %w", dest, err)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
