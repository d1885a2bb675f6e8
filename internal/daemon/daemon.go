package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"github.com/tesorrells/jellyfin-sync/internal/config"
	"github.com/tesorrells/jellyfin-sync/internal/history"
	"github.com/tesorrells/jellyfin-sync/internal/jellyfin"
	"github.com/tesorrells/jellyfin-sync/internal/logging"
	"github.com/tesorrells/jellyfin-sync/internal/manifest"
	"github.com/tesorrells/jellyfin-sync/internal/sync"
	"github.com/tesorrells/jellyfin-sync/internal/transfer"
)

// Daemon coordinates the sync scheduler and enforces single-instance
// execution via a file lock.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *history.Store
	scheduler *sync.Scheduler
	api       *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New constructs a daemon with its collaborators wired from configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	store, err := history.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}

	manifests := manifest.NewClient(cfg.Sync.ManifestRetries, logger)
	fetcher, err := transfer.New(cfg.Transfer.Binary, cfg.Transfer.FetchTimeoutSeconds)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("transfer client: %w", err)
	}
	refresher := jellyfin.NewFromConfig(cfg)

	reconciler := sync.NewReconciler(sync.Options{
		ManifestURL:   cfg.Sync.ManifestURL,
		Group:         cfg.Sync.Group,
		StorageDir:    cfg.Paths.StorageDir,
		QuarantineDir: cfg.Paths.QuarantineDir,
		FetchRetries:  cfg.Sync.FetchRetries,
		MinFreeGB:     cfg.Sync.MinFreeGB,
	}, manifests, fetcher, refresher, logger)

	interval := time.Duration(cfg.Sync.PollIntervalMinutes) * time.Minute
	scheduler := sync.NewScheduler(reconciler, store, interval, logger)

	d := &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		store:     store,
		scheduler: scheduler,
		lockPath:  filepath.Join(cfg.Paths.LogDir, "jellysync.lock"),
	}
	d.lock = flock.New(d.lockPath)
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, starts the status API, and launches the
// scheduling loop.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another jellysync daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})

	if err := d.api.start(runCtx); err != nil {
		_ = d.lock.Unlock()
		cancel()
		d.cancel = nil
		return err
	}

	go func() {
		defer close(d.done)
		_ = d.scheduler.Run(runCtx)
	}()

	d.running.Store(true)
	d.logger.Info("daemon started", logging.Args(logging.String("lock", d.lockPath))...)
	return nil
}

// Stop halts the scheduling loop and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.done != nil {
		<-d.done
		d.done = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Args(logging.Error(err))...)
	}
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

// Close stops the daemon and releases held resources.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Running reports whether the scheduling loop is active.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// APIAddr returns the bound status API address, or empty when disabled or
// not yet started.
func (d *Daemon) APIAddr() string {
	return d.api.Addr()
}

// Status is the runtime snapshot served by the status API.
type Status struct {
	Running   bool          `json:"running"`
	PID       int           `json:"pid"`
	LockPath  string        `json:"lock_path"`
	Group     string        `json:"group"`
	LastCycle *CycleSummary `json:"last_cycle,omitempty"`
}

// CycleSummary condenses the most recent cycle report.
type CycleSummary struct {
	ID            string    `json:"id"`
	Started       time.Time `json:"started"`
	Finished      time.Time `json:"finished"`
	ManifestError string    `json:"manifest_error,omitempty"`
	Fetched       int       `json:"fetched"`
	Skipped       int       `json:"skipped"`
	Failed        int       `json:"failed"`
	Quarantined   int       `json:"quarantined"`
}

// Status returns the current runtime snapshot.
func (d *Daemon) Status() Status {
	st := Status{
		Running:  d.running.Load(),
		PID:      os.Getpid(),
		LockPath: d.lockPath,
		Group:    d.cfg.Sync.Group,
	}
	if report := d.scheduler.LastReport(); report != nil {
		summary := &CycleSummary{
			ID:          report.CycleID,
			Started:     report.Started,
			Finished:    report.Finished,
			Fetched:     report.Count(sync.OutcomeFetched),
			Skipped:     report.Count(sync.OutcomeSkipped),
			Failed:      report.Count(sync.OutcomeFetchFailed),
			Quarantined: report.Count(sync.OutcomeQuarantined),
		}
		if report.ManifestErr != nil {
			summary.ManifestError = report.ManifestErr.Error()
		}
		st.LastCycle = summary
	}
	return st
}

// RecentCycles exposes history for the status API and CLI.
func (d *Daemon) RecentCycles(ctx context.Context, limit int) ([]history.Cycle, error) {
	return d.store.RecentCycles(ctx, limit)
}

// RunOnce executes a single reconciliation cycle outside the schedule.
func (d *Daemon) RunOnce(ctx context.Context) sync.Report {
	return d.scheduler.RunOnce(ctx)
}
