package sync

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/tesorrells/jellyfin-sync/internal/logging"
)

// Recorder persists cycle reports. Implemented by the history store;
// recording failures are logged and never affect the cycle.
type Recorder interface {
	RecordCycle(ctx context.Context, report Report) error
}

// Scheduler drives reconciliation cycles. Cycles run strictly inside the
// scheduling loop, one at a time; a tick that arrives while a cycle is in
// flight waits for the next tick.
type Scheduler struct {
	reconciler *Reconciler
	recorder   Recorder
	interval   time.Duration
	logger     *slog.Logger

	mu   chan struct{}
	last atomic.Pointer[Report]
}

// NewScheduler constructs a scheduler running a cycle every interval.
// recorder may be nil.
func NewScheduler(reconciler *Reconciler, recorder Recorder, interval time.Duration, logger *slog.Logger) *Scheduler {
	s := &Scheduler{
		reconciler: reconciler,
		recorder:   recorder,
		interval:   interval,
		logger:     logging.NewComponentLogger(logger, "scheduler"),
		mu:         make(chan struct{}, 1),
	}
	s.mu <- struct{}{}
	return s
}

// RunOnce executes a single cycle and returns its report.
func (s *Scheduler) RunOnce(ctx context.Context) Report {
	<-s.mu
	defer func() { s.mu <- struct{}{} }()

	report := s.reconciler.RunCycle(ctx)
	s.last.Store(&report)
	if s.recorder != nil {
		if err := s.recorder.RecordCycle(ctx, report); err != nil {
			s.logger.Warn("failed to record cycle history", logging.Args(logging.Error(err))...)
		}
	}
	return report
}

// Run executes a cycle immediately, then on every interval tick until the
// context is cancelled. A failed cycle never stops the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// LastReport returns the most recent completed cycle report, or nil before
// the first cycle completes. Safe for concurrent callers; a cycle in flight
// does not hide the previous report.
func (s *Scheduler) LastReport() *Report {
	return s.last.Load()
}
