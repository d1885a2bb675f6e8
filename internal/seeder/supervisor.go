package seeder

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/tesorrells/jellyfin-sync/internal/logging"
)

// State identifies where a seed is in its lifecycle.
type State int

const (
	// StatePending means the process is running but has not reported an
	// address yet.
	StatePending State = iota
	// StateReady means the magnet address has been discovered.
	StateReady
	// StateFailed means discovery timed out or the process died first.
	// Failed records are never reused; a new request respawns.
	StateFailed
)

// Status is a point-in-time snapshot of one seed.
type Status struct {
	State  State
	Magnet string
	Reason string
}

// String renders the status for the active-seeds listing.
func (s Status) String() string {
	switch s.State {
	case StateReady:
		return s.Magnet
	case StateFailed:
		if s.Reason == "" {
			return "failed"
		}
		return "failed: " + s.Reason
	default:
		return "pending"
	}
}

// CommandFactory builds the seed process for a canonicalized source path.
// Injectable for tests; the default invokes the configured transfer binary.
type CommandFactory func(sourcePath string) *exec.Cmd

// Option configures the supervisor.
type Option func(*Supervisor)

// WithCommandFactory overrides seed process construction.
func WithCommandFactory(factory CommandFactory) Option {
	return func(s *Supervisor) {
		if factory != nil {
			s.newCommand = factory
		}
	}
}

// Supervisor owns the table of active seed records. All structural mutations
// happen under a single mutex; each record's status is advanced by its own
// discovery goroutine.
type Supervisor struct {
	mu      sync.Mutex
	records map[string]*record

	newCommand       CommandFactory
	discoveryTimeout time.Duration
	pollInterval     time.Duration
	logger           *slog.Logger
}

type record struct {
	mu     sync.Mutex
	status Status

	cmd    *exec.Cmd
	exited bool
}

// New constructs a supervisor spawning the given transfer binary.
func New(binary string, discoveryTimeoutSeconds, pollIntervalMillis int, logger *slog.Logger, opts ...Option) *Supervisor {
	s := &Supervisor{
		records: make(map[string]*record),
		newCommand: func(sourcePath string) *exec.Cmd {
			return exec.Command(binary, "seed", sourcePath, "--keep-seeding", "--quiet")
		},
		discoveryTimeout: time.Duration(discoveryTimeoutSeconds) * time.Second,
		pollInterval:     time.Duration(pollIntervalMillis) * time.Millisecond,
		logger:           logging.NewComponentLogger(logger, "seeder"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartOrReuse ensures a seed process exists for sourcePath and returns its
// current status. When a live record already exists its status is returned
// without spawning a second process. Otherwise a process is spawned, a
// Pending record registered, and onReady invoked exactly once with the
// discovered magnet address, or with an empty string on failure. onReady may
// be nil.
func (s *Supervisor) StartOrReuse(sourcePath string, onReady func(magnet string)) (Status, error) {
	canonical, err := canonicalize(sourcePath)
	if err != nil {
		return Status{}, err
	}

	s.mu.Lock()
	if rec, ok := s.records[canonical]; ok {
		status := rec.snapshot()
		if !rec.dead() && status.State != StateFailed {
			s.mu.Unlock()
			return status, nil
		}
		// Dead or failed records are superseded by a fresh spawn. A record
		// that failed discovery may still have a live process; kill it so it
		// does not outlive its table entry.
		if !rec.dead() && rec.cmd != nil && rec.cmd.Process != nil {
			_ = rec.cmd.Process.Kill()
		}
		delete(s.records, canonical)
	}

	cmd := s.newCommand(canonical)
	output, err := combinedOutputPipe(cmd)
	if err != nil {
		s.mu.Unlock()
		return Status{}, fmt.Errorf("seeder: pipe output: %w", err)
	}
	if err := cmd.Start(); err != nil {
		s.mu.Unlock()
		return Status{}, fmt.Errorf("seeder: start seed process: %w", err)
	}

	rec := &record{status: Status{State: StatePending}, cmd: cmd}
	s.records[canonical] = rec
	s.mu.Unlock()

	lines := make(chan string, 64)
	go scanLines(output, lines)
	go s.reap(canonical, rec, output)
	go s.discover(canonical, rec, lines, onReady)

	return Status{State: StatePending}, nil
}

// ActiveSeeds returns a snapshot of all records whose process is still
// alive, keyed by canonical source path. Dead records are removed lazily.
func (s *Supervisor) ActiveSeeds() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]string, len(s.records))
	for path, rec := range s.records {
		if rec.dead() {
			delete(s.records, path)
			continue
		}
		out[path] = rec.snapshot().String()
	}
	return out
}

// Close terminates every tracked seed process. Only the supervisor may
// terminate process handles it owns.
func (s *Supervisor) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for path, rec := range s.records {
		if !rec.dead() && rec.cmd != nil && rec.cmd.Process != nil {
			_ = rec.cmd.Process.Kill()
		}
		delete(s.records, path)
	}
}

func (s *Supervisor) discover(path string, rec *record, lines <-chan string, onReady func(string)) {
	// Keep draining after discovery settles so the scanner never blocks on a
	// chatty process.
	defer func() {
		go func() {
			for range lines {
			}
		}()
	}()

	timeout := time.NewTimer(s.discoveryTimeout)
	defer timeout.Stop()
	liveness := time.NewTicker(s.pollInterval)
	defer liveness.Stop()

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				s.fail(path, rec, "process output closed before reporting an address", onReady)
				return
			}
			magnet, found := ExtractMagnet(line)
			if !found {
				continue
			}
			if rec.transition(Status{State: StateReady, Magnet: magnet}) {
				s.logger.Info("seed ready",
					logging.Args(logging.String(logging.FieldPath, path), logging.String(logging.FieldMagnet, magnet))...)
				if onReady != nil {
					onReady(magnet)
				}
			}
			return
		case <-liveness.C:
			if rec.dead() {
				s.fail(path, rec, "process exited before reporting an address", onReady)
				return
			}
		case <-timeout.C:
			// The process keeps running; it is reaped normally on exit.
			s.fail(path, rec, "no address discovered within timeout", onReady)
			return
		}
	}
}

func (s *Supervisor) fail(path string, rec *record, reason string, onReady func(string)) {
	if rec.transition(Status{State: StateFailed, Reason: reason}) {
		s.logger.Warn("seed failed",
			logging.Args(logging.String(logging.FieldPath, path), logging.String("reason", reason))...)
		if onReady != nil {
			onReady("")
		}
	}
}

// reap waits for process exit so dead records can be dropped on the next
// status query.
func (s *Supervisor) reap(path string, rec *record, output io.Closer) {
	err := rec.cmd.Wait()
	_ = output.Close()
	rec.mu.Lock()
	rec.exited = true
	rec.mu.Unlock()
	if err != nil {
		s.logger.Debug("seed process exited",
			logging.Args(logging.String(logging.FieldPath, path), logging.Error(err))...)
	}
}

func (r *record) snapshot() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *record) dead() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.exited
}

// transition moves a pending record into a terminal state. Returns false when
// the record already reached a terminal state, guaranteeing the one-shot
// callback contract.
func (r *record) transition(next Status) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status.State != StatePending {
		return false
	}
	r.status = next
	return true
}

func canonicalize(sourcePath string) (string, error) {
	abs, err := filepath.Abs(sourcePath)
	if err != nil {
		return "", fmt.Errorf("seeder: resolve path %q: %w", sourcePath, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("seeder: canonicalize %q: %w", sourcePath, err)
	}
	if _, err := os.Stat(abs); err != nil {
		return "", fmt.Errorf("seeder: source path %q: %w", sourcePath, err)
	}
	return filepath.Clean(abs), nil
}

// combinedOutputPipe merges stdout and stderr into one reader so discovery
// can scan both without caring which stream the executable prints to.
func combinedOutputPipe(cmd *exec.Cmd) (io.ReadCloser, error) {
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw
	return pipeCloser{pr, pw}, nil
}

type pipeCloser struct {
	*io.PipeReader
	writer *io.PipeWriter
}

func (p pipeCloser) Close() error {
	_ = p.writer.Close()
	return p.PipeReader.Close()
}

func scanLines(r io.Reader, lines chan<- string) {
	defer close(lines)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines <- scanner.Text()
	}
}
