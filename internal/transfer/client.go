package transfer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/tesorrells/jellyfin-sync/internal/services"
)

// Fetcher defines the behaviour required by the reconciler.
type Fetcher interface {
	Fetch(ctx context.Context, magnet, destDir string) error
}

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onOutput func(string)) error
}

// ExitError reports a non-zero exit of the transfer executable.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("transfer executable exited with code %d", e.Code)
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// Client invokes the transfer executable synchronously. Retry is the
// caller's policy; a single Fetch maps to a single process invocation.
type Client struct {
	binary       string
	fetchTimeout time.Duration
	exec         Executor
}

// New constructs a transfer client.
func New(binary string, fetchTimeoutSeconds int, opts ...Option) (*Client, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("transfer binary required")
	}
	client := &Client{
		binary:       binary,
		fetchTimeout: time.Duration(fetchTimeoutSeconds) * time.Second,
		exec:         commandExecutor{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Fetch downloads one item by magnet address into destDir, blocking until the
// executable exits or the timeout fires.
func (c *Client) Fetch(ctx context.Context, magnet, destDir string) error {
	if strings.TrimSpace(magnet) == "" {
		return services.Wrap(services.ErrConfiguration, "transfer", "fetch", "empty magnet address", nil)
	}
	if destDir == "" {
		return services.Wrap(services.ErrConfiguration, "transfer", "fetch", "destination directory required", nil)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("create destination: %w", err)
	}

	fetchCtx := ctx
	if c.fetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, c.fetchTimeout)
		defer cancel()
	}

	args := []string{"download", magnet, "--out", destDir, "--quiet"}
	err := c.exec.Run(fetchCtx, c.binary, args, nil)
	switch {
	case err == nil:
		return nil
	case errors.Is(fetchCtx.Err(), context.DeadlineExceeded):
		return services.Wrap(services.ErrTimeout, "transfer", "fetch", magnet, err)
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return services.Wrap(services.ErrTransfer, "transfer", "fetch", magnet, &ExitError{Code: exitErr.ExitCode()})
		}
		return services.Wrap(services.ErrTransfer, "transfer", "fetch", magnet, err)
	}
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string, onOutput func(string)) error {
	cmd := exec.CommandContext(ctx, binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start command: %w", err)
	}

	var wg sync.WaitGroup
	scan := func(r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			if onOutput != nil {
				onOutput(scanner.Text())
			}
		}
	}

	wg.Add(2)
	go scan(stdout)
	go scan(stderr)
	wg.Wait()

	return cmd.Wait()
}
