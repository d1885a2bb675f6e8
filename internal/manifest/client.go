package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/tesorrells/jellyfin-sync/internal/logging"
	"github.com/tesorrells/jellyfin-sync/internal/services"
)

const (
	fetchRequestTimeout = 15 * time.Second
	backoffBase         = time.Minute
	backoffJitterMax    = 5 * time.Second
)

// HTTPDoer describes the HTTP client used for manifest fetches.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher defines the behaviour required by the reconciler.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Manifest, error)
}

// Client fetches manifest documents with retry. Each wait doubles from the
// base delay and carries random jitter so a fleet of consumers does not
// retry in lockstep.
type Client struct {
	http    HTTPDoer
	retries int
	base    time.Duration
	jitter  time.Duration
	logger  *slog.Logger
	sleepFn func(context.Context, time.Duration) error
	randFn  func(time.Duration) time.Duration
}

// ClientOption configures the fetch client.
type ClientOption func(*Client)

// WithHTTPDoer injects a custom HTTP client.
func WithHTTPDoer(doer HTTPDoer) ClientOption {
	return func(c *Client) {
		if doer != nil {
			c.http = doer
		}
	}
}

// WithBackoffBase overrides the initial retry delay (primarily for tests).
func WithBackoffBase(base, jitterMax time.Duration) ClientOption {
	return func(c *Client) {
		c.base = base
		c.jitter = jitterMax
	}
}

// WithSleep overrides the wait between retries (primarily for tests).
func WithSleep(fn func(context.Context, time.Duration) error) ClientOption {
	return func(c *Client) {
		if fn != nil {
			c.sleepFn = fn
		}
	}
}

// NewClient constructs a manifest fetch client performing up to retries
// attempts per Fetch call.
func NewClient(retries int, logger *slog.Logger, opts ...ClientOption) *Client {
	if retries < 1 {
		retries = 1
	}
	c := &Client{
		http:    &http.Client{Timeout: fetchRequestTimeout},
		retries: retries,
		base:    backoffBase,
		jitter:  backoffJitterMax,
		logger:  logging.NewComponentLogger(logger, "manifest"),
		sleepFn: sleepCtx,
		randFn: func(max time.Duration) time.Duration {
			if max <= 0 {
				return 0
			}
			return time.Duration(rand.Int63n(int64(max)))
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch retrieves and decodes the manifest at url. Exhausting all attempts
// surfaces a terminal error for the cycle; the next scheduled cycle retries.
func (c *Client) Fetch(ctx context.Context, url string) (*Manifest, error) {
	delay := c.base
	var lastErr error
	for attempt := 1; attempt <= c.retries; attempt++ {
		m, err := c.fetchOnce(ctx, url)
		if err == nil {
			return m, nil
		}
		lastErr = err
		c.logger.Warn("manifest fetch failed",
			logging.Args(logging.Int(logging.FieldAttempt, attempt), logging.Error(err))...)
		if attempt == c.retries {
			break
		}
		if err := c.sleepFn(ctx, delay+c.randFn(c.jitter)); err != nil {
			return nil, err
		}
		delay *= 2
	}
	return nil, services.Wrap(services.ErrNetwork, "manifest", "fetch",
		fmt.Sprintf("%d attempts exhausted", c.retries), lastErr)
}

func (c *Client) fetchOnce(ctx context.Context, url string) (*Manifest, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var m Manifest
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &m, nil
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
