// Package jellyfin triggers library refreshes on a Jellyfin media server.
package jellyfin

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tesorrells/jellyfin-sync/internal/config"
	"github.com/tesorrells/jellyfin-sync/internal/services"
)

// HTTPDoer describes the HTTP client used by the Jellyfin service.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Refresher is the indexer-refresh collaborator invoked at cycle end.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Client calls the Jellyfin library refresh endpoint. A client without
// credentials is a no-op so callers can invoke Refresh unconditionally.
type Client struct {
	baseURL string
	apiKey  string
	client  HTTPDoer
}

// NewFromConfig builds a refresh client from application config. Returns a
// no-op client when the integration is disabled or no API key is available.
func NewFromConfig(cfg *config.Config) *Client {
	if cfg == nil || !cfg.Jellyfin.Enabled {
		return &Client{}
	}
	return New(cfg.Jellyfin.URL, cfg.Jellyfin.APIKey, &http.Client{Timeout: 10 * time.Second})
}

// New constructs a refresh client against baseURL.
func New(baseURL, apiKey string, client HTTPDoer) *Client {
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  strings.TrimSpace(apiKey),
		client:  client,
	}
}

// Configured reports whether Refresh will actually call out.
func (c *Client) Configured() bool {
	return c != nil && c.client != nil && c.baseURL != "" && c.apiKey != ""
}

// Refresh asks Jellyfin to rescan its libraries. Skipped entirely when no
// credential is configured.
func (c *Client) Refresh(ctx context.Context) error {
	if !c.Configured() {
		return nil
	}
	refreshURL := fmt.Sprintf("%s/Library/Refresh", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, refreshURL, nil)
	if err != nil {
		return fmt.Errorf("build jellyfin refresh request: %w", err)
	}
	req.Header.Set("X-Emby-Token", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrNetwork, "jellyfin", "refresh", "", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 2048))
	if resp.StatusCode >= http.StatusMultipleChoices {
		return services.Wrap(services.ErrNetwork, "jellyfin", "refresh",
			fmt.Sprintf("returned %d", resp.StatusCode), nil)
	}
	return nil
}
