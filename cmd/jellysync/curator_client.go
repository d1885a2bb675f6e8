package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tesorrells/jellyfin-sync/internal/config"
)

// curatorClient is a thin HTTP client for the curator API.
type curatorClient struct {
	baseURL string
	token   string
	client  *http.Client
}

func newCuratorClient(cfg *config.Config, override string) *curatorClient {
	base := strings.TrimSpace(override)
	if base == "" {
		base = "http://" + cfg.Server.Bind
	}
	return &curatorClient{
		baseURL: strings.TrimRight(base, "/"),
		token:   cfg.Paths.APIToken,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *curatorClient) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&reqBody).Encode(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("curator request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr struct {
			Error string `json:"error"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error != "" {
			return fmt.Errorf("curator returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("curator returned %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
