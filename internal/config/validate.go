package config

import (
	"fmt"
	"net/url"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateSync(); err != nil {
		return err
	}
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateTransfer(); err != nil {
		return err
	}
	if err := c.validateJellyfin(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateSync() error {
	s := &c.Sync
	if err := validation.ValidateStruct(s,
		validation.Field(&s.ManifestURL, validation.Required),
		validation.Field(&s.Group, validation.Required),
		validation.Field(&s.PollIntervalMinutes, validation.Min(1)),
		validation.Field(&s.ManifestRetries, validation.Min(1)),
		validation.Field(&s.FetchRetries, validation.Min(1)),
		validation.Field(&s.MinFreeGB, validation.Min(0)),
	); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	if _, err := url.Parse(c.Sync.ManifestURL); err != nil {
		return fmt.Errorf("sync.manifest_url: %w", err)
	}
	return nil
}

func (c *Config) validatePaths() error {
	p := &c.Paths
	if err := validation.ValidateStruct(p,
		validation.Field(&p.StorageDir, validation.Required),
		validation.Field(&p.LogDir, validation.Required),
		validation.Field(&p.StateDir, validation.Required),
	); err != nil {
		return fmt.Errorf("paths: %w", err)
	}
	return nil
}

func (c *Config) validateTransfer() error {
	t := &c.Transfer
	if err := validation.ValidateStruct(t,
		validation.Field(&t.Binary, validation.Required),
		validation.Field(&t.FetchTimeoutSeconds, validation.Min(1)),
		validation.Field(&t.SeedDiscoveryTimeoutSeconds, validation.Min(1)),
		validation.Field(&t.SeedPollIntervalMillis, validation.Min(1)),
	); err != nil {
		return fmt.Errorf("transfer: %w", err)
	}
	return nil
}

func (c *Config) validateJellyfin() error {
	if !c.Jellyfin.Enabled {
		return nil
	}
	j := &c.Jellyfin
	if err := validation.ValidateStruct(j,
		validation.Field(&j.URL, validation.Required),
	); err != nil {
		return fmt.Errorf("jellyfin: %w", err)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
