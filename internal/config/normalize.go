package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeServer(); err != nil {
		return err
	}
	c.normalizeSync()
	c.normalizeTransfer()
	c.normalizeJellyfin()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.StorageDir, err = expandPath(c.Paths.StorageDir); err != nil {
		return fmt.Errorf("paths.storage_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.QuarantineDir) == "" {
		c.Paths.QuarantineDir = filepath.Join(c.Paths.StorageDir, "quarantine")
	}
	if c.Paths.QuarantineDir, err = expandPath(c.Paths.QuarantineDir); err != nil {
		return fmt.Errorf("paths.quarantine_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("JELLYSYNC_API_TOKEN"); ok {
			c.Paths.APIToken = value
		}
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	return nil
}

func (c *Config) normalizeServer() error {
	var err error
	if strings.TrimSpace(c.Server.ManifestDir) == "" {
		c.Server.ManifestDir = defaultManifestDir
	}
	if c.Server.ManifestDir, err = expandPath(c.Server.ManifestDir); err != nil {
		return fmt.Errorf("server.manifest_dir: %w", err)
	}
	c.Server.Bind = strings.TrimSpace(c.Server.Bind)
	if c.Server.Bind == "" {
		c.Server.Bind = defaultServerBind
	}
	return nil
}

func (c *Config) normalizeSync() {
	c.Sync.ManifestURL = strings.TrimSpace(c.Sync.ManifestURL)
	c.Sync.Group = strings.TrimSpace(c.Sync.Group)
	if c.Sync.Group == "" {
		c.Sync.Group = defaultGroup
	}
}

func (c *Config) normalizeTransfer() {
	c.Transfer.Binary = strings.TrimSpace(c.Transfer.Binary)
	if c.Transfer.Binary == "" {
		c.Transfer.Binary = defaultTransferBinary
	}
	if c.Transfer.FetchTimeoutSeconds <= 0 {
		c.Transfer.FetchTimeoutSeconds = defaultFetchTimeoutSeconds
	}
	if c.Transfer.SeedDiscoveryTimeoutSeconds <= 0 {
		c.Transfer.SeedDiscoveryTimeoutSeconds = defaultSeedDiscoverySeconds
	}
	if c.Transfer.SeedPollIntervalMillis <= 0 {
		c.Transfer.SeedPollIntervalMillis = defaultSeedPollMillis
	}
}

func (c *Config) normalizeJellyfin() {
	c.Jellyfin.URL = strings.TrimRight(strings.TrimSpace(c.Jellyfin.URL), "/")
	if c.Jellyfin.URL == "" {
		c.Jellyfin.URL = defaultJellyfinURL
	}
	if c.Jellyfin.APIKey == "" {
		if value, ok := os.LookupEnv("JELLYSYNC_JELLYFIN_API_KEY"); ok {
			c.Jellyfin.APIKey = value
		}
	}
	c.Jellyfin.APIKey = strings.TrimSpace(c.Jellyfin.APIKey)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
