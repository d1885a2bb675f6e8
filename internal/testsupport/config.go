// Package testsupport provides shared helpers for package tests.
package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tesorrells/jellyfin-sync/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Sync.ManifestURL = "http://127.0.0.1:0/manifest/family.json"
	cfgVal.Paths.StorageDir = filepath.Join(base, "media")
	cfgVal.Paths.QuarantineDir = filepath.Join(base, "media", "quarantine")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Server.Bind = "127.0.0.1:0"
	cfgVal.Server.ManifestDir = filepath.Join(base, "manifests")

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithGroup overrides the sync group on the test config.
func WithGroup(group string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Sync.Group = group
	}
}

// WithManifestURL points the consumer at an explicit manifest endpoint.
func WithManifestURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Sync.ManifestURL = url
	}
}

// WithStubbedTransferBinary writes a stub transfer executable and points the
// config at it.
func WithStubbedTransferBinary() ConfigOption {
	return func(b *configBuilder) {
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		target := filepath.Join(binDir, "webtorrent")
		if err := os.WriteFile(target, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
			b.t.Fatalf("write stub binary: %v", err)
		}
		b.cfg.Transfer.Binary = target
	}
}
