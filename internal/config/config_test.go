package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tesorrells/jellyfin-sync/internal/config"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, _, exists, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if exists {
		t.Fatal("expected exists=false for missing file")
	}
	if cfg.Sync.Group != "family" {
		t.Fatalf("unexpected default group: %q", cfg.Sync.Group)
	}
	if cfg.Transfer.Binary != "webtorrent" {
		t.Fatalf("unexpected default binary: %q", cfg.Transfer.Binary)
	}
	if !filepath.IsAbs(cfg.Paths.StorageDir) {
		t.Fatalf("storage dir not expanded: %q", cfg.Paths.StorageDir)
	}
}

func TestLoadAppliesFileValues(t *testing.T) {
	base := t.TempDir()
	path := writeConfig(t, `
[sync]
manifest_url = "http://curator:5000/manifest/kids.json"
group = "kids"
poll_interval_minutes = 15

[paths]
storage_dir = "`+filepath.Join(base, "media")+`"
log_dir = "`+filepath.Join(base, "logs")+`"
state_dir = "`+filepath.Join(base, "state")+`"
`)
	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("unexpected resolution: exists=%v path=%q", exists, resolved)
	}
	if cfg.Sync.Group != "kids" || cfg.Sync.PollIntervalMinutes != 15 {
		t.Fatalf("file values not applied: %+v", cfg.Sync)
	}
	if cfg.Paths.QuarantineDir != filepath.Join(base, "media", "quarantine") {
		t.Fatalf("quarantine default not derived from storage dir: %q", cfg.Paths.QuarantineDir)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := writeConfig(t, `
[sync]
poll_interval_minutes = 0
`)
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected validation error for zero poll interval")
	}

	path = writeConfig(t, `
[logging]
format = "xml"
`)
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected validation error for unsupported log format")
	}
}

func TestJellyfinAPIKeyFromEnv(t *testing.T) {
	t.Setenv("JELLYSYNC_JELLYFIN_API_KEY", "env-key")
	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Jellyfin.APIKey != "env-key" {
		t.Fatalf("expected env fallback, got %q", cfg.Jellyfin.APIKey)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "[sync]") {
		t.Fatal("sample config missing [sync] section")
	}
}
