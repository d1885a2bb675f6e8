package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfigInitWritesSample(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")

	out, _, err := runCLI(t, []string{"config", "init", "--output", target})
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}
	requireContains(t, string(data), "[sync]")
	requireContains(t, string(data), "manifest_url")
}

func TestConfigInitRefusesOverwrite(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(target, []byte("# existing\n"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	_, _, err := runCLI(t, []string{"config", "init", "--output", target})
	if err == nil {
		t.Fatal("expected refusal without --overwrite")
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--output", target, "--overwrite"}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
}

func TestConfigValidateAcceptsGeneratedSample(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")
	if _, _, err := runCLI(t, []string{"config", "init", "--output", target}); err != nil {
		t.Fatalf("config init: %v", err)
	}

	out, _, err := runCLI(t, []string{"--config", target, "config", "validate"})
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "is valid")
}
