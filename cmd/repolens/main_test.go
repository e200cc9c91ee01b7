package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigExplicitPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte("debug: true\nserver:\n  host: 0.0.0.0\n  port: 9999\n")
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, resolved, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if resolved != path {
		t.Errorf("resolved path = %q, want %q", resolved, path)
	}
	if !cfg.Debug {
		t.Error("expected debug to be set")
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("port = %d, want 9999", cfg.Server.Port)
	}
	// Unset fields still get defaults.
	if cfg.Indexing.ChunkWindow == 0 {
		t.Error("expected chunk window default to apply")
	}
}

func TestLoadConfigMissingExplicitPath(t *testing.T) {
	if _, _, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected an error for a missing explicit config")
	}
}

func TestLoadConfigDefaultFallback(t *testing.T) {
	if _, err := os.Stat(defaultConfigPath); err == nil {
		t.Skipf("%s exists on this machine", defaultConfigPath)
	}
	// No config.yaml in the test working directory either, so the built-in
	// defaults apply.
	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if resolved != "" {
		t.Errorf("resolved path = %q, want empty for built-in defaults", resolved)
	}
	if cfg.Server.Port == 0 {
		t.Error("expected default port")
	}
}
