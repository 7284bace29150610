package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Network != "mainnet" {
		t.Errorf("expected network mainnet, got %s", cfg.Network)
	}
	if cfg.MinFingers != 2 {
		t.Errorf("expected min fingers 2, got %d", cfg.MinFingers)
	}
	if !strings.Contains(cfg.HelperStoreDir, "biocorectl") {
		t.Errorf("helper store dir should contain biocorectl: %s", cfg.HelperStoreDir)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Network != "mainnet" {
		t.Errorf("expected default network, got %s", cfg.Network)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := `
network = "testnet"
helper_storage_mode = "inline"
min_fingers = 3
preferred_fingers = 5
`
	if err := os.WriteFile(path, []byte(contents), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Network != "testnet" {
		t.Errorf("expected testnet, got %s", cfg.Network)
	}
	if cfg.MinFingers != 3 || cfg.PreferredFingers != 5 {
		t.Errorf("expected overridden finger counts, got %d/%d", cfg.MinFingers, cfg.PreferredFingers)
	}
}

func TestValidateRejectsBadMinFingers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinFingers = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for min_fingers < 1")
	}
}

func TestValidateRejectsPreferredBelowMin(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinFingers = 3
	cfg.PreferredFingers = 2
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for preferred_fingers < min_fingers")
	}
}

func TestValidateRejectsUnknownStorageMode(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HelperStorageMode = "s3"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unsupported helper_storage_mode")
	}
}

func TestValidateRejectsUnknownRegistryBackend(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RegistryBackend = "postgres"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unsupported registry_backend")
	}
}

func TestEnsureDirectoriesCreatesTree(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := &Config{
		HelperStoreDir: filepath.Join(tmpDir, "a", "b", "helpers"),
		LogPath:        filepath.Join(tmpDir, "c", "d", "log"),
		RegistryPath:   filepath.Join(tmpDir, "e", "f", "registry.jsonl"),
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, dir := range []string{cfg.HelperStoreDir, filepath.Dir(cfg.LogPath), filepath.Dir(cfg.RegistryPath)} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("expected directory to exist: %s", dir)
		}
	}
}

func TestBaseDir(t *testing.T) {
	dir := BaseDir()
	if dir == "" {
		t.Error("BaseDir returned empty string")
	}
}
