// Package config handles configuration loading and validation for biocorectl.
package config

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config holds the CLI and library defaults for a biocorectl deployment.
type Config struct {
	// Network is the DID network tag read from the config file. The
	// CLI's -network flags carry their own "mainnet" default and do
	// not consult this field.
	Network string `toml:"network"`

	// HelperStorageMode selects "inline" or "filesystem" helper-data
	// storage for newly built bundles.
	HelperStorageMode string `toml:"helper_storage_mode"`

	// HelperStoreDir is the root directory the filesystem storage
	// adapter writes helper blobs under.
	HelperStoreDir string `toml:"helper_store_dir"`

	// LogPath is the path to the CLI's log file.
	LogPath string `toml:"log_path"`

	// RegistryPath is the path to the on-disk duplicate-detection
	// index: a JSON-lines snapshot file, or a SQLite database file,
	// depending on RegistryBackend.
	RegistryPath string `toml:"registry_path"`

	// RegistryBackend selects the duplicate-detection index
	// implementation: "jsonl" (default, an in-memory index hydrated
	// from a JSON-lines snapshot) or "sqlite" (a durable index backed
	// by a SQLite database, queried directly on every lookup).
	RegistryBackend string `toml:"registry_backend"`

	// MinFingers and PreferredFingers seed the default aggregation
	// policy; see internal/aggregator.Policy.
	MinFingers       int `toml:"min_fingers"`
	PreferredFingers int `toml:"preferred_fingers"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	paths := GetDefaultPaths()

	return &Config{
		Network:           "mainnet",
		HelperStorageMode: "filesystem",
		HelperStoreDir:    paths.HelperStoreDir,
		LogPath:           filepath.Join(paths.LogDir, "biocorectl.log"),
		RegistryPath:      paths.RegistryFile,
		RegistryBackend:   "jsonl",
		MinFingers:        2,
		PreferredFingers:  4,
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return GetDefaultPaths().ConfigFile
}

// Load reads configuration from the specified path.
// If the file doesn't exist, returns default configuration.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = ConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.MinFingers < 1 {
		return errors.New("config: min_fingers must be at least 1")
	}

	if c.PreferredFingers < c.MinFingers {
		return errors.New("config: preferred_fingers must be >= min_fingers")
	}

	if c.HelperStorageMode != "inline" && c.HelperStorageMode != "filesystem" {
		return errors.New("config: helper_storage_mode must be \"inline\" or \"filesystem\"")
	}

	if c.RegistryBackend != "jsonl" && c.RegistryBackend != "sqlite" {
		return errors.New("config: registry_backend must be \"jsonl\" or \"sqlite\"")
	}

	return nil
}

// EnsureDirectories creates all necessary directories for the CLI.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.HelperStoreDir,
		filepath.Dir(c.LogPath),
		filepath.Dir(c.RegistryPath),
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return err
		}
	}

	return nil
}

// BaseDir returns the base biocorectl data directory.
func BaseDir() string {
	return PlatformDataDir()
}
