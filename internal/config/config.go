// Package config loads the datastore configuration: which backend to run,
// where its data lives, and the bucket-cache freshness window. Values come
// from an optional YAML file with CLI flags layered on top.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend names accepted by the engine constructor.
const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

// datasetVersion is bumped when the on-disk layout changes incompatibly,
// so old and new datasets never share a file.
const datasetVersion = 1

// Config selects and parameterizes a storage backend.
type Config struct {
	// Backend is "sqlite" or "badger".
	Backend string `yaml:"backend"`

	// DataDir is the directory holding the dataset.
	DataDir string `yaml:"data_dir"`

	// Testing switches to an isolated dataset name so test runs never
	// touch production data.
	Testing bool `yaml:"testing"`

	// CacheWindow is how long a bucket-directory snapshot stays fresh.
	CacheWindow Duration `yaml:"cache_window"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Backend:     BackendSQLite,
		DataDir:     ".",
		CacheWindow: Duration(6 * time.Second),
	}
}

// Load reads a YAML config file over the defaults. A missing file is not
// an error; it just yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the backend selection and paths.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendSQLite, BackendBadger:
	default:
		return fmt.Errorf("unknown backend %q: must be %q or %q", c.Backend, BackendSQLite, BackendBadger)
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.CacheWindow < 0 {
		return fmt.Errorf("cache_window must not be negative")
	}
	return nil
}

// datasetName builds the versioned dataset file/directory name, with the
// testing suffix isolating test datasets from production ones.
func (c Config) datasetName(ext string) string {
	name := "tidemark"
	if c.Testing {
		name += "-testing"
	}
	return fmt.Sprintf("%s.v%d%s", name, datasetVersion, ext)
}

// DatasetPath returns the backend-specific dataset location inside DataDir:
// a database file for SQLite, a directory for Badger.
func (c Config) DatasetPath() string {
	switch c.Backend {
	case BackendBadger:
		return filepath.Join(c.DataDir, c.datasetName(".badger"))
	default:
		return filepath.Join(c.DataDir, c.datasetName(".db"))
	}
}

// Window returns the cache freshness window as a time.Duration.
func (c Config) Window() time.Duration {
	return time.Duration(c.CacheWindow)
}

// Duration is a time.Duration that unmarshals from YAML strings like "6s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("cache window must be a duration string: %w", err)
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}
