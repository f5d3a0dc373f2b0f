package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, BackendSQLite, cfg.Backend)
	assert.Equal(t, 6*time.Second, cfg.Window())
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
backend: badger
data_dir: /var/lib/tidemark
testing: true
cache_window: 30s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, BackendBadger, cfg.Backend)
	assert.Equal(t, "/var/lib/tidemark", cfg.DataDir)
	assert.True(t, cfg.Testing)
	assert.Equal(t, 30*time.Second, cfg.Window())
}

func TestLoad_UnknownBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend: mongodb\n"), 0o644))

	_, err := Load(path)
	assert.ErrorContains(t, err, "unknown backend")
}

func TestLoad_BadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cache_window: soon\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestDatasetPath(t *testing.T) {
	cfg := Default()
	cfg.DataDir = "/data"
	assert.Equal(t, filepath.Join("/data", "tidemark.v1.db"), cfg.DatasetPath())

	cfg.Testing = true
	assert.Equal(t, filepath.Join("/data", "tidemark-testing.v1.db"), cfg.DatasetPath())

	cfg.Backend = BackendBadger
	assert.Equal(t, filepath.Join("/data", "tidemark-testing.v1.badger"), cfg.DatasetPath())
}
