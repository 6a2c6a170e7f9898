package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "plantset.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "data", cfg.Data.Root)
	assert.Equal(t, "sources.yaml", cfg.Data.SourcesFile)
	assert.Equal(t, 3, cfg.Fetch.Workers)
	assert.Equal(t, 3, cfg.Fetch.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Fetch.InitialBackoff)
	assert.Equal(t, 10*time.Minute, cfg.Fetch.Timeout)
	assert.InDelta(t, 5.0, cfg.Fetch.RatePerHost, 0.001)
	assert.Equal(t, 4, cfg.Normalize.Workers)
	assert.Equal(t, 4, cfg.Dedup.Workers)
	assert.Equal(t, 8, cfg.Dedup.HammingThreshold)
	assert.Equal(t, 30*time.Second, cfg.Dedup.FileTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/plantset
data:
  root: /srv/plantset
dedup:
  hamming_threshold: 6
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/plantset", cfg.Store.DatabaseURL)
	assert.Equal(t, "/srv/plantset", cfg.Data.Root)
	assert.Equal(t, 6, cfg.Dedup.HammingThreshold)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Unset keys keep their defaults.
	assert.Equal(t, 4, cfg.Dedup.Workers)
	assert.Equal(t, "sources.yaml", cfg.Data.SourcesFile)
}

func TestLoadFromEnv(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("PLANTSET_STORE_DRIVER", "postgres")
	t.Setenv("PLANTSET_DEDUP_WORKERS", "16")
	t.Setenv("PLANTSET_FETCH_USER_AGENT", "plantset-ci")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 16, cfg.Dedup.Workers)
	assert.Equal(t, "plantset-ci", cfg.Fetch.UserAgent)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(Log{Level: "debug", Format: "console"}))
	require.NoError(t, InitLogger(Log{Level: "warn", Format: "json"}))
	assert.Error(t, InitLogger(Log{Level: "nope", Format: "json"}))
}
