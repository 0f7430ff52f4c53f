package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestLoadAppliesDefaultsForZeroFields(t *testing.T) {
	path := writeConfig(t, `
app:
  name: vision-server
store:
  max_images: 50
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "vision-server", cfg.App.Name)
	assert.Equal(t, 50, cfg.Store.MaxImages)
	assert.Equal(t, 1000, cfg.Store.MaxMemoryMB)
	assert.Equal(t, 320, cfg.Store.ThumbnailMaxWidth)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 0.8, cfg.Template.DefaultThreshold)
	assert.Equal(t, 1000, cfg.History.BufferSize)
	assert.Equal(t, "test", cfg.Camera.DefaultCameraID)
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestStoreConfigMaxBytes(t *testing.T) {
	cfg := StoreConfig{MaxMemoryMB: 2}
	assert.Equal(t, int64(2*1024*1024), cfg.MaxBytes())
}

func TestNewLoggerBuildsConsoleLogger(t *testing.T) {
	logger, err := NewLogger("debug", "console")
	require.NoError(t, err)
	require.NotNil(t, logger)
	logger.Sync()
}

func TestNewLoggerRejectsInvalidLevel(t *testing.T) {
	_, err := NewLogger("not-a-level", "console")
	assert.Error(t, err)
}
