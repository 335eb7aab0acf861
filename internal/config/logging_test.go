package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = "warn"
	cfg.LogFormat = "json"

	var buf bytes.Buffer
	logger := cfg.NewLogger(&buf)
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())

	logger.Info("hidden")
	assert.Zero(t, buf.Len())

	logger.WithField("document_id", "d1").Warn("shown")
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "shown", entry["msg"])
	assert.Equal(t, "d1", entry["document_id"])
}

func TestNewLogger_BadLevelFallsBackToInfo(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = "loud"
	assert.Equal(t, logrus.InfoLevel, cfg.NewLogger(nil).GetLevel())
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("FORMFILL_TEST_ZOOM=2.5\nFORMFILL_TEST_KEEP=file\n"), 0o600))

	t.Setenv("FORMFILL_TEST_KEEP", "env")
	t.Setenv("FORMFILL_TEST_ZOOM", "")
	os.Unsetenv("FORMFILL_TEST_ZOOM")

	require.NoError(t, LoadDotEnv(path, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "2.5", os.Getenv("FORMFILL_TEST_ZOOM"))
	assert.Equal(t, "env", os.Getenv("FORMFILL_TEST_KEEP"))
	os.Unsetenv("FORMFILL_TEST_ZOOM")

	assert.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env")))
}
