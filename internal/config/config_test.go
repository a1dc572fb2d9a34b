package config_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrimitra/advisor/internal/config"
)

func TestFilterCredentials(t *testing.T) {
	got := config.FilterCredentials([]string{
		"key-a",
		"",
		"  ",
		"your_api_key_here",
		"PASTE_KEY",
		"key-b",
		"key-a",
		" key-c ",
	})
	assert.Equal(t, []string{"key-a", "key-b", "key-c"}, got)
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("AGRIMITRA_CONFIG", "")
	for i := 1; i <= 3; i++ {
		t.Setenv(fmt.Sprintf("GOOGLE_API_KEY_%d", i), "")
	}
	t.Setenv("AGRIMITRA_API_KEYS", "")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 5004, cfg.Port)
	assert.Equal(t, "gemini", cfg.Backend.Driver)
	assert.Equal(t, "gemini-2.5-flash", cfg.Backend.Model)
	assert.Equal(t, 20, cfg.Gateway.HistoryLimit)
	assert.Empty(t, cfg.Backend.APIKeys)
}

func TestLoad_EnvCredentials(t *testing.T) {
	t.Setenv("AGRIMITRA_CONFIG", "")
	t.Setenv("GOOGLE_API_KEY_1", "first")
	t.Setenv("GOOGLE_API_KEY_2", "your_second_key")
	t.Setenv("GOOGLE_API_KEY_3", "third")
	t.Setenv("AGRIMITRA_API_KEYS", "fourth, first")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "third", "fourth"}, cfg.Backend.APIKeys)
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agrimitra.yaml")
	data := []byte(`
port: 6000
backend:
  driver: openai
  model: gpt-4o-mini
  api_keys: ["file-key"]
gateway:
  retry_delay: 250ms
  history_limit: 8
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	t.Setenv("AGRIMITRA_CONFIG", path)
	t.Setenv("AGRIMITRA_PORT", "7000")
	t.Setenv("GOOGLE_API_KEY_1", "")
	t.Setenv("AGRIMITRA_API_KEYS", "")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Port, "env overrides file")
	assert.Equal(t, "openai", cfg.Backend.Driver)
	assert.Equal(t, "gpt-4o-mini", cfg.Backend.Model)
	assert.Equal(t, 250*time.Millisecond, cfg.Gateway.RetryDelay)
	assert.Equal(t, 8, cfg.Gateway.HistoryLimit)
	assert.Equal(t, []string{"file-key"}, cfg.Backend.APIKeys)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("AGRIMITRA_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := config.Load()
	assert.Error(t, err)
}

func TestLoad_SessionExpiry(t *testing.T) {
	t.Setenv("AGRIMITRA_CONFIG", "")
	t.Setenv("AGRIMITRA_SESSION_TTL", "0")
	t.Setenv("AGRIMITRA_SESSION_SWEEP", "30s")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Zero(t, cfg.Sessions.TTL, "zero keeps sessions for the process lifetime")
	assert.Equal(t, 30*time.Second, cfg.Sessions.SweepInterval)
}
