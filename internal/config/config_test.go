package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestValidateRejectsMissingPort(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Port = ""
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsNonPositiveTimings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HeartbeatInterval = 0
	assert.Error(t, cfg.Validate())
}

func TestLoadFallsBackToDefaultsWhenUnset(t *testing.T) {
	for _, key := range []string{"FLOWCRAFT_PORT", "FLOWCRAFT_LOG_LEVEL", "FLOWCRAFT_REDIS_ADDR"} {
		original, wasSet := os.LookupEnv(key)
		require.NoError(t, os.Unsetenv(key))
		if wasSet {
			t.Cleanup(func() { _ = os.Setenv(key, original) })
		}
	}

	cfg := Load()
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
}

func TestLoadReadsOverridesFromEnv(t *testing.T) {
	t.Setenv("FLOWCRAFT_PORT", "9090")
	t.Setenv("FLOWCRAFT_HEARTBEAT_INTERVAL", "5s")

	cfg := Load()
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 5*time.Second, cfg.HeartbeatInterval)
}

func TestLoadFromFileParsesYAMLOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: \"9999\"\nlogLevel: debug\n"), 0o600))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "9999", cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	// fields absent from the file keep DefaultConfig's values
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
}

func TestLoadFromFileRejectsMissingFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestGetPortInt(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Port = "1234"
	assert.Equal(t, 1234, cfg.GetPortInt())
}
