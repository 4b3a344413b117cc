package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := loadConfigFrom(filepath.Join(t.TempDir(), "missing.yaml"))
	def := defaultConfig()
	assert.Equal(t, def, cfg)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "@every 1m", cfg.AutosaveCron)
	assert.Empty(t, cfg.HTTPAddr)
}

func TestLoadConfigLayers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"db_path: /data/seq.db\nlog_level: debug\nhttp_addr: ':9100'\n"), 0o600))

	cfg := loadConfigFrom(path)
	assert.Equal(t, "/data/seq.db", cfg.DBPath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, ":9100", cfg.HTTPAddr)
	assert.Equal(t, "text", cfg.LogFormat, "unset keys keep defaults")

	t.Setenv("SEQUENCER_LOG_LEVEL", "warn")
	t.Setenv("SEQUENCER_AUTOSAVE_CRON", "")
	t.Setenv("SEQUENCER_HTTP_ADDR", "")
	cfg = loadConfigFrom(path)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Empty(t, cfg.AutosaveCron, "an empty env var disables autosave")
	assert.Empty(t, cfg.HTTPAddr)
	assert.Equal(t, "/data/seq.db", cfg.DBPath)
}

func TestLoadConfigIgnoresMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: [oops"), 0o600))
	assert.Equal(t, "info", loadConfigFrom(path).LogLevel)
}

func TestWriteConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.yaml")
	cfg := Config{
		DBPath:       "/tmp/a.db",
		RegistryDir:  "/tmp/acts",
		LogLevel:     "error",
		LogFormat:    "json",
		AutosaveCron: "*/5 * * * *",
		HTTPAddr:     "127.0.0.1:9100",
	}
	require.NoError(t, writeConfig(path, cfg))
	assert.Equal(t, cfg, loadConfigFrom(path))
}
