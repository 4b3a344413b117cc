package main

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds all sequencer configuration.
// Priority: env vars > settings.yaml > defaults.
type Config struct {
	DBPath       string `yaml:"db_path"`
	RegistryDir  string `yaml:"registry_dir"`
	LogLevel     string `yaml:"log_level"`
	LogFormat    string `yaml:"log_format"`
	AutosaveCron string `yaml:"autosave_cron"`
	HTTPAddr     string `yaml:"http_addr"` // empty disables the panel listener
}

func defaultConfig() Config {
	return Config{
		DBPath:       filepath.Join(sequencerDir(), "sequencer.db"),
		RegistryDir:  filepath.Join(sequencerDir(), "activities"),
		LogLevel:     "info",
		LogFormat:    "text",
		AutosaveCron: "@every 1m",
	}
}

func sequencerDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sequencer"
	}
	return filepath.Join(home, ".sequencer")
}

func settingsPath() string {
	if v := os.Getenv("SEQUENCER_SETTINGS"); v != "" {
		return v
	}
	return filepath.Join(sequencerDir(), "settings.yaml")
}

func loadConfig() Config {
	return loadConfigFrom(settingsPath())
}

func loadConfigFrom(path string) Config {
	cfg := defaultConfig()

	// Layer 2: settings.yaml (ignore if missing).
	if data, err := os.ReadFile(path); err == nil {
		_ = yaml.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("SEQUENCER_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("SEQUENCER_REGISTRY_DIR"); v != "" {
		cfg.RegistryDir = v
	}
	if v := os.Getenv("SEQUENCER_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("SEQUENCER_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v, ok := os.LookupEnv("SEQUENCER_AUTOSAVE_CRON"); ok {
		cfg.AutosaveCron = v
	}
	if v, ok := os.LookupEnv("SEQUENCER_HTTP_ADDR"); ok {
		cfg.HTTPAddr = v
	}

	return cfg
}

// writeConfig stores cfg as the settings file at path.
func writeConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
