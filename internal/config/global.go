package config

import (
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Settings holds CLI settings from ~/.hublink/settings.yml. They are kept
// apart from the account config so an env-sourced account config never
// hides them.
type Settings struct {
	Debug DebugSettings `yaml:"debug"`
}

// DebugSettings controls the JSONL debug log.
type DebugSettings struct {
	RetentionDays int `yaml:"retention_days"`
}

// DefaultSettings returns the default CLI settings.
func DefaultSettings() *Settings {
	return &Settings{
		Debug: DebugSettings{
			RetentionDays: 14,
		},
	}
}

// LoadSettings reads ~/.hublink/settings.yml and applies environment overrides.
func LoadSettings() (*Settings, error) {
	cfg := DefaultSettings()

	if data, err := os.ReadFile(filepath.Join(GlobalConfigDir(), "settings.yml")); err == nil {
		_ = yaml.Unmarshal(data, cfg) // Ignore unmarshal errors, use defaults
	}

	if s := os.Getenv("HUBLINK_DEBUG_RETENTION_DAYS"); s != "" {
		if days, err := strconv.Atoi(s); err == nil {
			cfg.Debug.RetentionDays = days
		}
	}

	return cfg, nil
}

// GlobalConfigDir returns the path to ~/.hublink.
func GlobalConfigDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".hublink")
	}
	return filepath.Join(homeDir, ".hublink")
}

// DefaultConfigPath returns the account config path. HUBLINK_CONFIG_PATH
// overrides ~/.hublink/config.yml.
func DefaultConfigPath() string {
	if p := os.Getenv("HUBLINK_CONFIG_PATH"); p != "" {
		return p
	}
	return filepath.Join(GlobalConfigDir(), "config.yml")
}
