package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"dvbox/pkg/logging"
)

const (
	userConfigDir    = ".config/dvbox"
	configFileName   = "config.yaml"
	settingsFileName = "settings.json"
)

// DefaultConfigDir returns the per-user configuration directory,
// ~/.config/dvbox.
func DefaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determine home directory: %w", err)
	}
	return filepath.Join(home, userConfigDir), nil
}

// Default returns the configuration used when config.yaml is absent.
func Default(dir string) Config {
	return Config{
		Logging:  LoggingConfig{Level: "info"},
		Settings: SettingsConfig{Path: filepath.Join(dir, settingsFileName)},
	}
}

// Load reads config.yaml from dir on top of the defaults. A missing
// file is not an error; a malformed one is.
func Load(dir string) (Config, error) {
	path := filepath.Join(dir, configFileName)
	cfg := Default(dir)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Debug("Config", "No config.yaml at %s, using defaults", path)
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Settings.Path == "" {
		cfg.Settings.Path = filepath.Join(dir, settingsFileName)
	}
	logging.Debug("Config", "Loaded configuration from %s", path)
	return cfg, nil
}
