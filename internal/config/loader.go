package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	// ConfigDir is the default config directory name.
	ConfigDir = ".agentdeck"
	// ConfigFile is the default config file name.
	ConfigFile = "config.json"
	// EnvPrefix is the prefix for environment variable overrides.
	EnvPrefix = "AGENTDECK"
)

// ConfigPath returns the path to the config file, honoring the
// AGENTDECK_CONFIG and AGENTDECK_HOME overrides.
func ConfigPath() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv("AGENTDECK_CONFIG")); explicit != "" {
		if strings.HasPrefix(explicit, "~") {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			return filepath.Join(home, explicit[1:]), nil
		}
		return explicit, nil
	}
	home, err := homeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigDir, ConfigFile), nil
}

func homeDir() (string, error) {
	if h := strings.TrimSpace(os.Getenv("AGENTDECK_HOME")); h != "" {
		if strings.HasPrefix(h, "~") {
			base, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			return filepath.Join(base, h[1:]), nil
		}
		return h, nil
	}
	return os.UserHomeDir()
}

// Load reads the config file if present, applies environment overrides,
// and fills in defaults. A missing file is not an error: env plus
// defaults make a runnable config.
func Load() (*Config, error) {
	cfg := &Config{}

	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("apply env overrides: %w", err)
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Backend.BaseURL == "" {
		cfg.Backend.BaseURL = "http://127.0.0.1:8080"
	}
	if cfg.Backend.DeliveryMode == "" {
		cfg.Backend.DeliveryMode = DeliverySync
	}
	if cfg.Backend.Timeout <= 0 {
		cfg.Backend.Timeout = 60 * time.Second
	}
	if cfg.Channel.BackoffBase <= 0 {
		cfg.Channel.BackoffBase = 1 * time.Second
	}
	if cfg.Channel.BackoffMax <= 0 {
		cfg.Channel.BackoffMax = 30 * time.Second
	}
	if cfg.Jobs.PollInterval <= 0 {
		cfg.Jobs.PollInterval = 1 * time.Second
	}
	if cfg.Jobs.MaxAttempts <= 0 {
		cfg.Jobs.MaxAttempts = 120
	}
	if cfg.Store.Path == "" {
		if home, err := homeDir(); err == nil {
			cfg.Store.Path = filepath.Join(home, ConfigDir, "transcripts.db")
		}
	}
	if cfg.Audit.Topic == "" {
		cfg.Audit.Topic = "agentdeck.audit"
	}
}
