package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads overseer.yaml from path, expands environment variables,
// overlays the file on the built-in defaults and validates the result. An
// empty path or a missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			slog.Info("config file not found, using defaults", "path", path)
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(ExpandEnv(data), cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
			slog.Info("configuration loaded", "path", path)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides lets the most common deployment knobs be set without a
// config file.
func applyEnvOverrides(cfg *Config) {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		cfg.Redis.Password = pw
	}
	if url := os.Getenv("PORTAL_BASE_URL"); url != "" {
		cfg.Portal.BaseURL = url
	}
}
