// Package config loads the overseer.yaml deployment configuration: HTTP
// server settings, Redis counters, rate and budget defaults, event delivery
// tuning, and the bootstrap API keys. Environment variables are expanded in
// the YAML with {{.VAR_NAME}} template syntax before parsing.
package config

import (
	"fmt"
	"time"
)

// Config is the complete deployment configuration.
type Config struct {
	Server     ServerConfig    `yaml:"server"`
	Redis      RedisConfig     `yaml:"redis"`
	RateLimits RateLimitConfig `yaml:"rate_limits"`
	Budgets    BudgetConfig    `yaml:"budgets"`
	Events     EventsConfig    `yaml:"events"`
	Portal     PortalConfig    `yaml:"portal"`
	Provider   string          `yaml:"provider"`
	APIKeys    []BootstrapKey  `yaml:"api_keys"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	ShutdownTimeout string `yaml:"shutdown_timeout"` // Go duration string
}

// ShutdownTimeoutDuration parses the shutdown timeout, defaulting to 10s.
func (s ServerConfig) ShutdownTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(s.ShutdownTimeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// RedisConfig holds the counter-store backing. An empty Addr selects the
// in-process fallback counters.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// RateLimitConfig holds the deployment-wide rate limit defaults, applied to
// keys without explicit limits.
type RateLimitConfig struct {
	PerMinute     int `yaml:"per_minute"`
	WindowSeconds int `yaml:"window_seconds"`
}

// BudgetConfig holds the deployment-wide token budget defaults.
type BudgetConfig struct {
	MaxPerRequest int   `yaml:"max_per_request"`
	Daily         int64 `yaml:"daily"`
}

// EventsConfig tunes WebSocket event delivery.
type EventsConfig struct {
	ReplayLimit  int    `yaml:"replay_limit"`
	WriteTimeout string `yaml:"write_timeout"` // Go duration string
}

// WriteTimeoutDuration parses the write timeout, defaulting to 10s.
func (e EventsConfig) WriteTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(e.WriteTimeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// PortalConfig holds the host-facing portal link returned on session create.
type PortalConfig struct {
	BaseURL string `yaml:"base_url"`
}

// BootstrapKey seeds an API key at startup so a fresh deployment is usable
// without manual database edits. Exactly one of secret (raw, hashed at
// seeding) or sha256 (pre-hashed, keeps the raw value out of the file) must
// be set.
type BootstrapKey struct {
	ID     string             `yaml:"id"`
	Secret string             `yaml:"secret"`
	SHA256 string             `yaml:"sha256"`
	Role   string             `yaml:"role"`
	Tenant string             `yaml:"tenant"`
	Limits BootstrapKeyLimits `yaml:"limits"`
}

// BootstrapKeyLimits is the YAML form of the per-key policy limits. Zero
// values and empty lists fall back to the deployment defaults, the same as
// a key seeded without a limits block.
type BootstrapKeyLimits struct {
	PerMinute     int      `yaml:"per_minute"`
	WindowSeconds int      `yaml:"window_seconds"`
	MaxPerRequest int      `yaml:"max_per_request"`
	Daily         int64    `yaml:"daily"`
	Tenants       []string `yaml:"tenants"`
	Tools         []string `yaml:"tools"`
	Branches      []string `yaml:"branches"`
}

// DefaultConfig returns the built-in configuration defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: "10s",
		},
		RateLimits: RateLimitConfig{
			PerMinute:     60,
			WindowSeconds: 60,
		},
		Budgets: BudgetConfig{
			MaxPerRequest: 100000,
			Daily:         1000000,
		},
		Events: EventsConfig{
			ReplayLimit:  50,
			WriteTimeout: "10s",
		},
		Portal: PortalConfig{
			BaseURL: "http://localhost:8080",
		},
		Provider: "deterministic",
	}
}

// Validate rejects configurations that cannot produce a working deployment.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in (0, 65535], got %d", c.Server.Port)
	}
	if c.RateLimits.PerMinute <= 0 {
		return fmt.Errorf("rate_limits.per_minute must be positive, got %d", c.RateLimits.PerMinute)
	}
	if c.RateLimits.WindowSeconds <= 0 {
		return fmt.Errorf("rate_limits.window_seconds must be positive, got %d", c.RateLimits.WindowSeconds)
	}
	if c.Budgets.MaxPerRequest <= 0 {
		return fmt.Errorf("budgets.max_per_request must be positive, got %d", c.Budgets.MaxPerRequest)
	}
	if c.Budgets.Daily <= 0 {
		return fmt.Errorf("budgets.daily must be positive, got %d", c.Budgets.Daily)
	}
	if c.Events.ReplayLimit <= 0 {
		return fmt.Errorf("events.replay_limit must be positive, got %d", c.Events.ReplayLimit)
	}
	for i, key := range c.APIKeys {
		if key.ID == "" {
			return fmt.Errorf("api_keys[%d]: id is required", i)
		}
		if (key.Secret == "") == (key.SHA256 == "") {
			return fmt.Errorf("api_keys[%d]: exactly one of secret or sha256 is required", i)
		}
		if key.SHA256 != "" && len(key.SHA256) != 64 {
			return fmt.Errorf("api_keys[%d]: sha256 must be 64 hex characters, got %d", i, len(key.SHA256))
		}
		switch key.Role {
		case "consumer", "operator", "admin":
		default:
			return fmt.Errorf("api_keys[%d]: role must be consumer, operator or admin, got %q", i, key.Role)
		}
	}
	return nil
}
