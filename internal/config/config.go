// Package config loads the process-wide settings for a tsgraphd server:
// which persistence engine to bind, the runner's pool size and timeouts,
// and the transport layer's ports and auth secrets.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// EngineConfig selects and configures one persistence engine binding.
type EngineConfig struct {
	ID         string `yaml:"id"`
	Kind       string `yaml:"kind"` // "memory" or "postgres"
	DatabaseURL string `yaml:"database_url"`
}

// RunnerConfig configures the scheduler's execution mode.
type RunnerConfig struct {
	Workers          int    `yaml:"workers"`
	PerTaskTimeoutMS  int    `yaml:"per_task_timeout_ms"`
}

// TransportConfig configures the HTTP/gRPC operational surface.
type TransportConfig struct {
	HTTPAddr        string `yaml:"http_addr"`
	GRPCAddr        string `yaml:"grpc_addr"`
	JWTSecret       string `yaml:"jwt_secret"`
	APIKey          string `yaml:"api_key"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int    `yaml:"rate_limit_burst"`
}

// NotifyConfig configures completion-notification delivery.
type NotifyConfig struct {
	SvixAuthToken string `yaml:"svix_auth_token"`
	Enabled       bool   `yaml:"enabled"`
}

// Config is the top-level process configuration, loaded from YAML with
// environment-variable overrides for secrets, so credentials never need
// to live in a checked-in YAML file.
type Config struct {
	Engines  []EngineConfig  `yaml:"engines"`
	Runner   RunnerConfig    `yaml:"runner"`
	Transport TransportConfig `yaml:"transport"`
	Notify   NotifyConfig    `yaml:"notify"`
}

// Load reads and parses the YAML config at path, then applies environment
// overrides for the handful of fields that are secrets.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	cfg.applyEnvOverrides()

	if len(cfg.Engines) == 0 {
		return nil, fmt.Errorf("config: at least one engine must be configured")
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Runner.Workers == 0 {
		c.Runner.Workers = 4
	}
	if c.Transport.HTTPAddr == "" {
		c.Transport.HTTPAddr = ":8080"
	}
	if c.Transport.GRPCAddr == "" {
		c.Transport.GRPCAddr = ":9090"
	}
	if c.Transport.RateLimitPerSec == 0 {
		c.Transport.RateLimitPerSec = 5
	}
	if c.Transport.RateLimitBurst == 0 {
		c.Transport.RateLimitBurst = 10
	}
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("TSGRAPH_DB_URL"); v != "" {
		for i := range c.Engines {
			if c.Engines[i].Kind == "postgres" && c.Engines[i].DatabaseURL == "" {
				c.Engines[i].DatabaseURL = v
			}
		}
	}
	if v := os.Getenv("TSGRAPH_JWT_SECRET"); v != "" {
		c.Transport.JWTSecret = v
	}
	if v := os.Getenv("TSGRAPH_API_KEY"); v != "" {
		c.Transport.APIKey = v
	}
	if v := os.Getenv("TSGRAPH_SVIX_AUTH_TOKEN"); v != "" {
		c.Notify.SvixAuthToken = v
	}
}
