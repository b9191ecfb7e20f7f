// Package config loads the server configuration from config/server.yaml
// with environment variable overrides for deployment settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Control   ControlConfig   `yaml:"control"`
	WS        WSConfig        `yaml:"ws"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string   `yaml:"host"`
	Port            int      `yaml:"port"`
	ReadTimeoutSec  int      `yaml:"read_timeout_sec"`
	WriteTimeoutSec int      `yaml:"write_timeout_sec"`
	IdleTimeoutSec  int      `yaml:"idle_timeout_sec"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AuthConfig configures identity authentication for session management
// endpoints. Command submission is token-only and never authenticated.
type AuthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Secret  string `yaml:"secret"`
}

// RateLimitConfig configures per-caller API rate limiting.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerSecond int  `yaml:"requests_per_second"`
	Burst             int  `yaml:"burst"`
}

// ControlConfig configures the session registry sweep. A zero sweep interval
// disables eviction entirely and dead records stay reachable for the life of
// the process.
type ControlConfig struct {
	SweepIntervalSec int `yaml:"sweep_interval_sec"`
	RetainDeadSec    int `yaml:"retain_dead_sec"`
}

// WSConfig configures subscriber websocket connections.
type WSConfig struct {
	SendBufferSize  int `yaml:"send_buffer_size"`
	PingIntervalSec int `yaml:"ping_interval_sec"`
	PongTimeoutSec  int `yaml:"pong_timeout_sec"`
	ReadLimitBytes  int `yaml:"read_limit_bytes"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeoutSec:  15,
			WriteTimeoutSec: 15,
			IdleTimeoutSec:  60,
			AllowedOrigins:  []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Auth: AuthConfig{
			Enabled: false,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 25,
			Burst:             50,
		},
		Control: ControlConfig{
			SweepIntervalSec: 0,
			RetainDeadSec:    3600,
		},
		WS: WSConfig{
			SendBufferSize:  64,
			PingIntervalSec: 30,
			PongTimeoutSec:  60,
			ReadLimitBytes:  4096,
		},
	}
}

// Load reads the configuration file and applies environment overrides.
// A missing file is not an error; defaults are used.
func Load() (*Config, error) {
	// Optional: load a local .env for development. Missing file is fine.
	_ = godotenv.Load()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = filepath.Join("config", "server.yaml")
	}
	return LoadFromPath(path)
}

// LoadFromPath reads the configuration from a specific path.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Defaults only.
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return nil, fmt.Errorf("server port %d out of range", cfg.Server.Port)
	}
	if cfg.Auth.Enabled && cfg.Auth.Secret == "" {
		return nil, fmt.Errorf("auth enabled but no secret configured")
	}
	if cfg.WS.SendBufferSize <= 0 {
		cfg.WS.SendBufferSize = Default().WS.SendBufferSize
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = Default().Server.AllowedOrigins
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("AUTH_SECRET"); v != "" {
		cfg.Auth.Secret = v
		cfg.Auth.Enabled = true
	}
}
