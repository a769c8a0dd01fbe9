// Package config loads the server configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Storage type constants
const (
	StorageTypeMemory = "memory"
	StorageTypeRedis  = "redis"
)

// Config is the server configuration
type Config struct {
	Addr     string `env:"ARENA_ADDR"      envDefault:":8080"`
	LogLevel string `env:"ARENA_LOG_LEVEL" envDefault:"info"`

	StorageType string `env:"ARENA_STORAGE_TYPE" envDefault:"memory"`
	RedisURL    string `env:"ARENA_REDIS_URL"`

	JWTSecret string        `env:"ARENA_JWT_SECRET"`
	JWTIssuer string        `env:"ARENA_JWT_ISSUER" envDefault:"arenaengine"`
	TokenTTL  time.Duration `env:"ARENA_TOKEN_TTL"  envDefault:"24h"`

	AuthGrace       time.Duration `env:"ARENA_AUTH_GRACE"        envDefault:"5s"`
	IdleTimeout     time.Duration `env:"ARENA_IDLE_TIMEOUT"      envDefault:"60s"`
	PingInterval    time.Duration `env:"ARENA_PING_INTERVAL"     envDefault:"25s"`
	SendBuffer      int           `env:"ARENA_SEND_BUFFER"       envDefault:"256"`
	MaxMessageBytes int64         `env:"ARENA_MAX_MESSAGE_BYTES" envDefault:"65536"`
	RateLimit       float64       `env:"ARENA_RATE_LIMIT"        envDefault:"50"`
	RateBurst       int           `env:"ARENA_RATE_BURST"        envDefault:"100"`
	AllowedOrigins  []string      `env:"ARENA_ALLOWED_ORIGINS"   envSeparator:","`

	SweepInterval      time.Duration `env:"ARENA_SWEEP_INTERVAL"       envDefault:"1s"`
	ReconnectGrace     time.Duration `env:"ARENA_RECONNECT_GRACE"      envDefault:"30s"`
	WaitTimeout        time.Duration `env:"ARENA_WAIT_TIMEOUT"         envDefault:"120s"`
	DefaultMaxDuration time.Duration `env:"ARENA_DEFAULT_MAX_DURATION" envDefault:"300s"`

	WorkerPoolSize  int           `env:"ARENA_WORKER_POOL_SIZE"  envDefault:"16"`
	AnalysisURL     string        `env:"ARENA_ANALYSIS_URL"`
	AnalysisTimeout time.Duration `env:"ARENA_ANALYSIS_TIMEOUT"  envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"ARENA_SHUTDOWN_TIMEOUT"  envDefault:"15s"`
}

// Load parses the process environment
func Load() (Config, error) {
	return parse(env.Options{})
}

// LoadFromMap parses the given variables instead of the process environment
func LoadFromMap(vars map[string]string) (Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.StorageType = strings.ToLower(strings.TrimSpace(cfg.StorageType))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every problem with the configuration at once
func (c Config) Validate() error {
	var problems []error

	switch c.StorageType {
	case StorageTypeMemory:
	case StorageTypeRedis:
		if c.RedisURL == "" {
			problems = append(problems, errors.New("ARENA_REDIS_URL is required when ARENA_STORAGE_TYPE=redis"))
		}
	default:
		problems = append(problems, fmt.Errorf("ARENA_STORAGE_TYPE must be %q or %q, got %q", StorageTypeMemory, StorageTypeRedis, c.StorageType))
	}

	if _, err := c.SlogLevel(); err != nil {
		problems = append(problems, err)
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		problems = append(problems, errors.New("ARENA_JWT_SECRET is required"))
	}
	if c.AnalysisURL != "" {
		if u, err := url.Parse(c.AnalysisURL); err != nil || u.Scheme == "" || u.Host == "" {
			problems = append(problems, fmt.Errorf("ARENA_ANALYSIS_URL %q is not an absolute URL", c.AnalysisURL))
		}
	}

	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{"ARENA_AUTH_GRACE", c.AuthGrace},
		{"ARENA_IDLE_TIMEOUT", c.IdleTimeout},
		{"ARENA_PING_INTERVAL", c.PingInterval},
		{"ARENA_SWEEP_INTERVAL", c.SweepInterval},
		{"ARENA_WAIT_TIMEOUT", c.WaitTimeout},
		{"ARENA_DEFAULT_MAX_DURATION", c.DefaultMaxDuration},
		{"ARENA_TOKEN_TTL", c.TokenTTL},
	} {
		if d.value <= 0 {
			problems = append(problems, fmt.Errorf("%s must be positive", d.name))
		}
	}
	if c.PingInterval >= c.IdleTimeout {
		problems = append(problems, errors.New("ARENA_PING_INTERVAL must be shorter than ARENA_IDLE_TIMEOUT"))
	}
	if c.SendBuffer < 1 {
		problems = append(problems, errors.New("ARENA_SEND_BUFFER must be at least 1"))
	}
	if c.MaxMessageBytes < 128 {
		problems = append(problems, errors.New("ARENA_MAX_MESSAGE_BYTES must be at least 128"))
	}
	if c.RateLimit <= 0 || c.RateBurst < 1 {
		problems = append(problems, errors.New("ARENA_RATE_LIMIT and ARENA_RATE_BURST must be positive"))
	}
	if c.WorkerPoolSize < 1 {
		problems = append(problems, errors.New("ARENA_WORKER_POOL_SIZE must be at least 1"))
	}

	return errors.Join(problems...)
}

// SlogLevel converts LogLevel to a slog level
func (c Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("ARENA_LOG_LEVEL %q is not a valid level", c.LogLevel)
	}
	return level, nil
}
