package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Repository RepositoryConfig `mapstructure:"repository"`
	Postgres   PostgresConfig   `mapstructure:"postgres"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Sessions   SessionsConfig   `mapstructure:"sessions"`
	Upload     UploadConfig     `mapstructure:"upload"`
	Auth       AuthConfig       `mapstructure:"auth"`
	CORS       CORSConfig       `mapstructure:"cors"`
	RateLimit  RateLimitConfig  `mapstructure:"ratelimit"`
	Runner     RunnerConfig     `mapstructure:"runner"`
	Chat       ChatConfig       `mapstructure:"chat"`
	Seed       SeedConfig       `mapstructure:"seed"`
}

// Validate ensures required fields are present.
func (c Config) Validate() error {
	if c.Server.Port == 0 {
		return errors.New("server.port is required")
	}
	switch c.Repository.Backend {
	case "postgres":
		if c.Postgres.User == "" || c.Postgres.Password == "" || c.Postgres.DBName == "" {
			return errors.New("postgres credentials are required")
		}
		if c.Postgres.Host == "" {
			return errors.New("postgres.host is required")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown repository.backend: %q", c.Repository.Backend)
	}
	switch c.Sessions.Backend {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			return errors.New("redis.addr is required")
		}
	default:
		return fmt.Errorf("unknown sessions.backend: %q", c.Sessions.Backend)
	}
	if c.Sessions.MaxPerTeam <= 0 {
		return errors.New("sessions.max_per_team must be positive")
	}
	if c.Upload.Dir == "" {
		return errors.New("upload.dir is required")
	}
	if c.Upload.MaxFiles <= 0 || c.Upload.MaxFileSize <= 0 {
		return errors.New("upload limits must be positive")
	}
	switch c.Runner.Backend {
	case "echo":
	case "openai":
		if c.Runner.APIKey == "" {
			return errors.New("runner.api_key is required for the openai backend")
		}
	default:
		return fmt.Errorf("unknown runner.backend: %q", c.Runner.Backend)
	}
	if len(c.Auth.AdminKey) > 0 && len(c.Auth.AdminKey) < 16 {
		return errors.New("auth.admin_key must be at least 16 characters")
	}
	return nil
}

// ServerAddr returns host:port for HTTP server binding.
func (c Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// ServerConfig contains HTTP server options.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// HTTPConfig contains transport settings.
type HTTPConfig struct {
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	BodyLimit      int           `mapstructure:"body_limit"`
	SSEPing        time.Duration `mapstructure:"sse_ping_interval"`
}

// LoggingConfig contains logger preferences.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// RepositoryConfig selects the persistence backend.
type RepositoryConfig struct {
	Backend string `mapstructure:"backend"`
}

// PostgresConfig describes database connection parameters.
type PostgresConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	User           string        `mapstructure:"user"`
	Password       string        `mapstructure:"password"`
	DBName         string        `mapstructure:"db_name"`
	SSLMode        string        `mapstructure:"ssl_mode"`
	MigrationsDir  string        `mapstructure:"migrations_dir"`
	MigrateTimeout time.Duration `mapstructure:"migrate_timeout"`
	QueryTimeout   time.Duration `mapstructure:"query_timeout"`
	MaxConns       int32         `mapstructure:"max_conns"`
	MinConns       int32         `mapstructure:"min_conns"`
}

// DSN returns a Postgres connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode,
	)
}

// RedisConfig describes the redis connection used by the session store.
type RedisConfig struct {
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	BufferTTL time.Duration `mapstructure:"buffer_ttl"`
}

// SessionsConfig tunes debugger sessions.
type SessionsConfig struct {
	Backend         string        `mapstructure:"backend"`
	MaxPerTeam      int           `mapstructure:"max_per_team"`
	Retention       time.Duration `mapstructure:"retention"`
	RunTimeout      time.Duration `mapstructure:"run_timeout"`
	JanitorInterval time.Duration `mapstructure:"janitor_interval"`
}

// UploadConfig limits multipart uploads.
type UploadConfig struct {
	Dir             string `mapstructure:"dir"`
	MaxFiles        int    `mapstructure:"max_files"`
	MaxFileSize     int64  `mapstructure:"max_file_size"`
	InlineTextLimit int    `mapstructure:"inline_text_limit"`
}

// AuthConfig holds the operator key.
type AuthConfig struct {
	AdminKey string `mapstructure:"admin_key"`
}

// CORSConfig lists allowed browser origins, comma separated.
type CORSConfig struct {
	AllowedOrigins string `mapstructure:"allowed_origins"`
}

// RateLimitConfig configures the per-team token bucket.
type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"`
	Burst   int     `mapstructure:"burst"`
}

// RunnerConfig selects the LLM backend.
type RunnerConfig struct {
	Backend      string `mapstructure:"backend"`
	BaseURL      string `mapstructure:"base_url"`
	APIKey       string `mapstructure:"api_key"`
	DefaultModel string `mapstructure:"default_model"`
}

// ChatConfig tunes the chat embodiment.
type ChatConfig struct {
	HistoryLimit int `mapstructure:"history_limit"`
}

// SeedConfig points at an optional YAML seed file.
type SeedConfig struct {
	File string `mapstructure:"file"`
}
