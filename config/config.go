// Package config loads application configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envFile = "config/.env"

// NewConfig loads configuration from environment using viper with typed defaults and validation.
func NewConfig() (*Config, error) {
	v := viper.New()
	if envMap, err := godotenv.Read(envFile); err == nil {
		for k, v := range envMap {
			if _, exists := os.LookupEnv(k); !exists {
				_ = os.Setenv(k, v)
			}
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindEnvs(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "debug")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)

	v.SetDefault("http.request_timeout", 30*time.Second)
	v.SetDefault("http.body_limit", 64<<20)
	v.SetDefault("http.sse_ping_interval", 15*time.Second)

	v.SetDefault("repository.backend", "postgres")

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.password", "postgres")
	v.SetDefault("postgres.db_name", "agent_runtime_db")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.migrations_dir", "db/migrations")
	v.SetDefault("postgres.migrate_timeout", 10*time.Second)
	v.SetDefault("postgres.query_timeout", 2*time.Second)
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "agentrt:")
	v.SetDefault("redis.buffer_ttl", 24*time.Hour)

	v.SetDefault("sessions.backend", "memory")
	v.SetDefault("sessions.max_per_team", 4)
	v.SetDefault("sessions.retention", time.Hour)
	v.SetDefault("sessions.run_timeout", 10*time.Minute)
	v.SetDefault("sessions.janitor_interval", time.Minute)

	v.SetDefault("upload.dir", "data/uploads")
	v.SetDefault("upload.max_files", 10)
	v.SetDefault("upload.max_file_size", 10<<20)
	v.SetDefault("upload.inline_text_limit", 32<<10)

	v.SetDefault("cors.allowed_origins", "*")

	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.rps", 5.0)
	v.SetDefault("ratelimit.burst", 20)

	v.SetDefault("runner.backend", "echo")
	v.SetDefault("runner.base_url", "https://api.openai.com/v1")
	v.SetDefault("runner.default_model", "gpt-4o-mini")

	v.SetDefault("chat.history_limit", 20)
}

func bindEnvs(v *viper.Viper) {
	keys := []string{
		"logging.level",
		"server.host",
		"server.port",
		"server.shutdown_timeout",
		"http.request_timeout",
		"http.body_limit",
		"http.sse_ping_interval",
		"repository.backend",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.db_name",
		"postgres.ssl_mode",
		"postgres.migrations_dir",
		"postgres.migrate_timeout",
		"postgres.query_timeout",
		"postgres.max_conns",
		"postgres.min_conns",
		"redis.addr",
		"redis.password",
		"redis.db",
		"redis.key_prefix",
		"redis.buffer_ttl",
		"sessions.backend",
		"sessions.max_per_team",
		"sessions.retention",
		"sessions.run_timeout",
		"sessions.janitor_interval",
		"upload.dir",
		"upload.max_files",
		"upload.max_file_size",
		"upload.inline_text_limit",
		"auth.admin_key",
		"cors.allowed_origins",
		"ratelimit.enabled",
		"ratelimit.rps",
		"ratelimit.burst",
		"runner.backend",
		"runner.base_url",
		"runner.api_key",
		"runner.default_model",
		"chat.history_limit",
		"seed.file",
	}

	for _, k := range keys {
		_ = v.BindEnv(k)
	}
}
