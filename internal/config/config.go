// Package config loads the server configuration from a YAML file with
// environment variable overrides for the deployment-specific values.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/technosupport/ts-lms/internal/ratelimit"
)

type Database struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

type Config struct {
	Listen   string   `yaml:"listen"`
	Database Database `yaml:"database"`

	Redis struct {
		Addr string `yaml:"addr"`
		Salt string `yaml:"salt"`
	} `yaml:"redis"`

	NATS struct {
		URL        string `yaml:"url"`
		Subject    string `yaml:"subject"`
		MaxRetries int    `yaml:"max_retries"`
	} `yaml:"nats"`

	Auth struct {
		JWTSigningKey string `yaml:"jwt_signing_key"`
	} `yaml:"auth"`

	Keys struct {
		SecretFile string `yaml:"secret_file"`
	} `yaml:"keys"`

	Audit struct {
		SpoolDir   string `yaml:"spool_dir"`
		SpoolMaxMB int64  `yaml:"spool_max_mb"`
	} `yaml:"audit"`

	RateLimit struct {
		GlobalIP ratelimit.LimitConfig `yaml:"global_ip"`
		Login    ratelimit.LimitConfig `yaml:"login"`
	} `yaml:"rate_limit"`
}

// Load reads the YAML file at path (optional) and applies env overrides.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func defaults() *Config {
	cfg := &Config{}
	cfg.Listen = ":8080"
	cfg.Database = Database{Host: "localhost", Port: "5432", SSLMode: "disable"}
	cfg.Redis.Addr = "localhost:6379"
	cfg.NATS.Subject = "lms.events"
	cfg.NATS.MaxRetries = 3
	cfg.RateLimit.GlobalIP = ratelimit.LimitConfig{Rate: 60, Window: time.Minute}
	cfg.RateLimit.Login = ratelimit.LimitConfig{Rate: 5, Window: 15 * time.Minute}
	return cfg
}

func applyEnv(cfg *Config) {
	setIf := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setIf(&cfg.Listen, "LISTEN_ADDR")
	setIf(&cfg.Database.Host, "DB_HOST")
	setIf(&cfg.Database.Port, "DB_PORT")
	setIf(&cfg.Database.User, "DB_USER")
	setIf(&cfg.Database.Password, "DB_PASSWORD")
	setIf(&cfg.Database.Name, "DB_NAME")
	setIf(&cfg.Database.SSLMode, "DB_SSLMODE")
	setIf(&cfg.Redis.Addr, "REDIS_ADDR")
	setIf(&cfg.Redis.Salt, "REDIS_HASH_SALT")
	setIf(&cfg.NATS.URL, "NATS_URL")
	setIf(&cfg.Auth.JWTSigningKey, "JWT_SIGNING_KEY")
	setIf(&cfg.Keys.SecretFile, "KEY_SECRET_FILE")
	setIf(&cfg.Audit.SpoolDir, "AUDIT_SPOOL_DIR")
}

// DSN renders the Postgres connection string.
func (d Database) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}
