package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// 1. Defaults apply without a file
func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Listen != ":8080" {
		t.Errorf("Listen = %q", cfg.Listen)
	}
	if cfg.RateLimit.GlobalIP.Rate != 60 || cfg.RateLimit.GlobalIP.Window != time.Minute {
		t.Errorf("GlobalIP default wrong: %+v", cfg.RateLimit.GlobalIP)
	}
	if cfg.NATS.Subject != "lms.events" {
		t.Errorf("NATS subject = %q", cfg.NATS.Subject)
	}
}

// 2. YAML values override defaults
func TestLoad_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
listen: ":9090"
database:
  host: db.internal
  user: lms
  name: licenses
rate_limit:
  login:
    rate: 10
    window: 5m
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Listen != ":9090" || cfg.Database.Host != "db.internal" {
		t.Errorf("YAML not applied: %+v", cfg)
	}
	if cfg.RateLimit.Login.Rate != 10 || cfg.RateLimit.Login.Window != 5*time.Minute {
		t.Errorf("Login limit not parsed: %+v", cfg.RateLimit.Login)
	}
	// Untouched sections keep their defaults.
	if cfg.Database.Port != "5432" {
		t.Errorf("Default port lost: %q", cfg.Database.Port)
	}
}

// 3. Environment overrides win over the file
func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("DB_HOST", "env-db")
	t.Setenv("JWT_SIGNING_KEY", "env-secret")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Database.Host != "env-db" || cfg.Auth.JWTSigningKey != "env-secret" {
		t.Errorf("Env overrides not applied: %+v", cfg)
	}
}

// 4. DSN rendering
func TestDSN(t *testing.T) {
	d := Database{Host: "h", Port: "5433", User: "u", Password: "p", Name: "n", SSLMode: "require"}
	want := "postgres://u:p@h:5433/n?sslmode=require"
	if got := d.DSN(); got != want {
		t.Errorf("DSN = %q, want %q", got, want)
	}
}

// 5. Missing config file errors
func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
}
