package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_DefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != defaultPort || cfg.Database.DSN != defaultDSN {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Auth.SuperAdmin != defaultSuperAdmin || cfg.Auth.VIP != defaultVIP || cfg.Auth.TrialDays != defaultTrialDays {
		t.Fatalf("unexpected auth defaults: %+v", cfg.Auth)
	}
	if cfg.Quota.MessageLimit != defaultMessageLimit || cfg.JWT.Expiry != defaultJWTExpiry {
		t.Fatalf("unexpected quota/jwt defaults: %+v", cfg)
	}
}

func TestLoad_FileValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9090
database:
  dsn: "host=localhost user=redterm dbname=redterm"
auth:
  super-admin: chief
  vip: guest-of-honor
  trial-days: 14
quota:
  message-limit: 25
jwt:
  secret: file-secret
  expiry: 48h
upstream:
  api-key: file-key
  model: test-model
`
	if errWrite := os.WriteFile(path, []byte(content), 0o600); errWrite != nil {
		t.Fatalf("write config: %v", errWrite)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Fatalf("unexpected port %d", cfg.Server.Port)
	}
	if cfg.Auth.SuperAdmin != "chief" || cfg.Auth.VIP != "guest-of-honor" || cfg.Auth.TrialDays != 14 {
		t.Fatalf("unexpected auth config: %+v", cfg.Auth)
	}
	if cfg.Quota.MessageLimit != 25 {
		t.Fatalf("unexpected message limit %d", cfg.Quota.MessageLimit)
	}
	if cfg.JWT.Secret != "file-secret" || cfg.JWT.Expiry != 48*time.Hour {
		t.Fatalf("unexpected jwt config: %+v", cfg.JWT)
	}
	if cfg.Upstream.APIKey != "file-key" || cfg.Upstream.Model != "test-model" {
		t.Fatalf("unexpected upstream config: %+v", cfg.Upstream)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if errWrite := os.WriteFile(path, []byte("database:\n  dsn: file-dsn\njwt:\n  secret: file-secret\n"), 0o600); errWrite != nil {
		t.Fatalf("write config: %v", errWrite)
	}

	t.Setenv(EnvDBConnection, "env-dsn")
	t.Setenv(EnvJWTSecret, "env-secret")
	t.Setenv(EnvJWTExpiry, "1h")
	t.Setenv(EnvPort, "7070")
	t.Setenv(EnvAPIKey, "env-key")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.DSN != "env-dsn" || cfg.JWT.Secret != "env-secret" {
		t.Fatalf("expected env overrides, got %+v", cfg)
	}
	if cfg.JWT.Expiry != time.Hour || cfg.Server.Port != 7070 {
		t.Fatalf("expected env expiry and port, got %+v", cfg)
	}
	if cfg.Upstream.APIKey != "env-key" {
		t.Fatalf("expected env api key, got %q", cfg.Upstream.APIKey)
	}
}

func TestResolveConfigPath(t *testing.T) {
	got := ResolveConfigPath("")
	if !filepath.IsAbs(got) {
		t.Fatalf("expected an absolute default path, got %q", got)
	}
	if filepath.Base(got) != "config.yaml" {
		t.Fatalf("unexpected default file %q", got)
	}
}
