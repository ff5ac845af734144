package config

import (
	"testing"
	"time"
)

func TestLoadReadsCriticalEnvKeys(t *testing.T) {
	t.Setenv("OPENHOME_DB_DSN", "file::memory:")
	t.Setenv("OPENHOME_JWT_SIGNING_KEY", "supersecret")
	t.Setenv("OPENHOME_ENV", "development")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DBBackend != DatabaseSQLite {
		t.Fatalf("expected sqlite default backend, got %q", cfg.DBBackend)
	}
	if cfg.JWTSigningKey != "supersecret" {
		t.Fatalf("unexpected jwt signing key: %q", cfg.JWTSigningKey)
	}
	if cfg.QueueCapacity != 84 {
		t.Fatalf("unexpected default queue capacity: %d", cfg.QueueCapacity)
	}
	if cfg.PollInterval != 200*time.Millisecond {
		t.Fatalf("unexpected poll interval: %v", cfg.PollInterval)
	}
	if cfg.RunLogRetention != 365*24*time.Hour {
		t.Fatalf("unexpected run log retention: %v", cfg.RunLogRetention)
	}
	if cfg.NetworkProbeAddr != "" {
		t.Fatalf("network probe should be off by default, got %q", cfg.NetworkProbeAddr)
	}
}

func TestLoadRejectsProbeWithoutInterval(t *testing.T) {
	t.Setenv("OPENHOME_JWT_SIGNING_KEY", "supersecret")
	t.Setenv("OPENHOME_NETWORK_PROBE_ADDR", "8.8.8.8:53")
	t.Setenv("OPENHOME_NETWORK_PROBE_SECONDS", "0")
	if _, err := Load(); err == nil {
		t.Fatal("expected zero probe interval to fail")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name string
		key  string
		val  string
	}{
		{"backend", "OPENHOME_DB_BACKEND", "oracle"},
		{"capacity zero", "OPENHOME_QUEUE_CAPACITY", "0"},
		{"capacity too large", "OPENHOME_QUEUE_CAPACITY", "300"},
		{"timezone", "OPENHOME_TIMEZONE", "Mars/Olympus"},
		{"partial shift register", "OPENHOME_SR_DATA_PIN", "GPIO17"},
		{"poll interval", "OPENHOME_POLL_MS", "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("OPENHOME_JWT_SIGNING_KEY", "supersecret")
			t.Setenv(tc.key, tc.val)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%s", tc.key, tc.val)
			}
		})
	}
}

func TestLoadRequiresSigningKey(t *testing.T) {
	t.Setenv("OPENHOME_JWT_SIGNING_KEY", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected missing signing key to fail")
	}
}

func TestLoadProductionRequiresAdminPassword(t *testing.T) {
	t.Setenv("OPENHOME_JWT_SIGNING_KEY", "supersecret")
	t.Setenv("OPENHOME_ENV", "production")
	t.Setenv("OPENHOME_ADMIN_PASSWORD_HASH", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected production config load to fail without admin password")
	}

	t.Setenv("OPENHOME_ADMIN_PASSWORD_HASH", "$2a$10$abcdefghijklmnopqrstuv")
	if _, err := Load(); err != nil {
		t.Fatalf("expected production config load to succeed: %v", err)
	}
}

func TestLoadReportsLegacyEnvWarnings(t *testing.T) {
	t.Setenv("OPENHOME_JWT_SIGNING_KEY", "supersecret")
	t.Setenv("TRACING_ENABLED", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if len(cfg.LegacyEnvWarnings) == 0 {
		t.Fatal("expected legacy env warnings")
	}
}
