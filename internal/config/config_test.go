package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validYAML = `
server:
  host: 127.0.0.1
  port: 8080
  read_timeout_ms: 15000
  write_timeout_ms: 15000
database:
  host: localhost
  port: 5432
  user: autonoc
  password: filepw
  dbname: autonoc
  ssl_mode: disable
auth:
  admin_username: admin
  admin_password: strong-operator-password
  jwt_secret: 0123456789abcdef0123456789abcdef
  jwt_expiry_hours: 24
  encryption_key: 0123456789abcdef0123456789abcdef
logging:
  level: info
  format: json
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func clearEnvOverrides(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"AUTONOC_SERVER_HOST", "AUTONOC_SERVER_PORT",
		"AUTONOC_DATABASE_HOST", "AUTONOC_DATABASE_PORT", "AUTONOC_DATABASE_USER",
		"AUTONOC_DATABASE_PASSWORD", "AUTONOC_DATABASE_DBNAME",
		"AUTONOC_AUTH_ADMIN_PASSWORD", "AUTONOC_AUTH_JWT_SECRET", "AUTONOC_AUTH_ENCRYPTION_KEY",
		"AUTONOC_ANALYSIS_BASE_URL", "AUTONOC_ANALYSIS_MODEL", "AUTONOC_ANALYSIS_API_KEY",
		"AUTONOC_NOTIFY_URL", "GEMINI_API_KEY",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadValidFile(t *testing.T) {
	clearEnvOverrides(t)

	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != 8080 || cfg.Database.Password != "filepw" {
		t.Errorf("file values not loaded: %+v", cfg.Server)
	}
	if cfg.Server.GetReadTimeout() != 15*time.Second {
		t.Errorf("read timeout = %v", cfg.Server.GetReadTimeout())
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnvOverrides(t)
	t.Setenv("AUTONOC_DATABASE_PASSWORD", "envpw")
	t.Setenv("AUTONOC_DATABASE_PORT", "5433")
	t.Setenv("AUTONOC_ANALYSIS_API_KEY", "env-key")

	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Database.Password != "envpw" {
		t.Errorf("database password = %q, want env override", cfg.Database.Password)
	}
	if cfg.Database.Port != 5433 {
		t.Errorf("database port = %d, want 5433", cfg.Database.Port)
	}
	if cfg.Analysis.APIKey != "env-key" {
		t.Errorf("analysis api key = %q", cfg.Analysis.APIKey)
	}
}

func TestLoadGeminiKeyFallback(t *testing.T) {
	t.Run("fallback used", func(t *testing.T) {
		clearEnvOverrides(t)
		t.Setenv("GEMINI_API_KEY", "gemini-key")

		cfg, err := Load(writeConfig(t, validYAML))
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}
		if cfg.Analysis.APIKey != "gemini-key" {
			t.Errorf("api key = %q, want gemini fallback", cfg.Analysis.APIKey)
		}
	})

	t.Run("prefixed variable wins", func(t *testing.T) {
		clearEnvOverrides(t)
		t.Setenv("GEMINI_API_KEY", "gemini-key")
		t.Setenv("AUTONOC_ANALYSIS_API_KEY", "prefixed-key")

		cfg, err := Load(writeConfig(t, validYAML))
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}
		if cfg.Analysis.APIKey != "prefixed-key" {
			t.Errorf("api key = %q, want prefixed override", cfg.Analysis.APIKey)
		}
	})
}

func TestValidateFailures(t *testing.T) {
	base := func() *Config {
		return &Config{
			Database: DatabaseConfig{Host: "localhost", DBName: "autonoc"},
			Auth: AuthConfig{
				AdminPassword: "strong-operator-password",
				JWTSecret:     strings.Repeat("s", 32),
				EncryptionKey: strings.Repeat("k", 32),
			},
		}
	}

	testCases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"short jwt secret", func(c *Config) { c.Auth.JWTSecret = "short" }, "at least 32"},
		{"missing jwt secret", func(c *Config) { c.Auth.JWTSecret = "" }, "JWT_SECRET"},
		{"wrong key length", func(c *Config) { c.Auth.EncryptionKey = "16byteslong only" }, "exactly 32"},
		{"default admin password", func(c *Config) { c.Auth.AdminPassword = "changeme" }, "strong password"},
		{"missing database", func(c *Config) { c.Database.Host = "" }, "database"},
		{"notify without url", func(c *Config) { c.Notify.Enabled = true }, "notify.url"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}

	if err := base().Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)

	if cfg.Runner.QueueCapacity != 16 || cfg.Runner.HistoryLimit != 64 || cfg.Runner.EventBuffer != 128 {
		t.Errorf("runner defaults = %+v", cfg.Runner)
	}
	if cfg.Device.DelayFactor != 2 || cfg.Device.PacingMS != 500 {
		t.Errorf("device defaults = %+v", cfg.Device)
	}
	if cfg.Probe.TimeoutMS != 10000 {
		t.Errorf("probe default = %+v", cfg.Probe)
	}

	disabled := &Config{Device: DeviceConfig{PacingMS: -1}}
	applyDefaults(disabled)
	if disabled.Device.PacingMS != -1 {
		t.Error("negative pacing was overwritten")
	}
}

func TestGetDSN(t *testing.T) {
	db := DatabaseConfig{Host: "localhost", Port: 5432, User: "autonoc", Password: "pw", DBName: "autonoc", SSLMode: "disable"}
	want := "host=localhost port=5432 user=autonoc password=pw dbname=autonoc sslmode=disable"
	if got := db.GetDSN(); got != want {
		t.Errorf("GetDSN = %q, want %q", got, want)
	}
}

func TestIsLogLevelValid(t *testing.T) {
	for _, level := range []string{"debug", "info", "WARN", "Error"} {
		l := LoggingConfig{Level: level}
		if !l.IsLogLevelValid() {
			t.Errorf("level %q rejected", level)
		}
	}
	l := LoggingConfig{Level: "verbose"}
	if l.IsLogLevelValid() {
		t.Error("invalid level accepted")
	}
}
