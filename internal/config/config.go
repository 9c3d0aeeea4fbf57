// Package config
package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	CORS     CORSConfig     `yaml:"cors"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Device   DeviceConfig   `yaml:"device"`
	Probe    ProbeConfig    `yaml:"probe"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Runner   RunnerConfig   `yaml:"runner"`
	Notify   NotifyConfig   `yaml:"notify"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	ReadTimeoutMS  int    `yaml:"read_timeout_ms"`
	WriteTimeoutMS int    `yaml:"write_timeout_ms"`
}

type CORSConfig struct {
	Enabled        bool     `yaml:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
	MaxAgeSeconds  int      `yaml:"max_age_seconds"`
}

type DatabaseConfig struct {
	Host                   string `yaml:"host"`
	Port                   int    `yaml:"port"`
	User                   string `yaml:"user"`
	Password               string `yaml:"password"`
	DBName                 string `yaml:"dbname"`
	SSLMode                string `yaml:"ssl_mode"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

type AuthConfig struct {
	AdminUsername  string `yaml:"admin_username"`
	AdminPassword  string `yaml:"admin_password"`
	JWTSecret      string `yaml:"jwt_secret"`
	JWTExpiryHours int    `yaml:"jwt_expiry_hours"`
	EncryptionKey  string `yaml:"encryption_key"`
}

// DeviceConfig tunes the session transports used for the command
// cycle.
type DeviceConfig struct {
	ConnectTimeoutMS int  `yaml:"connect_timeout_ms"`
	BannerTimeoutMS  int  `yaml:"banner_timeout_ms"`
	CommandTimeoutMS int  `yaml:"command_timeout_ms"`
	DelayFactor      int  `yaml:"delay_factor"`
	PacingMS         int  `yaml:"pacing_ms"`
	WinRMHTTPS       bool `yaml:"winrm_https"`
	WinRMInsecure    bool `yaml:"winrm_insecure"`
}

type ProbeConfig struct {
	TimeoutMS int `yaml:"timeout_ms"`
}

type AnalysisConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

type RunnerConfig struct {
	QueueCapacity int `yaml:"queue_capacity"`
	HistoryLimit  int `yaml:"history_limit"`
	EventBuffer   int `yaml:"event_buffer"`
}

type NotifyConfig struct {
	Enabled    bool   `yaml:"enabled"`
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

// Load reads configuration from file and applies environment variable overrides
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate ensures all required configuration values are set
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("AUTONOC_AUTH_JWT_SECRET is required (minimum 32 characters)")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("jwt_secret must be at least 32 characters")
	}

	if c.Auth.EncryptionKey == "" {
		return fmt.Errorf("AUTONOC_AUTH_ENCRYPTION_KEY is required (32 bytes for AES-256)")
	}
	if len(c.Auth.EncryptionKey) != 32 {
		return fmt.Errorf("encryption_key must be exactly 32 bytes")
	}

	if c.Auth.AdminPassword == "" || c.Auth.AdminPassword == "changeme" {
		return fmt.Errorf("AUTONOC_AUTH_ADMIN_PASSWORD must be set to a strong password")
	}

	if c.Database.Host == "" || c.Database.DBName == "" {
		return fmt.Errorf("database host and dbname are required")
	}

	if c.Notify.Enabled && c.Notify.URL == "" {
		return fmt.Errorf("notify.url is required when notify is enabled")
	}

	return nil
}

// applyEnvOverrides checks for environment variables with AUTONOC_ prefix
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AUTONOC_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("AUTONOC_SERVER_PORT"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Server.Port)
	}

	// Database overrides
	if v := os.Getenv("AUTONOC_DATABASE_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("AUTONOC_DATABASE_PORT"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Database.Port)
	}
	if v := os.Getenv("AUTONOC_DATABASE_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("AUTONOC_DATABASE_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("AUTONOC_DATABASE_DBNAME"); v != "" {
		cfg.Database.DBName = v
	}

	// Auth overrides
	if v := os.Getenv("AUTONOC_AUTH_ADMIN_PASSWORD"); v != "" {
		cfg.Auth.AdminPassword = v
	}
	if v := os.Getenv("AUTONOC_AUTH_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("AUTONOC_AUTH_ENCRYPTION_KEY"); v != "" {
		cfg.Auth.EncryptionKey = v
	}

	// Analysis overrides. GEMINI_API_KEY is honored as the unprefixed
	// fallback operators already export for other tooling.
	if v := os.Getenv("AUTONOC_ANALYSIS_BASE_URL"); v != "" {
		cfg.Analysis.BaseURL = v
	}
	if v := os.Getenv("AUTONOC_ANALYSIS_MODEL"); v != "" {
		cfg.Analysis.Model = v
	}
	if v := os.Getenv("AUTONOC_ANALYSIS_API_KEY"); v != "" {
		cfg.Analysis.APIKey = v
	} else if v := os.Getenv("GEMINI_API_KEY"); v != "" && cfg.Analysis.APIKey == "" {
		cfg.Analysis.APIKey = v
	}

	if v := os.Getenv("AUTONOC_NOTIFY_URL"); v != "" {
		cfg.Notify.URL = v
	}
}

// applyDefaults fills capacities and timeouts a missing YAML key would
// leave at zero, which the runner and transports cannot work with.
func applyDefaults(cfg *Config) {
	if cfg.Device.ConnectTimeoutMS <= 0 {
		cfg.Device.ConnectTimeoutMS = 30000
	}
	if cfg.Device.BannerTimeoutMS <= 0 {
		cfg.Device.BannerTimeoutMS = 30000
	}
	if cfg.Device.CommandTimeoutMS <= 0 {
		cfg.Device.CommandTimeoutMS = 10000
	}
	if cfg.Device.DelayFactor <= 0 {
		cfg.Device.DelayFactor = 2
	}
	if cfg.Device.PacingMS == 0 {
		cfg.Device.PacingMS = 500
	}
	if cfg.Probe.TimeoutMS <= 0 {
		cfg.Probe.TimeoutMS = 10000
	}
	if cfg.Runner.QueueCapacity <= 0 {
		cfg.Runner.QueueCapacity = 16
	}
	if cfg.Runner.HistoryLimit <= 0 {
		cfg.Runner.HistoryLimit = 64
	}
	if cfg.Runner.EventBuffer <= 0 {
		cfg.Runner.EventBuffer = 128
	}
}

// GetReadTimeout returns the read timeout as a duration
func (s *ServerConfig) GetReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutMS) * time.Millisecond
}

// GetWriteTimeout returns the write timeout as a duration
func (s *ServerConfig) GetWriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutMS) * time.Millisecond
}

// GetDSN returns the PostgreSQL connection string
func (d *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// GetJWTExpiry returns JWT expiry as duration
func (a *AuthConfig) GetJWTExpiry() time.Duration {
	return time.Duration(a.JWTExpiryHours) * time.Hour
}

func (d *DeviceConfig) GetConnectTimeout() time.Duration {
	return time.Duration(d.ConnectTimeoutMS) * time.Millisecond
}

func (d *DeviceConfig) GetBannerTimeout() time.Duration {
	return time.Duration(d.BannerTimeoutMS) * time.Millisecond
}

func (d *DeviceConfig) GetCommandTimeout() time.Duration {
	return time.Duration(d.CommandTimeoutMS) * time.Millisecond
}

// GetPacing maps the configured delay onto session semantics: a
// negative value disables pacing.
func (d *DeviceConfig) GetPacing() time.Duration {
	return time.Duration(d.PacingMS) * time.Millisecond
}

func (p *ProbeConfig) GetTimeout() time.Duration {
	return time.Duration(p.TimeoutMS) * time.Millisecond
}

func (a *AnalysisConfig) GetTimeout() time.Duration {
	return time.Duration(a.TimeoutMS) * time.Millisecond
}

// IsLogLevelValid checks if the log level is valid
func (l *LoggingConfig) IsLogLevelValid() bool {
	validLevels := []string{"debug", "info", "warn", "error"}
	return slices.Contains(validLevels, strings.ToLower(l.Level))
}
