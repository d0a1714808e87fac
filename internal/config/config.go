// Package config loads the service configuration from a YAML file with
// environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment overrides. Each one beats the corresponding file value.
const (
	EnvConfigPath   = "CONFIG_PATH"
	EnvDBConnection = "DB_CONNECTION"
	EnvPort         = "PORT"
	EnvJWTSecret    = "JWT_SECRET"
	EnvJWTExpiry    = "JWT_EXPIRY"
	EnvAPIKey       = "GEMINI_API_KEY"
)

// Defaults applied when the file and environment are silent.
const (
	defaultDSN          = "redterm.db"
	defaultPort         = 8080
	defaultSuperAdmin   = "OBEIDA172004"
	defaultVIP          = "ABOOD172004"
	defaultTrialDays    = 7
	defaultMessageLimit = 10
	defaultJWTExpiry    = 7 * 24 * time.Hour
	defaultLoginPerMin  = 10
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// DatabaseConfig holds the storage connection settings.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// AuthConfig holds the reserved identities and the free-trial duration.
type AuthConfig struct {
	SuperAdmin string `yaml:"super-admin"`
	VIP        string `yaml:"vip"`
	TrialDays  int    `yaml:"trial-days"`
}

// QuotaConfig holds the shared message allowance.
type QuotaConfig struct {
	MessageLimit int `yaml:"message-limit"`
}

// JWTConfig holds session token secret and expiry settings.
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	Expiry time.Duration `yaml:"expiry"`
}

// RateLimitConfig holds login throttling settings. An empty redis address
// selects the in-memory limiter.
type RateLimitConfig struct {
	LoginPerMinute int    `yaml:"login-per-minute"`
	RedisAddr      string `yaml:"redis-addr"`
}

// UpstreamConfig holds the generative-AI backend settings. Unset fields fall
// back to the chat client's built-in defaults.
type UpstreamConfig struct {
	BaseURL           string  `yaml:"base-url"`
	APIKey            string  `yaml:"api-key"`
	Model             string  `yaml:"model"`
	Temperature       float64 `yaml:"temperature"`
	SystemInstruction string  `yaml:"system-instruction"`
}

// Config is the resolved service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Quota     QuotaConfig     `yaml:"quota"`
	JWT       JWTConfig       `yaml:"jwt"`
	RateLimit RateLimitConfig `yaml:"rate-limit"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = strings.TrimSpace(os.Getenv(EnvConfigPath))
	}
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// Load reads the YAML file at configPath, applies environment overrides, and
// fills defaults. A missing file is not an error; the defaults plus
// environment are a complete configuration.
func Load(configPath string) (Config, error) {
	var cfg Config

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
			return Config{}, fmt.Errorf("parse config file: %w", errUnmarshal)
		}
	} else if !os.IsNotExist(errRead) {
		return Config{}, fmt.Errorf("read config file: %w", errRead)
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if dsn := strings.TrimSpace(os.Getenv(EnvDBConnection)); dsn != "" {
		cfg.Database.DSN = dsn
	}
	if portRaw := strings.TrimSpace(os.Getenv(EnvPort)); portRaw != "" {
		if port, errParse := strconv.Atoi(portRaw); errParse == nil && port > 0 {
			cfg.Server.Port = port
		}
	}
	if secret := strings.TrimSpace(os.Getenv(EnvJWTSecret)); secret != "" {
		cfg.JWT.Secret = secret
	}
	if expiryRaw := strings.TrimSpace(os.Getenv(EnvJWTExpiry)); expiryRaw != "" {
		if expiry, errParse := time.ParseDuration(expiryRaw); errParse == nil && expiry > 0 {
			cfg.JWT.Expiry = expiry
		}
	}
	if key := strings.TrimSpace(os.Getenv(EnvAPIKey)); key != "" {
		cfg.Upstream.APIKey = key
	}
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Database.DSN) == "" {
		cfg.Database.DSN = defaultDSN
	}
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = defaultPort
	}
	if strings.TrimSpace(cfg.Auth.SuperAdmin) == "" {
		cfg.Auth.SuperAdmin = defaultSuperAdmin
	}
	if strings.TrimSpace(cfg.Auth.VIP) == "" {
		cfg.Auth.VIP = defaultVIP
	}
	if cfg.Auth.TrialDays <= 0 {
		cfg.Auth.TrialDays = defaultTrialDays
	}
	if cfg.Quota.MessageLimit <= 0 {
		cfg.Quota.MessageLimit = defaultMessageLimit
	}
	if cfg.JWT.Expiry <= 0 {
		cfg.JWT.Expiry = defaultJWTExpiry
	}
	if cfg.RateLimit.LoginPerMinute <= 0 {
		cfg.RateLimit.LoginPerMinute = defaultLoginPerMin
	}
}
