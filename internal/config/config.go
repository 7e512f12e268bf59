// Package config loads service settings from a YAML file, an optional .env
// file and environment variables, in that order of precedence (env wins).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"
	_ "time/tzdata" // ritual.timezone must resolve on hosts without zoneinfo

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Log      LogConfig      `yaml:"log"`
	Ritual   RitualConfig   `yaml:"ritual"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type AuthConfig struct {
	JWTSecret    string          `yaml:"jwt_secret"`
	TokenTTL     time.Duration   `yaml:"token_ttl"`
	CookieSecure bool            `yaml:"cookie_secure"`
	GitHub       GitHubConfig    `yaml:"github"`
	RateLimit    RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig throttles /auth requests per client IP.
type RateLimitConfig struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

type GitHubConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	CallbackURL  string `yaml:"callback_url"`
}

// Enabled reports whether GitHub login is configured.
func (g GitHubConfig) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != ""
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // "json" or "text"
	File       string `yaml:"file"`
	Console    bool   `yaml:"console"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type RitualConfig struct {
	// Timezone is the IANA location used to decide which calendar day an
	// archive belongs to. Streaks and year/month filters follow it.
	Timezone string `yaml:"timezone"`
}

// Location resolves Timezone. Call Validate first.
func (r RitualConfig) Location() (*time.Location, error) {
	return time.LoadLocation(r.Timezone)
}

// Default returns the settings used when nothing overrides them.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Port: 8080, ShutdownTimeout: 30 * time.Second},
		Database: DatabaseConfig{Path: "data/archive.db"},
		Auth: AuthConfig{
			TokenTTL:  24 * time.Hour,
			RateLimit: RateLimitConfig{PerSecond: 1, Burst: 10},
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			Console:    true,
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 30,
		},
		Ritual: RitualConfig{Timezone: "Asia/Seoul"},
	}
}

// Load builds a Config. An empty path means "no config file"; a path that
// does not exist is an error. A missing .env file is fine.
func Load(path string) (*Config, error) {
	c := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	// godotenv.Load never overwrites variables that are already set, so the
	// real environment still beats .env.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: loading .env: %w", err)
	}

	if err := c.applyEnv(); err != nil {
		return nil, err
	}

	if c.Auth.GitHub.CallbackURL == "" {
		c.Auth.GitHub.CallbackURL = fmt.Sprintf("http://localhost:%d/auth/github/callback", c.Server.Port)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyEnv() error {
	envOverride(&c.Database.Path, "DB_PATH")
	envOverride(&c.Auth.JWTSecret, "JWT_SECRET")
	envOverride(&c.Auth.GitHub.ClientID, "GITHUB_CLIENT_ID")
	envOverride(&c.Auth.GitHub.ClientSecret, "GITHUB_CLIENT_SECRET")
	envOverride(&c.Auth.GitHub.CallbackURL, "GITHUB_CALLBACK_URL")
	envOverride(&c.Log.Level, "LOG_LEVEL")
	envOverride(&c.Log.File, "LOG_FILE")
	envOverride(&c.Ritual.Timezone, "RITUAL_TIMEZONE")

	if err := envOverrideInt(&c.Server.Port, "PORT"); err != nil {
		return err
	}
	return nil
}

// Validate checks values that would otherwise fail late, at first use.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	if c.Database.Path == "" {
		return errors.New("config: database.path is required")
	}
	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 16 {
		return errors.New("config: auth.jwt_secret must be at least 16 characters")
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("config: auth.token_ttl must be positive")
	}
	if c.Auth.RateLimit.PerSecond <= 0 || c.Auth.RateLimit.Burst < 1 {
		return errors.New("config: auth.rate_limit needs a positive per_second and a burst of at least 1")
	}
	if _, err := c.Ritual.Location(); err != nil {
		return fmt.Errorf("config: ritual.timezone %q: %w", c.Ritual.Timezone, err)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("config: log.format must be json or text, got %q", c.Log.Format)
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

func envOverride(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envOverrideInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("config: %s=%q is not an integer", key, v)
	}
	*dst = n
	return nil
}
