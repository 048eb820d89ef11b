// Package config loads runtime settings from the environment.
//
// An optional .env file in the working directory is read first. Variables
// already set in the environment win over the file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all service configuration.
type Config struct {
	// App
	Port     int
	Env      string
	LogLevel slog.Level
	DBPath   string

	// Auth
	JWTSecret          string
	TokenTTL           time.Duration
	GitHubClientID     string
	GitHubClientSecret string
	GitHubCallbackURL  string
	AdminKeyHash       string

	// HTTP
	CORSOrigins      []string
	FollowRatePerSec float64
	FollowRateBurst  int

	// Graph engine
	SlugScanLimit   int
	SearchScanLimit int
	TxMaxAttempts   int
	TxRetryBackoff  time.Duration
}

// Load is Read followed by Validate.
func Load(files ...string) (*Config, error) {
	cfg, err := Read(files...)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Read loads .env files (".env" when none are named) into the environment
// and then calls FromEnv. A missing file is not an error; one that exists
// but does not parse is.
func Read(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: reading env file: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables and defaults. It
// reports malformed values but does not run Validate.
func FromEnv() (*Config, error) {
	var errs []error
	p := parser{errs: &errs}

	cfg := &Config{
		Port:               p.intVar("PORT", 8080),
		Env:                getEnv("ENV", "development"),
		LogLevel:           p.levelVar("LOG_LEVEL", slog.LevelInfo),
		DBPath:             getEnv("DB_PATH", "data/neuro.db"),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		TokenTTL:           p.durationVar("TOKEN_TTL", 24*time.Hour),
		GitHubClientID:     getEnv("GITHUB_CLIENT_ID", ""),
		GitHubClientSecret: getEnv("GITHUB_CLIENT_SECRET", ""),
		GitHubCallbackURL:  getEnv("GITHUB_CALLBACK_URL", ""),
		AdminKeyHash:       getEnv("ADMIN_KEY_HASH", ""),
		CORSOrigins:        splitList(getEnv("CORS_ORIGINS", "http://localhost:3000")),
		FollowRatePerSec:   p.floatVar("FOLLOW_RATE_PER_SEC", 2),
		FollowRateBurst:    p.intVar("FOLLOW_RATE_BURST", 10),
		SlugScanLimit:      p.intVar("SLUG_SCAN_LIMIT", 5000),
		SearchScanLimit:    p.intVar("SEARCH_SCAN_LIMIT", 400),
		TxMaxAttempts:      p.intVar("TX_MAX_ATTEMPTS", 5),
		TxRetryBackoff:     p.durationVar("TX_RETRY_BACKOFF", 15*time.Millisecond),
	}
	if cfg.GitHubCallbackURL == "" {
		cfg.GitHubCallbackURL = fmt.Sprintf("http://localhost:%d/auth/github/callback", cfg.Port)
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that required values are set and in range.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH is required")
	}
	if len(c.JWTSecret) < 16 {
		return fmt.Errorf("JWT_SECRET must be at least 16 characters")
	}
	if c.SlugScanLimit <= 0 {
		return fmt.Errorf("SLUG_SCAN_LIMIT must be positive")
	}
	if c.SearchScanLimit <= 0 {
		return fmt.Errorf("SEARCH_SCAN_LIMIT must be positive")
	}
	if c.TxMaxAttempts <= 0 {
		return fmt.Errorf("TX_MAX_ATTEMPTS must be positive")
	}
	if c.TxRetryBackoff < 0 {
		return fmt.Errorf("TX_RETRY_BACKOFF must not be negative")
	}
	if c.FollowRatePerSec <= 0 || c.FollowRateBurst <= 0 {
		return fmt.Errorf("FOLLOW_RATE_PER_SEC and FOLLOW_RATE_BURST must be positive")
	}
	if c.IsProduction() && c.AdminKeyHash == "" {
		return fmt.Errorf("ADMIN_KEY_HASH is required in production")
	}
	return nil
}

// GitHubEnabled reports whether GitHub sign-in is configured.
func (c *Config) GitHubEnabled() bool {
	return c.GitHubClientID != "" && c.GitHubClientSecret != ""
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// parser reads typed variables and collects every malformed one.
type parser struct {
	errs *[]error
}

func (p parser) fail(key, value string, err error) {
	*p.errs = append(*p.errs, fmt.Errorf("%s=%q: %w", key, value, err))
}

func (p parser) intVar(key string, defaultValue int) int {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		p.fail(key, value, err)
		return defaultValue
	}
	return n
}

func (p parser) floatVar(key string, defaultValue float64) float64 {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		p.fail(key, value, err)
		return defaultValue
	}
	return f
}

func (p parser) durationVar(key string, defaultValue time.Duration) time.Duration {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		p.fail(key, value, err)
		return defaultValue
	}
	return d
}

func (p parser) levelVar(key string, defaultValue slog.Level) slog.Level {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(value)); err != nil {
		p.fail(key, value, err)
		return defaultValue
	}
	return l
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
