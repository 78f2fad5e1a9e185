// Package config loads runtime configuration from JSONC files, .env files,
// and environment variables. Environment variables win.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"

	"github.com/appforge-ai/appforge/internal/guard"
	"github.com/appforge-ai/appforge/internal/ratelimit"
)

// RateLimitConfig is the file representation of one tool quota.
type RateLimitConfig struct {
	MaxRequests int `json:"maxRequests"`
	WindowMs    int `json:"windowMs"`
}

// Config is the full runtime configuration surface.
type Config struct {
	// MaxTurns bounds the agent loop per session.
	MaxTurns int `json:"maxTurns"`

	// ChunkSize and ChunkDelayMs shape the reasoning delta stream for
	// smooth client rendering.
	ChunkSize    int `json:"chunkSize"`
	ChunkDelayMs int `json:"chunkDelayMs"`

	Security guard.SecurityPolicy `json:"security"`

	// AllowedDomains is the outbound fetch allow-list. The
	// APPFORGE_ALLOWED_DOMAINS environment variable appends to it.
	AllowedDomains []string `json:"allowedDomains"`

	RateLimits         map[string]RateLimitConfig `json:"rateLimits"`
	AllowUnlistedTools *bool                      `json:"allowUnlistedTools,omitempty"`

	Workspace string `json:"workspace"`
	Port      int    `json:"port"`
	LogLevel  string `json:"logLevel"`
}

// Default returns the stock configuration.
func Default() *Config {
	rl := ratelimit.DefaultConfig()
	limits := make(map[string]RateLimitConfig, len(rl.Limits))
	for tool, l := range rl.Limits {
		limits[tool] = RateLimitConfig{MaxRequests: l.MaxRequests, WindowMs: int(l.Window / time.Millisecond)}
	}

	allowUnlisted := true
	return &Config{
		MaxTurns:     20,
		ChunkSize:    2,
		ChunkDelayMs: 16,
		Security: guard.SecurityPolicy{
			Allow: []string{
				"workspace/**",
				"src/**",
				"public/**",
				"package.json",
				"tsconfig.json",
			},
			Deny: []string{
				"**/.env*",
				"**/node_modules/**",
				"**/.git/**",
				"**/secrets/**",
				"**/*.pem",
				"**/id_rsa*",
			},
			SecretPatterns: guard.DefaultSecretPatterns(),
		},
		AllowedDomains:     guard.DefaultAllowedDomains(),
		RateLimits:         limits,
		AllowUnlistedTools: &allowUnlisted,
		Workspace:          ".",
		Port:               8080,
		LogLevel:           "INFO",
	}
}

// Load builds the configuration: defaults, then config files found under
// directory, then environment variables.
func Load(directory string) (*Config, error) {
	// Best effort; a missing .env is not an error.
	_ = godotenv.Load(filepath.Join(directory, ".env"))

	cfg := Default()

	for _, name := range []string{"appforge.json", "appforge.jsonc"} {
		path := filepath.Join(directory, name)
		if err := loadFile(path, cfg); err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// loadFile merges one JSONC config file into cfg.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(jsonc.ToJSON(data), cfg)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("APPFORGE_MAX_TURNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxTurns = n
		}
	}
	if v := os.Getenv("APPFORGE_WORKSPACE"); v != "" {
		cfg.Workspace = v
	}
	if v := os.Getenv("APPFORGE_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Port = n
		}
	}
	if v := os.Getenv("APPFORGE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	// Operator extension of the outbound allow-list, never replacement.
	if v := os.Getenv("APPFORGE_ALLOWED_DOMAINS"); v != "" {
		for _, d := range strings.Split(v, ",") {
			if d = strings.TrimSpace(d); d != "" {
				cfg.AllowedDomains = append(cfg.AllowedDomains, d)
			}
		}
	}
}

// ChunkDelay returns the inter-chunk delay as a duration.
func (c *Config) ChunkDelay() time.Duration {
	return time.Duration(c.ChunkDelayMs) * time.Millisecond
}

// RateLimiterConfig converts the file representation into the limiter's
// runtime config.
func (c *Config) RateLimiterConfig() ratelimit.Config {
	limits := make(map[string]ratelimit.Limit, len(c.RateLimits))
	for tool, l := range c.RateLimits {
		limits[tool] = ratelimit.Limit{
			MaxRequests: l.MaxRequests,
			Window:      time.Duration(l.WindowMs) * time.Millisecond,
		}
	}
	allowUnlisted := true
	if c.AllowUnlistedTools != nil {
		allowUnlisted = *c.AllowUnlistedTools
	}
	return ratelimit.Config{Limits: limits, AllowUnlisted: allowUnlisted}
}
