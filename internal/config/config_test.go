package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 20, cfg.MaxTurns)
	assert.Equal(t, 2, cfg.ChunkSize)
	assert.Equal(t, 16*time.Millisecond, cfg.ChunkDelay())
	assert.NotEmpty(t, cfg.Security.Deny)
	assert.NotEmpty(t, cfg.Security.SecretPatterns)
	assert.Contains(t, cfg.AllowedDomains, "cdn.jsdelivr.net")

	rl := cfg.RateLimiterConfig()
	assert.Equal(t, 10, rl.Limits["search_files"].MaxRequests)
	assert.Equal(t, time.Minute, rl.Limits["search_files"].Window)
	assert.True(t, rl.AllowUnlisted)
}

func TestLoad_JSONCFile(t *testing.T) {
	dir := t.TempDir()
	content := `{
		// tuned down for this project
		"maxTurns": 8,
		"security": {
			"allow": ["app/**"],
			"deny": ["app/.env"]
		},
		"rateLimits": {
			"fetch_url": {"maxRequests": 3, "windowMs": 30000}
		},
		"allowUnlistedTools": false
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "appforge.jsonc"), []byte(content), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.MaxTurns)
	assert.Equal(t, []string{"app/**"}, cfg.Security.Allow)

	rl := cfg.RateLimiterConfig()
	assert.Equal(t, 3, rl.Limits["fetch_url"].MaxRequests)
	assert.Equal(t, 30*time.Second, rl.Limits["fetch_url"].Window)
	assert.False(t, rl.AllowUnlisted)
}

func TestLoad_MissingFilesUseDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.MaxTurns)
}

func TestLoad_InvalidFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "appforge.json"), []byte("{not json"), 0644))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("APPFORGE_MAX_TURNS", "5")
	t.Setenv("APPFORGE_LOG_LEVEL", "DEBUG")
	t.Setenv("APPFORGE_ALLOWED_DOMAINS", "example.org, cdn.example.com")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.MaxTurns)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	// The env list extends the static allow-list, it does not replace it.
	assert.Contains(t, cfg.AllowedDomains, "cdn.jsdelivr.net")
	assert.Contains(t, cfg.AllowedDomains, "example.org")
	assert.Contains(t, cfg.AllowedDomains, "cdn.example.com")
}

func TestLoad_EnvInvalidNumbersIgnored(t *testing.T) {
	t.Setenv("APPFORGE_MAX_TURNS", "not-a-number")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.MaxTurns)
}
