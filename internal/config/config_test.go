package config

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-at-least-16-chars!!"

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(context.Background(), envconfig.MapLookuper(map[string]string{
		"SESSION_SECRET": testSecret,
	}))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "data/admin.db", cfg.DBPath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 720*time.Hour, cfg.Session.TTL)
	assert.False(t, cfg.Session.CookieSecure)
	assert.Equal(t, 10, cfg.Login.RatePerMinute)
	assert.Equal(t, 5, cfg.Login.Burst)
	assert.False(t, cfg.GitHub.Enabled())
	assert.Equal(t, "http://localhost:8080/auth/github/callback", cfg.GitHub.CallbackURL)
}

func TestLoadFrom_Overrides(t *testing.T) {
	cfg, err := LoadFrom(context.Background(), envconfig.MapLookuper(map[string]string{
		"PORT":                 "9090",
		"DB_PATH":              "/tmp/admin.db",
		"LOG_LEVEL":            "debug",
		"SESSION_SECRET":       testSecret,
		"SESSION_TTL":          "2h",
		"COOKIE_SECURE":        "true",
		"LOGIN_RATE_PER_MIN":   "30",
		"LOGIN_BURST":          "3",
		"GITHUB_CLIENT_ID":     "id",
		"GITHUB_CLIENT_SECRET": "secret",
		"GITHUB_CALLBACK_URL":  "https://admin.example.com/auth/github/callback",
	}))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "/tmp/admin.db", cfg.DBPath)
	assert.Equal(t, 2*time.Hour, cfg.Session.TTL)
	assert.True(t, cfg.Session.CookieSecure)
	assert.Equal(t, 30, cfg.Login.RatePerMinute)
	assert.Equal(t, 3, cfg.Login.Burst)
	assert.True(t, cfg.GitHub.Enabled())
	assert.Equal(t, "https://admin.example.com/auth/github/callback", cfg.GitHub.CallbackURL)
}

func TestLoadFrom_Invalid(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{"missing secret", map[string]string{}},
		{"short secret", map[string]string{"SESSION_SECRET": "short"}},
		{"bad port", map[string]string{"SESSION_SECRET": testSecret, "PORT": "0"}},
		{"non-numeric port", map[string]string{"SESSION_SECRET": testSecret, "PORT": "http"}},
		{"zero rate", map[string]string{"SESSION_SECRET": testSecret, "LOGIN_RATE_PER_MIN": "0"}},
		{"negative burst", map[string]string{"SESSION_SECRET": testSecret, "LOGIN_BURST": "-1"}},
		{"bad ttl", map[string]string{"SESSION_SECRET": testSecret, "SESSION_TTL": "forever"}},
		{"bad log level", map[string]string{"SESSION_SECRET": testSecret, "LOG_LEVEL": "loud"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadFrom(context.Background(), envconfig.MapLookuper(tc.env))
			assert.Error(t, err)
		})
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}
