package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "PAGEDECOR_ADDR", "PAGEDECOR_CACHE_TTL", "PAGEDECOR_REVEAL", "PAGEDECOR_LOG_LEVEL"} {
		t.Setenv(k, "")
	}
	cfg := Load()
	assert.Equal(t, ":8081", cfg.Addr)
	assert.Equal(t, "config/sites", cfg.SitesDir)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 15*time.Second, cfg.UpstreamTimeout)
	assert.False(t, cfg.Reveal)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PAGEDECOR_ADDR", ":9000")
	t.Setenv("PORT", "7000")
	t.Setenv("PAGEDECOR_CACHE_TTL", "30s")
	t.Setenv("PAGEDECOR_UPSTREAM_TIMEOUT", "garbage")
	t.Setenv("PAGEDECOR_REVEAL", "true")
	t.Setenv("PAGEDECOR_JS_RENDER", "1")
	t.Setenv("PAGEDECOR_MARKER", "IMG")

	cfg := Load()
	assert.Equal(t, ":7000", cfg.Addr)
	assert.Equal(t, 30*time.Second, cfg.CacheTTL)
	assert.Equal(t, 15*time.Second, cfg.UpstreamTimeout)
	assert.True(t, cfg.Reveal)
	assert.True(t, cfg.JSRender)
	assert.Equal(t, "IMG", cfg.Marker)
}

func TestValidate(t *testing.T) {
	t.Parallel()
	good := Config{Addr: ":1", LogLevel: "debug"}
	require.NoError(t, good.Validate())

	assert.Error(t, Config{Addr: " ", LogLevel: "info"}.Validate())
	assert.Error(t, Config{Addr: ":1", LogLevel: "loud"}.Validate())
	assert.Error(t, Config{Addr: ":1", LogLevel: "info", CacheTTL: -time.Second}.Validate())
}

func TestNewLoggerLevel(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := Config{LogLevel: "warn"}.NewLogger(&buf)
	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}
