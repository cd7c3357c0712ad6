// Package config loads service settings from an optional .env file and the
// environment, and builds the process logger.
package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Config struct {
	Addr     string
	SitesDir string

	// Decoration
	Marker   string
	CodeBase string
	Reveal   bool

	// Upstream
	UpstreamTimeout time.Duration
	JSRender        bool

	// Cache
	CacheTTL  time.Duration
	RedisAddr string

	// Logging
	LogLevel string
	LogFile  string
}

// Load reads .env when present, then the environment.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		Addr:     envOr("PAGEDECOR_ADDR", ":8081"),
		SitesDir: envOr("PAGEDECOR_SITES_DIR", "config/sites"),

		Marker:   os.Getenv("PAGEDECOR_MARKER"),
		CodeBase: os.Getenv("PAGEDECOR_CODE_BASE"),
		Reveal:   envBool("PAGEDECOR_REVEAL", false),

		UpstreamTimeout: envDuration("PAGEDECOR_UPSTREAM_TIMEOUT", 15*time.Second),
		JSRender:        envBool("PAGEDECOR_JS_RENDER", false),

		CacheTTL:  envDuration("PAGEDECOR_CACHE_TTL", 5*time.Minute),
		RedisAddr: os.Getenv("PAGEDECOR_REDIS_ADDR"),

		LogLevel: envOr("PAGEDECOR_LOG_LEVEL", "info"),
		LogFile:  os.Getenv("PAGEDECOR_LOG_FILE"),
	}
	if port := os.Getenv("PORT"); port != "" {
		cfg.Addr = ":" + port
	}
	if cfg.UpstreamTimeout <= 0 {
		cfg.UpstreamTimeout = 15 * time.Second
	}
	return cfg
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("PAGEDECOR_ADDR must not be empty")
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("PAGEDECOR_CACHE_TTL must not be negative, got %s", c.CacheTTL)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("PAGEDECOR_LOG_LEVEL: %w", err)
	}
	return nil
}

// NewLogger returns a logger writing to w, and additionally to a rotated file
// when LogFile is set. An unknown level falls back to info.
func (c Config) NewLogger(w io.Writer) *log.Logger {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	if c.LogFile != "" {
		w = io.MultiWriter(w, &lumberjack.Logger{
			Filename:   c.LogFile,
			MaxSize:    25,
			MaxBackups: 10,
			MaxAge:     14,
			Compress:   true,
		})
	}
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
