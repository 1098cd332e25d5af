package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends
const (
	StorageMemory   = "memory"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
)

// Config is the server configuration read from the environment
type Config struct {
	Port      int
	LogLevel  slog.Level
	LogFormat string

	StorageType string
	RedisURL    string
	DatabaseURL string

	ReconnectGrace   time.Duration
	SettleDelay      time.Duration
	HandshakeTimeout time.Duration
	SessionRetention time.Duration
	SweepInterval    time.Duration

	// Optional dataset override. Both must be set together.
	CountriesFile string
	CoastalFile   string

	AllowedOrigins []string
}

// Default returns the configuration used when nothing is set
func Default() Config {
	return Config{
		Port:             8080,
		LogLevel:         slog.LevelInfo,
		LogFormat:        "json",
		StorageType:      StorageMemory,
		ReconnectGrace:   30 * time.Second,
		SettleDelay:      4 * time.Second,
		HandshakeTimeout: 2 * time.Minute,
		SessionRetention: 10 * time.Minute,
		SweepInterval:    time.Minute,
	}
}

// Load reads an optional .env file from the working directory, then the environment
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from a variable lookup function
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	p := parser{lookup: lookup}

	cfg.Port = p.int("PORT", cfg.Port)
	cfg.LogLevel = p.level("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = p.oneOf("LOG_FORMAT", cfg.LogFormat, "json", "text")

	cfg.StorageType = p.oneOf("STORAGE_TYPE", cfg.StorageType, StorageMemory, StorageRedis, StoragePostgres)
	cfg.RedisURL = p.string("REDIS_URL", "")
	cfg.DatabaseURL = p.string("DATABASE_URL", "")

	cfg.ReconnectGrace = p.duration("RECONNECT_GRACE", cfg.ReconnectGrace)
	cfg.SettleDelay = p.duration("SETTLE_DELAY", cfg.SettleDelay)
	cfg.HandshakeTimeout = p.duration("HANDSHAKE_TIMEOUT", cfg.HandshakeTimeout)
	cfg.SessionRetention = p.duration("SESSION_RETENTION", cfg.SessionRetention)
	cfg.SweepInterval = p.duration("SWEEP_INTERVAL", cfg.SweepInterval)

	cfg.CountriesFile = p.string("COUNTRIES_FILE", "")
	cfg.CoastalFile = p.string("COASTAL_FILE", "")
	cfg.AllowedOrigins = p.list("ALLOWED_ORIGINS")

	if p.err != nil {
		return Config{}, p.err
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch {
	case c.StorageType == StorageRedis && c.RedisURL == "":
		return errors.New("REDIS_URL required when STORAGE_TYPE=redis")
	case c.StorageType == StoragePostgres && c.DatabaseURL == "":
		return errors.New("DATABASE_URL required when STORAGE_TYPE=postgres")
	case (c.CountriesFile == "") != (c.CoastalFile == ""):
		return errors.New("COUNTRIES_FILE and COASTAL_FILE must be set together")
	case c.SweepInterval <= 0:
		return errors.New("SWEEP_INTERVAL must be positive")
	}
	return nil
}

// NewLogger builds the process logger for the configured level and format
func (c Config) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel}
	if c.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// parser keeps the first error so callers can read every variable and check once
type parser struct {
	lookup func(string) (string, bool)
	err    error
}

func (p *parser) raw(key string) (string, bool) {
	v, ok := p.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (p *parser) fail(key, value string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
}

func (p *parser) string(key, def string) string {
	if v, ok := p.raw(key); ok {
		return v
	}
	return def
}

func (p *parser) int(key string, def int) int {
	v, ok := p.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return n
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v, ok := p.raw(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	if d < 0 {
		p.fail(key, v, errors.New("must not be negative"))
		return def
	}
	return d
}

func (p *parser) level(key string, def slog.Level) slog.Level {
	v, ok := p.raw(key)
	if !ok {
		return def
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(v)); err != nil {
		p.fail(key, v, err)
		return def
	}
	return lvl
}

func (p *parser) oneOf(key, def string, allowed ...string) string {
	v, ok := p.raw(key)
	if !ok {
		return def
	}
	v = strings.ToLower(v)
	for _, a := range allowed {
		if v == a {
			return v
		}
	}
	p.fail(key, v, fmt.Errorf("must be one of %s", strings.Join(allowed, ", ")))
	return def
}

func (p *parser) list(key string) []string {
	v, ok := p.raw(key)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
