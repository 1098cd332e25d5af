package factory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mcoot/georally/internal/api"
	"github.com/mcoot/georally/internal/dependencies/clock"
	"github.com/mcoot/georally/internal/dependencies/random"
	"github.com/mcoot/georally/internal/gateway"
	"github.com/mcoot/georally/internal/metrics"
	"github.com/mcoot/georally/internal/services/geo"
	"github.com/mcoot/georally/internal/services/matchmaking"
	"github.com/mcoot/georally/internal/services/results"
	"github.com/mcoot/georally/internal/services/round"
	"github.com/mcoot/georally/internal/services/session"
	"github.com/mcoot/georally/internal/storage"
	"github.com/mcoot/georally/internal/storage/memory"
	pgstorage "github.com/mcoot/georally/internal/storage/postgres"
	redisstorage "github.com/mcoot/georally/internal/storage/redis"
)

// Storage type constants
const (
	StorageTypeMemory   = "memory"
	StorageTypeRedis    = "redis"
	StorageTypePostgres = "postgres"
)

const connectTimeout = 10 * time.Second

// App contains all wired application components
type App struct {
	// Storage
	Storage storage.Storage

	// External dependencies
	Clock  clock.Clock
	Random random.Random

	Graph   *geo.Graph
	Metrics *metrics.Metrics
	Logger  *slog.Logger

	// Services
	Generator *round.Generator
	Results   *results.Service
	Registry  *session.Registry
	Queue     *matchmaking.Queue

	// Connection gateway
	Hub        *gateway.Hub
	Dispatcher *gateway.Dispatcher
	Gateway    *gateway.Server
}

// Config holds configuration for the application factory
type Config struct {
	// Logger is the application logger (optional)
	// If nil, a no-op logger is used
	Logger *slog.Logger
	// StorageType selects the storage backend ("memory", "redis" or "postgres")
	// If empty, defaults to "memory"
	StorageType string
	// RedisConfig holds Redis connection settings (required if StorageType is "redis")
	RedisConfig *redisstorage.Config
	// DatabaseURL is the Postgres connection string (required if StorageType is "postgres")
	DatabaseURL string
	// Timing drives session timers. Zero fields take the defaults.
	Timing session.Timing
	// CountriesFile and CoastalFile replace the embedded dataset when both are set
	CountriesFile string
	CoastalFile   string
	// AllowedOrigins restricts websocket upgrades. Empty allows any origin.
	AllowedOrigins []string
}

// New creates a new application with all dependencies wired
func New(cfg Config) (*App, error) {
	// Use no-op logger if not provided
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	graph, err := loadGraph(cfg.CountriesFile, cfg.CoastalFile)
	if err != nil {
		return nil, err
	}

	store, err := newStorage(cfg)
	if err != nil {
		return nil, err
	}

	// Create external dependencies
	clk := clock.New()
	rnd := random.New()

	return newWithDependencies(store, graph, clk, rnd, withDefaults(cfg.Timing), cfg.AllowedOrigins, logger), nil
}

func loadGraph(countriesFile, coastalFile string) (*geo.Graph, error) {
	switch {
	case countriesFile == "" && coastalFile == "":
		return geo.Default()
	case countriesFile == "" || coastalFile == "":
		return nil, errors.New("CountriesFile and CoastalFile must be set together")
	default:
		return geo.LoadFiles(countriesFile, coastalFile)
	}
}

func newStorage(cfg Config) (storage.Storage, error) {
	storageType := cfg.StorageType
	if storageType == "" {
		storageType = StorageTypeMemory
	}

	switch storageType {
	case StorageTypeMemory:
		return memory.New(), nil
	case StorageTypeRedis:
		if cfg.RedisConfig == nil {
			return nil, errors.New("RedisConfig required when StorageType is redis")
		}
		store, err := redisstorage.New(*cfg.RedisConfig)
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		return store, nil
	case StorageTypePostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DatabaseURL required when StorageType is postgres")
		}
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()
		store, err := pgstorage.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("invalid StorageType %q: must be 'memory', 'redis' or 'postgres'", storageType)
	}
}

func withDefaults(t session.Timing) session.Timing {
	def := session.DefaultTiming()
	if t.ReconnectGrace <= 0 {
		t.ReconnectGrace = def.ReconnectGrace
	}
	if t.SettleDelay <= 0 {
		t.SettleDelay = def.SettleDelay
	}
	if t.HandshakeTimeout <= 0 {
		t.HandshakeTimeout = def.HandshakeTimeout
	}
	return t
}

// newWithDependencies creates an App with the given dependencies (useful for testing)
func newWithDependencies(store storage.Storage, graph *geo.Graph, clk clock.Clock, rnd random.Random, timing session.Timing, origins []string, logger *slog.Logger) *App {
	m := metrics.New()

	// The hub delivers events for sessions and the queue alike
	hub := gateway.NewHub(m, logger)

	generator := round.New(graph, rnd, round.DefaultConfig(), logger)
	resultsService := results.New(store, clk, logger)
	registry := session.NewRegistry(graph, hub, resultsService, clk, m, timing, logger)
	queue := matchmaking.New(registry, generator, hub, m, logger)
	dispatcher := gateway.NewDispatcher(registry, queue, hub, m, logger)

	return &App{
		Storage:    store,
		Clock:      clk,
		Random:     rnd,
		Graph:      graph,
		Metrics:    m,
		Logger:     logger,
		Generator:  generator,
		Results:    resultsService,
		Registry:   registry,
		Queue:      queue,
		Hub:        hub,
		Dispatcher: dispatcher,
		Gateway:    gateway.NewServer(hub, dispatcher, origins, logger),
	}
}

// Router builds the HTTP handler serving the API, metrics and websocket endpoints
func (a *App) Router() http.Handler {
	return api.NewRouter(api.RouterConfig{
		Logger:      a.Logger,
		Registry:    a.Registry,
		Queue:       a.Queue,
		Connections: a.Hub,
		Metrics:     a.Metrics,
		Gateway:     a.Gateway,
	})
}

// Close releases the storage backend's connections, if it holds any
func (a *App) Close() error {
	if c, ok := a.Storage.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
