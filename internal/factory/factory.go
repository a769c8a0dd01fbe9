package factory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/mcoot/arenaengine/internal/api"
	"github.com/mcoot/arenaengine/internal/config"
	"github.com/mcoot/arenaengine/internal/dependencies/clock"
	"github.com/mcoot/arenaengine/internal/dependencies/random"
	"github.com/mcoot/arenaengine/internal/gateway"
	"github.com/mcoot/arenaengine/internal/metrics"
	"github.com/mcoot/arenaengine/internal/services/action"
	"github.com/mcoot/arenaengine/internal/services/analysis"
	"github.com/mcoot/arenaengine/internal/services/auth"
	"github.com/mcoot/arenaengine/internal/services/broadcast"
	"github.com/mcoot/arenaengine/internal/services/engine"
	"github.com/mcoot/arenaengine/internal/services/liveness"
	"github.com/mcoot/arenaengine/internal/services/registry"
	"github.com/mcoot/arenaengine/internal/services/rules"
	"github.com/mcoot/arenaengine/internal/services/session"
	"github.com/mcoot/arenaengine/internal/storage"
	"github.com/mcoot/arenaengine/internal/storage/memory"
	redisstorage "github.com/mcoot/arenaengine/internal/storage/redis"
	"github.com/mcoot/arenaengine/internal/worker"
)

// App contains all wired application components
type App struct {
	Config config.Config
	Logger *slog.Logger

	// Storage
	Storage storage.Storage

	// External dependencies
	Clock  clock.Clock
	Random random.Random

	// Services
	Metrics    *metrics.Collector
	Auth       *auth.Service
	Rules      *rules.Registry
	Sessions   *session.Store
	Players    *registry.Registry
	Dispatcher *broadcast.Dispatcher
	Processor  *action.Processor
	Analyzer   analysis.Analyzer
	Pool       *worker.Pool
	Engine     *engine.Engine
	Gateway    *gateway.Gateway
	Supervisor *liveness.Supervisor
}

// New creates a new application with all dependencies wired
func New(cfg config.Config, logger *slog.Logger) (*App, error) {
	// Use no-op logger if not provided
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	// Create storage based on type
	var store storage.Storage
	switch cfg.StorageType {
	case "", config.StorageTypeMemory:
		store = memory.New()
	case config.StorageTypeRedis:
		if cfg.RedisURL == "" {
			return nil, errors.New("redis URL required when storage type is redis")
		}
		redisCfg := redisstorage.DefaultConfig()
		redisCfg.URL = cfg.RedisURL
		redisStore, err := redisstorage.New(redisCfg)
		if err != nil {
			return nil, err
		}
		store = redisStore
	default:
		return nil, fmt.Errorf("invalid storage type %q: must be 'memory' or 'redis'", cfg.StorageType)
	}

	clk := clock.New()
	var analyzer analysis.Analyzer = analysis.Noop{}
	if cfg.AnalysisURL != "" {
		analyzer = analysis.NewWebhook(cfg.AnalysisURL, cfg.AnalysisTimeout, clk)
	}

	app, err := newWithDependencies(cfg, store, clk, random.New(), analyzer, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return app, nil
}

// newWithDependencies creates an App with the given dependencies (useful for testing)
func newWithDependencies(cfg config.Config, store storage.Storage, clk clock.Clock, rnd random.Random, analyzer analysis.Analyzer, logger *slog.Logger) (*App, error) {
	pool, err := worker.New(max(cfg.WorkerPoolSize, 1), logger)
	if err != nil {
		return nil, err
	}

	collector := metrics.New()
	authService := auth.New(clk, auth.Config{
		Secret:   cfg.JWTSecret,
		Issuer:   cfg.JWTIssuer,
		TokenTTL: cfg.TokenTTL,
	})
	ruleSets := rules.Default()
	sessions := session.NewStore(clk, rnd, logger)
	players := registry.New(clk, logger)
	dispatcher := broadcast.New(players, collector, logger)
	processor := action.NewProcessor(ruleSets, clk, collector, logger)

	engineCfg := engine.DefaultConfig()
	if cfg.DefaultMaxDuration > 0 {
		engineCfg.DefaultSessionConfig.MaxDuration = cfg.DefaultMaxDuration
	}
	eng := engine.New(engineCfg, engine.Deps{
		Auth:        authService,
		Rules:       ruleSets,
		Sessions:    sessions,
		Players:     players,
		Dispatcher:  dispatcher,
		Processor:   processor,
		Persistence: store,
		Settlement:  store,
		Analyzer:    analyzer,
		Pool:        pool,
		Clock:       clk,
		Random:      rnd,
		Metrics:     collector,
		Logger:      logger,
	})

	gw := gateway.New(gatewayConfig(cfg), eng, clk, collector, logger)
	eng.AttachConnections(gw)

	supervisor := liveness.New(liveness.Config{
		Interval:       cfg.SweepInterval,
		IdleTimeout:    cfg.IdleTimeout,
		WaitTimeout:    cfg.WaitTimeout,
		ReconnectGrace: cfg.ReconnectGrace,
	}, sessions, eng, players, liveness.GatewayConnections(gw), clk, collector, logger)

	return &App{
		Config:     cfg,
		Logger:     logger,
		Storage:    store,
		Clock:      clk,
		Random:     rnd,
		Metrics:    collector,
		Auth:       authService,
		Rules:      ruleSets,
		Sessions:   sessions,
		Players:    players,
		Dispatcher: dispatcher,
		Processor:  processor,
		Analyzer:   analyzer,
		Pool:       pool,
		Engine:     eng,
		Gateway:    gw,
		Supervisor: supervisor,
	}, nil
}

func gatewayConfig(cfg config.Config) gateway.Config {
	gc := gateway.DefaultConfig()
	if cfg.AuthGrace > 0 {
		gc.AuthGrace = cfg.AuthGrace
	}
	if cfg.IdleTimeout > 0 {
		gc.ReadTimeout = cfg.IdleTimeout
	}
	if cfg.PingInterval > 0 {
		gc.PingInterval = cfg.PingInterval
	}
	if cfg.SendBuffer > 0 {
		gc.SendBuffer = cfg.SendBuffer
	}
	if cfg.MaxMessageBytes > 0 {
		gc.MaxMessageBytes = cfg.MaxMessageBytes
	}
	if cfg.RateLimit > 0 {
		gc.RateLimit = cfg.RateLimit
	}
	if cfg.RateBurst > 0 {
		gc.RateBurst = cfg.RateBurst
	}
	gc.AllowedOrigins = cfg.AllowedOrigins
	return gc
}

// Router builds the HTTP handler for the app. shutdown is called by the
// admin shutdown endpoint.
func (a *App) Router(shutdown func()) http.Handler {
	return api.NewRouter(api.RouterConfig{
		Logger:      a.Logger,
		AuthService: a.Auth,
		Engine:      a.Engine,
		Storage:     a.Storage,
		Rules:       a.Rules,
		Metrics:     a.Metrics,
		Gateway:     a.Gateway,
		Supervisor:  a.Supervisor,
		Shutdown:    shutdown,
	})
}

// Shutdown stops the engine, which aborts live sessions, closes client
// connections and drains background jobs, then closes storage
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if err := a.Engine.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := a.Storage.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing storage: %w", err))
	}
	return errors.Join(errs...)
}
