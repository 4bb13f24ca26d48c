package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	apiMiddleware "github.com/phrazzld/gatekeeper/internal/api/middleware"
	"github.com/phrazzld/gatekeeper/internal/config"
	"github.com/phrazzld/gatekeeper/internal/platform/postgres"
	"github.com/phrazzld/gatekeeper/internal/ratelimit"
	"github.com/phrazzld/gatekeeper/internal/service/auth"
	"github.com/phrazzld/gatekeeper/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
)

// readinessCheck reports whether a dependency can serve traffic.
type readinessCheck struct {
	name  string
	check func(ctx context.Context) error
}

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB
	redis  *goredis.Client

	// registry backs /metrics; each application owns one so tests stay isolated.
	registry *prometheus.Registry

	authService auth.Service
	limiter     *ratelimit.Limiter
	gate        *apiMiddleware.Gate
	readiness   []readinessCheck
}

// newApplication creates a new application instance with all dependencies initialized.
// rdb may be nil when rate limiting is disabled.
func newApplication(cfg *config.Config, logger *slog.Logger, db *sql.DB, rdb *goredis.Client) (*application, error) {
	if db == nil {
		return nil, errors.New("database cannot be nil")
	}
	if cfg.RateLimit.Enabled && rdb == nil {
		return nil, errors.New("rate limiting is enabled but no redis client was provided")
	}

	app := &application{
		config:   cfg,
		logger:   logger,
		db:       db,
		redis:    rdb,
		registry: prometheus.NewRegistry(),
	}
	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewDBStatsCollector(db, "gatekeeper"),
	)

	var bucketStore ratelimit.AtomicStore
	if rdb != nil {
		bucketStore = ratelimit.NewRedisStore(rdb, cfg.RateLimit.MaxCASAttempts)
	}

	if err := app.wire(postgres.NewPostgresPrincipalStore(db, logger), bucketStore); err != nil {
		return nil, err
	}
	app.readiness = append([]readinessCheck{{name: "database", check: db.PingContext}}, app.readiness...)

	logger.Info("application initialized")
	return app, nil
}

// wire builds the services, the request gate and the limiter on top of the
// given stores. bucketStore is only used when rate limiting is enabled.
func (app *application) wire(principals store.PrincipalStore, bucketStore ratelimit.AtomicStore) error {
	cfg := app.config

	tokens, err := auth.NewTokenService(cfg.Auth)
	if err != nil {
		return fmt.Errorf("failed to initialize token service: %w", err)
	}
	app.logger.Info("token service initialized",
		"token_lifetime_minutes", cfg.Auth.TokenLifetimeMinutes,
		"issuer", cfg.Auth.Issuer)

	app.authService, err = auth.NewService(principals, tokens, auth.NewBcryptHasher(cfg.Auth.BcryptCost), app.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize auth service: %w", err)
	}

	app.gate, err = apiMiddleware.NewGate(tokens, principals, apiMiddleware.NewGateMetrics(app.registry))
	if err != nil {
		return fmt.Errorf("failed to initialize request gate: %w", err)
	}

	if !cfg.RateLimit.Enabled {
		app.logger.Warn("rate limiting is disabled")
		return nil
	}
	if bucketStore == nil {
		return errors.New("rate limit store cannot be nil")
	}

	failurePolicy, err := ratelimit.ParseFailurePolicy(cfg.RateLimit.FailurePolicy)
	if err != nil {
		return err
	}

	metrics := ratelimit.NewMetrics(app.registry)
	if cfg.RateLimit.BreakerFailures > 0 {
		bucketStore = ratelimit.NewBreakerStore(bucketStore, ratelimit.BreakerSettings{
			Name:     "ratelimit-store",
			Failures: cfg.RateLimit.BreakerFailures,
			Cooldown: cfg.RateLimit.BreakerCooldown,
		}, metrics, app.logger)
	}

	policy := ratelimit.Policy{
		Capacity:     cfg.RateLimit.Capacity,
		RefillTokens: cfg.RateLimit.RefillTokens,
		RefillPeriod: cfg.RateLimit.RefillPeriod,
	}
	app.limiter, err = ratelimit.NewLimiter(bucketStore, ratelimit.Options{
		Policy:        policy,
		FailurePolicy: failurePolicy,
		StoreTimeout:  cfg.RateLimit.StoreTimeout,
		KeyPrefix:     cfg.RateLimit.KeyPrefix,
		Metrics:       metrics,
		Logger:        app.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize rate limiter: %w", err)
	}
	app.readiness = append(app.readiness, readinessCheck{name: "redis", check: app.limiter.Ping})

	app.logger.Info("rate limiter initialized",
		"capacity", cfg.RateLimit.Capacity,
		"refill_tokens", cfg.RateLimit.RefillTokens,
		"refill_period", cfg.RateLimit.RefillPeriod.String(),
		"failure_policy", failurePolicy.String(),
		"bucket_ttl", policy.TimeToFull().String())
	return nil
}

// Run starts the application server, handling lifecycle and cleanup.
// It returns an error if the server fails to start or encounters problems.
func (app *application) Run(ctx context.Context) error {
	if err := app.startHTTPServer(ctx, app.setupRouter()); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing redis connection", "error", err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database connection", "error", err)
		}
	}
	app.logger.Info("application shutdown completed")
}
