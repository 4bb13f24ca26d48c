// Package main implements the entry point for the gatekeeper server, which
// authenticates callers with signed bearer tokens and admits them through a
// Redis-backed token bucket shared by every instance.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/phrazzld/gatekeeper/internal/config"
	"github.com/phrazzld/gatekeeper/internal/platform/logger"
	"github.com/phrazzld/gatekeeper/internal/platform/postgres"
	"github.com/phrazzld/gatekeeper/internal/platform/redis"
	goredis "github.com/redis/go-redis/v9"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (default: ./config.yaml if present)")
	migrate := flag.String("migrate", "", "run a migration command (up, down, status, version) and exit")
	flag.Parse()

	if err := run(*configPath, *migrate); err != nil {
		slog.Error("gatekeeper exited with error", "error", err)
		os.Exit(1)
	}
}

func run(configPath, migrateCommand string) error {
	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := setupAppDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}

	if migrateCommand != "" {
		defer func() { _ = db.Close() }()
		return postgres.Migrate(ctx, db, log, migrateCommand)
	}

	if cfg.Database.MigrateOnStart {
		if err := postgres.Migrate(ctx, db, log, "up"); err != nil {
			_ = db.Close()
			return err
		}
	}

	var rdb *goredis.Client
	if cfg.RateLimit.Enabled {
		rdb, err = redis.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to connect to rate limit store: %w", err)
		}
	}

	shutdownTracing, err := setupTracing(ctx, cfg.Tracing, log)
	if err != nil {
		_ = db.Close()
		if rdb != nil {
			_ = rdb.Close()
		}
		return fmt.Errorf("failed to set up tracing: %w", err)
	}

	app, err := newApplication(cfg, log, db, rdb)
	if err != nil {
		_ = db.Close()
		if rdb != nil {
			_ = rdb.Close()
		}
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.cleanup()
	defer shutdownTracing()

	log.Info("server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"rate_limit_enabled", cfg.RateLimit.Enabled,
		"rate_limit_failure_policy", cfg.RateLimit.FailurePolicy,
		"redis", cfg.Redis.String())

	return app.Run(ctx)
}
