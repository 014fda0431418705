package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/station-helpdesk/internal/bootstrap"
	"github.com/spec-kit/station-helpdesk/internal/config"
	"github.com/spec-kit/station-helpdesk/internal/observability"
	"github.com/spec-kit/station-helpdesk/internal/persistence"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	repos := bootstrap.MemoryRepositories()
	if pg.Enabled() {
		if cfg.Postgres.RunMigrations {
			if _, err := persistence.RunMigrations(ctx, pg.Pool, logger); err != nil {
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
		}
		repos = bootstrap.PostgresRepositories(pg)
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	server, err := bootstrap.Build(bootstrap.Options{
		Config:   cfg,
		Logger:   logger,
		Metrics:  observability.NewMetrics(),
		Repos:    repos,
		Postgres: pg,
		Redis:    redis,
	})
	if err != nil {
		logger.Fatal("failed to build server", zap.Error(err))
	}
	if err := server.Start(ctx); err != nil {
		logger.Fatal("failed to start background workers", zap.Error(err))
	}

	go func() {
		logger.Info("listening", zap.String("addr", cfg.App.Addr()), zap.String("env", cfg.App.Env))
		if err := server.App.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)
	cancel()

	if err := server.App.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
