package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"mizan/internal/audit"
	"mizan/internal/cache"
	"mizan/internal/config"
	"mizan/internal/db"
	"mizan/internal/repository"
	"mizan/internal/retainer"
	"mizan/internal/server"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("failed to run: %v", err)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var logger *zap.Logger
	if cfg.IsDevelopment() {
		logger, _ = zap.NewDevelopment()
	} else {
		logger, _ = zap.NewProduction()
	}
	defer logger.Sync()

	logger.Info("starting mizan",
		zap.String("env", cfg.Server.Env),
		zap.Int("port", cfg.Server.Port),
	)

	database, err := db.New(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer database.Close()

	if err := database.Bootstrap(ctx); err != nil {
		return fmt.Errorf("bootstrap schema: %w", err)
	}
	logger.Info("connected to PostgreSQL")

	// Redis backs idempotency replay; the engine runs without it.
	var cacheClient *cache.Client
	if c, err := cache.NewClient(ctx, cfg.Redis.URL); err != nil {
		logger.Warn("redis unavailable, idempotency replay disabled", zap.Error(err))
	} else {
		cacheClient = c
		defer cacheClient.Close()
		logger.Info("connected to Redis")
	}

	engineCfg := retainer.Config{
		Store:    repository.NewRetainerRepository(database),
		Payments: repository.NewPaymentLookup(database.Pool()),
		Cases:    repository.NewCaseLookup(database.Pool()),
		Recorder: audit.NewPGRecorder(database.Pool()),
		Logger:   logger,
	}
	if cacheClient != nil {
		engineCfg.Replay = cacheClient
	}
	engine := retainer.NewEngine(engineCfg)

	srv := server.New(server.Config{
		Port:        cfg.Server.Port,
		Database:    database,
		Engine:      engine,
		CacheClient: cacheClient,
		Logger:      logger,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}
