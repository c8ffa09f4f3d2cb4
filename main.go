package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"manuscript-converter/config"
	"manuscript-converter/logging"
	"manuscript-converter/pipeline"
	"manuscript-converter/services"
	"manuscript-converter/worker"

	"github.com/redis/go-redis/v9"
	"go.uber.org/automaxprocs/maxprocs"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer logger.Sync()

	ctx := context.Background()
	_, _ = maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
		logger.Debug(ctx, fmt.Sprintf(format, args...))
	}))

	logger.Info(ctx, "starting manuscript conversion service")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Error(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	logger.Info(ctx, "connected to redis", "addr", cfg.RedisAddr)

	dbSvc, err := services.NewDatabaseService(cfg.DatabaseURL)
	if err != nil {
		logger.Error(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbSvc.Close()
	logger.Info(ctx, "connected to database")

	if err := os.MkdirAll(cfg.WorkspaceDir, 0o755); err != nil {
		logger.Error(ctx, "failed to create workspace dir", "dir", cfg.WorkspaceDir, "error", err)
		os.Exit(1)
	}

	store := services.NewS3Service(cfg)
	orchestrator := pipeline.NewOrchestrator(
		cfg,
		services.NewExecRunner(cfg.ToolTimeout),
		store,
		dbSvc,
		services.NewGotenbergService(cfg.GotenbergURL, cfg.GotenbergPDFA),
		logger,
	)
	queue := worker.NewRedisQueue(redisClient, cfg)
	pool := worker.NewPool(cfg, queue, queue, store, orchestrator, logger)

	var wg sync.WaitGroup
	ctx, cancel := context.WithCancel(ctx)

	for i := 0; i < cfg.WorkerCount; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			pool.StartWorker(ctx, workerID)
		}(i)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		pool.RecoveryLoop(ctx)
	}()

	logger.Info(ctx, "service is ready",
		"workers", cfg.WorkerCount,
		"queue", cfg.PendingQueue,
		"gotenberg", cfg.GotenbergURL,
		"workspace_dir", cfg.WorkspaceDir,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info(ctx, "shutdown signal received, stopping workers")
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info(ctx, "all workers stopped gracefully")
	case <-time.After(30 * time.Second):
		logger.Warn(ctx, "shutdown timeout, forcing exit")
	}

	redisClient.Close()
	logger.Info(ctx, "conversion service stopped")
}
