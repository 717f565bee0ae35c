package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/reelforge/server/internal/module/export"
	"github.com/reelforge/server/internal/shared/cache"
	"github.com/reelforge/server/internal/shared/config"
	"github.com/reelforge/server/internal/shared/database"
	"github.com/reelforge/server/internal/shared/logger"
	"github.com/reelforge/server/internal/shared/storage"
	"github.com/reelforge/server/internal/utils/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zlog.Sync()

	db, err := database.New(&cfg.Database)
	if err != nil {
		zlog.Fatal("init database", zap.Error(err))
	}
	defer database.Close(db)

	redisClient, err := cache.NewRedisClient(&cfg.Redis)
	if err != nil {
		zlog.Fatal("init redis", zap.Error(err))
	}
	defer cache.Close(redisClient)

	store, err := storage.NewS3Store(&cfg.Storage)
	if err != nil {
		zlog.Fatal("init object storage", zap.Error(err))
	}

	m := metrics.New("reelforge_worker")

	repo := export.NewRepository(db)
	queue := export.NewRedisQueue(redisClient, cfg.Export.QueueKey, cfg.Export.PollTimeout)
	encoder := export.NewFFmpegEncoder(store, cfg.Export.FFmpegPath, cfg.Export.WorkDir, cfg.Export.OutputPrefix, zlog)
	worker := export.NewWorker(repo, queue, encoder, store, m, zlog)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		zlog.Fatal("worker exited", zap.Error(err))
	}

	zlog.Info("worker exited")
}
