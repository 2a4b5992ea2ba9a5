package main

import (
	"context"
	"log"

	"freelance-office/internal/config"
	"freelance-office/internal/db"
	"freelance-office/internal/logging"
	"freelance-office/migrations"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("[CONNECT] failed", zap.Error(err))
	}
	defer pool.Close()
	logger.Info("[CONNECT] success")

	res, err := db.Migrate(ctx, pool, migrations.FS, logger)
	if err != nil {
		logger.Fatal("[MIGRATE] failed", zap.Error(err))
	}
	logger.Info("[DONE] All migrations processed.",
		zap.Strings("applied", res.Applied),
		zap.Int("skipped", len(res.Skipped)))
}
