package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"freelance-office/internal/adapters/cli"
	webAdapter "freelance-office/internal/adapters/web"
	"freelance-office/internal/app"
	"freelance-office/internal/config"
	"freelance-office/internal/db"
	"freelance-office/internal/logging"
	"freelance-office/migrations"

	"go.uber.org/zap"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, cli.Usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
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
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	svc, err := app.Build(pool, cfg, logger)
	if err != nil {
		logger.Fatal("wiring", zap.Error(err))
	}

	err = cli.Run(ctx, cli.Env{
		Svc: svc,
		Migrate: func(ctx context.Context) (*db.MigrationResult, error) {
			return db.Migrate(ctx, pool, migrations.FS, logger)
		},
		JWTSecret:  cfg.JWTSecret,
		IssueToken: webAdapter.IssueToken,
		Out:        os.Stdout,
	}, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, cli.ErrUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
