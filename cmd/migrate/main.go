package main

import (
	"flag"
	"log"

	"go.uber.org/zap"

	"github.com/leozw/inbound-guardian/internal/config"
	"github.com/leozw/inbound-guardian/internal/storage/postgres"
)

func main() {
	down := flag.Int("down", 0, "roll back this many migrations instead of applying")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	if cfg.Database.URL == "" {
		logger.Fatal("database.url is required")
	}

	db, err := postgres.NewConnection(cfg.Database.URL, 1, 1)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if *down > 0 {
		if err := postgres.MigrateDown(db.DB.DB, *down); err != nil {
			logger.Fatal("Rollback failed", zap.Error(err))
		}
		logger.Info("Migrations rolled back", zap.Int("steps", *down))
		return
	}

	if err := postgres.Migrate(db.DB.DB); err != nil {
		logger.Fatal("Migration failed", zap.Error(err))
	}
	logger.Info("Migrations applied")
}
