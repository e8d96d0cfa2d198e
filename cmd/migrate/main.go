package main

import (
	"context"
	"time"

	"concierge/internal/allocation/repository"
	mongoMigration "concierge/internal/migrations/mongo"
	"concierge/pkg/config"
)

const JobName = "migration"

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()
	cfg := config.Load(JobName)
	cfg.Connect()
	defer cfg.GracefulShutdown()

	cfg.Log.Info("Starting migration job", "store", cfg.StoreDriver)
	switch cfg.StoreDriver {
	case config.StoreMongo:
		if err := mongoMigration.RunMigration(ctx, cfg.Client.Mongo, cfg.MongoDatabaseName, cfg.Log); err != nil {
			cfg.Log.Fatal("Migration failed", "error", err)
		}
	default:
		if err := repository.MigrateSQL(ctx, cfg.Client.SQL, cfg.StoreDriver); err != nil {
			cfg.Log.Fatal("Migration failed", "error", err)
		}
	}
	cfg.Log.Info("Migration completed successfully")
}
