package main

// Run database migrations:
//   go run ./cmd/migrate

import (
	"context"
	"os"

	"marketplace-backend/internal/shared/config"
	"marketplace-backend/internal/shared/storage/db"
	"marketplace-backend/internal/shared/telemetry"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	opts := db.OptionsFromEnv(db.DefaultMigrateOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		telemetry.Error("failed to connect database", map[string]any{"error": err})
		os.Exit(1)
	}
	defer sqlDB.Close()

	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		telemetry.Error("failed to run migrations", map[string]any{"error": err})
		os.Exit(1)
	}
	telemetry.Info("migrations applied", nil)
}
