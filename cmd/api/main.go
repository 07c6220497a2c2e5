package main

import (
	"os"

	"marketplace-backend/internal/bootstrap"
	"marketplace-backend/internal/shared/config"
	"marketplace-backend/internal/shared/server"
	"marketplace-backend/internal/shared/telemetry"
)

func main() {
	cfg := config.Load()
	app, err := bootstrap.Build(cfg)
	if err != nil {
		telemetry.Error("bootstrap failed", map[string]any{"error": err})
		os.Exit(1)
	}
	if app.DB != nil {
		defer app.DB.Close()
	}

	addr := server.Addr(cfg.Port)
	telemetry.Info("starting api server", map[string]any{"addr": addr, "env": cfg.Env})

	if err := app.Router.Run(addr); err != nil {
		telemetry.Error("server error", map[string]any{"error": err})
		os.Exit(1)
	}
}
