// Command compliancectl runs operator actions against the compliance engine:
// re-evaluation sweeps, suspension, badge toggles and dev token minting.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"marketplace-backend/internal/bootstrap"
	"marketplace-backend/internal/shared/config"
	"marketplace-backend/internal/shared/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(env{load: config.Load, build: bootstrap.BuildContext})
	if err := root.ExecuteContext(ctx); err != nil {
		telemetry.Error("compliancectl failed", map[string]any{"error": err})
		os.Exit(1)
	}
}
