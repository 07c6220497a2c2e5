package main

// Build the scheduled sweep binary:
//   GOOS=linux GOARCH=arm64 CGO_ENABLED=0 go build -o bootstrap ./cmd/lambda-sweep

import (
	"context"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"marketplace-backend/internal/bootstrap"
	"marketplace-backend/internal/compliance"
	"marketplace-backend/internal/shared/config"
	"marketplace-backend/internal/shared/telemetry"
)

var (
	initOnce sync.Once
	initErr  error
	app      *bootstrap.App
)

func initApp() {
	cfg := config.Load()
	built, err := bootstrap.Build(cfg)
	if err != nil {
		initErr = err
		return
	}
	app = built
}

// sweeper is the part of the compliance service a scheduled run needs.
type sweeper interface {
	EvaluateAll(ctx context.Context, concurrency int) (compliance.SweepResult, error)
}

func sweep(ctx context.Context, svc sweeper, concurrency int, event events.CloudWatchEvent) (compliance.SweepResult, error) {
	telemetry.Info("compliance sweep triggered", map[string]any{
		"event_id": event.ID,
		"source":   event.Source,
	})
	res, err := svc.EvaluateAll(ctx, concurrency)
	if err != nil {
		telemetry.Error("compliance sweep failed", map[string]any{"error": err, "evaluated": res.Evaluated})
		return res, err
	}
	for companyID, reason := range res.Failed {
		telemetry.Warn("compliance sweep company failed", map[string]any{"company_id": companyID, "error": reason})
	}
	return res, nil
}

func handler(ctx context.Context, event events.CloudWatchEvent) (compliance.SweepResult, error) {
	initOnce.Do(initApp)
	if initErr != nil {
		telemetry.Error("bootstrap failed", map[string]any{"error": initErr})
		return compliance.SweepResult{}, initErr
	}
	return sweep(ctx, app.ComplianceService, app.Config.SweepConcurrency, event)
}

func main() {
	lambda.Start(handler)
}
