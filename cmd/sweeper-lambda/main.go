package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/joho/godotenv"

	"github.com/wolfman30/leadflow/cmd/mainconfig"
	appbootstrap "github.com/wolfman30/leadflow/internal/app/bootstrap"
	appconfig "github.com/wolfman30/leadflow/internal/config"
	"github.com/wolfman30/leadflow/internal/worker/sweeper"
	"github.com/wolfman30/leadflow/pkg/logging"
)

type sweepRunner interface {
	RunOnce(ctx context.Context) (sweeper.Result, error)
}

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	if cfg.DatabaseURL == "" {
		logger.Error("sweeper lambda requires DATABASE_URL")
		os.Exit(1)
	}

	ctx := context.Background()
	deps, closeDeps, err := mainconfig.BuildDeps(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize dependencies", "error", err)
		os.Exit(1)
	}
	defer closeDeps()

	app, err := appbootstrap.Build(cfg, deps, logger)
	if err != nil {
		logger.Error("failed to build runtime", "error", err)
		os.Exit(1)
	}

	lambda.Start(newHandler(app.Sweeper, logger))
}

// newHandler runs one sweep per scheduled EventBridge invocation.
func newHandler(sw sweepRunner, logger *logging.Logger) func(context.Context, events.CloudWatchEvent) (sweeper.Result, error) {
	return func(ctx context.Context, evt events.CloudWatchEvent) (sweeper.Result, error) {
		logger.Info("sweep invocation", "event_id", evt.ID, "source", evt.Source, "scheduled_at", evt.Time)
		res, err := sw.RunOnce(ctx)
		if err != nil {
			logger.Error("sweep failed", "error", err, "scanned", res.Scanned)
			return res, err
		}
		logger.Info("sweep complete",
			"scanned", res.Scanned,
			"marked_dead", res.MarkedDead,
			"runs_started", res.RunsStarted,
			"failed", res.Failed,
		)
		return res, nil
	}
}
