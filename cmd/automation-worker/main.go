package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.temporal.io/sdk/worker"

	"github.com/wolfman30/leadflow/cmd/mainconfig"
	appbootstrap "github.com/wolfman30/leadflow/internal/app/bootstrap"
	"github.com/wolfman30/leadflow/internal/automation/temporalrunner"
	appconfig "github.com/wolfman30/leadflow/internal/config"
	"github.com/wolfman30/leadflow/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	if cfg.UseMemoryQueue {
		logger.Error("automation worker cannot run when USE_MEMORY_QUEUE=true; the API runs workers in-process instead")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

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

	if deps.Temporal != nil {
		w := worker.New(deps.Temporal, cfg.TemporalTaskQueue, worker.Options{})
		temporalrunner.Register(w, app.Executor)
		if err := w.Start(); err != nil {
			logger.Error("failed to start temporal worker", "error", err)
			os.Exit(1)
		}
		defer w.Stop()
		logger.Info("temporal worker started", "task_queue", cfg.TemporalTaskQueue, "namespace", cfg.TemporalNamespace)
	}

	waitWorkers := app.StartWorkers(ctx)
	logger.Info("automation worker started",
		"postgres", deps.Pool != nil,
		"scheduler", cfg.AutomationScheduler,
		"sweep_interval", cfg.SweepInterval,
	)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           opsRouter(app),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("ops server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("automation worker shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	waitWorkers()
}

// opsRouter exposes health and metrics for the worker.
func opsRouter(app *appbootstrap.App) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.HandlerFor(app.Registry, promhttp.HandlerOpts{}))
	return r
}
