package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/leadflow/cmd/mainconfig"
	"github.com/wolfman30/leadflow/internal/api/router"
	appbootstrap "github.com/wolfman30/leadflow/internal/app/bootstrap"
	"github.com/wolfman30/leadflow/internal/automation"
	appconfig "github.com/wolfman30/leadflow/internal/config"
	"github.com/wolfman30/leadflow/internal/documents"
	"github.com/wolfman30/leadflow/internal/leads"
	"github.com/wolfman30/leadflow/internal/lifecycle"
	"github.com/wolfman30/leadflow/internal/realtime"
	"github.com/wolfman30/leadflow/internal/reporting"
	"github.com/wolfman30/leadflow/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting leadflow API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

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

	// With the in-memory queue nothing else can see our events, so the
	// workers have to live in this process.
	waitWorkers := func() {}
	if cfg.UseMemoryQueue {
		logger.Info("running automation workers in-process")
		waitWorkers = app.StartWorkers(ctx)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      buildRouter(app),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	waitWorkers()
	logger.Info("server stopped")
}

func buildRouter(app *appbootstrap.App) http.Handler {
	logger := app.Logger
	return router.New(&router.Config{
		Logger:             logger,
		LeadsHandler:       leads.NewHandler(app.Leads, app.Lifecycle, logger),
		LifecycleHandler:   lifecycle.NewHandler(app.Lifecycle, logger),
		AutomationHandler:  automation.NewHandler(app.Executor, app.Leads, logger),
		DocumentsHandler:   documents.NewHandler(app.Documents, logger),
		ReportsHandler:     reporting.NewHandler(app.Reports, logger),
		RealtimeHandler:    realtime.NewHandler(app.Hub, app.Leads, logger),
		MetricsHandler:     promhttp.HandlerFor(app.Registry, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: app.Config.CORSAllowedOrigins,
		RateLimitRPS:       app.Config.RateLimitRPS,
		RateLimitBurst:     app.Config.RateLimitBurst,
	})
}
