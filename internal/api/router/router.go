package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/wolfman30/leadflow/internal/automation"
	"github.com/wolfman30/leadflow/internal/documents"
	httpmiddleware "github.com/wolfman30/leadflow/internal/http/middleware"
	"github.com/wolfman30/leadflow/internal/leads"
	"github.com/wolfman30/leadflow/internal/lifecycle"
	"github.com/wolfman30/leadflow/internal/realtime"
	"github.com/wolfman30/leadflow/internal/reporting"
	"github.com/wolfman30/leadflow/internal/tenancy"
	"github.com/wolfman30/leadflow/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	LeadsHandler       *leads.Handler
	LifecycleHandler   *lifecycle.Handler
	AutomationHandler  *automation.Handler
	DocumentsHandler   *documents.Handler
	ReportsHandler     *reporting.Handler
	RealtimeHandler    *realtime.Handler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}

	// Public endpoints
	r.Group(func(public chi.Router) {
		public.Get("/health", healthCheck)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		// The socket handler resolves the org itself since browsers
		// cannot send X-Org-Id on an upgrade request.
		if cfg.RealtimeHandler != nil {
			cfg.RealtimeHandler.RegisterRoutes(public)
		}
	})

	// Tenant-scoped API routes
	r.Group(func(tenant chi.Router) {
		tenant.Use(tenancy.RequireOrgID)
		if cfg.RateLimitRPS > 0 {
			tenant.Use(httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst).Middleware)
		}
		tenant.Use(middleware.Compress(5))

		if cfg.LeadsHandler != nil {
			cfg.LeadsHandler.RegisterRoutes(tenant)
		}
		if cfg.LifecycleHandler != nil {
			cfg.LifecycleHandler.RegisterRoutes(tenant)
		}
		if cfg.AutomationHandler != nil {
			cfg.AutomationHandler.RegisterRoutes(tenant)
		}
		if cfg.DocumentsHandler != nil {
			cfg.DocumentsHandler.RegisterRoutes(tenant)
		}
		if cfg.ReportsHandler != nil {
			cfg.ReportsHandler.RegisterRoutes(tenant)
		}
	})

	return r
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
