package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	appbootstrap "github.com/wolfman30/leadflow/internal/app/bootstrap"
	appconfig "github.com/wolfman30/leadflow/internal/config"
	"github.com/wolfman30/leadflow/pkg/logging"
)

func newMemoryApp(t *testing.T) *appbootstrap.App {
	t.Helper()
	app, err := appbootstrap.Build(&appconfig.Config{
		UseMemoryQueue:      true,
		AutomationScheduler: "store",
		EmailProvider:       "stub",
		SweepInterval:       time.Hour,
		CORSAllowedOrigins:  []string{"https://app.example.com"},
	}, appbootstrap.Deps{}, logging.New("error"))
	if err != nil {
		t.Fatalf("build app: %v", err)
	}
	return app
}

func TestBuildRouterServesLeadsAndMetrics(t *testing.T) {
	handler := buildRouter(newMemoryApp(t))

	body, _ := json.Marshal(map[string]string{"name": "Jane", "email": "jane@example.com"})
	req := httptest.NewRequest(http.MethodPost, "/leads", bytes.NewReader(body))
	req.Header.Set("X-Org-Id", "org-1")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 from metrics, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "leadflow_lifecycle") {
		t.Fatalf("expected lifecycle metrics to be exported")
	}
}

func TestBuildRouterAppliesCORS(t *testing.T) {
	handler := buildRouter(newMemoryApp(t))

	req := httptest.NewRequest(http.MethodOptions, "/leads", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected preflight 204, got %d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("unexpected allow origin %q", got)
	}
}
