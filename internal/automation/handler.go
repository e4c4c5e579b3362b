package automation

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/leadflow/internal/leads"
	"github.com/wolfman30/leadflow/internal/tenancy"
	"github.com/wolfman30/leadflow/pkg/logging"
)

// Handler exposes workflow definitions and runs over HTTP.
type Handler struct {
	executor *Executor
	repo     leads.Repository
	logger   *logging.Logger
}

func NewHandler(executor *Executor, repo leads.Repository, logger *logging.Logger) *Handler {
	if executor == nil || repo == nil {
		panic("automation: handler requires executor and repository")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{executor: executor, repo: repo, logger: logger}
}

// RegisterRoutes mounts automation endpoints under an org-scoped router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/automation/workflows", h.listWorkflows)
	r.Post("/automation/workflows/{workflowID}/runs", h.startRun)
	r.Get("/automation/runs/{runID}", h.getRun)
	r.Delete("/automation/runs/{runID}", h.cancelRun)
	r.Get("/leads/{leadID}/automation/runs", h.listLeadRuns)
}

// StartRunRequest starts a workflow for a lead regardless of its trigger.
type StartRunRequest struct {
	LeadID string `json:"lead_id"`
}

func (h *Handler) listWorkflows(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"workflows": h.executor.Workflows().List()})
}

func (h *Handler) startRun(w http.ResponseWriter, r *http.Request) {
	orgID, ok := tenancy.OrgIDFromContext(r.Context())
	if !ok {
		http.Error(w, "missing org context", http.StatusBadRequest)
		return
	}
	wf, err := h.executor.Workflows().Get(chi.URLParam(r, "workflowID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	var req StartRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.LeadID) == "" {
		http.Error(w, "lead_id required", http.StatusBadRequest)
		return
	}
	lead, err := h.repo.GetByID(r.Context(), orgID, req.LeadID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	run, err := h.executor.Start(r.Context(), wf, lead, EventManual)
	if err != nil && run == nil {
		h.writeError(w, err)
		return
	}
	if err != nil {
		h.logger.WithLead(orgID, lead.ID).Error("workflow run started with errors", "run_id", run.ID, "error", err)
	}
	writeJSON(w, http.StatusAccepted, run)
}

func (h *Handler) getRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.loadRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *Handler) cancelRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.loadRun(w, r)
	if !ok {
		return
	}
	cancelled, err := h.executor.Cancel(r.Context(), run.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cancelled)
}

func (h *Handler) listLeadRuns(w http.ResponseWriter, r *http.Request) {
	orgID, ok := tenancy.OrgIDFromContext(r.Context())
	if !ok {
		http.Error(w, "missing org context", http.StatusBadRequest)
		return
	}
	runs, err := h.executor.RunsForLead(r.Context(), orgID, chi.URLParam(r, "leadID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if runs == nil {
		runs = []*Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// loadRun fetches a run owned by the caller's org.
func (h *Handler) loadRun(w http.ResponseWriter, r *http.Request) (*Run, bool) {
	orgID, ok := tenancy.OrgIDFromContext(r.Context())
	if !ok {
		http.Error(w, "missing org context", http.StatusBadRequest)
		return nil, false
	}
	run, err := h.executor.Run(r.Context(), chi.URLParam(r, "runID"))
	if err == nil && run.OrgID != orgID {
		err = ErrRunNotFound
	}
	if err != nil {
		h.writeError(w, err)
		return nil, false
	}
	return run, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrRunNotFound), errors.Is(err, ErrWorkflowNotFound), errors.Is(err, leads.ErrLeadNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrLeadInactive):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		h.logger.Error("automation handler failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
