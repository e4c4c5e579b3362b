package leads

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/leadflow/internal/tenancy"
	"github.com/wolfman30/leadflow/pkg/logging"
)

// Observer is notified after lead writes so lifecycle rules and automation
// can react. The returned lead replaces the one sent back to the client.
type Observer interface {
	LeadCreated(ctx context.Context, lead *Lead) (*Lead, error)
	ActivityRecorded(ctx context.Context, lead *Lead, activity Activity) (*Lead, error)
}

// Handler handles HTTP requests for leads
type Handler struct {
	repo     Repository
	observer Observer
	logger   *logging.Logger
}

// NewHandler creates a new leads handler. observer may be nil.
func NewHandler(repo Repository, observer Observer, logger *logging.Logger) *Handler {
	if repo == nil {
		panic("leads: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		repo:     repo,
		observer: observer,
		logger:   logger,
	}
}

// RegisterRoutes mounts lead endpoints. Requests must carry an org in context.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/leads", h.CreateLead)
	r.Get("/leads", h.ListLeads)
	r.Get("/leads/{leadID}", h.GetLead)
	r.Post("/leads/{leadID}/activities", h.RecordActivity)
}

// CreateLead handles POST /leads requests
func (h *Handler) CreateLead(w http.ResponseWriter, r *http.Request) {
	var req CreateLeadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode request", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	orgID, ok := tenancy.OrgIDFromContext(r.Context())
	if !ok {
		http.Error(w, "missing org context", http.StatusBadRequest)
		return
	}
	req.OrgID = orgID

	lead, err := h.repo.Create(r.Context(), &req)
	if err != nil {
		h.writeError(w, "failed to create lead", err)
		return
	}
	h.logger.WithLead(orgID, lead.ID).Info("lead created", "source", lead.Source)

	if h.observer != nil {
		if updated, err := h.observer.LeadCreated(r.Context(), lead); err != nil {
			h.logger.Error("lead created hook failed", "error", err, "lead_id", lead.ID)
		} else if updated != nil {
			lead = updated
		}
	}
	writeJSON(w, http.StatusCreated, lead)
}

// ListLeadsResponse is the response for listing leads
type ListLeadsResponse struct {
	Leads  []*Lead `json:"leads"`
	Count  int     `json:"count"`
	Offset int     `json:"offset"`
	Limit  int     `json:"limit"`
}

// ListLeads handles GET /leads requests
func (h *Handler) ListLeads(w http.ResponseWriter, r *http.Request) {
	orgID, ok := tenancy.OrgIDFromContext(r.Context())
	if !ok {
		http.Error(w, "missing org context", http.StatusBadRequest)
		return
	}

	filter := ListLeadsFilter{Limit: 50}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 && limit <= 100 {
			filter.Limit = limit
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil && offset >= 0 {
			filter.Offset = offset
		}
	}
	if status := strings.TrimSpace(r.URL.Query().Get("status")); status != "" {
		filter.Status = Status(status)
		if !filter.Status.Valid() {
			http.Error(w, ErrInvalidStatus.Error(), http.StatusBadRequest)
			return
		}
	}

	leads, err := h.repo.ListByOrg(r.Context(), orgID, filter)
	if err != nil {
		h.logger.Error("failed to list leads", "error", err, "org_id", orgID)
		http.Error(w, "failed to list leads", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, ListLeadsResponse{
		Leads:  leads,
		Count:  len(leads),
		Offset: filter.Offset,
		Limit:  filter.Limit,
	})
}

// GetLead handles GET /leads/{leadID}
func (h *Handler) GetLead(w http.ResponseWriter, r *http.Request) {
	orgID, ok := tenancy.OrgIDFromContext(r.Context())
	if !ok {
		http.Error(w, "missing org context", http.StatusBadRequest)
		return
	}
	lead, err := h.repo.GetByID(r.Context(), orgID, chi.URLParam(r, "leadID"))
	if err != nil {
		h.writeError(w, "failed to load lead", err)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

// RecordActivityRequest is the body of POST /leads/{leadID}/activities.
type RecordActivityRequest struct {
	Type        ActivityType `json:"type"`
	Channel     Channel      `json:"channel"`
	Description string       `json:"description"`
	Outcome     Outcome      `json:"outcome"`
	Notes       string       `json:"notes"`
	Timestamp   *time.Time   `json:"timestamp,omitempty"`
}

// RecordActivityResponse returns the stored activity and the lead after any
// lifecycle changes it caused.
type RecordActivityResponse struct {
	Activity Activity `json:"activity"`
	Lead     *Lead    `json:"lead"`
}

// RecordActivity handles POST /leads/{leadID}/activities
func (h *Handler) RecordActivity(w http.ResponseWriter, r *http.Request) {
	orgID, ok := tenancy.OrgIDFromContext(r.Context())
	if !ok {
		http.Error(w, "missing org context", http.StatusBadRequest)
		return
	}
	var req RecordActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if !req.Type.Valid() || strings.TrimSpace(req.Description) == "" || !req.Outcome.Valid() {
		http.Error(w, ErrInvalidActivity.Error(), http.StatusBadRequest)
		return
	}

	activity := Activity{
		Type:        req.Type,
		Channel:     req.Channel,
		Description: strings.TrimSpace(req.Description),
		Outcome:     req.Outcome,
		Notes:       req.Notes,
	}
	if req.Timestamp != nil {
		activity.Timestamp = req.Timestamp.UTC()
	}

	leadID := chi.URLParam(r, "leadID")
	lead, recorded, err := h.repo.AppendActivity(r.Context(), orgID, leadID, activity)
	if err != nil {
		h.writeError(w, "failed to record activity", err)
		return
	}
	h.logger.WithLead(orgID, leadID).Info("activity recorded", "type", recorded.Type, "channel", recorded.Channel, "outcome", recorded.Outcome)

	if h.observer != nil {
		if updated, err := h.observer.ActivityRecorded(r.Context(), lead, recorded); err != nil {
			h.logger.Error("activity hook failed", "error", err, "lead_id", leadID)
		} else if updated != nil {
			lead = updated
		}
	}
	writeJSON(w, http.StatusCreated, RecordActivityResponse{Activity: recorded, Lead: lead})
}

func (h *Handler) writeError(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, ErrLeadNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrInvalidName), errors.Is(err, ErrMissingContact), errors.Is(err, ErrMissingOrgID),
		errors.Is(err, ErrInvalidStatus), errors.Is(err, ErrInvalidActivity):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Error(msg, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
