package lifecycle

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/leadflow/internal/leads"
	"github.com/wolfman30/leadflow/internal/tenancy"
	"github.com/wolfman30/leadflow/pkg/logging"
)

// Handler exposes lifecycle evaluation over HTTP.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

// NewHandler creates a lifecycle HTTP handler.
func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes mounts lifecycle endpoints under an org-scoped router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/leads/{leadID}/lifecycle", h.getEvaluation)
	r.Post("/leads/{leadID}/lifecycle:apply", h.apply)
	r.Get("/leads/{leadID}/follow-up", h.getFollowUp)
}

type applyResponse struct {
	Evaluation Evaluation  `json:"evaluation"`
	Lead       *leads.Lead `json:"lead"`
}

// FollowUpResponse is the rendered follow-up for a lead.
type FollowUpResponse struct {
	LeadID              string          `json:"lead_id"`
	Status              leads.Status    `json:"status"`
	Channel             leads.Channel   `json:"channel"`
	Message             string          `json:"message"`
	RecommendedChannels []leads.Channel `json:"recommended_channels"`
	NextFollowUpAt      *time.Time      `json:"next_follow_up_at,omitempty"`
}

func (h *Handler) getEvaluation(w http.ResponseWriter, r *http.Request) {
	orgID, ok := tenancy.OrgIDFromContext(r.Context())
	if !ok {
		http.Error(w, "missing org context", http.StatusBadRequest)
		return
	}
	_, eval, err := h.service.Evaluate(r.Context(), orgID, chi.URLParam(r, "leadID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, eval)
}

func (h *Handler) apply(w http.ResponseWriter, r *http.Request) {
	orgID, ok := tenancy.OrgIDFromContext(r.Context())
	if !ok {
		http.Error(w, "missing org context", http.StatusBadRequest)
		return
	}
	lead, eval, err := h.service.ApplyByID(r.Context(), orgID, chi.URLParam(r, "leadID"), "api")
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, applyResponse{Evaluation: eval, Lead: lead})
}

func (h *Handler) getFollowUp(w http.ResponseWriter, r *http.Request) {
	orgID, ok := tenancy.OrgIDFromContext(r.Context())
	if !ok {
		http.Error(w, "missing org context", http.StatusBadRequest)
		return
	}
	lead, eval, err := h.service.Evaluate(r.Context(), orgID, chi.URLParam(r, "leadID"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	recommended := h.service.Policy().RecommendedChannels(lead)
	channel := leads.Channel(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("channel"))))
	if channel == "" {
		channel = leads.ChannelEmail
		if len(recommended) > 0 {
			channel = recommended[0]
		}
	}

	resp := FollowUpResponse{
		LeadID:              lead.ID,
		Status:              lead.Status,
		Channel:             channel,
		Message:             FollowUpMessage(lead, channel),
		RecommendedChannels: recommended,
	}
	if next, ok := NextFollowUp(lead, eval.EvaluatedAt); ok {
		resp.NextFollowUpAt = &next
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, leads.ErrLeadNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	h.logger.Error("lifecycle handler failed", "error", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
