package reporting

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/leadflow/internal/leads"
	"github.com/wolfman30/leadflow/internal/tenancy"
	"github.com/wolfman30/leadflow/pkg/logging"
)

type Handler struct {
	source Source
	logger *logging.Logger
	now    func() time.Time
}

func NewHandler(source Source, logger *logging.Logger) *Handler {
	if source == nil {
		panic("reporting: source required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{source: source, logger: logger, now: time.Now}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/reports/pipeline", h.pipeline)
}

// pipeline accepts ?status=hot,application or repeated status params.
func (h *Handler) pipeline(w http.ResponseWriter, r *http.Request) {
	orgID, ok := tenancy.OrgIDFromContext(r.Context())
	if !ok {
		http.Error(w, "missing org context", http.StatusBadRequest)
		return
	}
	var statuses []leads.Status
	for _, raw := range r.URL.Query()["status"] {
		for _, part := range strings.Split(raw, ",") {
			part = strings.ToLower(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			status := leads.Status(part)
			if !status.Valid() {
				http.Error(w, leads.ErrInvalidStatus.Error()+": "+part, http.StatusBadRequest)
				return
			}
			statuses = append(statuses, status)
		}
	}

	report, err := BuildReport(r.Context(), h.source, orgID, statuses, h.now())
	if err != nil {
		h.logger.WithOrg(orgID).Error("pipeline report failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(report)
}
