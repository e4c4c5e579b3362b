package documents

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/leadflow/internal/leads"
	"github.com/wolfman30/leadflow/internal/tenancy"
	"github.com/wolfman30/leadflow/pkg/logging"
)

// MaxUploadBytes caps a single document upload.
const MaxUploadBytes = 10 << 20

// Handler serves document upload, verification and download.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if service == nil {
		panic("documents: service required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/leads/{leadID}/documents", h.upload)
	r.Post("/leads/{leadID}/documents/{documentID}:verify", h.verify)
	r.Get("/leads/{leadID}/documents/{documentID}", h.download)
}

// DocumentResponse returns the changed document with the updated lead.
type DocumentResponse struct {
	Document leads.Document `json:"document"`
	Lead     *leads.Lead    `json:"lead"`
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	orgID, ok := tenancy.OrgIDFromContext(r.Context())
	if !ok {
		http.Error(w, "missing org context", http.StatusBadRequest)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxUploadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "document too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	q := r.URL.Query()
	lead, doc, err := h.service.Upload(r.Context(), UploadRequest{
		OrgID:       orgID,
		LeadID:      chi.URLParam(r, "leadID"),
		Type:        leads.DocumentType(strings.ToLower(strings.TrimSpace(q.Get("type")))),
		FileName:    q.Get("filename"),
		ContentType: r.Header.Get("Content-Type"),
		Body:        body,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, DocumentResponse{Document: doc, Lead: lead})
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	orgID, ok := tenancy.OrgIDFromContext(r.Context())
	if !ok {
		http.Error(w, "missing org context", http.StatusBadRequest)
		return
	}
	lead, doc, err := h.service.Verify(r.Context(), orgID, chi.URLParam(r, "leadID"), chi.URLParam(r, "documentID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DocumentResponse{Document: doc, Lead: lead})
}

func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	orgID, ok := tenancy.OrgIDFromContext(r.Context())
	if !ok {
		http.Error(w, "missing org context", http.StatusBadRequest)
		return
	}
	doc, data, err := h.service.Content(r.Context(), orgID, chi.URLParam(r, "leadID"), chi.URLParam(r, "documentID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	if doc.FileName != "" {
		w.Header().Set("Content-Disposition", `attachment; filename="`+strings.ReplaceAll(doc.FileName, `"`, "")+`"`)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, leads.ErrLeadNotFound), errors.Is(err, ErrDocumentNotFound), errors.Is(err, ErrContentNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrInvalidType), errors.Is(err, ErrEmptyDocument):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Error("documents handler failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
