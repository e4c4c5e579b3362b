package realtime

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/leadflow/internal/leads"
	"github.com/wolfman30/leadflow/internal/tenancy"
	"github.com/wolfman30/leadflow/pkg/logging"
	"golang.org/x/net/websocket"
)

const historyLimit = 50

type leadReader interface {
	GetByID(ctx context.Context, orgID, id string) (*leads.Lead, error)
}

// Handler upgrades lead activity subscriptions to WebSocket.
type Handler struct {
	hub    *Hub
	repo   leadReader
	logger *logging.Logger
}

func NewHandler(hub *Hub, repo leadReader, logger *logging.Logger) *Handler {
	if hub == nil {
		panic("realtime: hub cannot be nil")
	}
	if repo == nil {
		panic("realtime: repo cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{hub: hub, repo: repo, logger: logger}
}

// RegisterRoutes mounts the socket endpoint. Browsers cannot set headers on an
// upgrade, so the org may also come from the org query parameter.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/leads/{leadID}/activities", h.HandleWebSocket)
}

func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveWS(conn, r)
	}).ServeHTTP(w, r)
}

func requestOrgID(r *http.Request) string {
	if orgID, ok := tenancy.OrgIDFromContext(r.Context()); ok {
		return orgID
	}
	if orgID := strings.TrimSpace(r.Header.Get(tenancy.OrgHeader)); orgID != "" {
		return orgID
	}
	return strings.TrimSpace(r.URL.Query().Get("org"))
}

func (h *Handler) serveWS(conn *websocket.Conn, r *http.Request) {
	sub := newSubscriber(conn)
	orgID := requestOrgID(r)
	leadID := chi.URLParam(r, "leadID")
	if orgID == "" {
		_ = sub.write(OutboundMessage{Type: "error", Text: "missing org parameter"}, h.hub.writeTimeout)
		return
	}

	lead, err := h.repo.GetByID(r.Context(), orgID, leadID)
	if err != nil {
		text := "failed to load lead"
		if errors.Is(err, leads.ErrLeadNotFound) {
			text = "lead not found"
		}
		_ = sub.write(OutboundMessage{Type: "error", LeadID: leadID, Text: text}, h.hub.writeTimeout)
		return
	}

	history := lead.Activities
	if len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}
	sub.enqueue(OutboundMessage{Type: "history", LeadID: leadID, Activities: history})

	log := h.logger.WithLead(orgID, leadID)
	go sub.writeLoop(h.hub.writeTimeout, log)
	unsubscribe := h.hub.subscribe(orgID, leadID, sub)
	defer unsubscribe()
	log.Info("realtime: subscriber connected")

	for {
		var msg InboundMessage
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			log.Debug("realtime: subscriber disconnected", "error", err)
			return
		}
		if msg.Type == "ping" {
			sub.enqueue(OutboundMessage{Type: "pong"})
		}
	}
}
