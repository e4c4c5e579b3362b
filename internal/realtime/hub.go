// Package realtime streams lead events to connected browsers over WebSocket.
package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/wolfman30/leadflow/internal/events"
	"github.com/wolfman30/leadflow/internal/leads"
	"github.com/wolfman30/leadflow/pkg/logging"
	"golang.org/x/net/websocket"
)

// OutboundMessage is the frame written to subscribers.
type OutboundMessage struct {
	Type       string           `json:"type"`
	LeadID     string           `json:"lead_id,omitempty"`
	Event      *events.Envelope `json:"event,omitempty"`
	Activities []leads.Activity `json:"activities,omitempty"`
	Text       string           `json:"text,omitempty"`
}

// InboundMessage is a frame read from subscribers.
type InboundMessage struct {
	Type string `json:"type"`
}

// subscriberQueue bounds the frames buffered for one socket.
const subscriberQueue = 32

// subscriber owns one socket. Only its write loop writes to conn once the
// loop has started.
type subscriber struct {
	conn      *websocket.Conn
	out       chan OutboundMessage
	done      chan struct{}
	closeOnce sync.Once
}

func newSubscriber(conn *websocket.Conn) *subscriber {
	return &subscriber{
		conn: conn,
		out:  make(chan OutboundMessage, subscriberQueue),
		done: make(chan struct{}),
	}
}

// enqueue never blocks; false means the queue is full or the socket closed.
func (s *subscriber) enqueue(msg OutboundMessage) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.out <- msg:
		return true
	default:
		return false
	}
}

func (s *subscriber) write(msg OutboundMessage, timeout time.Duration) error {
	if timeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	return websocket.JSON.Send(s.conn, msg)
}

// writeLoop drains the queue until the subscriber closes or a write fails.
func (s *subscriber) writeLoop(timeout time.Duration, log *logging.Logger) {
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.out:
			if err := s.write(msg, timeout); err != nil {
				log.Debug("realtime: send failed", "error", err)
				s.close()
				return
			}
		}
	}
}

// close stops the write loop and the socket, which also ends the read loop.
func (s *subscriber) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.conn != nil {
			_ = s.conn.Close()
		}
	})
}

// Hub fans lead events out to the sockets watching that lead. It satisfies
// events.Recorder so it can be teed next to the outbox.
type Hub struct {
	mu           sync.RWMutex
	subs         map[string]map[*subscriber]struct{}
	writeTimeout time.Duration
	logger       *logging.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Default()
	}
	return &Hub{
		subs:         make(map[string]map[*subscriber]struct{}),
		writeTimeout: 5 * time.Second,
		logger:       logger,
	}
}

func subscriptionKey(orgID, leadID string) string {
	return orgID + "/" + leadID
}

func (h *Hub) subscribe(orgID, leadID string, sub *subscriber) func() {
	key := subscriptionKey(orgID, leadID)
	h.mu.Lock()
	set, ok := h.subs[key]
	if !ok {
		set = make(map[*subscriber]struct{})
		h.subs[key] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()

	return func() { h.remove(key, sub) }
}

func (h *Hub) remove(key string, sub *subscriber) {
	h.mu.Lock()
	if set, ok := h.subs[key]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, key)
		}
	}
	h.mu.Unlock()
	sub.close()
}

// Subscribers reports how many sockets watch the lead.
func (h *Hub) Subscribers(orgID, leadID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[subscriptionKey(orgID, leadID)])
}

// Record broadcasts the event to every subscriber of its lead. It never waits
// on a socket and never returns write failures.
func (h *Hub) Record(_ context.Context, evt events.LeadEvent, opts ...events.EnvelopeOption) error {
	env, err := events.NewLeadEnvelope(evt, opts...)
	if err != nil {
		return err
	}
	orgID, leadID := evt.Lead()
	h.Broadcast(orgID, leadID, OutboundMessage{Type: "event", LeadID: leadID, Event: &env})
	return nil
}

// Broadcast queues msg for every subscriber of the lead. A subscriber whose
// queue is full is disconnected rather than waited on.
func (h *Hub) Broadcast(orgID, leadID string, msg OutboundMessage) {
	key := subscriptionKey(orgID, leadID)
	h.mu.RLock()
	set := h.subs[key]
	targets := make([]*subscriber, 0, len(set))
	for sub := range set {
		targets = append(targets, sub)
	}
	h.mu.RUnlock()

	for _, sub := range targets {
		if !sub.enqueue(msg) {
			h.logger.WithLead(orgID, leadID).Warn("realtime: dropping slow subscriber")
			h.remove(key, sub)
		}
	}
}

var _ events.Recorder = (*Hub)(nil)
