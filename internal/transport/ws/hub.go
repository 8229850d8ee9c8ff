// Package ws is the live-connection transport: a WebSocket server, a hub that
// resolves topic audiences through the session registry, and per-connection
// clients with buffered writes. The hub is the concrete relay.Broadcaster.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"relay/internal/relay"
	"relay/internal/relay/metrics"
	"relay/internal/relay/registry"
	"relay/internal/validator"
)

// Frame is the wire shape of every outbound message: the topic it was
// addressed to plus the routed body.
type Frame struct {
	Topic relay.Topic `json:"topic"`
	Data  any         `json:"data"`
}

// Hub fans resolved payloads out to the live sessions subscribed to their
// topic. Slow consumers never block delivery; a full send queue drops the
// frame for that session only.
type Hub struct {
	registry *registry.Registry
	metrics  *metrics.Registry
	logger   *zap.Logger

	mu      sync.RWMutex
	clients map[string]*Client
}

// NewHub creates a hub over the shared session registry.
func NewHub(reg *registry.Registry, m *metrics.Registry, logger *zap.Logger) (*Hub, error) {
	h := Hub{
		registry: reg,
		metrics:  m,
		logger:   logger.Named("ws-hub"),
		clients:  make(map[string]*Client),
	}

	if err := validator.Validate("ws hub", h.registry, h.metrics, h.logger); err != nil {
		return nil, fmt.Errorf("failed to validate hub dependencies: %w", err)
	}

	return &h, nil
}

// Broadcast implements relay.Broadcaster.Broadcast. The audience is resolved
// at send time from the registry, so a session that unsubscribed between
// routing and delivery simply receives nothing.
func (h *Hub) Broadcast(ctx context.Context, payload relay.OutboundPayload) error {
	addr, err := relay.ParseTopic(payload.Topic)
	if err != nil {
		h.metrics.RecordBroadcast("unknown", err)
		return fmt.Errorf("failed to resolve topic audience: %w", err)
	}

	data, err := json.Marshal(Frame{Topic: payload.Topic, Data: payload.Body})
	if err != nil {
		h.metrics.RecordBroadcast(string(addr.Scope), err)
		return fmt.Errorf("failed to encode frame for topic %s: %w", payload.Topic, err)
	}

	sessions := h.audience(addr)
	if len(sessions) == 0 {
		h.metrics.RecordBroadcast(string(addr.Scope), nil)
		return nil
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for _, sessionID := range sessions {
		client, ok := h.clients[sessionID]
		if !ok {
			// registered but not yet attached, or already closing
			continue
		}

		select {
		case client.send <- data:
			delivered++
		default:
			h.metrics.RecordFrameDropped()
			h.logger.Warn("dropping frame for slow session",
				zap.String("session_id", sessionID),
				zap.String("topic", string(payload.Topic)),
			)
		}
	}

	h.metrics.RecordBroadcast(string(addr.Scope), nil)
	h.logger.Debug("broadcast delivered",
		zap.String("topic", string(payload.Topic)),
		zap.Int("audience", len(sessions)),
		zap.Int("delivered", delivered),
	)

	return nil
}

// audience resolves the sessions behind a parsed topic address. Qualified
// topics share their base topic's audience.
func (h *Hub) audience(addr relay.Address) []string {
	switch addr.Scope {
	case relay.ScopeAll:
		return h.registry.AllSessions()
	case relay.ScopeEvent:
		return h.registry.SessionsForEvent(addr.ID)
	case relay.ScopeCampus:
		return h.registry.SessionsForCampus(addr.ID)
	case relay.ScopeOrganization:
		return h.registry.SessionsForOrganization(addr.ID)
	case relay.ScopeUser:
		return h.registry.SessionsForUser(addr.ID)
	default:
		return nil
	}
}

// attach wires a client into the hub and registers its session.
func (h *Hub) attach(client *Client) {
	h.mu.Lock()
	h.clients[client.sessionID] = client
	h.mu.Unlock()

	h.registry.Register(client.sessionID)
	h.updateGauges()
}

// detach removes a client and unregisters its session and subscriptions.
func (h *Hub) detach(client *Client) {
	h.mu.Lock()
	if current, ok := h.clients[client.sessionID]; ok && current == client {
		delete(h.clients, client.sessionID)
	}
	h.mu.Unlock()

	h.registry.Unregister(client.sessionID)
	h.updateGauges()
}

func (h *Hub) updateGauges() {
	h.metrics.UpdateSessionCounts(h.registry.ActiveSessions(), h.registry.ActiveUsers())
}

// CloseAll disconnects every attached client. Used during shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}
