package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"relay/internal/relay/registry"
)

const (
	// sendBuffer bounds the per-session write queue; beyond it frames drop.
	sendBuffer = 64

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxFrameSize = 4096
)

// controlFrame is the inbound message shape. Clients send these to
// authenticate and manage their subscriptions; everything else on the wire
// flows outbound.
type controlFrame struct {
	Type           string `json:"type"`
	UserID         *int64 `json:"userId,omitempty"`
	EventID        *int64 `json:"eventId,omitempty"`
	CampusID       *int64 `json:"campusId,omitempty"`
	OrganizationID *int64 `json:"organizationId,omitempty"`
}

// Client is one live WebSocket connection bound to a session ID.
type Client struct {
	sessionID string
	conn      *websocket.Conn
	hub       *Hub
	registry  *registry.Registry
	logger    *zap.Logger

	send      chan []byte
	closeOnce sync.Once
	done      chan struct{}
}

func newClient(sessionID string, conn *websocket.Conn, hub *Hub, reg *registry.Registry, logger *zap.Logger) *Client {
	return &Client{
		sessionID: sessionID,
		conn:      conn,
		hub:       hub,
		registry:  reg,
		logger:    logger.With(zap.String("session_id", sessionID)),
		send:      make(chan []byte, sendBuffer),
		done:      make(chan struct{}),
	}
}

// run starts the read and write pumps and blocks until the connection ends.
func (c *Client) run() {
	go c.writePump()
	c.readPump()
}

// readPump consumes control frames until the connection drops. A malformed
// frame is logged and skipped; the session stays connected.
func (c *Client) readPump() {
	defer func() {
		c.hub.detach(c)
		c.close()
	}()

	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("connection closed unexpectedly", zap.Error(err))
			}
			return
		}

		var frame controlFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.logger.Warn("ignoring malformed control frame", zap.Error(err))
			continue
		}

		c.handle(frame)
	}
}

func (c *Client) handle(frame controlFrame) {
	switch frame.Type {
	case "authenticate":
		if frame.UserID == nil {
			c.logger.Warn("authenticate frame missing userId")
			return
		}
		c.registry.RegisterUser(c.sessionID, *frame.UserID)
		c.hub.updateGauges()
		c.logger.Info("session authenticated", zap.Int64("user_id", *frame.UserID))

	case "subscribe_event":
		if frame.EventID != nil {
			c.registry.SubscribeEvent(c.sessionID, *frame.EventID)
		}
	case "unsubscribe_event":
		if frame.EventID != nil {
			c.registry.UnsubscribeEvent(c.sessionID, *frame.EventID)
		}

	case "subscribe_campus":
		if frame.CampusID != nil {
			c.registry.SubscribeCampus(c.sessionID, *frame.CampusID)
		}
	case "unsubscribe_campus":
		if frame.CampusID != nil {
			c.registry.UnsubscribeCampus(c.sessionID, *frame.CampusID)
		}

	case "subscribe_organization":
		if frame.OrganizationID != nil {
			c.registry.SubscribeOrganization(c.sessionID, *frame.OrganizationID)
		}
	case "unsubscribe_organization":
		if frame.OrganizationID != nil {
			c.registry.UnsubscribeOrganization(c.sessionID, *frame.OrganizationID)
		}

	default:
		c.logger.Warn("ignoring unknown control frame", zap.String("type", frame.Type))
	}
}

// writePump flushes queued frames and keeps the connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}
