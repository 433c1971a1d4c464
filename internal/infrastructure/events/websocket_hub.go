package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/davidleathers/tcpa-compliance-engine/internal/service/compliance"
)

// HubConfig configures websocket connection handling
type HubConfig struct {
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	PongTimeout    time.Duration
	MaxMessageSize int64
	SendBufferSize int
}

// DefaultHubConfig returns default websocket settings
func DefaultHubConfig() HubConfig {
	return HubConfig{
		WriteTimeout:   10 * time.Second,
		PingInterval:   30 * time.Second,
		PongTimeout:    60 * time.Second,
		MaxMessageSize: 4096,
		SendBufferSize: 64,
	}
}

// StreamMessage is the frame pushed to dashboard subscribers
type StreamMessage struct {
	Type      string                      `json:"type"`
	Notice    *compliance.ViolationNotice `json:"notice,omitempty"`
	Timestamp time.Time                   `json:"timestamp"`
}

type hubConn struct {
	id       string
	tenantID uuid.UUID
	conn     *websocket.Conn
	send     chan []byte
	mu       sync.Mutex
}

// Hub fans violation notices out to websocket subscribers of the same tenant
type Hub struct {
	logger *zap.Logger
	config HubConfig

	mu    sync.RWMutex
	conns map[string]*hubConn
}

var _ compliance.Notifier = (*Hub)(nil)

// NewHub creates an empty hub
func NewHub(logger *zap.Logger, config HubConfig) *Hub {
	return &Hub{
		logger: logger,
		config: config,
		conns:  make(map[string]*hubConn),
	}
}

// NotifyViolations queues the notice for every subscriber of its tenant.
// Slow subscribers whose buffer is full miss the notice.
func (h *Hub) NotifyViolations(_ context.Context, notice compliance.ViolationNotice) error {
	data, err := json.Marshal(StreamMessage{
		Type:      "violation",
		Notice:    &notice,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshaling stream message: %w", err)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.conns {
		if c.tenantID != notice.TenantID {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.logger.Warn("dropping violation notice for slow subscriber",
				zap.String("connection_id", c.id),
				zap.String("tenant_id", c.tenantID.String()))
		}
	}
	return nil
}

// Register takes ownership of an upgraded connection and starts its pumps
func (h *Hub) Register(conn *websocket.Conn, tenantID uuid.UUID) string {
	c := &hubConn{
		id:       uuid.NewString(),
		tenantID: tenantID,
		conn:     conn,
		send:     make(chan []byte, h.config.SendBufferSize),
	}

	h.mu.Lock()
	h.conns[c.id] = c
	h.mu.Unlock()

	go h.writePump(c)
	go h.readPump(c)

	h.logger.Info("violation stream subscriber added",
		zap.String("connection_id", c.id),
		zap.String("tenant_id", tenantID.String()))
	return c.id
}

// ConnectionCount returns the number of live subscribers
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Close disconnects every subscriber
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, c := range h.conns {
		close(c.send)
		delete(h.conns, id)
	}
	return nil
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	c, ok := h.conns[id]
	if ok {
		close(c.send)
		delete(h.conns, id)
	}
	h.mu.Unlock()

	if ok {
		h.logger.Info("violation stream subscriber removed", zap.String("connection_id", id))
	}
}

func (h *Hub) writePump(c *hubConn) {
	ticker := time.NewTicker(h.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		h.remove(c.id)
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.mu.Lock()
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				c.mu.Unlock()
				return
			}
			err := c.conn.WriteMessage(websocket.TextMessage, message)
			c.mu.Unlock()
			if err != nil {
				h.logger.Debug("websocket write failed",
					zap.String("connection_id", c.id),
					zap.Error(err))
				return
			}

		case <-ticker.C:
			c.mu.Lock()
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// readPump only drains control frames; subscribers never send data
func (h *Hub) readPump(c *hubConn) {
	defer func() {
		c.conn.Close()
		h.remove(c.id)
	}()

	c.conn.SetReadLimit(h.config.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(h.config.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(h.config.PongTimeout))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read failed",
					zap.String("connection_id", c.id),
					zap.Error(err))
			}
			return
		}
	}
}
