// Package broadcast fans console events out to websocket viewers.
package broadcast

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/frankmark94/channel-play-pen/internal/metrics"
	"github.com/frankmark94/channel-play-pen/internal/models"
)

// Envelope types.
const (
	TypeMessage    = "message"
	TypeActivity   = "activity"
	TypeStatus     = "status"
	TypeError      = "error"
	TypePong       = "pong"
	TypeSubscribed = "subscribed"
	TypeTyping     = "typing"
	TypeWaitTime   = "wait_time"
)

const sendBuffer = 256

// Envelope is the frame sent to viewers.
type Envelope struct {
	Type      string    `json:"type"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Client is one connected viewer.
type Client struct {
	ID   string
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	events map[string]bool // nil receives everything
}

func (c *Client) wants(eventType string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.events == nil || c.events[eventType]
}

func (c *Client) subscribe(events []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(events) == 0 {
		c.events = nil
		return
	}
	c.events = make(map[string]bool, len(events))
	for _, e := range events {
		c.events[e] = true
	}
}

// Hub tracks connected viewers and delivers every published event to each of
// them in publish order.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client

	upgrader websocket.Upgrader
	status   func() any
	now      func() time.Time
	logger   zerolog.Logger
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithStatus sets the function whose result is sent to viewers on connect.
func WithStatus(fn func() any) HubOption {
	return func(h *Hub) {
		h.status = fn
	}
}

// WithAllowedOrigins restricts websocket upgrades to the given origins. No origins allows all.
func WithAllowedOrigins(origins ...string) HubOption {
	return func(h *Hub) {
		if len(origins) == 0 {
			return
		}
		allowed := make(map[string]bool, len(origins))
		for _, o := range origins {
			allowed[o] = true
		}
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowed[origin]
		}
	}
}

// NewHub creates an empty hub.
func NewHub(logger zerolog.Logger, opts ...HubOption) *Hub {
	h := &Hub{
		clients: make(map[string]*Client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		status: func() any { return nil },
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Publish sends an event to every client subscribed to its type. Clients
// whose buffer is full are dropped.
func (h *Hub) Publish(eventType string, data any) {
	frame, err := h.encode(eventType, data)
	if err != nil {
		h.logger.Error().Err(err).Str("event", eventType).Msg("failed to encode broadcast")
		return
	}

	var slow []*Client
	h.mu.RLock()
	for _, c := range h.clients {
		if !c.wants(eventType) {
			continue
		}
		select {
		case c.send <- frame:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn().Str("client_id", c.ID).Msg("viewer buffer full, dropping")
		h.unregister(c)
	}
}

// PublishActivity forwards an activity record. It matches the ActivityLog subscriber signature.
func (h *Hub) PublishActivity(rec models.ActivityRecord) {
	h.Publish(TypeActivity, rec)
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*Client)
	for _, c := range clients {
		close(c.send)
	}
	h.mu.Unlock()
	metrics.WSClients.Set(0)
}

func (h *Hub) register(conn *websocket.Conn) *Client {
	c := &Client{
		ID:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	h.clients[c.ID] = c
	n := len(h.clients)
	h.mu.Unlock()

	metrics.WSClients.Set(float64(n))
	h.logger.Info().Str("client_id", c.ID).Int("clients", n).Msg("viewer connected")
	return c
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.ID)
	close(c.send)
	n := len(h.clients)
	h.mu.Unlock()

	metrics.WSClients.Set(float64(n))
	h.logger.Info().Str("client_id", c.ID).Int("clients", n).Msg("viewer disconnected")
}

// sendTo queues a frame for a single client.
func (h *Hub) sendTo(c *Client, eventType string, data any) {
	frame, err := h.encode(eventType, data)
	if err != nil {
		return
	}

	h.mu.RLock()
	_, ok := h.clients[c.ID]
	if ok {
		select {
		case c.send <- frame:
		default:
			ok = false
		}
	}
	h.mu.RUnlock()

	if !ok {
		h.unregister(c)
	}
}

func (h *Hub) encode(eventType string, data any) ([]byte, error) {
	return json.Marshal(Envelope{Type: eventType, Data: data, Timestamp: h.now()})
}
