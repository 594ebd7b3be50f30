package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/frankmark94/channel-play-pen/internal/channel"
	"github.com/frankmark94/channel-play-pen/internal/store"
)

const (
	DefaultActivityPage = 100
	statusActivityPage  = 50

	DefaultMaxWebhookBody int64 = 1 << 20
)

// ViewerCounter reports connected websocket viewers.
type ViewerCounter interface {
	Count() int
}

// Envelope is the body of every API response.
type Envelope struct {
	Success   bool      `json:"success"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	svc      *channel.Service
	activity *store.ActivityLog
	redis    *store.RedisStore
	viewers  ViewerCounter
	maxBody  int64
	started  time.Time
	now      func() time.Time
}

// Option configures a Handler.
type Option func(*Handler)

// WithViewers reports the websocket viewer count in stats and health.
func WithViewers(v ViewerCounter) Option {
	return func(h *Handler) {
		h.viewers = v
	}
}

// WithMaxWebhookBody caps the webhook body read into memory.
func WithMaxWebhookBody(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxBody = n
		}
	}
}

// WithClock sets the handler time source.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		h.now = now
	}
}

// NewHandler creates a new Handler. redis may be nil.
func NewHandler(svc *channel.Service, activity *store.ActivityLog, redis *store.RedisStore, opts ...Option) *Handler {
	h := &Handler{
		svc:      svc,
		activity: activity,
		redis:    redis,
		maxBody:  DefaultMaxWebhookBody,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.started = h.now()
	return h
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// OK sends a successful envelope.
func (h *Handler) OK(w http.ResponseWriter, data any) {
	h.JSON(w, http.StatusOK, Envelope{Success: true, Data: data, Timestamp: h.now().UTC()})
}

// Error sends a failed envelope with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.Fail(w, status, message, nil)
}

// Fail sends a failed envelope carrying additional data, such as itemized errors.
func (h *Handler) Fail(w http.ResponseWriter, status int, message string, data any) {
	h.JSON(w, status, Envelope{Success: false, Error: message, Data: data, Timestamp: h.now().UTC()})
}

// decode reads a JSON body into v, answering 400 on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// sanitizeName trims and limits name to 100 characters, removing control characters.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)

	// Remove control characters
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)

	// Limit to 100 characters
	if runes := []rune(name); len(runes) > 100 {
		name = string(runes[:100])
	}

	return name
}
