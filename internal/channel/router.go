package channel

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/frankmark94/channel-play-pen/internal/metrics"
	"github.com/frankmark94/channel-play-pen/internal/models"
)

// Handlers receive routed webhook events. A nil handler drops its event.
type Handlers struct {
	Text       func(models.InboundMessage)
	Menu       func(models.InboundMessage)
	Carousel   func(models.InboundMessage)
	URLLink    func(models.InboundMessage)
	Typing     func(customerID string)
	EndSession func(customerID string)
	WaitTime   func(models.WaitTimeEvent)
}

// Router dispatches webhook payloads to exactly one handler by their type tag.
type Router struct {
	handlers Handlers
	now      func() time.Time
	newID    func() string
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithRouterClock sets the time used when a payload carries no timestamp.
func WithRouterClock(now func() time.Time) RouterOption {
	return func(r *Router) {
		r.now = now
	}
}

// WithMessageIDs overrides the IDs given to payloads without a message_id.
func WithMessageIDs(newID func() string) RouterOption {
	return func(r *Router) {
		r.newID = newID
	}
}

// NewRouter creates a router over the given handlers.
func NewRouter(h Handlers, opts ...RouterOption) *Router {
	r := &Router{
		handlers: h,
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route decodes body and invokes the handler for its type. Unknown types are
// ignored and return nil.
func (r *Router) Route(body []byte) error {
	var p models.WebhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return fmt.Errorf("decode webhook payload: %w", err)
	}
	return r.Dispatch(p)
}

// Dispatch invokes the handler for an already decoded payload.
func (r *Router) Dispatch(p models.WebhookPayload) error {
	switch p.Type {
	case models.EventText:
		msg := r.message(p, models.KindText, strings.Join(p.Text, " "))
		if len(p.Attachments) > 0 {
			msg.Metadata["attachments"] = p.Attachments
		}
		r.deliver(p.Type, r.handlers.Text, msg)

	case models.EventMenu:
		content, err := encodeContent(struct {
			Title string          `json:"title,omitempty"`
			Items json.RawMessage `json:"items,omitempty"`
		}{p.Title, p.Items})
		if err != nil {
			return err
		}
		r.deliver(p.Type, r.handlers.Menu, r.message(p, models.KindMenu, content))

	case models.EventCarousel:
		content, err := encodeContent(struct {
			Items json.RawMessage `json:"items,omitempty"`
		}{p.Items})
		if err != nil {
			return err
		}
		r.deliver(p.Type, r.handlers.Carousel, r.message(p, models.KindCarousel, content))

	case models.EventLinkButton:
		content, err := encodeContent(struct {
			Title string `json:"title,omitempty"`
			Label string `json:"label,omitempty"`
			URL   string `json:"url,omitempty"`
		}{p.Title, p.Label, p.URL})
		if err != nil {
			return err
		}
		r.deliver(p.Type, r.handlers.URLLink, r.message(p, models.KindURLLink, content))

	case models.EventTyping:
		metrics.InboundEvents.WithLabelValues(p.Type).Inc()
		if r.handlers.Typing != nil {
			r.handlers.Typing(p.CustomerID)
		}

	case models.EventEndSession:
		metrics.InboundEvents.WithLabelValues(p.Type).Inc()
		if r.handlers.EndSession != nil {
			r.handlers.EndSession(p.CustomerID)
		}

	case models.EventWaitTime:
		seconds, err := waitSeconds(p.WaitTime)
		if err != nil {
			return err
		}
		metrics.InboundEvents.WithLabelValues(p.Type).Inc()
		if r.handlers.WaitTime != nil {
			r.handlers.WaitTime(models.WaitTimeEvent{CustomerID: p.CustomerID, Seconds: seconds})
		}
	}
	return nil
}

func (r *Router) deliver(tag string, fn func(models.InboundMessage), msg models.InboundMessage) {
	metrics.InboundEvents.WithLabelValues(tag).Inc()
	if fn != nil {
		fn(msg)
	}
}

func (r *Router) message(p models.WebhookPayload, kind models.MessageKind, content string) models.InboundMessage {
	id := p.MessageID
	if id == "" {
		id = r.newID()
	}

	metadata := map[string]any{}
	if p.CSRName != "" {
		metadata["csr_name"] = p.CSRName
	}

	return models.InboundMessage{
		ID:         id,
		CustomerID: p.CustomerID,
		Kind:       kind,
		Content:    content,
		Timestamp:  r.timestamp(p.Timestamp),
		Metadata:   metadata,
	}
}

// timestamp accepts an RFC 3339 string or Unix milliseconds, else now.
func (r *Router) timestamp(raw json.RawMessage) time.Time {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return r.now()
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t
		}
		return r.now()
	}

	var ms int64
	if err := json.Unmarshal(raw, &ms); err == nil && ms > 0 {
		return time.UnixMilli(ms).UTC()
	}
	return r.now()
}

func waitSeconds(n json.Number) (int64, error) {
	if n == "" {
		return 0, nil
	}
	if v, err := n.Int64(); err == nil {
		return v, nil
	}
	f, err := n.Float64()
	if err != nil {
		return 0, fmt.Errorf("invalid waitTime %q: %w", n, err)
	}
	return int64(f), nil
}

func encodeContent(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode message content: %w", err)
	}
	return string(b), nil
}
