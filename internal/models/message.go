package models

import "time"

// MessageKind is the canonical kind of a message shown to viewers.
type MessageKind string

const (
	KindText     MessageKind = "text"
	KindMenu     MessageKind = "menu"
	KindCarousel MessageKind = "carousel"
	KindURLLink  MessageKind = "url_link"
	KindTyping   MessageKind = "typing"
	KindSystem   MessageKind = "system"
)

// InboundMessage is the canonical record built from a webhook payload.
// Structured kinds carry their JSON-encoded fields in Content.
type InboundMessage struct {
	ID         string         `json:"id"`
	CustomerID string         `json:"customer_id"`
	Kind       MessageKind    `json:"message_type"`
	Content    string         `json:"content"`
	Timestamp  time.Time      `json:"timestamp"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// WaitTimeEvent reports the remote's estimated wait for a customer.
type WaitTimeEvent struct {
	CustomerID string `json:"customer_id"`
	Seconds    int64  `json:"wait_time"`
}
