package models

import (
	"bytes"
	"encoding/json"
)

// Inbound webhook event types.
const (
	EventText       = "text"
	EventMenu       = "menu"
	EventCarousel   = "carousel"
	EventLinkButton = "link_button"
	EventTyping     = "typing_indicator"
	EventEndSession = "csr_end_session"
	EventWaitTime   = "wait_time"
)

// WebhookPayload is the union of fields the remote sends on the webhook.
type WebhookPayload struct {
	Type        string          `json:"type"`
	CustomerID  string          `json:"customer_id"`
	MessageID   string          `json:"message_id,omitempty"`
	CSRName     string          `json:"csr_name,omitempty"`
	Text        TextLines       `json:"text,omitempty"`
	Title       string          `json:"title,omitempty"`
	Label       string          `json:"label,omitempty"`
	URL         string          `json:"url,omitempty"`
	Items       json.RawMessage `json:"items,omitempty"`
	Attachments json.RawMessage `json:"attachments,omitempty"`
	WaitTime    json.Number     `json:"waitTime,omitempty"`
	Timestamp   json.RawMessage `json:"timestamp,omitempty"`
}

// TextLines accepts either a JSON string or an array of strings.
type TextLines []string

// UnmarshalJSON implements json.Unmarshaler.
func (t *TextLines) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*t = nil
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = TextLines{s}
		return nil
	}
	var lines []string
	if err := json.Unmarshal(data, &lines); err != nil {
		return err
	}
	*t = lines
	return nil
}
