package models

// Outbound message API payloads.
const (
	OutboundText     = "text"
	OutboundTyping   = "typing_indicator"
	OutboundWaitTime = "wait_time"
)

// TextMessage is the body of an outbound text send.
type TextMessage struct {
	Type         string   `json:"type"`
	CustomerID   string   `json:"customer_id"`
	CustomerName string   `json:"customer_name"`
	MessageID    string   `json:"message_id"`
	Text         []string `json:"text"`
}

// TypingIndicator is the body of an outbound typing send.
type TypingIndicator struct {
	Type       string `json:"type"`
	CustomerID string `json:"customer_id"`
}

// WaitTime is the body of an outbound wait-time send.
type WaitTime struct {
	Type       string `json:"type"`
	CustomerID string `json:"customer_id"`
	WaitTime   int64  `json:"waitTime"`
}
