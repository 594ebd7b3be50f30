package models

import "time"

// SessionStatus is the state of a customer conversation.
type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionEnded  SessionStatus = "ended"
	SessionError  SessionStatus = "error" // terminal
)

// CustomerSession is the conversation state between the console and one customer.
type CustomerSession struct {
	CustomerID string        `json:"customer_id"`
	ChannelID  string        `json:"channel_id"`
	SessionID  string        `json:"session_id"` // active credential session at creation time
	Status     SessionStatus `json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
	EndedAt    *time.Time    `json:"ended_at,omitempty"`
}
