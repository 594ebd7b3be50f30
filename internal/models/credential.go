package models

import (
	"fmt"
	"time"
)

// Credential is the channel identity used to exchange messages with one remote endpoint.
type Credential struct {
	SigningSecret string `json:"jwt_secret"`
	ChannelID     string `json:"channel_id"`
	APIURL        string `json:"api_url"`
	WebhookURL    string `json:"webhook_url,omitempty"`
}

// String keeps the signing secret out of formatted output.
func (c Credential) String() string {
	return fmt.Sprintf("Credential{channel_id=%s api_url=%s}", c.ChannelID, c.APIURL)
}

// Session binds a stored credential to a generated identifier.
type Session struct {
	ID         string
	Credential Credential
	CreatedAt  time.Time
	LastUsedAt time.Time
}

// SessionSummary is the secret-free view of a Session used in API responses.
type SessionSummary struct {
	SessionID  string    `json:"session_id"`
	ChannelID  string    `json:"channel_id"`
	APIURL     string    `json:"api_url"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at"`
}

// Summary returns the secret-free view of the session.
func (s Session) Summary() SessionSummary {
	return SessionSummary{
		SessionID:  s.ID,
		ChannelID:  s.Credential.ChannelID,
		APIURL:     s.Credential.APIURL,
		CreatedAt:  s.CreatedAt,
		LastUsedAt: s.LastUsedAt,
	}
}
