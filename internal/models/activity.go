package models

import "time"

// ActivityKind classifies an operational record.
type ActivityKind string

const (
	ActivityRequest  ActivityKind = "request"
	ActivityResponse ActivityKind = "response"
	ActivityError    ActivityKind = "error"
	ActivitySystem   ActivityKind = "system"
)

// ActivityRecord is a single entry of the activity log.
type ActivityRecord struct {
	ID         string       `json:"id"` // ULID
	Timestamp  time.Time    `json:"timestamp"`
	Kind       ActivityKind `json:"type"`
	Method     string       `json:"method,omitempty"`
	Endpoint   string       `json:"endpoint,omitempty"`
	Message    string       `json:"message"`
	Data       any          `json:"data,omitempty"`
	DurationMS *int64       `json:"duration_ms,omitempty"`
	StatusCode int          `json:"status_code,omitempty"`
}
