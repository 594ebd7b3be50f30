package channel

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotConnected is returned when no credential is active.
	ErrNotConnected = errors.New("DMS client not initialized. Please connect first.")

	// ErrSessionNotFound is returned when a customer has no tracked session.
	ErrSessionNotFound = errors.New("session not found")
)

// ValidationError lists every credential rule a connect request violated.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "invalid credentials: " + strings.Join(e.Errors, "; ")
}

// RemoteRejectedError is returned when the messaging API answers with a non-2xx status.
type RemoteRejectedError struct {
	StatusCode int
	StatusText string
}

func (e *RemoteRejectedError) Error() string {
	return fmt.Sprintf("DMS API error: %d - %s", e.StatusCode, e.StatusText)
}

// TransportError is returned when no response was received from the messaging API.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "DMS API unreachable: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RequestError is returned when a send fails before anything reaches the network,
// e.g. an unparseable API URL or a signing failure.
type RequestError struct {
	Err error
}

func (e *RequestError) Error() string {
	return "could not build DMS request: " + e.Err.Error()
}

func (e *RequestError) Unwrap() error {
	return e.Err
}
