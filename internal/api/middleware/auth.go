package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

type contextKey string

const SessionContextKey contextKey = "session"

// SessionHeader optionally scopes an API call to one credential session.
const SessionHeader = "X-Session-ID"

// SessionSource reports the currently bound credential session.
type SessionSource interface {
	ActiveSessionID() (string, bool)
}

// SessionMiddleware rejects calls made on behalf of a session that is not the active one.
type SessionMiddleware struct {
	source SessionSource
}

// NewSessionMiddleware creates a new session middleware.
func NewSessionMiddleware(source SessionSource) *SessionMiddleware {
	return &SessionMiddleware{source: source}
}

// RequireSession checks the X-Session-ID header when present. Calls without
// the header pass through unscoped.
func (m *SessionMiddleware) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.Header.Get(SessionHeader)
		if sessionID == "" {
			next.ServeHTTP(w, r)
			return
		}

		active, ok := m.source.ActiveSessionID()
		if !ok || active != sessionID {
			jsonError(w, http.StatusUnauthorized, "unknown session")
			return
		}

		// Add session to context
		ctx := context.WithValue(r.Context(), SessionContextKey, sessionID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"success":   false,
		"error":     message,
		"timestamp": time.Now().UTC(),
	})
}

// GetSessionFromContext returns the session ID the request was scoped to, or "".
func GetSessionFromContext(ctx context.Context) string {
	id, _ := ctx.Value(SessionContextKey).(string)
	return id
}
