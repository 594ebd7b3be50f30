package store

import (
	"sort"
	"sync"
	"time"

	"github.com/frankmark94/channel-play-pen/internal/metrics"
	"github.com/frankmark94/channel-play-pen/internal/models"
)

// SessionRegistry tracks one conversation per customer ID.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*models.CustomerSession
	now      Clock
}

// NewSessionRegistry creates an empty registry.
func NewSessionRegistry(now Clock) *SessionRegistry {
	if now == nil {
		now = time.Now
	}
	return &SessionRegistry{
		sessions: make(map[string]*models.CustomerSession),
		now:      now,
	}
}

// Upsert creates an active session for customerID if none exists. An existing
// session is returned untouched. The bool reports whether one was created.
func (r *SessionRegistry) Upsert(customerID, channelID, sessionID string) (models.CustomerSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.sessions[customerID]; ok {
		return *existing, false
	}

	session := &models.CustomerSession{
		CustomerID: customerID,
		ChannelID:  channelID,
		SessionID:  sessionID,
		Status:     models.SessionActive,
		CreatedAt:  r.now(),
	}
	r.sessions[customerID] = session
	metrics.CustomerSessions.Set(float64(len(r.sessions)))
	return *session, true
}

// MarkEnded moves an active session to ended. It is a no-op for unknown
// customers and for sessions that already left the active state.
func (r *SessionRegistry) MarkEnded(customerID string) (models.CustomerSession, bool) {
	return r.transition(customerID, models.SessionEnded)
}

// MarkError moves an active session to the terminal error state.
func (r *SessionRegistry) MarkError(customerID string) (models.CustomerSession, bool) {
	return r.transition(customerID, models.SessionError)
}

func (r *SessionRegistry) transition(customerID string, to models.SessionStatus) (models.CustomerSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[customerID]
	if !ok {
		return models.CustomerSession{}, false
	}
	if session.Status != models.SessionActive {
		return *session, false
	}

	session.Status = to
	if to == models.SessionEnded {
		endedAt := r.now()
		session.EndedAt = &endedAt
	}
	return *session, true
}

// Get returns the session for a customer.
func (r *SessionRegistry) Get(customerID string) (models.CustomerSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[customerID]
	if !ok {
		return models.CustomerSession{}, false
	}
	return *session, true
}

// List returns all sessions ordered by creation time.
func (r *SessionRegistry) List() []models.CustomerSession {
	r.mu.RLock()
	out := make([]models.CustomerSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, *s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CustomerID < out[j].CustomerID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Count returns the number of tracked sessions.
func (r *SessionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Clear forgets every session.
func (r *SessionRegistry) Clear() {
	r.mu.Lock()
	r.sessions = make(map[string]*models.CustomerSession)
	r.mu.Unlock()
	metrics.CustomerSessions.Set(0)
}
