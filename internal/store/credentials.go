package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/frankmark94/channel-play-pen/internal/crypto"
	"github.com/frankmark94/channel-play-pen/internal/metrics"
	"github.com/frankmark94/channel-play-pen/internal/models"
)

const (
	DefaultSessionTimeout = 30 * time.Minute
	DefaultSweepInterval  = 5 * time.Minute
)

// CredentialStore holds credentials keyed by generated session IDs with sliding expiry.
type CredentialStore struct {
	mu       sync.Mutex
	entries  map[string]*models.Session
	timeout  time.Duration
	now      Clock
	newID    func() string
	activity *ActivityLog
	logger   zerolog.Logger
}

// CredentialOption configures a CredentialStore.
type CredentialOption func(*CredentialStore)

// WithSessionTimeout sets the inactivity timeout after which a session is evicted.
func WithSessionTimeout(d time.Duration) CredentialOption {
	return func(s *CredentialStore) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithCredentialClock sets the store's time source.
func WithCredentialClock(now Clock) CredentialOption {
	return func(s *CredentialStore) {
		s.now = now
	}
}

// WithSessionIDs overrides session ID generation.
func WithSessionIDs(newID func() string) CredentialOption {
	return func(s *CredentialStore) {
		s.newID = newID
	}
}

// NewCredentialStore creates a new credential store. Evictions are recorded in activity when non-nil.
func NewCredentialStore(logger zerolog.Logger, activity *ActivityLog, opts ...CredentialOption) *CredentialStore {
	s := &CredentialStore{
		entries:  make(map[string]*models.Session),
		timeout:  DefaultSessionTimeout,
		now:      time.Now,
		newID:    func() string { return crypto.NewUUIDv7().String() },
		activity: activity,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store records a credential under a fresh session ID.
// Format validation is the caller's job; see ValidateCredential.
func (s *CredentialStore) Store(c models.Credential) string {
	now := s.now()

	s.mu.Lock()
	id := s.newID()
	for s.entries[id] != nil {
		id = s.newID()
	}
	s.entries[id] = &models.Session{
		ID:         id,
		Credential: c,
		CreatedAt:  now,
		LastUsedAt: now,
	}
	count := len(s.entries)
	s.mu.Unlock()

	metrics.CredentialSessions.Set(float64(count))

	s.logger.Info().
		Str("session_id", id).
		Str("channel_id", c.ChannelID).
		Str("api_url", c.APIURL).
		Str("jwt_secret_hash", crypto.SecretHash(c.SigningSecret)).
		Msg("storing credentials for session")

	return id
}

// Get returns the credential for a session and slides its expiry.
func (s *CredentialStore) Get(sessionID string) (models.Credential, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[sessionID]
	if !ok {
		return models.Credential{}, false
	}
	entry.LastUsedAt = s.now()
	return entry.Credential, true
}

// Session returns a copy of the stored session without touching it.
func (s *CredentialStore) Session(sessionID string) (models.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[sessionID]
	if !ok {
		return models.Session{}, false
	}
	return *entry, true
}

// Remove deletes a session. Removing an unknown session is a no-op.
func (s *CredentialStore) Remove(sessionID string) {
	s.mu.Lock()
	_, ok := s.entries[sessionID]
	delete(s.entries, sessionID)
	count := len(s.entries)
	s.mu.Unlock()

	if ok {
		metrics.CredentialSessions.Set(float64(count))
		s.logger.Info().Str("session_id", sessionID).Msg("removed credentials for session")
	}
}

// ActiveSessionCount returns the number of stored sessions.
func (s *CredentialStore) ActiveSessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sessions returns secret-free summaries ordered by creation time.
func (s *CredentialStore) Sessions() []models.SessionSummary {
	s.mu.Lock()
	out := make([]models.SessionSummary, 0, len(s.entries))
	for _, entry := range s.entries {
		out = append(out, entry.Summary())
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].SessionID < out[j].SessionID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Sweep evicts every session unused for longer than the timeout and returns their IDs.
func (s *CredentialStore) Sweep() []string {
	now := s.now()

	s.mu.Lock()
	var expired []string
	for id, entry := range s.entries {
		if now.Sub(entry.LastUsedAt) > s.timeout {
			expired = append(expired, id)
			delete(s.entries, id)
		}
	}
	count := len(s.entries)
	s.mu.Unlock()

	if len(expired) == 0 {
		return nil
	}
	metrics.CredentialSessions.Set(float64(count))

	sort.Strings(expired)
	for _, id := range expired {
		s.logger.Info().Str("session_id", id).Msg("cleaning up expired credentials")
		metrics.CredentialEvictions.Inc()

		if s.activity != nil {
			s.activity.Append(models.ActivityRecord{
				Kind:    models.ActivitySystem,
				Message: "Session expired due to inactivity",
				Data:    map[string]any{"session_id": id},
			})
		}
	}
	return expired
}

// Run sweeps on every interval tick until ctx is done.
func (s *CredentialStore) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Clear drops every stored credential.
func (s *CredentialStore) Clear() {
	s.mu.Lock()
	s.entries = make(map[string]*models.Session)
	s.mu.Unlock()

	metrics.CredentialSessions.Set(0)
	s.logger.Info().Msg("credential store cleared")
}
