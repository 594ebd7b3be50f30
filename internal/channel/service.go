// Package channel connects the console to a remote messaging system: it owns
// the active credential binding, authenticates and routes inbound webhooks
// and signs outbound sends.
package channel

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/frankmark94/channel-play-pen/internal/crypto"
	"github.com/frankmark94/channel-play-pen/internal/models"
	"github.com/frankmark94/channel-play-pen/internal/store"
)

// Event types published to the Notifier.
const (
	EventMessage  = "message"
	EventStatus   = "status"
	EventTyping   = "typing"
	EventWaitTime = "wait_time"
	EventError    = "error"
)

const DefaultCustomerName = "Customer"

// Notifier fans service events out to viewers.
type Notifier interface {
	Publish(eventType string, data any)
}

// Listener observes every message shown to viewers.
type Listener func(models.InboundMessage)

// Status is the secret-free view of the connection.
type Status struct {
	Connected          bool                     `json:"connected"`
	SessionID          string                   `json:"session_id,omitempty"`
	ChannelID          string                   `json:"channel_id,omitempty"`
	APIURL             string                   `json:"api_url,omitempty"`
	WebhookURL         string                   `json:"webhook_url,omitempty"`
	Sessions           []models.CustomerSession `json:"sessions"`
	SessionCount       int                      `json:"session_count"`
	CredentialSessions int                      `json:"credential_sessions"`
}

type nopNotifier struct{}

func (nopNotifier) Publish(string, any) {}

// Service owns the single active credential binding and the conversations made under it.
type Service struct {
	mu       sync.Mutex
	activeID string

	creds    *store.CredentialStore
	sessions *store.SessionRegistry
	activity *store.ActivityLog
	sender   *Sender
	router   *Router
	gateway  *Gateway
	notifier Notifier
	logger   zerolog.Logger

	customerName string
	webhookURL   string
	gatewayOpts  []GatewayOption
	routerOpts   []RouterOption

	listenersMu  sync.RWMutex
	listeners    map[uint64]Listener
	nextListener uint64
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithNotifier sets where status, message and typing events are published.
func WithNotifier(n Notifier) ServiceOption {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithCustomerName sets the display name used when a send does not supply one.
func WithCustomerName(name string) ServiceOption {
	return func(s *Service) {
		if name != "" {
			s.customerName = name
		}
	}
}

// WithWebhookURL sets the webhook URL recorded on credentials that carry none.
func WithWebhookURL(url string) ServiceOption {
	return func(s *Service) {
		s.webhookURL = url
	}
}

// WithGatewayOptions passes options to the webhook gateway.
func WithGatewayOptions(opts ...GatewayOption) ServiceOption {
	return func(s *Service) {
		s.gatewayOpts = append(s.gatewayOpts, opts...)
	}
}

// WithRouterOptions passes options to the message router.
func WithRouterOptions(opts ...RouterOption) ServiceOption {
	return func(s *Service) {
		s.routerOpts = append(s.routerOpts, opts...)
	}
}

// NewService creates a disconnected service.
func NewService(
	logger zerolog.Logger,
	codec *crypto.TokenCodec,
	creds *store.CredentialStore,
	sessions *store.SessionRegistry,
	activity *store.ActivityLog,
	sender *Sender,
	opts ...ServiceOption,
) *Service {
	s := &Service{
		creds:        creds,
		sessions:     sessions,
		activity:     activity,
		sender:       sender,
		notifier:     nopNotifier{},
		logger:       logger,
		customerName: DefaultCustomerName,
		listeners:    make(map[uint64]Listener),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.router = NewRouter(Handlers{
		Text:       s.onMessage("text"),
		Menu:       s.onMessage("menu"),
		Carousel:   s.onMessage("carousel"),
		URLLink:    s.onMessage("URL link"),
		Typing:     s.onTyping,
		EndSession: s.onEndSession,
		WaitTime:   s.onWaitTime,
	}, s.routerOpts...)
	s.gateway = NewGateway(codec, s, s.router, logger, s.gatewayOpts...)
	return s
}

// Gateway returns the webhook gateway bound to this service.
func (s *Service) Gateway() *Gateway {
	return s.gateway
}

// Connect validates and stores cred and makes it the active binding,
// replacing any previous one.
func (s *Service) Connect(cred models.Credential) (string, error) {
	if result := store.ValidateCredential(cred); !result.Valid {
		return "", &ValidationError{Errors: result.Errors}
	}
	if cred.WebhookURL == "" {
		cred.WebhookURL = s.webhookURL
	}

	id := s.creds.Store(cred)

	s.mu.Lock()
	prev := s.activeID
	s.activeID = id
	s.mu.Unlock()

	if prev != "" {
		s.release(prev)
	}

	s.logger.Info().
		Str("session_id", id).
		Str("channel_id", cred.ChannelID).
		Str("api_url", cred.APIURL).
		Msg("connected to DMS")

	s.activity.Append(models.ActivityRecord{
		Kind:    models.ActivitySystem,
		Message: "Connected to DMS",
		Data: map[string]any{
			"session_id":  id,
			"channel_id":  cred.ChannelID,
			"api_url":     cred.APIURL,
			"webhook_url": cred.WebhookURL,
		},
	})
	s.notifier.Publish(EventStatus, s.Status())
	return id, nil
}

// Disconnect drops the active binding. It is a no-op when nothing is connected.
func (s *Service) Disconnect() {
	s.mu.Lock()
	prev := s.activeID
	s.activeID = ""
	s.mu.Unlock()

	if prev != "" {
		s.release(prev)
	}
	s.notifier.Publish(EventStatus, s.Status())
}

// release forgets a binding that is no longer active.
func (s *Service) release(sessionID string) {
	s.creds.Remove(sessionID)
	s.sessions.Clear()

	s.logger.Info().Str("session_id", sessionID).Msg("disconnected from DMS")
	s.activity.Append(models.ActivityRecord{
		Kind:    models.ActivitySystem,
		Message: "Disconnected from DMS",
		Data:    map[string]any{"session_id": sessionID},
	})
}

// Active returns the active binding and slides its expiry. It returns
// ErrNotConnected when nothing is bound or the binding has expired.
func (s *Service) Active() (string, models.Credential, error) {
	s.mu.Lock()
	id := s.activeID
	s.mu.Unlock()

	if id == "" {
		return "", models.Credential{}, ErrNotConnected
	}

	cred, ok := s.creds.Get(id)
	if !ok {
		s.expire(id)
		return "", models.Credential{}, ErrNotConnected
	}
	return id, cred, nil
}

// Peek returns the active binding without sliding its expiry.
func (s *Service) Peek() (string, models.Credential, error) {
	id, ok := s.ActiveSessionID()
	if !ok {
		return "", models.Credential{}, ErrNotConnected
	}

	session, ok := s.creds.Session(id)
	if !ok {
		s.expire(id)
		return "", models.Credential{}, ErrNotConnected
	}
	return id, session.Credential, nil
}

// expire drops a binding whose credential was evicted by the sweep.
func (s *Service) expire(sessionID string) {
	s.mu.Lock()
	if s.activeID != sessionID {
		s.mu.Unlock()
		return
	}
	s.activeID = ""
	s.mu.Unlock()

	s.sessions.Clear()
	s.logger.Info().Str("session_id", sessionID).Msg("active session expired")
	s.notifier.Publish(EventStatus, s.Status())
}

// ActiveSessionID returns the bound session ID without touching its expiry.
func (s *Service) ActiveSessionID() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID, s.activeID != ""
}

// Status reports the connection without touching the session expiry.
func (s *Service) Status() Status {
	st := Status{
		Sessions:           s.sessions.List(),
		CredentialSessions: s.creds.ActiveSessionCount(),
	}
	st.SessionCount = len(st.Sessions)

	id, ok := s.ActiveSessionID()
	if !ok {
		return st
	}
	session, ok := s.creds.Session(id)
	if !ok {
		return st
	}

	st.Connected = true
	st.SessionID = id
	st.ChannelID = session.Credential.ChannelID
	st.APIURL = session.Credential.APIURL
	st.WebhookURL = session.Credential.WebhookURL
	return st
}

// Sessions returns every tracked customer conversation.
func (s *Service) Sessions() []models.CustomerSession {
	return s.sessions.List()
}

// SendText sends a text message to a customer and returns its message ID.
func (s *Service) SendText(ctx context.Context, customerID, text, customerName string) (string, error) {
	id, cred, err := s.Active()
	if err != nil {
		return "", err
	}
	if customerName == "" {
		customerName = s.customerName
	}

	messageID, err := s.sender.SendText(ctx, cred, customerID, text, customerName)
	if err != nil {
		s.sendFailed(customerID, err)
		return "", err
	}
	s.sessions.Upsert(customerID, cred.ChannelID, id)
	return messageID, nil
}

// SendRich sends a structured message to a customer.
func (s *Service) SendRich(ctx context.Context, customerID string, message any, metadata map[string]any) error {
	id, cred, err := s.Active()
	if err != nil {
		return err
	}

	body := map[string]any{"message": message}
	if metadata != nil {
		body["metadata"] = metadata
	}
	if err := s.sender.SendRich(ctx, cred, customerID, body); err != nil {
		s.sendFailed(customerID, err)
		return err
	}
	s.sessions.Upsert(customerID, cred.ChannelID, id)
	return nil
}

// SendTyping tells the remote the customer is typing.
func (s *Service) SendTyping(ctx context.Context, customerID string) error {
	_, cred, err := s.Active()
	if err != nil {
		return err
	}
	if err := s.sender.SendTyping(ctx, cred, customerID); err != nil {
		s.sendFailed(customerID, err)
		return err
	}
	return nil
}

// SendWaitTime reports a wait time in seconds for a customer.
func (s *Service) SendWaitTime(ctx context.Context, customerID string, seconds int64) error {
	_, cred, err := s.Active()
	if err != nil {
		return err
	}
	if err := s.sender.SendWaitTime(ctx, cred, customerID, seconds); err != nil {
		s.sendFailed(customerID, err)
		return err
	}
	return nil
}

// sendFailed publishes the failure and moves a conversation the remote
// refused outright to the error state.
func (s *Service) sendFailed(customerID string, err error) {
	s.notifier.Publish(EventError, map[string]any{
		"customer_id": customerID,
		"error":       err.Error(),
	})

	var rejected *RemoteRejectedError
	if !errors.As(err, &rejected) {
		return
	}
	if rejected.StatusCode < 400 || rejected.StatusCode >= 500 ||
		rejected.StatusCode == http.StatusRequestTimeout || rejected.StatusCode == http.StatusTooManyRequests {
		return
	}
	if session, changed := s.sessions.MarkError(customerID); changed {
		s.logger.Warn().
			Str("customer_id", customerID).
			Int("status", rejected.StatusCode).
			Str("channel_id", session.ChannelID).
			Msg("customer session moved to error")
	}
}

// EndSession ends a customer conversation from the console side.
func (s *Service) EndSession(customerID, reason string) (models.CustomerSession, error) {
	session, changed := s.sessions.MarkEnded(customerID)
	if !changed {
		// Already terminal: answer with the current state and record nothing.
		if session.CustomerID == "" {
			return models.CustomerSession{}, ErrSessionNotFound
		}
		return session, nil
	}

	s.activity.Append(models.ActivityRecord{
		Kind:    models.ActivitySystem,
		Message: "Session ended by customer",
		Data:    map[string]any{"customer_id": customerID, "reason": reason},
	})
	s.logger.Info().Str("customer_id", customerID).Str("reason", reason).Msg("session ended")
	s.publishMessage(s.systemMessage(customerID, "Session ended by customer"))
	return session, nil
}

// Subscribe registers l for every message published to viewers. The
// returned function removes it.
func (s *Service) Subscribe(l Listener) func() {
	s.listenersMu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = l
	s.listenersMu.Unlock()

	return func() {
		s.listenersMu.Lock()
		delete(s.listeners, id)
		s.listenersMu.Unlock()
	}
}

func (s *Service) publishMessage(msg models.InboundMessage) {
	s.notifier.Publish(EventMessage, msg)

	s.listenersMu.RLock()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.listenersMu.RUnlock()

	for _, l := range listeners {
		l(msg)
	}
}

func (s *Service) systemMessage(customerID, text string) models.InboundMessage {
	return models.InboundMessage{
		ID:         uuid.NewString(),
		CustomerID: customerID,
		Kind:       models.KindSystem,
		Content:    text,
		Timestamp:  s.router.now(),
	}
}

func (s *Service) onMessage(label string) func(models.InboundMessage) {
	return func(msg models.InboundMessage) {
		s.logger.Info().
			Str("customer_id", msg.CustomerID).
			Str("message_id", msg.ID).
			Str("message_type", string(msg.Kind)).
			Msg("received message from DMS")

		if id, ok := s.ActiveSessionID(); ok {
			if session, ok := s.creds.Session(id); ok {
				s.sessions.Upsert(msg.CustomerID, session.Credential.ChannelID, id)
			}
		}

		s.activity.Append(models.ActivityRecord{
			Kind:    models.ActivityResponse,
			Message: "Received " + label + " message from DMS",
			Data:    msg,
		})
		s.publishMessage(msg)
	}
}

func (s *Service) onTyping(customerID string) {
	s.activity.Append(models.ActivityRecord{
		Kind:    models.ActivitySystem,
		Message: "CSR is typing",
		Data:    map[string]any{"customer_id": customerID},
	})
	s.notifier.Publish(EventTyping, map[string]any{"customer_id": customerID, "is_typing": true})
}

func (s *Service) onEndSession(customerID string) {
	s.logger.Info().Str("customer_id", customerID).Msg("CSR ended session")

	s.sessions.MarkEnded(customerID)
	s.activity.Append(models.ActivityRecord{
		Kind:    models.ActivitySystem,
		Message: "CSR ended session",
		Data:    map[string]any{"customer_id": customerID},
	})
	s.publishMessage(s.systemMessage(customerID, "Session ended by CSR"))
}

func (s *Service) onWaitTime(ev models.WaitTimeEvent) {
	s.activity.Append(models.ActivityRecord{
		Kind:    models.ActivitySystem,
		Message: "Wait time update",
		Data:    ev,
	})
	s.notifier.Publish(EventWaitTime, ev)
}
