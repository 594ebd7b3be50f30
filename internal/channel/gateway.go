package channel

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/frankmark94/channel-play-pen/internal/crypto"
	"github.com/frankmark94/channel-play-pen/internal/metrics"
	"github.com/frankmark94/channel-play-pen/internal/models"
)

const (
	DefaultTokenMaxAge    = 300 * time.Second
	DefaultTokenClockSkew = 30 * time.Second
)

// Webhook acknowledgement bodies.
const (
	AckSuccess        = "success"
	AckForbidden      = "forbidden"
	AckNotInitialized = `{"error":"client not initialized"}`
)

// CredentialSource yields the currently active credential. Peek must not
// slide the session expiry; Active does.
type CredentialSource interface {
	Peek() (string, models.Credential, error)
	Active() (string, models.Credential, error)
}

// Gateway authenticates inbound webhook calls and hands their body to a Router.
type Gateway struct {
	codec  *crypto.TokenCodec
	creds  CredentialSource
	router *Router
	maxAge time.Duration
	skew   time.Duration
	logger zerolog.Logger
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithTokenMaxAge sets the oldest token age accepted.
func WithTokenMaxAge(d time.Duration) GatewayOption {
	return func(g *Gateway) {
		if d > 0 {
			g.maxAge = d
		}
	}
}

// WithTokenClockSkew sets how far in the future a token's iat may be.
func WithTokenClockSkew(d time.Duration) GatewayOption {
	return func(g *Gateway) {
		if d >= 0 {
			g.skew = d
		}
	}
}

// NewGateway creates a webhook gateway.
func NewGateway(codec *crypto.TokenCodec, creds CredentialSource, router *Router, logger zerolog.Logger, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		codec:  codec,
		creds:  creds,
		router: router,
		maxAge: DefaultTokenMaxAge,
		skew:   DefaultTokenClockSkew,
		logger: logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Handle processes one inbound call and returns the status and body to answer with.
// It never panics; processing failures are answered with 401.
func (g *Gateway) Handle(authHeader string, body []byte) (status int, message string) {
	defer func() {
		if rec := recover(); rec != nil {
			g.logger.Error().Interface("panic", rec).Msg("webhook handler panic")
			metrics.WebhookRequests.WithLabelValues("indeterminate").Inc()
			status, message = http.StatusUnauthorized, fmt.Sprint(rec)
		}
	}()

	// No client, nothing to verify against. Unauthenticated calls must not
	// keep the session alive, so the expiry slides only after Authorize.
	_, cred, err := g.creds.Peek()
	if err != nil {
		metrics.WebhookRequests.WithLabelValues("not_connected").Inc()
		return http.StatusServiceUnavailable, AckNotInitialized
	}

	token := crypto.BearerToken(authHeader)
	if token == "" {
		return g.forbid("missing_token")
	}

	claims, err := g.codec.Verify(token, cred.SigningSecret)
	switch {
	case errors.Is(err, crypto.ErrInvalidSignature):
		return g.forbid("invalid_signature")
	case errors.Is(err, crypto.ErrMalformed):
		return g.forbid("malformed_token")
	case err != nil:
		return g.indeterminate(err)
	}

	if !g.codec.Authorize(claims, cred.ChannelID, g.maxAge, g.skew) {
		return g.forbid("unauthorized_claims")
	}
	if _, _, err := g.creds.Active(); err != nil {
		metrics.WebhookRequests.WithLabelValues("not_connected").Inc()
		return http.StatusServiceUnavailable, AckNotInitialized
	}

	if err := g.router.Route(body); err != nil {
		return g.indeterminate(err)
	}

	metrics.WebhookRequests.WithLabelValues("accepted").Inc()
	return http.StatusOK, AckSuccess
}

func (g *Gateway) forbid(reason string) (int, string) {
	g.logger.Warn().
		Str("type", "security").
		Str("event", "webhook_rejected").
		Str("reason", reason).
		Msg("rejected webhook request")
	metrics.WebhookRequests.WithLabelValues("forbidden").Inc()
	return http.StatusForbidden, AckForbidden
}

func (g *Gateway) indeterminate(err error) (int, string) {
	g.logger.Warn().Err(err).Msg("webhook request could not be processed")
	metrics.WebhookRequests.WithLabelValues("indeterminate").Inc()
	return http.StatusUnauthorized, err.Error()
}
