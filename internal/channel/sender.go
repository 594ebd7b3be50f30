package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/frankmark94/channel-play-pen/internal/crypto"
	"github.com/frankmark94/channel-play-pen/internal/metrics"
	"github.com/frankmark94/channel-play-pen/internal/models"
	"github.com/frankmark94/channel-play-pen/internal/store"
)

const DefaultOutboundTimeout = 10 * time.Second

// Sender posts signed messages to a credential's messaging API. Every send
// appends exactly one activity record, whatever the outcome.
type Sender struct {
	client   *http.Client
	codec    *crypto.TokenCodec
	activity *store.ActivityLog
	logger   zerolog.Logger
	newID    func() string
	now      func() time.Time
}

// SenderOption configures a Sender.
type SenderOption func(*Sender)

// WithHTTPClient sets the HTTP client used for sends.
func WithHTTPClient(c *http.Client) SenderOption {
	return func(s *Sender) {
		s.client = c
	}
}

// WithOutboundTimeout sets the per-request timeout of the default client.
func WithOutboundTimeout(d time.Duration) SenderOption {
	return func(s *Sender) {
		if d > 0 {
			s.client = &http.Client{Timeout: d}
		}
	}
}

// WithSenderClock sets the time source used to measure send durations.
func WithSenderClock(now func() time.Time) SenderOption {
	return func(s *Sender) {
		s.now = now
	}
}

// WithOutboundMessageIDs overrides generation of outbound message IDs.
func WithOutboundMessageIDs(newID func() string) SenderOption {
	return func(s *Sender) {
		s.newID = newID
	}
}

// NewSender creates a new sender.
func NewSender(codec *crypto.TokenCodec, activity *store.ActivityLog, logger zerolog.Logger, opts ...SenderOption) *Sender {
	s := &Sender{
		client:   &http.Client{Timeout: DefaultOutboundTimeout},
		codec:    codec,
		activity: activity,
		logger:   logger,
		newID:    func() string { return uuid.NewString() },
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// send describes one outbound call and how it is reported.
type send struct {
	method  string // activity method name and metric kind
	action  string // activity message fragment, e.g. "text message"
	payload any
	data    map[string]any
}

// SendText posts a text message and returns its generated message ID.
func (s *Sender) SendText(ctx context.Context, cred models.Credential, customerID, text, customerName string) (string, error) {
	messageID := s.newID()
	err := s.do(ctx, cred, send{
		method: "sendTextMessage",
		action: "text message",
		payload: models.TextMessage{
			Type:         models.OutboundText,
			CustomerID:   customerID,
			CustomerName: customerName,
			MessageID:    messageID,
			Text:         []string{text},
		},
		data: map[string]any{
			"customer_id": customerID,
			"message_id":  messageID,
			"message":     text,
		},
	})
	return messageID, err
}

// SendRich posts a caller-built structured message. customer_id is added when missing.
func (s *Sender) SendRich(ctx context.Context, cred models.Credential, customerID string, message map[string]any) error {
	body := make(map[string]any, len(message)+1)
	for k, v := range message {
		body[k] = v
	}
	if _, ok := body["customer_id"]; !ok {
		body["customer_id"] = customerID
	}

	return s.do(ctx, cred, send{
		method:  "sendMessage",
		action:  "rich message",
		payload: body,
		data: map[string]any{
			"customer_id": customerID,
			"message":     message,
		},
	})
}

// SendTyping posts a typing indicator.
func (s *Sender) SendTyping(ctx context.Context, cred models.Credential, customerID string) error {
	return s.do(ctx, cred, send{
		method: "sendTypingIndicator",
		action: "typing indicator",
		payload: models.TypingIndicator{
			Type:       models.OutboundTyping,
			CustomerID: customerID,
		},
		data: map[string]any{"customer_id": customerID},
	})
}

// SendWaitTime posts an estimated wait time in seconds.
func (s *Sender) SendWaitTime(ctx context.Context, cred models.Credential, customerID string, seconds int64) error {
	return s.do(ctx, cred, send{
		method: "sendWaitTime",
		action: "wait time",
		payload: models.WaitTime{
			Type:       models.OutboundWaitTime,
			CustomerID: customerID,
			WaitTime:   seconds,
		},
		data: map[string]any{
			"customer_id": customerID,
			"wait_time":   seconds,
		},
	})
}

func (s *Sender) do(ctx context.Context, cred models.Credential, call send) error {
	start := s.now()

	status, statusText, err := s.post(ctx, cred, call.payload)
	elapsed := s.now().Sub(start)
	durationMS := elapsed.Milliseconds()
	metrics.OutboundDuration.WithLabelValues(call.method).Observe(elapsed.Seconds())

	rec := models.ActivityRecord{
		Method:     call.method,
		Endpoint:   cred.APIURL,
		Data:       call.data,
		DurationMS: &durationMS,
	}

	switch {
	case err != nil:
		call.data["error"] = err.Error()
		rec.Kind = models.ActivityError
		rec.Message = "Failed to send " + call.action
		s.activity.Append(rec)

		outcome := "transport_error"
		var reqErr *RequestError
		if errors.As(err, &reqErr) {
			outcome = "request_error"
		}
		metrics.OutboundSends.WithLabelValues(call.method, outcome).Inc()

		s.logger.Error().Err(err).
			Str("method", call.method).
			Str("api_url", cred.APIURL).
			Str("outcome", outcome).
			Int64("duration_ms", durationMS).
			Msg("outbound send failed")
		return err

	case status < 200 || status >= 300:
		call.data["status"] = status
		call.data["statusText"] = statusText
		rec.Kind = models.ActivityError
		rec.Message = "DMS API returned error status"
		rec.StatusCode = status
		s.activity.Append(rec)
		metrics.OutboundSends.WithLabelValues(call.method, "rejected").Inc()

		s.logger.Warn().
			Str("method", call.method).
			Int("status", status).
			Int64("duration_ms", durationMS).
			Msg("outbound send rejected")
		return &RemoteRejectedError{StatusCode: status, StatusText: statusText}
	}

	call.data["status"] = status
	rec.Kind = models.ActivityResponse
	rec.Message = fmt.Sprintf("Sent %s to DMS - %s", call.action, statusText)
	rec.StatusCode = status
	s.activity.Append(rec)
	metrics.OutboundSends.WithLabelValues(call.method, "success").Inc()

	s.logger.Info().
		Str("method", call.method).
		Int("status", status).
		Int64("duration_ms", durationMS).
		Msg("outbound send delivered")
	return nil
}

// post performs the signed POST. Failures before the request leaves are
// *RequestError; a request that got no response is *TransportError.
func (s *Sender) post(ctx context.Context, cred models.Credential, payload any) (int, string, error) {
	req, err := s.newRequest(ctx, cred, payload)
	if err != nil {
		return 0, "", &RequestError{Err: err}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, "", &TransportError{Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, statusText(resp), nil
}

func (s *Sender) newRequest(ctx context.Context, cred models.Credential, payload any) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	token, err := s.codec.Sign(cred.ChannelID, cred.SigningSecret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cred.APIURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("authorization", "Bearer "+token)
	req.Header.Set("connection_id", cred.ChannelID)
	return req, nil
}

// statusText returns the reason phrase, e.g. "OK" for "200 OK".
func statusText(resp *http.Response) string {
	if _, text, ok := strings.Cut(resp.Status, " "); ok && text != "" {
		return text
	}
	return http.StatusText(resp.StatusCode)
}
