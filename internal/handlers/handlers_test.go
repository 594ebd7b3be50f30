package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frankmark94/channel-play-pen/internal/channel"
	"github.com/frankmark94/channel-play-pen/internal/crypto"
	"github.com/frankmark94/channel-play-pen/internal/store"
)

const testSecret = "super-secret-signing-key"

type fixedViewers int

func (v fixedViewers) Count() int { return int(v) }

type handlerFixture struct {
	now      time.Time
	codec    *crypto.TokenCodec
	activity *store.ActivityLog
	svc      *channel.Service
	h        *Handler
	remote   *httptest.Server
	status   atomic.Int32
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	f := &handlerFixture{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	f.status.Store(http.StatusOK)
	f.remote = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(f.status.Load()))
	}))
	t.Cleanup(f.remote.Close)

	clock := func() time.Time { return f.now }
	f.codec = crypto.NewTokenCodec(crypto.WithTokenClock(clock))
	f.activity = store.NewActivityLog(store.WithActivityClock(clock))
	creds := store.NewCredentialStore(zerolog.Nop(), f.activity, store.WithCredentialClock(clock))
	sessions := store.NewSessionRegistry(clock)
	sender := channel.NewSender(f.codec, f.activity, zerolog.Nop(), channel.WithSenderClock(clock))
	f.svc = channel.NewService(zerolog.Nop(), f.codec, creds, sessions, f.activity, sender,
		channel.WithWebhookURL("https://hooks.example/dms"),
		channel.WithRouterOptions(channel.WithRouterClock(clock)),
	)
	f.h = NewHandler(f.svc, f.activity, nil, WithViewers(fixedViewers(2)), WithClock(clock))
	return f
}

func (f *handlerFixture) connect(t *testing.T) string {
	t.Helper()
	id, err := f.svc.Connect(credentialFor(f.remote.URL))
	require.NoError(t, err)
	return id
}

func do(handler http.HandlerFunc, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func TestConnect(t *testing.T) {
	f := newHandlerFixture(t)

	rec := do(f.h.Connect, http.MethodPost, "/api/connect",
		`{"customer_id":"cust-1","jwt_secret":"`+testSecret+`","channel_id":"chan-1","api_url":"`+f.remote.URL+`"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.True(t, env.Success)

	var data ConnectResponse
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.True(t, data.Connected)
	assert.Equal(t, "cust-1", data.CustomerID)
	assert.Equal(t, "chan-1", data.ChannelID)
	assert.NotEmpty(t, data.SessionID)
	assert.Equal(t, "Connected successfully with your credentials", data.Message)
	assert.NotContains(t, rec.Body.String(), testSecret)
}

func TestConnectValidation(t *testing.T) {
	f := newHandlerFixture(t)

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"missing customer", `{"jwt_secret":"` + testSecret + `","channel_id":"c","api_url":"https://dms.example/api"}`, "customer_id"},
		{"short secret", `{"customer_id":"a","jwt_secret":"short","channel_id":"c","api_url":"https://dms.example/api"}`, "jwt_secret"},
		{"bad uri", `{"customer_id":"a","jwt_secret":"` + testSecret + `","channel_id":"c","api_url":"not a uri"}`, "api_url"},
		{"long channel", `{"customer_id":"a","jwt_secret":"` + testSecret + `","channel_id":"` + strings.Repeat("c", 101) + `","api_url":"https://dms.example/api"}`, "channel_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(f.h.Connect, http.MethodPost, "/api/connect", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)

			env := decodeEnvelope(t, rec)
			assert.False(t, env.Success)
			assert.Equal(t, "Validation failed", env.Error)

			var data struct {
				Errors []FieldError `json:"errors"`
			}
			require.NoError(t, json.Unmarshal(env.Data, &data))
			require.Len(t, data.Errors, 1)
			assert.Equal(t, tt.field, data.Errors[0].Field)
		})
	}
}

func TestConnectRejectsInvalidJSON(t *testing.T) {
	f := newHandlerFixture(t)
	rec := do(f.h.Connect, http.MethodPost, "/api/connect", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDisconnect(t *testing.T) {
	f := newHandlerFixture(t)
	f.connect(t)

	rec := do(f.h.Disconnect, http.MethodPost, "/api/disconnect", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, f.svc.Status().Connected)
}

func TestSendMessage(t *testing.T) {
	f := newHandlerFixture(t)
	f.connect(t)

	rec := do(f.h.SendMessage, http.MethodPost, "/api/send-message",
		`{"customer_id":"cust-1","message":"hello","message_type":"text"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var data SendMessageResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &data))
	assert.True(t, data.MessageSent)
	assert.Equal(t, "text", data.MessageType)
	assert.NotEmpty(t, data.MessageID)

	sessions := f.svc.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, "cust-1", sessions[0].CustomerID)
}

func TestSendRichContent(t *testing.T) {
	f := newHandlerFixture(t)
	f.connect(t)

	rec := do(f.h.SendMessage, http.MethodPost, "/api/send-message",
		`{"customer_id":"cust-1","message":{"type":"menu","items":[]},"message_type":"rich_content"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, f.svc.Sessions(), 1)
}

func TestSendMessageValidation(t *testing.T) {
	f := newHandlerFixture(t)
	f.connect(t)

	tests := []struct {
		name string
		body string
	}{
		{"no message", `{"customer_id":"cust-1"}`},
		{"empty text", `{"customer_id":"cust-1","message":""}`},
		{"too long", `{"customer_id":"cust-1","message":"` + strings.Repeat("x", maxMessageRunes+1) + `"}`},
		{"bad type", `{"customer_id":"cust-1","message":"hi","message_type":"voice"}`},
		{"text not string", `{"customer_id":"cust-1","message":{"a":1}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(f.h.SendMessage, http.MethodPost, "/api/send-message", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestSendErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		connect    bool
		remote     int32
		wantStatus int
	}{
		{"not connected", false, http.StatusOK, http.StatusServiceUnavailable},
		{"remote rejected", true, http.StatusBadRequest, http.StatusBadGateway},
		{"remote failure", true, http.StatusInternalServerError, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newHandlerFixture(t)
			if tt.connect {
				f.connect(t)
			}
			f.status.Store(tt.remote)

			rec := do(f.h.SendMessage, http.MethodPost, "/api/send-message",
				`{"customer_id":"cust-1","message":"hello"}`)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.False(t, decodeEnvelope(t, rec).Success)
		})
	}
}

func TestSendTransportFailure(t *testing.T) {
	f := newHandlerFixture(t)
	f.connect(t)
	f.remote.Close()

	rec := do(f.h.Typing, http.MethodPost, "/api/typing", `{"customer_id":"cust-1"}`)
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestTypingAndWaitTime(t *testing.T) {
	f := newHandlerFixture(t)
	f.connect(t)

	rec := do(f.h.Typing, http.MethodPost, "/api/typing", `{"customer_id":"cust-1"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(f.h.WaitTime, http.MethodPost, "/api/wait-time", `{"customer_id":"cust-1","wait_time":30}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(f.h.WaitTime, http.MethodPost, "/api/wait-time", `{"customer_id":"cust-1","wait_time":-1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(f.h.WaitTime, http.MethodPost, "/api/wait-time", `{"customer_id":"cust-1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Empty(t, f.svc.Sessions())
}

func TestEndSession(t *testing.T) {
	f := newHandlerFixture(t)
	f.connect(t)

	rec := do(f.h.EndSession, http.MethodPost, "/api/end-session", `{"customer_id":"nobody"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(f.h.SendMessage, http.MethodPost, "/api/send-message", `{"customer_id":"cust-1","message":"hi"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(f.h.EndSession, http.MethodPost, "/api/end-session", `{"customer_id":"cust-1","reason":"done"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ended", string(f.svc.Sessions()[0].Status))
	ended := f.activity.Len()

	rec = do(f.h.EndSession, http.MethodPost, "/api/end-session", `{"customer_id":"cust-1","reason":"done"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ended, f.activity.Len())

	rec = do(f.h.EndSession, http.MethodPost, "/api/end-session",
		`{"customer_id":"cust-1","reason":"`+strings.Repeat("r", maxReasonRunes+1)+`"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusActivityAndSessions(t *testing.T) {
	f := newHandlerFixture(t)
	f.connect(t)

	rec := do(f.h.Status, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var status struct {
		Connection     channel.Status    `json:"connection"`
		RecentActivity []json.RawMessage `json:"recent_activity"`
	}
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &status))
	assert.True(t, status.Connection.Connected)
	assert.NotEmpty(t, status.RecentActivity)
	assert.NotContains(t, rec.Body.String(), testSecret)

	var page struct {
		Logs  []json.RawMessage `json:"logs"`
		Count int               `json:"count"`
	}
	rec = do(f.h.Activity, http.MethodGet, "/api/activity?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &page))
	assert.Equal(t, 1, page.Count)

	rec = do(f.h.Activity, http.MethodGet, "/api/activity?limit=0", "")
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &page))
	assert.Equal(t, 1, page.Count)

	rec = do(f.h.Activity, http.MethodGet, "/api/activity?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(f.h.Sessions, http.MethodGet, "/api/sessions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":0`)
}

func TestWebhook(t *testing.T) {
	f := newHandlerFixture(t)

	rec := do(f.h.Webhook, http.MethodPost, "/dms", `{"type":"text","customer_id":"c","text":"hi"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, channel.AckNotInitialized, rec.Body.String())

	f.connect(t)

	rec = do(f.h.Webhook, http.MethodPost, "/dms", `{"type":"text","customer_id":"c","text":"hi"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	token, err := f.codec.Sign("chan-1", testSecret)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/dms", strings.NewReader(`{"type":"text","customer_id":"c","text":"hi"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	f.h.Webhook(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, channel.AckSuccess, rec.Body.String())
	assert.Len(t, f.svc.Sessions(), 1)
}

func TestWebhookOversizedBody(t *testing.T) {
	f := newHandlerFixture(t)
	f.h = NewHandler(f.svc, f.activity, nil, WithMaxWebhookBody(16))
	f.connect(t)

	rec := do(f.h.Webhook, http.MethodPost, "/dms", `{"type":"text","customer_id":"c","text":"hi"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, errWebhookTooLarge.Error(), rec.Body.String())
	assert.Empty(t, f.svc.Sessions())
}

func TestWebhookInfo(t *testing.T) {
	f := newHandlerFixture(t)
	rec := do(f.h.WebhookInfo, http.MethodGet, "/dms", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"connected":false`)
}

func TestHealth(t *testing.T) {
	f := newHandlerFixture(t)
	f.now = f.now.Add(90 * time.Second)

	rec := do(f.h.Health, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "not configured", resp.Checks["redis"].Message)
	assert.Equal(t, "disconnected", resp.Checks["dms"].Message)
	assert.Equal(t, "1m30s", resp.Uptime)
}

func TestStats(t *testing.T) {
	f := newHandlerFixture(t)
	f.connect(t)
	f.now = f.now.Add(2 * time.Hour)

	rec := do(f.h.Stats, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats StatsResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &stats))
	assert.True(t, stats.Connected)
	assert.Equal(t, 2, stats.Viewers)
	assert.Equal(t, 1, stats.CredentialSessions)
	assert.Equal(t, 1, stats.ActivityByKind["system"])
	assert.Equal(t, "2 hours ago", stats.LastActivity)
}

func TestFormatTimeAgo(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{10 * time.Second, "just now"},
		{time.Minute, "1 minute ago"},
		{5 * time.Minute, "5 minutes ago"},
		{time.Hour, "1 hour ago"},
		{25 * time.Hour, "1 day ago"},
		{72 * time.Hour, "3 days ago"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatTimeAgo(now, now.Add(-tt.ago)))
	}
}

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "Ada", sanitizeName("  A\x00da\n "))
	assert.Len(t, []rune(sanitizeName(strings.Repeat("é", 150))), 100)
}
