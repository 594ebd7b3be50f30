package channel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frankmark94/channel-play-pen/internal/crypto"
	"github.com/frankmark94/channel-play-pen/internal/models"
	"github.com/frankmark94/channel-play-pen/internal/store"
)

type published struct {
	eventType string
	data      any
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []published
}

func (n *recordingNotifier) Publish(eventType string, data any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, published{eventType, data})
}

func (n *recordingNotifier) ofType(eventType string) []published {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []published
	for _, e := range n.events {
		if e.eventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

type serviceFixture struct {
	now      time.Time
	codec    *crypto.TokenCodec
	creds    *store.CredentialStore
	sessions *store.SessionRegistry
	activity *store.ActivityLog
	notifier *recordingNotifier
	svc      *Service
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		notifier: &recordingNotifier{},
	}
	clock := func() time.Time { return f.now }

	f.codec = crypto.NewTokenCodec(crypto.WithTokenClock(clock))
	f.activity = store.NewActivityLog(store.WithActivityClock(clock))
	f.creds = store.NewCredentialStore(zerolog.Nop(), f.activity, store.WithCredentialClock(clock))
	f.sessions = store.NewSessionRegistry(clock)
	sender := NewSender(f.codec, f.activity, zerolog.Nop(), WithSenderClock(clock))

	f.svc = NewService(zerolog.Nop(), f.codec, f.creds, f.sessions, f.activity, sender,
		WithNotifier(f.notifier),
		WithWebhookURL("https://hooks.example/dms"),
		WithRouterOptions(WithRouterClock(clock)),
	)
	return f
}

func (f *serviceFixture) connect(t *testing.T, apiURL string) string {
	t.Helper()
	id, err := f.svc.Connect(models.Credential{SigningSecret: "abcdefghij", ChannelID: "ch1", APIURL: apiURL})
	require.NoError(t, err)
	return id
}

func (f *serviceFixture) webhook(t *testing.T, body string) (int, string) {
	t.Helper()
	token, err := f.codec.Sign("ch1", "abcdefghij")
	require.NoError(t, err)
	return f.svc.Gateway().Handle("Bearer "+token, []byte(body))
}

func TestServiceConnectValidation(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.Connect(models.Credential{SigningSecret: "short", ChannelID: "", APIURL: "ftp://x"})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Errors, 3)
	assert.Equal(t, 0, f.creds.ActiveSessionCount())
	assert.False(t, f.svc.Status().Connected)
}

func TestServiceConnectAndDisconnect(t *testing.T) {
	f := newServiceFixture(t)

	id := f.connect(t, "https://x/y")

	active, cred, err := f.svc.Active()
	require.NoError(t, err)
	assert.Equal(t, id, active)
	assert.Equal(t, "https://hooks.example/dms", cred.WebhookURL)

	st := f.svc.Status()
	assert.True(t, st.Connected)
	assert.Equal(t, "ch1", st.ChannelID)
	assert.Equal(t, 1, st.CredentialSessions)
	require.NotEmpty(t, f.notifier.ofType(EventStatus))

	f.svc.Disconnect()
	_, _, err = f.svc.Active()
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Equal(t, 0, f.creds.ActiveSessionCount())

	f.svc.Disconnect()
	messages := []string{}
	for _, rec := range f.activity.Recent(10) {
		messages = append(messages, rec.Message)
	}
	assert.Equal(t, []string{"Disconnected from DMS", "Connected to DMS"}, messages)
}

func TestServiceReconnectReplacesBinding(t *testing.T) {
	f := newServiceFixture(t)
	srv, _ := newRemote(t, http.StatusOK)

	first := f.connect(t, srv.URL)
	_, err := f.svc.SendText(context.Background(), "c1", "hi", "")
	require.NoError(t, err)
	require.Len(t, f.svc.Sessions(), 1)

	second := f.connect(t, srv.URL)
	assert.NotEqual(t, first, second)
	assert.Equal(t, 1, f.creds.ActiveSessionCount())
	assert.Empty(t, f.svc.Sessions())

	_, ok := f.creds.Session(first)
	assert.False(t, ok)
}

func TestServiceSendTextUpsertsSession(t *testing.T) {
	f := newServiceFixture(t)
	srv, reqs := newRemote(t, http.StatusOK)
	id := f.connect(t, srv.URL)

	_, err := f.svc.SendText(context.Background(), "c1", "hi", "")
	require.NoError(t, err)
	_, err = f.svc.SendText(context.Background(), "c1", "again", "")
	require.NoError(t, err)

	require.Len(t, *reqs, 2)
	assert.Equal(t, DefaultCustomerName, (*reqs)[0].body["customer_name"])

	sessions := f.svc.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, id, sessions[0].SessionID)
	assert.Equal(t, "ch1", sessions[0].ChannelID)
	assert.Equal(t, models.SessionActive, sessions[0].Status)
}

func TestServiceSendRequiresConnection(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.SendText(context.Background(), "c1", "hi", "")
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.ErrorIs(t, f.svc.SendTyping(context.Background(), "c1"), ErrNotConnected)
	assert.Equal(t, 0, f.activity.Len())
}

func TestServiceTypingDoesNotCreateSession(t *testing.T) {
	f := newServiceFixture(t)
	srv, _ := newRemote(t, http.StatusOK)
	f.connect(t, srv.URL)

	require.NoError(t, f.svc.SendTyping(context.Background(), "c1"))
	require.NoError(t, f.svc.SendWaitTime(context.Background(), "c1", 10))
	assert.Empty(t, f.svc.Sessions())
}

func TestServiceClientErrorMarksSessionError(t *testing.T) {
	tests := []struct {
		status int
		want   models.SessionStatus
	}{
		{http.StatusBadRequest, models.SessionError},
		{http.StatusNotFound, models.SessionError},
		{http.StatusTooManyRequests, models.SessionActive},
		{http.StatusRequestTimeout, models.SessionActive},
		{http.StatusBadGateway, models.SessionActive},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			f := newServiceFixture(t)

			var status atomic.Int32
			status.Store(http.StatusOK)
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(int(status.Load()))
			}))
			t.Cleanup(srv.Close)
			f.connect(t, srv.URL)

			_, err := f.svc.SendText(context.Background(), "c1", "hi", "")
			require.NoError(t, err)

			status.Store(int32(tt.status))
			_, err = f.svc.SendText(context.Background(), "c1", "hi", "")
			var rejected *RemoteRejectedError
			require.ErrorAs(t, err, &rejected)
			assert.Equal(t, tt.status, rejected.StatusCode)

			session, ok := f.sessions.Get("c1")
			require.True(t, ok)
			assert.Equal(t, tt.want, session.Status)
			assert.NotEmpty(t, f.notifier.ofType(EventError))
		})
	}
}

func TestServiceRejectedFirstSendCreatesNoSession(t *testing.T) {
	f := newServiceFixture(t)
	srv, _ := newRemote(t, http.StatusInternalServerError)
	f.connect(t, srv.URL)

	_, err := f.svc.SendText(context.Background(), "c1", "hi", "")
	require.Error(t, err)
	assert.Empty(t, f.svc.Sessions())
}

func TestServiceEndSession(t *testing.T) {
	f := newServiceFixture(t)
	srv, _ := newRemote(t, http.StatusOK)
	f.connect(t, srv.URL)

	_, err := f.svc.EndSession("c1", "done")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = f.svc.SendText(context.Background(), "c1", "hi", "")
	require.NoError(t, err)

	session, err := f.svc.EndSession("c1", "done")
	require.NoError(t, err)
	assert.Equal(t, models.SessionEnded, session.Status)
	require.NotNil(t, session.EndedAt)

	msgs := f.notifier.ofType(EventMessage)
	require.NotEmpty(t, msgs)
	last := msgs[len(msgs)-1].data.(models.InboundMessage)
	assert.Equal(t, models.KindSystem, last.Kind)
	assert.Equal(t, "Session ended by customer", last.Content)
}

func TestServiceEndSessionTwice(t *testing.T) {
	f := newServiceFixture(t)
	srv, _ := newRemote(t, http.StatusOK)
	f.connect(t, srv.URL)

	_, err := f.svc.SendText(context.Background(), "c1", "hi", "")
	require.NoError(t, err)

	first, err := f.svc.EndSession("c1", "done")
	require.NoError(t, err)
	second, err := f.svc.EndSession("c1", "again")
	require.NoError(t, err)
	assert.Equal(t, models.SessionEnded, second.Status)
	assert.Equal(t, *first.EndedAt, *second.EndedAt)

	ended := 0
	for _, rec := range f.activity.Recent(50) {
		if rec.Message == "Session ended by customer" {
			ended++
		}
	}
	assert.Equal(t, 1, ended)

	published := 0
	for _, ev := range f.notifier.ofType(EventMessage) {
		if ev.data.(models.InboundMessage).Content == "Session ended by customer" {
			published++
		}
	}
	assert.Equal(t, 1, published)
}

func TestServiceInboundText(t *testing.T) {
	f := newServiceFixture(t)
	f.connect(t, "https://x/y")

	var seen []models.InboundMessage
	unsubscribe := f.svc.Subscribe(func(m models.InboundMessage) { seen = append(seen, m) })

	status, msg := f.webhook(t, `{"type":"text","customer_id":"c1","text":["hi"]}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, AckSuccess, msg)

	require.Len(t, seen, 1)
	assert.Equal(t, "hi", seen[0].Content)

	sessions := f.svc.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, "c1", sessions[0].CustomerID)

	rec := f.activity.Recent(1)[0]
	assert.Equal(t, models.ActivityResponse, rec.Kind)
	assert.Equal(t, "Received text message from DMS", rec.Message)

	unsubscribe()
	f.webhook(t, `{"type":"text","customer_id":"c1","text":["again"]}`)
	assert.Len(t, seen, 1)
}

func TestServiceInboundEndSession(t *testing.T) {
	f := newServiceFixture(t)
	f.connect(t, "https://x/y")

	f.webhook(t, `{"type":"text","customer_id":"c1","text":"hi"}`)
	status, _ := f.webhook(t, `{"type":"csr_end_session","customer_id":"c1"}`)
	require.Equal(t, http.StatusOK, status)

	session, ok := f.sessions.Get("c1")
	require.True(t, ok)
	assert.Equal(t, models.SessionEnded, session.Status)
	assert.Equal(t, "CSR ended session", f.activity.Recent(1)[0].Message)

	msgs := f.notifier.ofType(EventMessage)
	assert.Equal(t, "Session ended by CSR", msgs[len(msgs)-1].data.(models.InboundMessage).Content)
}

func TestServiceInboundTypingAndWaitTime(t *testing.T) {
	f := newServiceFixture(t)
	f.connect(t, "https://x/y")

	f.webhook(t, `{"type":"typing_indicator","customer_id":"c1"}`)
	f.webhook(t, `{"type":"wait_time","customer_id":"c1","waitTime":120}`)

	require.Len(t, f.notifier.ofType(EventTyping), 1)
	waits := f.notifier.ofType(EventWaitTime)
	require.Len(t, waits, 1)
	assert.Equal(t, models.WaitTimeEvent{CustomerID: "c1", Seconds: 120}, waits[0].data)
	assert.Empty(t, f.svc.Sessions())
}

func TestServiceExpiredBindingIsDropped(t *testing.T) {
	f := newServiceFixture(t)
	f.connect(t, "https://x/y")

	f.now = f.now.Add(31 * time.Minute)
	f.creds.Sweep()

	_, _, err := f.svc.Active()
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.False(t, f.svc.Status().Connected)

	status, _ := f.webhook(t, `{"type":"text","customer_id":"c1","text":"hi"}`)
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

func TestServiceWebhookSlidesExpiry(t *testing.T) {
	f := newServiceFixture(t)
	f.connect(t, "https://x/y")

	f.now = f.now.Add(20 * time.Minute)
	f.webhook(t, `{"type":"typing_indicator","customer_id":"c1"}`)
	f.now = f.now.Add(20 * time.Minute)

	assert.Empty(t, f.creds.Sweep())
	_, _, err := f.svc.Active()
	assert.NoError(t, err)
}

func TestServiceRejectedWebhookDoesNotSlideExpiry(t *testing.T) {
	f := newServiceFixture(t)
	f.connect(t, "https://x/y")
	body := []byte(`{"type":"typing_indicator","customer_id":"c1"}`)

	forged, err := f.codec.Sign("ch1", "not-the-secret")
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		f.now = f.now.Add(10 * time.Minute)
		status, _ := f.svc.Gateway().Handle("", body)
		assert.Equal(t, http.StatusForbidden, status)
		status, _ = f.svc.Gateway().Handle("Bearer forged.token.x", body)
		assert.Equal(t, http.StatusForbidden, status)
		status, _ = f.svc.Gateway().Handle("Bearer "+forged, body)
		assert.Equal(t, http.StatusForbidden, status)
	}

	assert.Len(t, f.creds.Sweep(), 1)
	_, _, err = f.svc.Active()
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestServicePeekDoesNotSlideExpiry(t *testing.T) {
	f := newServiceFixture(t)
	id := f.connect(t, "https://x/y")

	f.now = f.now.Add(20 * time.Minute)
	peeked, cred, err := f.svc.Peek()
	require.NoError(t, err)
	assert.Equal(t, id, peeked)
	assert.Equal(t, "ch1", cred.ChannelID)

	f.now = f.now.Add(20 * time.Minute)
	assert.Equal(t, []string{id}, f.creds.Sweep())

	_, _, err = f.svc.Peek()
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.False(t, f.svc.Status().Connected)
}
