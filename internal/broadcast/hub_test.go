package broadcast

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frankmark94/channel-play-pen/internal/models"
)

func dial(t *testing.T, h *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env map[string]any
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func waitForClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.Count() == n }, 2*time.Second, 10*time.Millisecond)
}

func TestHubWelcomeStatus(t *testing.T) {
	h := NewHub(zerolog.Nop(), WithStatus(func() any { return map[string]bool{"connected": false} }))
	conn := dial(t, h)

	env := readEnvelope(t, conn)
	assert.Equal(t, TypeStatus, env["type"])
	data := env["data"].(map[string]any)
	assert.Equal(t, true, data["connected"])
	assert.NotEmpty(t, data["client_id"])
	assert.Equal(t, map[string]any{"connected": false}, data["dms_status"])
}

func TestHubPublishPreservesOrder(t *testing.T) {
	h := NewHub(zerolog.Nop())
	conn := dial(t, h)
	readEnvelope(t, conn)
	waitForClients(t, h, 1)

	for i := 0; i < 20; i++ {
		h.PublishActivity(models.ActivityRecord{ID: string(rune('a' + i)), Kind: models.ActivitySystem})
	}

	for i := 0; i < 20; i++ {
		env := readEnvelope(t, conn)
		assert.Equal(t, TypeActivity, env["type"])
		assert.Equal(t, string(rune('a'+i)), env["data"].(map[string]any)["id"])
	}
}

func TestHubPingPong(t *testing.T) {
	h := NewHub(zerolog.Nop())
	conn := dial(t, h)
	readEnvelope(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	assert.Equal(t, TypePong, readEnvelope(t, conn)["type"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("nope")))
	assert.Equal(t, TypeError, readEnvelope(t, conn)["type"])
}

func TestHubSubscribeFilters(t *testing.T) {
	h := NewHub(zerolog.Nop())
	conn := dial(t, h)
	readEnvelope(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "subscribe", "data": map[string]any{"events": []string{TypeMessage}}}))
	assert.Equal(t, TypeSubscribed, readEnvelope(t, conn)["type"])

	h.Publish(TypeActivity, "skipped")
	h.Publish(TypeMessage, "delivered")

	env := readEnvelope(t, conn)
	assert.Equal(t, TypeMessage, env["type"])
	assert.Equal(t, "delivered", env["data"])
}

func TestHubDropsDisconnectedClients(t *testing.T) {
	h := NewHub(zerolog.Nop())
	conn := dial(t, h)
	readEnvelope(t, conn)
	waitForClients(t, h, 1)

	conn.Close()
	waitForClients(t, h, 0)
}

func TestHubDropsSlowClients(t *testing.T) {
	h := NewHub(zerolog.Nop())
	c := &Client{ID: "slow", send: make(chan []byte, 1)}
	h.clients[c.ID] = c

	h.Publish(TypeMessage, 1)
	h.Publish(TypeMessage, 2)

	assert.Equal(t, 0, h.Count())
	_, open := <-c.send
	assert.True(t, open, "queued frame is still readable")
	_, open = <-c.send
	assert.False(t, open)
}

func TestHubClose(t *testing.T) {
	h := NewHub(zerolog.Nop())
	conn := dial(t, h)
	readEnvelope(t, conn)
	waitForClients(t, h, 1)

	h.Close()
	assert.Equal(t, 0, h.Count())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}
