package broadcast

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4096
)

// clientFrame is a message sent by a viewer.
type clientFrame struct {
	Type string `json:"type"`
	Data struct {
		Events []string `json:"events"`
	} `json:"data"`
}

// ServeHTTP upgrades the request and serves the viewer until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	ws.SetReadLimit(maxMessageSize)

	c := h.register(ws)
	h.sendTo(c, TypeStatus, map[string]any{
		"connected":  true,
		"client_id":  c.ID,
		"dms_status": h.status(),
	})

	go h.writePump(c)
	go h.readPump(c)
}

// readPump handles viewer frames until the connection fails.
func (h *Hub) readPump(c *Client) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Str("client_id", c.ID).Msg("websocket read error")
			}
			return
		}
		h.handleFrame(c, data)
	}
}

// writePump drains the client's queue and pings on every heartbeat.
func (h *Hub) writePump(c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub dropped the client
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) handleFrame(c *Client, data []byte) {
	var frame clientFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		h.sendTo(c, TypeError, map[string]string{"message": "invalid JSON message"})
		return
	}

	switch frame.Type {
	case "ping":
		h.sendTo(c, TypePong, nil)
	case "subscribe":
		c.subscribe(frame.Data.Events)
		h.sendTo(c, TypeSubscribed, map[string]any{"events": frame.Data.Events})
	default:
		h.sendTo(c, TypeError, map[string]string{"message": "unknown message type: " + frame.Type})
	}
}
