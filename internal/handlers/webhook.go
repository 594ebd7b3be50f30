package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/frankmark94/channel-play-pen/internal/channel"
)

var errWebhookTooLarge = errors.New("request body too large")

// Webhook handles POST /dms, the inbound callback from the DMS. Every call is
// answered with one of the gateway acknowledgements, whatever its content type.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := h.readWebhookBody(r)
	if err != nil {
		// Same answer the gateway gives a body it cannot process
		writeText(w, http.StatusUnauthorized, err.Error())
		return
	}

	status, message := h.svc.Gateway().Handle(r.Header.Get("Authorization"), body)
	if message == channel.AckNotInitialized {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, message)
		return
	}
	writeText(w, status, message)
}

func (h *Handler) readWebhookBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, h.maxBody+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > h.maxBody {
		return nil, errWebhookTooLarge
	}
	return body, nil
}

// WebhookInfo handles GET /dms so operators can check the callback URL is reachable.
func (h *Handler) WebhookInfo(w http.ResponseWriter, r *http.Request) {
	status := h.svc.Status()
	h.OK(w, map[string]any{
		"endpoint":    "DMS webhook",
		"connected":   status.Connected,
		"webhook_url": status.WebhookURL,
	})
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	io.WriteString(w, body)
}
