package handlers

import (
	"errors"
	"net/http"

	"github.com/frankmark94/channel-play-pen/internal/channel"
	"github.com/frankmark94/channel-play-pen/internal/models"
)

// ConnectRequest represents the request body for connecting to the DMS.
type ConnectRequest struct {
	CustomerID string `json:"customer_id"`
	JWTSecret  string `json:"jwt_secret"`
	ChannelID  string `json:"channel_id"`
	APIURL     string `json:"api_url"`
}

func (req ConnectRequest) validate() fieldErrors {
	var errs fieldErrors
	errs.length("customer_id", req.CustomerID, 1, 100)
	errs.length("jwt_secret", req.JWTSecret, 10, 0)
	errs.length("channel_id", req.ChannelID, 1, 100)
	errs.uri("api_url", req.APIURL)
	return errs
}

// ConnectResponse represents the response for a successful connect.
type ConnectResponse struct {
	Connected  bool   `json:"connected"`
	CustomerID string `json:"customer_id"`
	ChannelID  string `json:"channel_id"`
	SessionID  string `json:"session_id"`
	Status     any    `json:"status"`
	Message    string `json:"message"`
}

// Connect handles POST /api/connect.
func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	var req ConnectRequest
	if !h.decode(w, r, &req) {
		return
	}
	if errs := req.validate(); len(errs) > 0 {
		h.Fail(w, http.StatusBadRequest, "Validation failed", map[string]any{"errors": errs})
		return
	}

	sessionID, err := h.svc.Connect(models.Credential{
		SigningSecret: req.JWTSecret,
		ChannelID:     req.ChannelID,
		APIURL:        req.APIURL,
	})
	if err != nil {
		var invalid *channel.ValidationError
		if errors.As(err, &invalid) {
			h.Fail(w, http.StatusBadRequest, "Invalid credentials", map[string]any{"errors": invalid.Errors})
			return
		}
		h.Error(w, http.StatusInternalServerError, "Failed to connect to DMS")
		return
	}

	h.OK(w, ConnectResponse{
		Connected:  true,
		CustomerID: req.CustomerID,
		ChannelID:  req.ChannelID,
		SessionID:  sessionID,
		Status:     h.svc.Status(),
		Message:    "Connected successfully with your credentials",
	})
}

// Disconnect handles POST /api/disconnect.
func (h *Handler) Disconnect(w http.ResponseWriter, r *http.Request) {
	h.svc.Disconnect()
	h.OK(w, map[string]any{
		"connected": false,
		"message":   "Disconnected from DMS",
	})
}

// sendError maps a service failure to a response.
func (h *Handler) sendError(w http.ResponseWriter, err error) {
	var (
		rejected  *channel.RemoteRejectedError
		transport *channel.TransportError
	)
	switch {
	case errors.Is(err, channel.ErrNotConnected):
		h.Error(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, channel.ErrSessionNotFound):
		h.Error(w, http.StatusNotFound, err.Error())
	case errors.As(err, &rejected):
		h.Error(w, http.StatusBadGateway, err.Error())
	case errors.As(err, &transport):
		h.Error(w, http.StatusGatewayTimeout, err.Error())
	default:
		h.Error(w, http.StatusInternalServerError, err.Error())
	}
}
