package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/frankmark94/channel-play-pen/internal/models"
)

const timeFormat = time.RFC3339Nano

// StatusResponse represents the response from the status endpoint.
type StatusResponse struct {
	Connection     any                     `json:"connection"`
	Sessions       []models.CustomerSession `json:"sessions"`
	RecentActivity []models.ActivityRecord  `json:"recent_activity"`
}

// Status handles GET /api/status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	status := h.svc.Status()
	h.OK(w, StatusResponse{
		Connection:     status,
		Sessions:       status.Sessions,
		RecentActivity: h.activity.Recent(statusActivityPage),
	})
}

// Activity handles GET /api/activity?limit=N.
func (h *Handler) Activity(w http.ResponseWriter, r *http.Request) {
	limit := DefaultActivityPage
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.Error(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = n
	}
	if limit < 1 {
		limit = 1
	}
	if ceiling := h.activity.Limit(); limit > ceiling {
		limit = ceiling
	}

	logs := h.activity.Recent(limit)
	h.OK(w, map[string]any{"logs": logs, "count": len(logs)})
}

// Sessions handles GET /api/sessions.
func (h *Handler) Sessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.svc.Sessions()
	h.OK(w, map[string]any{"sessions": sessions, "count": len(sessions)})
}
