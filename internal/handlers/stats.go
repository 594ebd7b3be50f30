package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/frankmark94/channel-play-pen/internal/models"
)

// StatsResponse represents the response from the stats endpoint.
type StatsResponse struct {
	Connected          bool           `json:"connected"`
	ActivityTotal      int            `json:"activity_total"`
	ActivityByKind     map[string]int `json:"activity_by_type"`
	SessionsByStatus   map[string]int `json:"sessions_by_status"`
	CredentialSessions int            `json:"credential_sessions"`
	Viewers            int            `json:"viewers"`
	LastActivity       string         `json:"last_activity"`
}

// Stats handles GET /api/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	status := h.svc.Status()
	records := h.activity.Recent(h.activity.Limit())

	byKind := map[string]int{
		string(models.ActivityRequest):  0,
		string(models.ActivityResponse): 0,
		string(models.ActivityError):    0,
		string(models.ActivitySystem):   0,
	}
	for _, rec := range records {
		byKind[string(rec.Kind)]++
	}

	byStatus := map[string]int{
		string(models.SessionActive): 0,
		string(models.SessionEnded):  0,
		string(models.SessionError):  0,
	}
	for _, s := range status.Sessions {
		byStatus[string(s.Status)]++
	}

	lastActivity := "no activity yet"
	if len(records) > 0 {
		lastActivity = formatTimeAgo(h.now(), records[0].Timestamp)
	}

	viewers := 0
	if h.viewers != nil {
		viewers = h.viewers.Count()
	}

	h.OK(w, StatsResponse{
		Connected:          status.Connected,
		ActivityTotal:      len(records),
		ActivityByKind:     byKind,
		SessionsByStatus:   byStatus,
		CredentialSessions: status.CredentialSessions,
		Viewers:            viewers,
		LastActivity:       lastActivity,
	})
}

// formatTimeAgo formats t relative to now as a human-readable "X ago" string.
func formatTimeAgo(now, t time.Time) string {
	diff := now.Sub(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute")
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour")
	default:
		return plural(int(diff.Hours()/24), "day")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit + " ago"
	}
	return strconv.Itoa(n) + " " + unit + "s ago"
}
