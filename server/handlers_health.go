package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"chatwarden/db"
)

var startedAt = time.Now()

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload) //nolint:errcheck
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readyz verifies the database is reachable; the moderation loop can run
// without it, but audit persistence would be lost.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "reason": "no database"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "reason": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type statusResponse struct {
	UptimeSeconds int64           `json:"uptime_seconds"`
	ActionsTotal  int             `json:"actions_total"`
	Recent        []actionSummary `json:"recent_actions"`
}

type actionSummary struct {
	VideoID   string    `json:"video_id"`
	Author    string    `json:"author"`
	Action    string    `json:"action"`
	Reason    string    `json:"reason,omitempty"`
	AppliedAt time.Time `json:"applied_at"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		UptimeSeconds: int64(time.Since(startedAt).Seconds()),
		Recent:        []actionSummary{},
	}
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if n, err := db.CountActions(ctx, s.db); err == nil {
			resp.ActionsTotal = n
		}
		recs, err := db.RecentActions(ctx, s.db, 20)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		for _, rec := range recs {
			resp.Recent = append(resp.Recent, actionSummary{
				VideoID:   rec.VideoID,
				Author:    rec.AuthorName,
				Action:    rec.Action,
				Reason:    rec.Reason,
				AppliedAt: rec.AppliedAt,
			})
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
