package server

import (
	"encoding/json"
	"net/http"
	"time"
)

// HandleStatus returns a lightweight status summary: chat connectivity,
// phase guard snapshot, control subscription state, and recent control
// activity from the database.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()
	resp := map[string]any{
		"uptime_seconds": int(time.Since(h.started).Seconds()),
	}
	if h.cfg != nil {
		resp["channel"] = h.cfg.Channel
		resp["vote_policy"] = string(h.cfg.VotePolicy)
	}
	if h.relay != nil {
		resp["chat_connected"] = h.relay.Connected()
	}
	if h.guard != nil {
		resp["phase"] = h.guard.Snapshot()
	}
	if h.listener != nil {
		resp["control"] = h.listener.Status()
	}

	// Latest control event, if any.
	var lastType string
	var lastAt time.Time
	err := h.db.QueryRowContext(ctx,
		`SELECT event_type, created_at FROM control_events ORDER BY created_at DESC, id DESC LIMIT 1`).
		Scan(&lastType, &lastAt)
	if err == nil {
		resp["last_control_event"] = map[string]any{"event_type": lastType, "created_at": lastAt}
	}

	// Prune job heartbeat.
	var last string
	_ = h.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key='job_control_prune_last'`).Scan(&last)
	if last != "" {
		resp["last_prune_run"] = last
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
