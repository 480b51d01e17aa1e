package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/onnwee/ripple-relay/notify"
)

// HandleHealthz responds to liveness probes by checking database connectivity.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := h.db.PingContext(r.Context()); err != nil {
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz runs the readiness checklist: database reachable, a chat
// credential available, the chat session up, and the control subscription
// not past its retry budget. The first failing check names itself in the
// response.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"database", func() error { return h.db.PingContext(r.Context()) }},
		{"credentials", func() error {
			if os.Getenv("TWITCH_OAUTH_TOKEN") != "" {
				return nil
			}
			var count int
			err := h.db.QueryRowContext(r.Context(),
				"SELECT COUNT(*) FROM oauth_tokens WHERE provider='twitch'").Scan(&count)
			if err != nil {
				return err
			}
			if count < 1 {
				return fmt.Errorf("no chat credential: set TWITCH_OAUTH_TOKEN or complete /oauth/twitch/start")
			}
			return nil
		}},
		{"chat", func() error {
			if h.relay == nil {
				return fmt.Errorf("chat session not started")
			}
			if !h.relay.Connected() {
				return fmt.Errorf("chat session down")
			}
			return nil
		}},
		{"control_listener", func() error {
			if h.listener == nil {
				return fmt.Errorf("control listener not started")
			}
			if st := h.listener.Status(); st.State == notify.StateGaveUp {
				return fmt.Errorf("control subscription gave up after %d attempts", st.Attempt)
			}
			return nil
		}},
	}

	for _, check := range checks {
		if err := check.fn(); err != nil {
			// Set headers before writing status code
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}
