package server

import (
	"encoding/json"
	"net/http"

	dbpkg "github.com/onnwee/ripple-relay/db"
	"github.com/onnwee/ripple-relay/notify"
)

// HandleAdminPhaseReset emits a voting_phase_start control event. The reset
// itself happens when the notification comes back through the control
// listener, so an admin reset exercises the same path as upstream writers
// and every subscribed relay observes it.
func (h *Handlers) HandleAdminPhaseReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := dbpkg.InsertControlEvent(r.Context(), h.db, notify.PhaseStartTag, "admin"); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":     "accepted",
		"event_type": notify.PhaseStartTag,
	})
}
