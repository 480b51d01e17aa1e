package server

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	dbpkg "github.com/onnwee/ripple-relay/db"
)

// HandleOAuthStart begins the Twitch authorization flow for the bot account
// by redirecting to the Twitch consent page with a fresh state.
func (h *Handlers) HandleOAuthStart(w http.ResponseWriter, r *http.Request) {
	if h.auth == nil {
		http.Error(w, "oauth not configured (need TWITCH_CLIENT_ID + TWITCH_REDIRECT_URI)", http.StatusBadRequest)
		return
	}
	// generate state
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		http.Error(w, "state gen error", 500)
		return
	}
	st := hex.EncodeToString(b)
	h.addOAuthState(st, time.Now().Add(10*time.Minute))
	authURL, err := h.auth.AuthCodeURL(st)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// HandleOAuthCallback finishes the flow: validates state, exchanges the
// code, and stores the encrypted token row the relay reads its chat
// credential from. A running chat session picks the new token up for its
// next reconnect.
func (h *Handlers) HandleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	st := r.URL.Query().Get("state")
	if code == "" || st == "" {
		http.Error(w, "missing code/state", 400)
		return
	}
	// validate state
	h.stateMu.RLock()
	exp, ok := h.stateStore[st]
	h.stateMu.RUnlock()
	if !ok || time.Now().After(exp) {
		http.Error(w, "invalid state", 400)
		return
	}
	h.stateMu.Lock()
	delete(h.stateStore, st)
	h.stateMu.Unlock()
	if h.auth == nil {
		http.Error(w, "oauth not configured", 400)
		return
	}
	ctx := r.Context()
	tok, err := h.auth.Exchange(ctx, code)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	if err := dbpkg.UpsertOAuthToken(ctx, h.db, "twitch", tok.Access, tok.Refresh, tok.Expiry, tok.Scope); err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	if h.relay != nil {
		h.relay.UpdateToken(tok.Access)
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{
		"status":     "ok",
		"scopes":     tok.Scope,
		"expires_in": int(time.Until(tok.Expiry).Seconds()),
	}); err != nil {
		slog.Warn("failed to encode JSON response", slog.Any("err", err))
	}
}
