package server

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/onnwee/ripple-relay/chat"
	"github.com/onnwee/ripple-relay/config"
	"github.com/onnwee/ripple-relay/notify"
	"github.com/onnwee/ripple-relay/phase"
	"github.com/onnwee/ripple-relay/twitchauth"
)

// Cap on in-flight OAuth states kept in memory.
const maxOAuthStates = 10000

// authFlow is the slice of twitchauth.Provider the OAuth handlers use.
// Tests substitute fakes.
type authFlow interface {
	AuthCodeURL(state string) (string, error)
	Exchange(ctx context.Context, code string) (*twitchauth.Token, error)
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	db       *sql.DB
	ctx      context.Context
	cfg      *config.Config
	guard    *phase.Guard
	listener *notify.Listener
	relay    *chat.Relay
	auth     authFlow
	started  time.Time

	stateStore map[string]time.Time
	stateMu    sync.RWMutex
}

// NewHandlers creates a Handlers instance with the given dependencies.
// guard, listener, and relay may be nil when the HTTP surface runs without
// the chat side (the OAuth bootstrap flow, tests). The OAuth handlers are
// active only when cfg carries client credentials and a redirect URI.
func NewHandlers(ctx context.Context, dbc *sql.DB, cfg *config.Config, guard *phase.Guard, listener *notify.Listener, relay *chat.Relay) *Handlers {
	h := &Handlers{
		db:         dbc,
		ctx:        ctx,
		cfg:        cfg,
		guard:      guard,
		listener:   listener,
		relay:      relay,
		started:    time.Now(),
		stateStore: make(map[string]time.Time),
	}
	if cfg != nil && cfg.ClientID != "" && cfg.RedirectURI != "" {
		h.auth = twitchauth.New(cfg.ClientID, cfg.ClientSecret, cfg.RedirectURI, cfg.Scopes)
	}
	return h
}

// cleanExpiredStates removes expired OAuth states from the store.
// Callers must hold stateMu.
func (h *Handlers) cleanExpiredStates() {
	now := time.Now()
	for state, expiry := range h.stateStore {
		if now.After(expiry) {
			delete(h.stateStore, state)
		}
	}
}

// addOAuthState records a pending OAuth state with its expiry. Past the cap
// the state is dropped and the flow fails, which beats unbounded growth.
func (h *Handlers) addOAuthState(state string, expiry time.Time) {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()

	if len(h.stateStore)%100 == 0 {
		h.cleanExpiredStates()
	}

	if len(h.stateStore) >= maxOAuthStates {
		return
	}

	h.stateStore[state] = expiry
}
