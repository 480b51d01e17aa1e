// Package phase owns voting-phase state: the set of participants who have
// voted since the last reset. All mutation funnels through the Guard's two
// operations so the two reset triggers and the chat stream can never corrupt
// the set between them.
package phase

import (
	"strings"
	"sync"
	"time"
)

// Origin identifies which trigger cleared a phase.
type Origin int

const (
	OriginBoot Origin = iota
	OriginOperator
	OriginNotification
)

func (o Origin) String() string {
	switch o {
	case OriginOperator:
		return "operator"
	case OriginNotification:
		return "notification"
	default:
		return "boot"
	}
}

// Guard is the mutex-serialized voter set for the current phase.
type Guard struct {
	mu         sync.Mutex
	voters     map[string]struct{}
	startedAt  time.Time
	lastOrigin Origin
	resets     uint64
}

// Stats is a point-in-time snapshot for diagnostics. It never gates behavior.
type Stats struct {
	Voters     int       `json:"voters"`
	StartedAt  time.Time `json:"started_at"`
	LastOrigin string    `json:"last_reset_origin"`
	Resets     uint64    `json:"resets"`
}

// NewGuard returns a Guard with an empty phase starting now.
func NewGuard() *Guard {
	return &Guard{voters: make(map[string]struct{}), startedAt: time.Now()}
}

// CheckAndRecord admits at most one vote per participant per phase: it
// returns true and records the participant on their first vote of the phase,
// false without mutation on every repeat. Identity is compared
// case-insensitively, so "User" and "user" collide.
func (g *Guard) CheckAndRecord(user string) bool {
	key := strings.ToLower(strings.TrimSpace(user))
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, voted := g.voters[key]; voted {
		return false
	}
	g.voters[key] = struct{}{}
	return true
}

// Reset clears the voter set unconditionally and starts a new phase.
// Clearing an already-empty set is a valid reset, so the two trigger origins
// may fire in any order or in rapid succession.
func (g *Guard) Reset(origin Origin) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.voters = make(map[string]struct{})
	g.startedAt = time.Now()
	g.lastOrigin = origin
	g.resets++
}

// Size reports the number of distinct voters recorded this phase.
func (g *Guard) Size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.voters)
}

// Snapshot returns the current phase stats.
func (g *Guard) Snapshot() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Stats{
		Voters:     len(g.voters),
		StartedAt:  g.startedAt,
		LastOrigin: g.lastOrigin.String(),
		Resets:     g.resets,
	}
}
