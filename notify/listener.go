// Package notify subscribes to the Postgres control stream and turns
// voting_phase_start notifications into phase resets. It is the external half
// of the dual reset trigger; the operator chat command is the other.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/ripple-relay/phase"
	"github.com/onnwee/ripple-relay/telemetry"
)

// PhaseStartTag is the control event type that triggers a phase reset.
const PhaseStartTag = "voting_phase_start"

// State of the control subscription.
type State string

const (
	StateUnsubscribed State = "unsubscribed"
	StateSubscribing  State = "subscribing"
	StateSubscribed   State = "subscribed"
	StateError        State = "error"
	StateClosed       State = "closed"
	StateGaveUp       State = "gaveup"
)

// Defaults for the reconnect schedule.
const (
	DefaultBackoffBase = 2 * time.Second
	DefaultBackoffCap  = 60 * time.Second
	DefaultMaxAttempts = 10
)

// Conn is the slice of a Postgres connection the listener uses. Production
// runs on pgx (see pgx.go); tests substitute scripted fakes.
type Conn interface {
	Listen(ctx context.Context, channel string) error
	WaitForNotification(ctx context.Context) (string, error)
	Close(ctx context.Context) error
}

// Listener owns the control-subscription lifecycle. A single goroutine
// (Run) drives connect, LISTEN, receive, and the bounded backoff schedule,
// so lifecycle transitions are serialized by construction and subscription
// attempts can never overlap. The connection handle is replaced, never
// shared: every subscribe tears down the previous connection first and dials
// with a fresh uuid-tagged identity, so a half-dead prior registration cannot
// collide with its replacement.
type Listener struct {
	Guard   *phase.Guard
	Channel string

	BackoffBase time.Duration
	BackoffCap  time.Duration
	MaxAttempts int

	// Connect dials a control connection carrying the given handle identity.
	// Configurable for tests.
	Connect func(ctx context.Context, handle string) (Conn, error)

	// OnReset, when set, observes each delivered reset.
	OnReset func(ctx context.Context)

	mu      sync.Mutex
	state   State
	attempt int
	handle  string
	lastErr error
	resets  uint64
}

// Status is a point-in-time snapshot of the subscription lifecycle.
type Status struct {
	State   State  `json:"state"`
	Attempt int    `json:"attempt"`
	Handle  string `json:"handle,omitempty"`
	LastErr string `json:"last_error,omitempty"`
	Resets  uint64 `json:"resets_delivered"`
}

// NewListener wires a listener over dsn with the default backoff schedule.
func NewListener(dsn, channel string, guard *phase.Guard) *Listener {
	l := &Listener{
		Guard:       guard,
		Channel:     channel,
		BackoffBase: DefaultBackoffBase,
		BackoffCap:  DefaultBackoffCap,
		MaxAttempts: DefaultMaxAttempts,
		state:       StateUnsubscribed,
	}
	l.Connect = func(ctx context.Context, handle string) (Conn, error) {
		return dialControl(ctx, dsn, handle)
	}
	return l
}

// Run drives the subscription until ctx is cancelled or the retry budget is
// exhausted. Exhaustion is permanent: the listener logs at error level and
// exits, leaving the operator chat command as the only reset trigger until
// the process is restarted.
func (l *Listener) Run(ctx context.Context) {
	var conn Conn
	teardown := func(reason string) {
		if conn == nil {
			return
		}
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := conn.Close(closeCtx); err != nil {
			slog.Debug("control subscription teardown", slog.String("reason", reason), slog.Any("err", err))
		}
		conn = nil
	}
	defer teardown("shutdown")

	for {
		if ctx.Err() != nil {
			l.setState(StateClosed, nil)
			return
		}

		// A stale handle left alive would double-deliver notifications.
		teardown("resubscribe")

		handle := fmt.Sprintf("relay-ctl-%s", uuid.NewString()[:8])
		l.beginAttempt(handle)

		dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		c, err := l.Connect(dialCtx, handle)
		if err == nil {
			conn = c
			err = conn.Listen(dialCtx, l.Channel)
		}
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				l.setState(StateClosed, nil)
				return
			}
			if !l.scheduleRetry(ctx, err) {
				return
			}
			continue
		}

		l.subscribed(handle)
		slog.Info("control subscription established",
			slog.String("channel", l.Channel), slog.String("handle", handle))

		err = l.receive(ctx, conn)
		if ctx.Err() != nil {
			l.setState(StateClosed, nil)
			return
		}
		if !l.scheduleRetry(ctx, err) {
			return
		}
	}
}

// receive blocks on notifications until the connection fails or ctx ends.
func (l *Listener) receive(ctx context.Context, conn Conn) error {
	for {
		payload, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		if !MatchesPhaseStart(payload) {
			slog.Debug("control notification ignored", slog.String("payload", payload))
			continue
		}
		l.deliverReset(ctx)
	}
}

func (l *Listener) deliverReset(ctx context.Context) {
	l.Guard.Reset(phase.OriginNotification)
	l.mu.Lock()
	l.resets++
	l.mu.Unlock()
	telemetry.IncPhaseReset(phase.OriginNotification.String())
	telemetry.SetPhaseVoters(0)
	slog.Info("voting phase reset", slog.String("origin", "notification"))
	if l.OnReset != nil {
		l.OnReset(ctx)
	}
}

// scheduleRetry books one failed attempt and waits out the backoff. It
// returns false when the budget is exhausted or ctx ended.
func (l *Listener) scheduleRetry(ctx context.Context, cause error) bool {
	l.mu.Lock()
	l.attempt++
	attempt := l.attempt
	l.state = StateError
	l.lastErr = cause
	l.mu.Unlock()
	telemetry.SetListenerUp(false)

	budget := l.MaxAttempts
	if budget <= 0 {
		budget = DefaultMaxAttempts
	}
	if attempt >= budget {
		l.setState(StateGaveUp, cause)
		slog.Error("control subscription gave up: retry budget exhausted",
			slog.Int("attempts", attempt), slog.Any("err", cause))
		return false
	}

	delay := l.backoffDelay(attempt)
	telemetry.IncListenerReconnect()
	slog.Warn("control subscription lost, reconnecting",
		slog.Int("attempt", attempt), slog.Duration("backoff", delay), slog.Any("err", cause))
	select {
	case <-ctx.Done():
		l.setState(StateClosed, nil)
		return false
	case <-time.After(delay):
		return true
	}
}

// backoffDelay doubles from the base per consecutive failure, capped.
func (l *Listener) backoffDelay(attempt int) time.Duration {
	base := l.BackoffBase
	if base <= 0 {
		base = DefaultBackoffBase
	}
	ceil := l.BackoffCap
	if ceil <= 0 {
		ceil = DefaultBackoffCap
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= ceil {
			return ceil
		}
	}
	if d > ceil {
		return ceil
	}
	return d
}

func (l *Listener) beginAttempt(handle string) {
	l.mu.Lock()
	l.state = StateSubscribing
	l.handle = handle
	l.mu.Unlock()
}

func (l *Listener) subscribed(handle string) {
	l.mu.Lock()
	l.state = StateSubscribed
	l.attempt = 0
	l.handle = handle
	l.lastErr = nil
	l.mu.Unlock()
	telemetry.SetListenerUp(true)
}

func (l *Listener) setState(s State, err error) {
	l.mu.Lock()
	l.state = s
	if err != nil {
		l.lastErr = err
	}
	l.mu.Unlock()
	if s != StateSubscribed {
		telemetry.SetListenerUp(false)
	}
}

// Status returns the current lifecycle snapshot.
func (l *Listener) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	st := Status{State: l.state, Attempt: l.attempt, Handle: l.handle, Resets: l.resets}
	if l.lastErr != nil {
		st.LastErr = l.lastErr.Error()
	}
	return st
}

// MatchesPhaseStart reports whether a notification payload announces a new
// voting phase. The control trigger emits JSON {"event_type": "..."}; a bare
// payload equal to the tag is accepted for hand-issued NOTIFY.
func MatchesPhaseStart(payload string) bool {
	var sig struct {
		EventType string `json:"event_type"`
	}
	if err := json.Unmarshal([]byte(payload), &sig); err == nil && sig.EventType != "" {
		return sig.EventType == PhaseStartTag
	}
	return strings.TrimSpace(payload) == PhaseStartTag
}
