package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/ripple-relay/config"
	"github.com/onnwee/ripple-relay/events"
	"github.com/onnwee/ripple-relay/telemetry"
)

// Forwarder delivers one normalized event to the ingest endpoint.
// Configurable for tests; sink.Client is the production implementation.
type Forwarder interface {
	Send(ctx context.Context, ev events.Event) error
}

// Relay owns the chat session. It supervises session establishment with a
// bounded retry budget, feeds every inbound message through the pipeline,
// and forwards the resulting events fire-and-forget.
type Relay struct {
	client   *twitch.Client
	pipeline *Pipeline
	forward  Forwarder

	channel  string
	username string

	connectAttempts int
	connectDelay    time.Duration

	onReady   func()
	readyOnce sync.Once

	mu        sync.Mutex
	connected bool
}

// New builds a relay from cfg. token is the IRC credential; the "oauth:"
// prefix is added when missing. onReady runs once, after the first successful
// connect; main uses it to start the control listener.
func New(cfg *config.Config, token string, pipe *Pipeline, fw Forwarder, onReady func()) *Relay {
	r := &Relay{
		client:          twitch.NewClient(cfg.BotUsername, ircToken(token)),
		pipeline:        pipe,
		forward:         fw,
		channel:         cfg.Channel,
		username:        cfg.BotUsername,
		connectAttempts: cfg.ChatConnectAttempts,
		connectDelay:    cfg.ChatConnectDelay,
		onReady:         onReady,
	}
	r.client.OnConnect(r.handleConnect)
	r.client.OnPrivateMessage(r.handlePrivateMessage)
	r.client.OnUserNoticeMessage(r.handleUserNotice)
	return r
}

// Run joins the channel and drives the session until ctx ends. Establishment
// gets an initial attempt plus retries at a fixed delay; exhausting the
// budget returns an error the caller treats as fatal. Once a session has
// been up, transport-level reconnects are the IRC library's job; if it gives
// up and Connect returns, the loss is reported without re-entering the
// establishment loop.
func (r *Relay) Run(ctx context.Context) error {
	attempts := r.connectAttempts
	if attempts <= 0 {
		attempts = config.DefaultChatConnectAttempts
	}
	delay := r.connectDelay
	if delay <= 0 {
		delay = config.DefaultChatConnectDelay
	}

	// Handle context cancellation by closing the client.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			if err := r.client.Disconnect(); err != nil {
				slog.Debug("chat disconnect", slog.Any("err", err))
			}
		case <-done:
		}
	}()

	r.client.Join(r.channel)

	for attempt := 1; ; attempt++ {
		err := r.client.Connect()

		r.mu.Lock()
		wasConnected := r.connected
		r.connected = false
		r.mu.Unlock()
		telemetry.SetChatConnected(false)

		if ctx.Err() != nil {
			slog.Info("chat session closed")
			return nil
		}
		if err == nil {
			return nil
		}
		if wasConnected {
			return fmt.Errorf("chat session lost: %w", err)
		}
		if attempt >= attempts {
			return fmt.Errorf("chat connect: %d attempts exhausted: %w", attempts, err)
		}
		slog.Warn("chat connect failed, retrying",
			slog.Int("attempt", attempt),
			slog.Int("budget", attempts),
			slog.Duration("delay", delay),
			slog.Any("err", err))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

// Connected reports whether a session has been established and is still up.
func (r *Relay) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connected
}

// UpdateToken swaps the IRC credential used on the next (re)connect. The
// oauth refresher calls this when it rotates the stored token.
func (r *Relay) UpdateToken(token string) {
	r.client.SetIRCToken(ircToken(token))
}

func (r *Relay) handleConnect() {
	r.mu.Lock()
	r.connected = true
	r.mu.Unlock()
	telemetry.SetChatConnected(true)
	telemetry.IncChatSession()
	slog.Info("chat session established", slog.String("channel", r.channel))
	r.readyOnce.Do(func() {
		if r.onReady != nil {
			go r.onReady()
		}
	})
}

func (r *Relay) handlePrivateMessage(msg twitch.PrivateMessage) {
	r.dispatch(events.RawMessage{
		Sender:      msg.User.Name,
		DisplayName: msg.User.DisplayName,
		Text:        msg.Message,
		Bits:        msg.Bits,
		Roles:       rolesFromBadges(msg.User.Badges),
		Self:        strings.EqualFold(msg.User.Name, r.username),
	})
}

func (r *Relay) handleUserNotice(msg twitch.UserNoticeMessage) {
	r.dispatch(events.RawMessage{
		Sender:      msg.User.Name,
		DisplayName: msg.User.DisplayName,
		Text:        msg.Message,
		Roles:       rolesFromBadges(msg.User.Badges),
		Notice:      events.Notice(msg.MsgID),
		Months:      msgParamInt(msg.MsgParams, "msg-param-cumulative-months"),
		GiftCount:   msgParamInt(msg.MsgParams, "msg-param-mass-gift-count"),
		SystemText:  msg.SystemMsg,
		Self:        strings.EqualFold(msg.User.Name, r.username),
	})
}

func (r *Relay) dispatch(raw events.RawMessage) {
	for _, ev := range r.pipeline.Process(raw) {
		go r.send(ev)
	}
}

// send makes exactly one delivery attempt. In-flight sends are never
// cancelled, so they finish (or time out on their own) across shutdown.
func (r *Relay) send(ev events.Event) {
	if err := r.forward.Send(context.Background(), ev); err != nil {
		telemetry.IncForwardFailure()
		slog.Warn("event forward failed",
			slog.String("type", string(ev.Type)),
			slog.String("user", ev.User),
			slog.Any("err", err))
		return
	}
	telemetry.IncForwarded(string(ev.Type))
}

func rolesFromBadges(badges map[string]int) events.Roles {
	return events.Roles{
		Subscriber:  badges["subscriber"] > 0 || badges["founder"] > 0,
		Moderator:   badges["moderator"] > 0,
		Broadcaster: badges["broadcaster"] > 0,
	}
}

func msgParamInt(params map[string]string, key string) int {
	if v, ok := params[key]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 0
}

func ircToken(token string) string {
	if token == "" || strings.HasPrefix(token, "oauth:") {
		return token
	}
	return "oauth:" + token
}
