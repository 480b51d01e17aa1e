package chat

import (
	"context"
	"testing"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/ripple-relay/config"
	"github.com/onnwee/ripple-relay/events"
	"github.com/onnwee/ripple-relay/phase"
)

type captureForwarder struct {
	ch chan events.Event
}

func newCaptureForwarder() *captureForwarder {
	return &captureForwarder{ch: make(chan events.Event, 16)}
}

func (f *captureForwarder) Send(ctx context.Context, ev events.Event) error {
	f.ch <- ev
	return nil
}

func (f *captureForwarder) wait(t *testing.T) events.Event {
	t.Helper()
	select {
	case ev := <-f.ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event forwarded")
		return events.Event{}
	}
}

func testRelay(fw Forwarder) *Relay {
	cfg := &config.Config{
		Channel:     "streamer",
		BotUsername: "relaybot",
		Operator:    "streamer",
		VotePolicy:  config.PolicyAll,
	}
	pipe := &Pipeline{Operator: cfg.Operator, Policy: cfg.VotePolicy, Guard: phase.NewGuard()}
	return New(cfg, "token", pipe, fw, nil)
}

func TestPrivateMessageReachesForwarder(t *testing.T) {
	fw := newCaptureForwarder()
	r := testRelay(fw)

	r.handlePrivateMessage(twitch.PrivateMessage{
		User:    twitch.User{Name: "Alice", DisplayName: "Alice"},
		Message: "!2",
	})

	ev := fw.wait(t)
	want := events.Event{Type: events.TypeVote, User: "alice", Amount: 1, Message: "2"}
	if ev != want {
		t.Errorf("got %+v want %+v", ev, want)
	}
}

func TestUserNoticeReachesForwarder(t *testing.T) {
	fw := newCaptureForwarder()
	r := testRelay(fw)

	r.handleUserNotice(twitch.UserNoticeMessage{
		User:      twitch.User{Name: "OldFan"},
		MsgID:     "resub",
		MsgParams: map[string]string{"msg-param-cumulative-months": "14"},
		Message:   "fourteen months!",
	})

	ev := fw.wait(t)
	want := events.Event{Type: events.TypeSubscribe, User: "oldfan", Amount: 14, Message: "fourteen months!"}
	if ev != want {
		t.Errorf("got %+v want %+v", ev, want)
	}
}

func TestMysteryGiftNoticeUsesMassCount(t *testing.T) {
	fw := newCaptureForwarder()
	r := testRelay(fw)

	r.handleUserNotice(twitch.UserNoticeMessage{
		User:      twitch.User{Name: "BigSpender"},
		MsgID:     "submysterygift",
		MsgParams: map[string]string{"msg-param-mass-gift-count": "5"},
		SystemMsg: "BigSpender is gifting 5 Tier 1 Subs!",
	})

	ev := fw.wait(t)
	if ev.Type != events.TypeGiftSub || ev.Amount != 5 {
		t.Errorf("got %+v", ev)
	}
}

func TestOwnMessagesNotForwarded(t *testing.T) {
	fw := newCaptureForwarder()
	r := testRelay(fw)

	r.handlePrivateMessage(twitch.PrivateMessage{
		User:    twitch.User{Name: "RelayBot"},
		Message: "!1",
	})

	select {
	case ev := <-fw.ch:
		t.Errorf("own message forwarded: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRolesFromBadges(t *testing.T) {
	cases := []struct {
		badges map[string]int
		want   events.Roles
	}{
		{map[string]int{"subscriber": 12}, events.Roles{Subscriber: true}},
		{map[string]int{"founder": 1}, events.Roles{Subscriber: true}},
		{map[string]int{"moderator": 1}, events.Roles{Moderator: true}},
		{map[string]int{"broadcaster": 1}, events.Roles{Broadcaster: true}},
		{map[string]int{}, events.Roles{}},
		{nil, events.Roles{}},
	}
	for _, tc := range cases {
		if got := rolesFromBadges(tc.badges); got != tc.want {
			t.Errorf("rolesFromBadges(%v)=%+v want %+v", tc.badges, got, tc.want)
		}
	}
}

func TestMsgParamInt(t *testing.T) {
	params := map[string]string{"msg-param-cumulative-months": "9", "msg-param-mass-gift-count": "junk"}
	if got := msgParamInt(params, "msg-param-cumulative-months"); got != 9 {
		t.Errorf("got %d want 9", got)
	}
	if got := msgParamInt(params, "msg-param-mass-gift-count"); got != 0 {
		t.Errorf("unparsable param should yield 0, got %d", got)
	}
	if got := msgParamInt(params, "missing"); got != 0 {
		t.Errorf("missing param should yield 0, got %d", got)
	}
}

func TestIRCTokenPrefix(t *testing.T) {
	if got := ircToken("abc"); got != "oauth:abc" {
		t.Errorf("got %q", got)
	}
	if got := ircToken("oauth:abc"); got != "oauth:abc" {
		t.Errorf("got %q", got)
	}
	if got := ircToken(""); got != "" {
		t.Errorf("got %q", got)
	}
}
