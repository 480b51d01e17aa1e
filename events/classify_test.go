package events

import (
	"reflect"
	"testing"
)

func TestClassifyCheer(t *testing.T) {
	evs := Classify(RawMessage{Sender: "Alice", Text: "ripple100 lets go", Bits: 100}, "streamer")
	if len(evs) != 1 {
		t.Fatalf("expected 1 event, got %d: %v", len(evs), evs)
	}
	want := Event{Type: TypeCheer, User: "alice", Amount: 100}
	if evs[0] != want {
		t.Errorf("got %+v want %+v", evs[0], want)
	}
}

func TestClassifySubscribeNotices(t *testing.T) {
	cases := []struct {
		name string
		msg  RawMessage
		want Event
	}{
		{
			name: "new sub defaults to one month",
			msg:  RawMessage{Sender: "NewFan", Notice: NoticeSub},
			want: Event{Type: TypeSubscribe, User: "newfan", Amount: 1},
		},
		{
			name: "resub carries cumulative months and message",
			msg:  RawMessage{Sender: "OldFan", Notice: NoticeResub, Months: 14, Text: "love the boss fights"},
			want: Event{Type: TypeSubscribe, User: "oldfan", Amount: 14, Message: "love the boss fights"},
		},
		{
			name: "single gift",
			msg:  RawMessage{Sender: "Gifter", Notice: NoticeSubGift, SystemText: "Gifter gifted a Tier 1 sub to NewFan!"},
			want: Event{Type: TypeGiftSub, User: "gifter", Amount: 1, Message: "Gifter gifted a Tier 1 sub to NewFan!"},
		},
		{
			name: "anonymous gift",
			msg:  RawMessage{Sender: "AnAnonymousGifter", Notice: NoticeAnonSubGift, SystemText: "An anonymous user gifted a sub!"},
			want: Event{Type: TypeGiftSub, User: "ananonymousgifter", Amount: 1, Message: "An anonymous user gifted a sub!"},
		},
		{
			name: "mystery gift uses mass count",
			msg:  RawMessage{Sender: "BigSpender", Notice: NoticeMysteryGift, GiftCount: 5, SystemText: "BigSpender is gifting 5 subs!"},
			want: Event{Type: TypeGiftSub, User: "bigspender", Amount: 5, Message: "BigSpender is gifting 5 subs!"},
		},
		{
			name: "mystery gift without count defaults to one",
			msg:  RawMessage{Sender: "BigSpender", Notice: NoticeMysteryGift},
			want: Event{Type: TypeGiftSub, User: "bigspender", Amount: 1},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			evs := Classify(tc.msg, "streamer")
			if len(evs) != 1 {
				t.Fatalf("expected 1 event, got %d: %v", len(evs), evs)
			}
			if evs[0] != tc.want {
				t.Errorf("got %+v want %+v", evs[0], tc.want)
			}
		})
	}
}

func TestClassifyVoteChoices(t *testing.T) {
	for _, tc := range []struct {
		text   string
		choice string
	}{
		{"!1", "1"},
		{"!2", "2"},
		{"!3", "3"},
		{"  !2  ", "2"},
		{"\t!3\n", "3"},
	} {
		evs := Classify(RawMessage{Sender: "voter", Text: tc.text}, "streamer")
		if len(evs) != 1 || evs[0].Type != TypeVote {
			t.Fatalf("text %q: expected one vote, got %v", tc.text, evs)
		}
		if evs[0].Message != tc.choice || evs[0].Amount != 1 {
			t.Errorf("text %q: got %+v", tc.text, evs[0])
		}
	}
}

func TestClassifyVoteNonMatches(t *testing.T) {
	for _, text := range []string{"!4", "!12", "! 1", "1", "!1 please", "!!1", ""} {
		if evs := Classify(RawMessage{Sender: "voter", Text: text}, "streamer"); len(evs) != 0 {
			t.Errorf("text %q: expected no events, got %v", text, evs)
		}
	}
}

func TestClassifyBossAttack(t *testing.T) {
	for _, text := range []string{"!attack", "!ATTACK", " !Attack "} {
		evs := Classify(RawMessage{Sender: "Raider", Text: text}, "streamer")
		if len(evs) != 1 || evs[0] != (Event{Type: TypeBossAttack, User: "raider", Amount: 1}) {
			t.Errorf("text %q: got %v", text, evs)
		}
	}
	if evs := Classify(RawMessage{Sender: "Raider", Text: "!attack the left flank"}, "streamer"); len(evs) != 0 {
		t.Errorf("argument form should not match: got %v", evs)
	}
}

func TestClassifySecretStart(t *testing.T) {
	evs := Classify(RawMessage{Sender: "Streamer", Text: "!ripple_start Boss Phase 2"}, "streamer")
	if len(evs) != 1 {
		t.Fatalf("expected 1 event, got %v", evs)
	}
	want := Event{Type: TypeSecretStart, User: "streamer", Amount: 1, Message: "Boss Phase 2"}
	if evs[0] != want {
		t.Errorf("got %+v want %+v", evs[0], want)
	}

	// Bare command is valid with an empty payload.
	evs = Classify(RawMessage{Sender: "streamer", Text: "!ripple_start"}, "streamer")
	if len(evs) != 1 || evs[0].Message != "" {
		t.Errorf("bare command: got %v", evs)
	}

	// A longer word sharing the prefix is not an invocation.
	if evs := Classify(RawMessage{Sender: "streamer", Text: "!ripple_started"}, "streamer"); len(evs) != 0 {
		t.Errorf("prefix word: got %v", evs)
	}
}

func TestClassifySecretStartNonOperatorInert(t *testing.T) {
	evs := Classify(RawMessage{Sender: "viewer", Text: "!ripple_start anything"}, "streamer")
	if len(evs) != 0 {
		t.Errorf("non-operator command should produce nothing, got %v", evs)
	}
}

func TestClassifySecretEnd(t *testing.T) {
	evs := Classify(RawMessage{Sender: "STREAMER", Text: " !ripple_end "}, "streamer")
	if len(evs) != 1 || evs[0] != (Event{Type: TypeSecretEnd, User: "streamer", Amount: 1}) {
		t.Fatalf("got %v", evs)
	}
	// Exact match only: trailing words do not invoke it.
	if evs := Classify(RawMessage{Sender: "streamer", Text: "!ripple_end now"}, "streamer"); len(evs) != 0 {
		t.Errorf("argument form should not match: got %v", evs)
	}
	if evs := Classify(RawMessage{Sender: "viewer", Text: "!ripple_end"}, "streamer"); len(evs) != 0 {
		t.Errorf("non-operator: got %v", evs)
	}
}

func TestClassifyRulesFireIndependently(t *testing.T) {
	// A cheer whose attached text is also a vote command produces both events.
	evs := Classify(RawMessage{Sender: "Alice", Text: "!1", Bits: 50}, "streamer")
	want := []Event{
		{Type: TypeCheer, User: "alice", Amount: 50},
		{Type: TypeVote, User: "alice", Amount: 1, Message: "1"},
	}
	if !reflect.DeepEqual(evs, want) {
		t.Errorf("got %v want %v", evs, want)
	}

	// Bits on a resub notice produce distinct cheer and subscribe records,
	// never one merged record.
	evs = Classify(RawMessage{Sender: "Bob", Bits: 200, Notice: NoticeResub, Months: 3, Text: "hype"}, "streamer")
	want = []Event{
		{Type: TypeCheer, User: "bob", Amount: 200},
		{Type: TypeSubscribe, User: "bob", Amount: 3, Message: "hype"},
	}
	if !reflect.DeepEqual(evs, want) {
		t.Errorf("got %v want %v", evs, want)
	}
}

func TestClassifyUnrecognizedIsSilent(t *testing.T) {
	for _, text := range []string{"hello chat", "LUL", "!unknown", "ripple_start"} {
		if evs := Classify(RawMessage{Sender: "viewer", Text: text}, "streamer"); evs != nil {
			t.Errorf("text %q: got %v", text, evs)
		}
	}
}

func TestCanonicalUser(t *testing.T) {
	for _, tc := range []struct{ in, want string }{
		{"Alice", "alice"},
		{"  ALICE  ", "alice"},
		{"alice", "alice"},
	} {
		if got := CanonicalUser(tc.in); got != tc.want {
			t.Errorf("CanonicalUser(%q)=%q want %q", tc.in, got, tc.want)
		}
	}
}

func TestIsOperator(t *testing.T) {
	if !IsOperator("Streamer", "streamer") {
		t.Error("case-insensitive match expected")
	}
	if IsOperator("viewer", "streamer") {
		t.Error("non-operator matched")
	}
	if IsOperator("anyone", "") {
		t.Error("empty operator must never match")
	}
}
