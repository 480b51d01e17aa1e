package events

import "strings"

// Chat commands recognized by the classifier.
const (
	CommandSecretStart = "!ripple_start"
	CommandSecretEnd   = "!ripple_end"
	commandAttack      = "!attack"
)

var voteChoices = map[string]string{"!1": "1", "!2": "2", "!3": "3"}

// Classify applies every classification rule to one message and returns the
// events it produces, in rule order. Rules fire independently: a single
// message can yield several events, and no rule suppresses another. A message
// matching nothing yields nil, which is ordinary chat traffic, not an error.
//
// Vote events are candidates only. Admission against the current phase is the
// pipeline's job; classification never consults vote state.
func Classify(msg RawMessage, operator string) []Event {
	user := CanonicalUser(msg.Sender)
	text := strings.TrimSpace(msg.Text)
	var out []Event

	if msg.Bits > 0 {
		out = append(out, Event{Type: TypeCheer, User: user, Amount: msg.Bits})
	}

	switch msg.Notice {
	case NoticeSub, NoticeResub:
		months := msg.Months
		if months < 1 {
			months = 1
		}
		out = append(out, Event{Type: TypeSubscribe, User: user, Amount: months, Message: text})
	case NoticeSubGift, NoticeAnonSubGift:
		out = append(out, Event{Type: TypeGiftSub, User: user, Amount: 1, Message: msg.SystemText})
	case NoticeMysteryGift:
		count := msg.GiftCount
		if count < 1 {
			count = 1
		}
		out = append(out, Event{Type: TypeGiftSub, User: user, Amount: count, Message: msg.SystemText})
	}

	if choice, ok := voteChoices[text]; ok {
		out = append(out, Event{Type: TypeVote, User: user, Amount: 1, Message: choice})
	}

	if strings.EqualFold(text, commandAttack) {
		out = append(out, Event{Type: TypeBossAttack, User: user, Amount: 1})
	}

	if IsOperator(msg.Sender, operator) {
		if payload, ok := commandPayload(text, CommandSecretStart); ok {
			out = append(out, Event{Type: TypeSecretStart, User: user, Amount: 1, Message: payload})
		}
		if text == CommandSecretEnd {
			out = append(out, Event{Type: TypeSecretEnd, User: user, Amount: 1})
		}
	}

	return out
}

// IsOperator reports whether sender is the designated operator identity,
// compared case-insensitively after trimming.
func IsOperator(sender, operator string) bool {
	operator = strings.TrimSpace(operator)
	return operator != "" && strings.EqualFold(strings.TrimSpace(sender), operator)
}

// commandPayload matches text against a literal command token and returns the
// free-text remainder, trimmed. The token matches bare or followed by
// whitespace; "!ripple_started" is not an invocation.
func commandPayload(text, command string) (string, bool) {
	if !strings.HasPrefix(text, command) {
		return "", false
	}
	rest := text[len(command):]
	if rest != "" && rest[0] != ' ' && rest[0] != '\t' {
		return "", false
	}
	return strings.TrimSpace(rest), true
}
