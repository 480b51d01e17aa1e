// Package events defines the canonical event records the relay forwards and
// the classification rules that derive them from raw chat activity.
package events

import "strings"

// Type identifies a canonical relay event.
type Type string

const (
	TypeCheer       Type = "cheer"
	TypeSubscribe   Type = "subscribe"
	TypeGiftSub     Type = "giftSubscription"
	TypeVote        Type = "vote"
	TypeBossAttack  Type = "bossAttack"
	TypeSecretStart Type = "secretStart"
	TypeSecretEnd   Type = "secretEnd"
)

// Event is the normalized record handed to the ingest endpoint. Field tags
// are the sink's wire contract.
type Event struct {
	Type    Type   `json:"event_type"`
	User    string `json:"user_name"`
	Amount  int    `json:"amount"`
	Message string `json:"message"`
}

// Notice identifies the structured subscription notice attached to a message,
// using Twitch's msg-id vocabulary.
type Notice string

const (
	NoticeNone        Notice = ""
	NoticeSub         Notice = "sub"
	NoticeResub       Notice = "resub"
	NoticeSubGift     Notice = "subgift"
	NoticeAnonSubGift Notice = "anonsubgift"
	NoticeMysteryGift Notice = "submysterygift"
)

// Roles carries the badge-derived role flags of a sender.
type Roles struct {
	Subscriber  bool
	Moderator   bool
	Broadcaster bool
}

// RawMessage is one inbound chat item lifted out of the transport. The chat
// package populates it from IRC messages; tests build it directly.
type RawMessage struct {
	Sender      string // login as received, casing preserved
	DisplayName string
	Text        string
	Bits        int
	Roles       Roles
	Notice      Notice
	Months      int    // cumulative months on sub/resub notices
	GiftCount   int    // recipient count on submysterygift notices
	SystemText  string // system message accompanying a notice
	Self        bool   // authored by the relay's own account
}

// CanonicalUser derives the participant identity carried on events and used
// as the vote dedup key: login lowercased with surrounding whitespace
// removed. Identities differing only in case must collide.
func CanonicalUser(login string) string {
	return strings.ToLower(strings.TrimSpace(login))
}
