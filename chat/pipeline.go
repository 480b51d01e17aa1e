package chat

import (
	"log/slog"

	"github.com/onnwee/ripple-relay/config"
	"github.com/onnwee/ripple-relay/events"
	"github.com/onnwee/ripple-relay/phase"
	"github.com/onnwee/ripple-relay/telemetry"
)

// Pipeline turns one raw chat message into the events to forward. It applies,
// in stream order: classification, vote eligibility policy, phase dedup, and
// the operator reset side effect. Process is called synchronously from the
// chat handler, so a secretStart reset always lands before its own event is
// forwarded and before any later message is seen.
type Pipeline struct {
	Operator string
	Policy   config.VotePolicy
	Guard    *phase.Guard
}

// Process classifies msg and returns the admitted events. Messages from the
// relay's own account are dropped before classification.
func (p *Pipeline) Process(msg events.RawMessage) []events.Event {
	if msg.Self {
		return nil
	}
	classified := events.Classify(msg, p.Operator)
	if len(classified) == 0 {
		return nil
	}
	out := make([]events.Event, 0, len(classified))
	for _, ev := range classified {
		switch ev.Type {
		case events.TypeVote:
			if !p.eligible(msg) {
				telemetry.IncVoteRejected()
				slog.Debug("vote ineligible under policy",
					slog.String("user", ev.User), slog.String("policy", string(p.Policy)))
				continue
			}
			if !p.Guard.CheckAndRecord(ev.User) {
				telemetry.IncVoteRejected()
				slog.Debug("duplicate vote rejected", slog.String("user", ev.User))
				continue
			}
			telemetry.IncVoteAdmitted()
			telemetry.SetPhaseVoters(p.Guard.Size())
			out = append(out, ev)
		case events.TypeSecretStart:
			p.Guard.Reset(phase.OriginOperator)
			telemetry.IncPhaseReset(phase.OriginOperator.String())
			telemetry.SetPhaseVoters(0)
			slog.Info("voting phase reset",
				slog.String("origin", "operator"), slog.String("payload", ev.Message))
			out = append(out, ev)
		default:
			out = append(out, ev)
		}
	}
	return out
}

func (p *Pipeline) eligible(msg events.RawMessage) bool {
	switch p.Policy {
	case config.PolicySubscribers:
		return msg.Roles.Subscriber || msg.Roles.Broadcaster
	default:
		return true
	}
}
