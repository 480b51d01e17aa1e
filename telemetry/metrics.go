// Package telemetry provides Prometheus metrics, tracing, and correlation-id
// aware logging helpers for the relay.
package telemetry

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	EventsForwarded    *prometheus.CounterVec
	ForwardFailures    prometheus.Counter
	VotesAdmitted      prometheus.Counter
	VotesRejected      prometheus.Counter
	PhaseResets        *prometheus.CounterVec
	ListenerReconnects prometheus.Counter
	ChatSessions       prometheus.Counter

	// Histograms (seconds)
	ForwardDuration *prometheus.HistogramVec
	RequestDuration *prometheus.HistogramVec

	// Gauges
	ChatConnectedGauge prometheus.Gauge
	ListenerUpGauge    prometheus.Gauge
	PhaseVotersGauge   prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		EventsForwarded = promauto.NewCounterVec(prometheus.CounterOpts{Name: "relay_events_forwarded_total", Help: "Events forwarded to the sink"}, []string{"type"})
		ForwardFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_forward_failures_total", Help: "Sink forwards that failed"})
		VotesAdmitted = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_votes_admitted_total", Help: "Votes admitted by the phase guard"})
		VotesRejected = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_votes_rejected_total", Help: "Duplicate or ineligible votes rejected"})
		PhaseResets = promauto.NewCounterVec(prometheus.CounterOpts{Name: "relay_phase_resets_total", Help: "Phase resets by trigger origin"}, []string{"origin"})
		ListenerReconnects = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_listener_reconnects_total", Help: "Control listener subscribe attempts after the first"})
		ChatSessions = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_chat_sessions_total", Help: "Chat sessions established"})
		ForwardDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{Name: "relay_forward_duration_seconds", Help: "Sink forward duration seconds", Buckets: prometheus.DefBuckets}, []string{"type"})
		RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{Name: "relay_http_request_duration_seconds", Help: "HTTP request duration seconds", Buckets: prometheus.DefBuckets}, []string{"route", "method", "status"})
		ChatConnectedGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "relay_chat_connected", Help: "Chat session up=1 down=0"})
		ListenerUpGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "relay_listener_up", Help: "Control listener subscribed=1 else 0"})
		PhaseVotersGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "relay_phase_voters", Help: "Distinct voters recorded this phase"})
	})
}

// IncForwarded counts one delivered event by type.
func IncForwarded(eventType string) {
	if EventsForwarded != nil {
		EventsForwarded.WithLabelValues(eventType).Inc()
	}
}

// IncForwardFailure counts one failed delivery.
func IncForwardFailure() {
	if ForwardFailures != nil {
		ForwardFailures.Inc()
	}
}

// IncPhaseReset counts one reset by origin ("operator", "notification", "boot").
func IncPhaseReset(origin string) {
	if PhaseResets != nil {
		PhaseResets.WithLabelValues(origin).Inc()
	}
}

// IncVoteAdmitted counts one vote the phase guard admitted.
func IncVoteAdmitted() {
	if VotesAdmitted != nil {
		VotesAdmitted.Inc()
	}
}

// IncVoteRejected counts one vote rejected as duplicate or ineligible.
func IncVoteRejected() {
	if VotesRejected != nil {
		VotesRejected.Inc()
	}
}

// IncListenerReconnect counts one scheduled control resubscribe.
func IncListenerReconnect() {
	if ListenerReconnects != nil {
		ListenerReconnects.Inc()
	}
}

// IncChatSession counts one established chat session.
func IncChatSession() {
	if ChatSessions != nil {
		ChatSessions.Inc()
	}
}

// ObserveForwardDuration records one sink round trip.
func ObserveForwardDuration(eventType string, seconds float64) {
	if ForwardDuration != nil {
		ForwardDuration.WithLabelValues(eventType).Observe(seconds)
	}
}

// ObserveRequestDuration records one served HTTP request.
func ObserveRequestDuration(route, method string, status int, seconds float64) {
	if RequestDuration != nil {
		RequestDuration.WithLabelValues(route, method, strconv.Itoa(status)).Observe(seconds)
	}
}

// SetChatConnected flips the chat session gauge.
func SetChatConnected(up bool) {
	if ChatConnectedGauge != nil {
		if up {
			ChatConnectedGauge.Set(1)
		} else {
			ChatConnectedGauge.Set(0)
		}
	}
}

// SetListenerUp flips the control listener gauge.
func SetListenerUp(up bool) {
	if ListenerUpGauge != nil {
		if up {
			ListenerUpGauge.Set(1)
		} else {
			ListenerUpGauge.Set(0)
		}
	}
}

// SetPhaseVoters records the current distinct-voter count.
func SetPhaseVoters(n int) {
	if PhaseVotersGauge != nil {
		PhaseVotersGauge.Set(float64(n))
	}
}

// TimeFunc measures the duration of fn and records it in obs if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------

type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns the correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger carrying the corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
