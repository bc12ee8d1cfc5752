// Package observability exposes the client engine counters to Prometheus.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "chatsync"

// Metrics groups the collectors updated by the session event loop.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	EventsReceived    *prometheus.CounterVec
	StaleDropped      prometheus.Counter
	SendRetries       prometheus.Counter
	SendFailures      prometheus.Counter
	JoinNotifications prometheus.Counter
	TypingEvicted     prometheus.Counter
	RoomSwitches      prometheus.Counter
	OnlineUsers       prometheus.Gauge
}

// NewMetrics registers every collector on reg.
// Pass prometheus.NewRegistry() in tests to keep them isolated.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channel_events_total",
			Help:      "Events delivered by the room channel, by kind.",
		}, []string{"kind"}),
		StaleDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_completions_dropped_total",
			Help:      "Async completions discarded because the room changed meanwhile.",
		}),
		SendRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_retries_total",
			Help:      "Message submissions retried after a transient failure.",
		}),
		SendFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_failures_total",
			Help:      "Message submissions that failed after the retry.",
		}),
		JoinNotifications: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "join_notifications_total",
			Help:      "Users announced as newly joined.",
		}),
		TypingEvicted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "typing_signals_evicted_total",
			Help:      "Typing signals expired by the sweep.",
		}),
		RoomSwitches: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "room_switches_total",
			Help:      "Room sessions rebuilt.",
		}),
		OnlineUsers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_users",
			Help:      "Users online in the active room, including the local user.",
		}),
	}
}

func (m *Metrics) Event(kind string) {
	if m == nil {
		return
	}
	m.EventsReceived.WithLabelValues(kind).Inc()
}

func (m *Metrics) Stale() {
	if m == nil {
		return
	}
	m.StaleDropped.Inc()
}

func (m *Metrics) Retry() {
	if m == nil {
		return
	}
	m.SendRetries.Inc()
}

func (m *Metrics) SendFailed() {
	if m == nil {
		return
	}
	m.SendFailures.Inc()
}

func (m *Metrics) Joined(n int) {
	if m == nil {
		return
	}
	m.JoinNotifications.Add(float64(n))
}

func (m *Metrics) Evicted(n int) {
	if m == nil {
		return
	}
	m.TypingEvicted.Add(float64(n))
}

func (m *Metrics) Switched() {
	if m == nil {
		return
	}
	m.RoomSwitches.Inc()
}

func (m *Metrics) Online(n int) {
	if m == nil {
		return
	}
	m.OnlineUsers.Set(float64(n))
}
