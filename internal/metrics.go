package internal

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the server's prometheus collectors. A nil *Metrics is valid
// and records nothing, which keeps rooms usable without a registry in tests.
type Metrics struct {
	gatherer       prometheus.Gatherer
	activeConns    prometheus.Gauge
	sessionsTotal  prometheus.Counter
	joins          *prometheus.CounterVec
	leaves         *prometheus.CounterVec
	messages       *prometheus.CounterVec
	participations *prometheus.CounterVec
	dropped        *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg. A nil reg gets a private
// registry so several servers can live in one process.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		gatherer: reg,
		activeConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "roomchat_connections_active",
			Help: "Current number of open websocket connections.",
		}),
		sessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roomchat_sessions_total",
			Help: "Total number of websocket sessions accepted since start.",
		}),
		joins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomchat_room_joins_total",
			Help: "Session joins per room.",
		}, []string{"room"}),
		leaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomchat_room_leaves_total",
			Help: "Session leaves per room.",
		}, []string{"room"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomchat_room_messages_total",
			Help: "Messages recorded in room history.",
		}, []string{"room"}),
		participations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomchat_room_participation_events_total",
			Help: "Joined/Left notifications broadcast per room.",
		}, []string{"room", "status"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomchat_broadcast_dropped_total",
			Help: "Events evicted from lagging subscribers.",
		}, []string{"room"}),
	}

	reg.MustRegister(
		m.activeConns,
		m.sessionsTotal,
		m.joins,
		m.leaves,
		m.messages,
		m.participations,
		m.dropped,
	)
	return m
}

func (m *Metrics) IncConn() {
	if m == nil {
		return
	}
	m.activeConns.Inc()
	m.sessionsTotal.Inc()
}

func (m *Metrics) DecConn() {
	if m == nil {
		return
	}
	m.activeConns.Dec()
}

func (m *Metrics) observeJoin(room string) {
	if m == nil {
		return
	}
	m.joins.WithLabelValues(room).Inc()
}

func (m *Metrics) observeLeave(room string) {
	if m == nil {
		return
	}
	m.leaves.WithLabelValues(room).Inc()
}

func (m *Metrics) observeMessage(room string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(room).Inc()
}

func (m *Metrics) observeParticipation(room string, status ParticipationStatus) {
	if m == nil {
		return
	}
	m.participations.WithLabelValues(room, string(status)).Inc()
}

func (m *Metrics) observeDrop(room string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(room).Inc()
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
