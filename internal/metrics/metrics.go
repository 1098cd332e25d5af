package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "georally"

// Session end outcomes
const (
	OutcomeWon       = "won"
	OutcomeForfeit   = "forfeit"
	OutcomeAbandoned = "abandoned"
	OutcomeCancelled = "cancelled"
)

// Metrics holds the Prometheus collectors for the game server.
// Each instance owns its registry so tests can build as many as they like.
type Metrics struct {
	Registry *prometheus.Registry

	WaitingPlayers   prometheus.Gauge
	ActiveSessions   prometheus.Gauge
	ConnectedClients prometheus.Gauge

	SessionsCreated      prometheus.Counter
	SessionsEnded        *prometheus.CounterVec
	Answers              *prometheus.CounterVec
	InboundEvents        *prometheus.CounterVec
	ResultRecordFailures prometheus.Counter
	GenerationFailures   prometheus.Counter
}

// New creates and registers all collectors
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		WaitingPlayers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "waiting_players",
			Help:      "Players currently waiting in the match queue.",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Sessions held by the registry.",
		}),
		ConnectedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected_clients",
			Help:      "Open websocket connections.",
		}),
		SessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "Sessions created by pairing.",
		}),
		SessionsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_ended_total",
			Help:      "Sessions that reached the ended state, by outcome.",
		}, []string{"outcome"}),
		Answers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answers_total",
			Help:      "Judged answers, by result.",
		}, []string{"result"}),
		InboundEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_events_total",
			Help:      "Inbound client events, by type.",
		}, []string{"type"}),
		ResultRecordFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "result_record_failures_total",
			Help:      "Round results the persistence layer failed to record.",
		}),
		GenerationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "round_generation_failures_total",
			Help:      "Pairings dropped because no round could be generated.",
		}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.WaitingPlayers,
		m.ActiveSessions,
		m.ConnectedClients,
		m.SessionsCreated,
		m.SessionsEnded,
		m.Answers,
		m.InboundEvents,
		m.ResultRecordFailures,
		m.GenerationFailures,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
