package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Departure reasons, used as the "reason" label
const (
	ReasonClosed     = "closed"
	ReasonSendFailed = "send_failed"
	ReasonLiveness   = "liveness"
	ReasonShutdown   = "shutdown"
)

// Metrics holds the Prometheus collectors of the sync server
type Metrics struct {
	ActiveSessions    prometheus.Gauge
	SessionsAdmitted  prometheus.Counter
	SessionsDeparted  *prometheus.CounterVec
	MessagesReceived  *prometheus.CounterVec
	Broadcasts        *prometheus.CounterVec
	DeliveryFailures  prometheus.Counter
	DecodeErrors      prometheus.Counter
	LivenessProbes    prometheus.Counter
	LivenessEvictions prometheus.Counter
}

// NewMetrics registers the collectors with reg.
// Pass prometheus.NewRegistry() in tests to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	const namespace = "collab"

	return &Metrics{
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of currently admitted sessions",
		}),
		SessionsAdmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_admitted_total",
			Help:      "Total number of admitted sessions",
		}),
		SessionsDeparted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_departed_total",
			Help:      "Total number of departed sessions by reason",
		}, []string{"reason"}),
		MessagesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Inbound frames by message type",
		}, []string{"type"}),
		Broadcasts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Broadcasts by message type",
		}, []string{"type"}),
		DeliveryFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_failures_total",
			Help:      "Per-recipient delivery failures",
		}),
		DecodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Malformed inbound frames that were dropped",
		}),
		LivenessProbes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "liveness_probes_total",
			Help:      "Liveness probes sent",
		}),
		LivenessEvictions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "liveness_evictions_total",
			Help:      "Sessions evicted for not answering liveness probes",
		}),
	}
}

// RegisterJournalBacklog exports the number of presence events waiting to be written
func RegisterJournalBacklog(reg prometheus.Registerer, length func() int) prometheus.GaugeFunc {
	return promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "collab",
		Name:      "journal_backlog",
		Help:      "Presence events queued for the journal database",
	}, func() float64 { return float64(length()) })
}
