package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the server's prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	Commands     *prometheus.CounterVec
	Latency      *prometheus.HistogramVec
	Connections  prometheus.Gauge
	Queued       prometheus.Counter
	Propagated   prometheus.Counter
	Applied      prometheus.Counter
	BadRecords   prometheus.Counter
	Snapshots    prometheus.Counter
	LogRecords   prometheus.Counter
	ExpiredEvict prometheus.Counter
}

// New creates the collectors and registers them with reg (if non-nil).
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tinydb",
			Name:      "commands_total",
			Help:      "Commands executed, by command and result.",
		}, []string{"command", "result"}),
		Latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tinydb",
			Name:      "command_duration_seconds",
			Help:      "Command execution latency.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		}, []string{"command"}),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tinydb",
			Name:      "connected_clients",
			Help:      "Open client sessions.",
		}),
		Queued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tinydb",
			Subsystem: "replication",
			Name:      "queued_total",
			Help:      "Replay records queued for slaves.",
		}),
		Propagated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tinydb",
			Subsystem: "replication",
			Name:      "propagated_total",
			Help:      "Replay records sent to slaves.",
		}),
		Applied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tinydb",
			Subsystem: "replication",
			Name:      "applied_total",
			Help:      "Replay records applied from the master.",
		}),
		BadRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tinydb",
			Subsystem: "replication",
			Name:      "bad_records_total",
			Help:      "Replay records from the master that could not be parsed.",
		}),
		Snapshots: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tinydb",
			Subsystem: "persistence",
			Name:      "snapshots_total",
			Help:      "Snapshots written.",
		}),
		LogRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tinydb",
			Subsystem: "persistence",
			Name:      "log_records_total",
			Help:      "Commands appended to the command log.",
		}),
		ExpiredEvict: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tinydb",
			Name:      "expired_evicted_total",
			Help:      "Expired keys removed by the background sweep.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Commands, m.Latency, m.Connections,
			m.Queued, m.Propagated, m.Applied, m.BadRecords,
			m.Snapshots, m.LogRecords, m.ExpiredEvict)
	}
	return m
}

// CommandDone records one executed command.
func (m *Metrics) CommandDone(name string, failed bool, d time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if failed {
		result = "error"
	}
	m.Commands.WithLabelValues(name, result).Inc()
	m.Latency.WithLabelValues(name).Observe(d.Seconds())
}

func (m *Metrics) Connected() {
	if m != nil {
		m.Connections.Inc()
	}
}

func (m *Metrics) Disconnected() {
	if m != nil {
		m.Connections.Dec()
	}
}

func (m *Metrics) RecordQueued() {
	if m != nil {
		m.Queued.Inc()
	}
}

func (m *Metrics) RecordsPropagated(n int) {
	if m != nil {
		m.Propagated.Add(float64(n))
	}
}

func (m *Metrics) RecordApplied() {
	if m != nil {
		m.Applied.Inc()
	}
}

func (m *Metrics) RecordRejected() {
	if m != nil {
		m.BadRecords.Inc()
	}
}

func (m *Metrics) SnapshotSaved() {
	if m != nil {
		m.Snapshots.Inc()
	}
}

func (m *Metrics) LogAppended() {
	if m != nil {
		m.LogRecords.Inc()
	}
}

func (m *Metrics) Evicted(n int) {
	if m != nil {
		m.ExpiredEvict.Add(float64(n))
	}
}
