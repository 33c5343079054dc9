package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"tagwatch/internal/poller"
)

const namespace = "tagwatch"

// Metrics is the Prometheus-backed poller.Recorder.
type Metrics struct {
	reg prometheus.Registerer

	cycles        prometheus.Counter
	cycleDuration prometheus.Histogram
	lastCycle     prometheus.Gauge
	resolveErrors *prometheus.CounterVec
	decisions     *prometheus.CounterVec
	notifications *prometheus.CounterVec
	persistErrors prometheus.Counter
	stateEntries  prometheus.Gauge
	foreignWrites prometheus.Counter
}

var _ poller.Recorder = (*Metrics)(nil)

// NewMetrics creates and registers the collectors on reg
// (prometheus.DefaultRegisterer when nil).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		reg: reg,
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Completed poll cycles.",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of one poll cycle including the persist step.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms .. ~100s
		}),
		lastCycle: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_cycle_timestamp_seconds",
			Help:      "Unix time the last cycle finished.",
		}),
		resolveErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolve_errors_total",
			Help:      "Failed upstream lookups by kind.",
		}, []string{"kind"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Change decisions by outcome (unchanged|first_seen|advanced).",
		}, []string{"decision"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification attempts by result (sent|failed).",
		}, []string{"result"}),
		persistErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_errors_total",
			Help:      "Failed state persists.",
		}),
		stateEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "state_entries",
			Help:      "Entities with a recorded identifier.",
		}),
		foreignWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_foreign_writes_total",
			Help:      "State file changes not made by this process.",
		}),
	}
	reg.MustRegister(
		m.cycles,
		m.cycleDuration,
		m.lastCycle,
		m.resolveErrors,
		m.decisions,
		m.notifications,
		m.persistErrors,
		m.stateEntries,
		m.foreignWrites,
	)
	return m
}

func (m *Metrics) CycleDone(took time.Duration, at time.Time) {
	m.cycles.Inc()
	m.cycleDuration.Observe(took.Seconds())
	m.lastCycle.Set(float64(at.Unix()))
}

func (m *Metrics) ResolveError(kind string) {
	if kind == "" {
		kind = "other"
	}
	m.resolveErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) Decision(kind string)       { m.decisions.WithLabelValues(kind).Inc() }
func (m *Metrics) Notification(result string) { m.notifications.WithLabelValues(result).Inc() }
func (m *Metrics) PersistError()              { m.persistErrors.Inc() }
func (m *Metrics) StateEntries(n int)         { m.stateEntries.Set(float64(n)) }

// ForeignWrite counts a state file change made by someone else.
func (m *Metrics) ForeignWrite() { m.foreignWrites.Inc() }
