package inclusion

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the engine's prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	bitfields prometheus.Counter
	backed    prometheus.Counter
	included  prometheus.Counter
	timedOut  prometheus.Counter
	desync    prometheus.Counter
	rejected  *prometheus.CounterVec
	pending   prometheus.Gauge
}

// NewMetrics creates the engine collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		bitfields: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relay", Subsystem: "inclusion", Name: "bitfields_accepted_total",
			Help: "Availability bitfields accepted.",
		}),
		backed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relay", Subsystem: "inclusion", Name: "candidates_backed_total",
			Help: "Candidates admitted as pending availability.",
		}),
		included: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relay", Subsystem: "inclusion", Name: "candidates_included_total",
			Help: "Candidates enacted.",
		}),
		timedOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relay", Subsystem: "inclusion", Name: "candidates_timed_out_total",
			Help: "Pending candidates evicted by the timeout sweep.",
		}),
		desync: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relay", Subsystem: "inclusion", Name: "desync_skips_total",
			Help: "Available candidates dropped because their commitments were missing or enactment failed.",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay", Subsystem: "inclusion", Name: "rejected_batches_total",
			Help: "Bitfield or candidate batches rejected, by reason.",
		}, []string{"reason"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "relay", Subsystem: "inclusion", Name: "pending_candidates",
			Help: "Candidates currently pending availability.",
		}),
	}

	reg.MustRegister(m.bitfields, m.backed, m.included, m.timedOut, m.desync, m.rejected, m.pending)

	return m
}

func (m *Metrics) addBitfields(n int) {
	if m != nil {
		m.bitfields.Add(float64(n))
	}
}

func (m *Metrics) addBacked(n int) {
	if m != nil {
		m.backed.Add(float64(n))
	}
}

func (m *Metrics) incIncluded() {
	if m != nil {
		m.included.Inc()
	}
}

func (m *Metrics) incTimedOut() {
	if m != nil {
		m.timedOut.Inc()
	}
}

func (m *Metrics) incDesync() {
	if m != nil {
		m.desync.Inc()
	}
}

func (m *Metrics) reject(err error) {
	if m != nil {
		m.rejected.WithLabelValues(reasonLabel(err)).Inc()
	}
}

func (m *Metrics) setPending(n int) {
	if m != nil {
		m.pending.Set(float64(n))
	}
}
