package codec

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mesh-intelligence/dials/pkg/types"
)

// Metrics counts codec activity. A nil *Metrics records nothing.
type Metrics struct {
	FieldsEncoded  prometheus.Counter
	FieldsApplied  prometheus.Counter
	BatchesApplied prometheus.Counter
	FieldErrors    *prometheus.CounterVec
}

// NewMetrics creates the codec counters under the given namespace. They
// are not registered; see Register.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		FieldsEncoded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "codec",
			Name:      "fields_encoded_total",
			Help:      "Dirty fields written into payloads.",
		}),
		FieldsApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "codec",
			Name:      "fields_applied_total",
			Help:      "Payload fields applied to a receiving container.",
		}),
		BatchesApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "codec",
			Name:      "batches_applied_total",
			Help:      "Batch notifications delivered to receiving containers.",
		}),
		FieldErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "codec",
			Name:      "field_errors_total",
			Help:      "Fields skipped during encode or decode, by error kind.",
		}, []string{"kind"}),
	}
}

// Register adds every counter to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.FieldsEncoded, m.FieldsApplied, m.BatchesApplied, m.FieldErrors} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) encoded(n int) {
	if m == nil {
		return
	}
	m.FieldsEncoded.Add(float64(n))
}

func (m *Metrics) applied(n int) {
	if m == nil {
		return
	}
	m.FieldsApplied.Add(float64(n))
	m.BatchesApplied.Inc()
}

func (m *Metrics) fieldError(kind types.ErrorKind) {
	if m == nil {
		return
	}
	m.FieldErrors.WithLabelValues(string(kind)).Inc()
}
