package dbv

import (
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records per-statement durations and failures, labelled by dialect
// and operation (SELECT, INSERT, ...). A nil *Metrics records nothing.
type Metrics struct {
	duration *prometheus.HistogramVec
	errors   *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg, unless reg
// is nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dbv_statement_duration_seconds",
			Help:    "Duration of SQL statements run by dbv.",
			Buckets: prometheus.DefBuckets,
		}, []string{"dialect", "operation"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dbv_statement_errors_total",
			Help: "SQL statements run by dbv that returned an error.",
		}, []string{"dialect", "operation"}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.duration, m.errors} {
		if err := reg.Register(c); err != nil {
			return nil, errors.Wrap(err, "dbv: register metrics")
		}
	}
	return m, nil
}

func (m *Metrics) observe(dialect, op string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(dialect, op).Observe(d.Seconds())
	if err != nil {
		m.errors.WithLabelValues(dialect, op).Inc()
	}
}
