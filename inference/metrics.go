package inference

import (
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records per-model inference timings and failures.
type Metrics struct {
	duration *prometheus.HistogramVec
	failures *prometheus.CounterVec
}

// NewMetrics creates the inference collectors and registers them on reg.
//
// Arguments:
//   - reg: The registerer to publish on, e.g. prometheus.NewRegistry().
//
// Returns:
//   - *Metrics: The collectors.
//   - error: An error if registration fails.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "poopdetector_inference_duration_seconds",
			Help:    "Wall time of a single model run.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
		}, []string{"model"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "poopdetector_inference_errors_total",
			Help: "Number of failed model runs.",
		}, []string{"model"}),
	}

	if err := reg.Register(m.duration); err != nil {
		return nil, errors.Wrap(err, "registering inference duration histogram")
	}
	if err := reg.Register(m.failures); err != nil {
		return nil, errors.Wrap(err, "registering inference error counter")
	}

	return m, nil
}

// Observe records one run. A nil receiver is a no-op.
func (m *Metrics) Observe(model string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(model).Observe(elapsed.Seconds())
	if err != nil {
		m.failures.WithLabelValues(model).Inc()
	}
}
