package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dmitrymomot/sesslock/pkg/session"
)

// Collector exports store events as Prometheus metrics.
type Collector struct {
	locks    *prometheus.CounterVec
	lockWait prometheus.Histogram
	writes   *prometheus.CounterVec
	gc       *prometheus.CounterVec
}

var _ session.Observer = (*Collector)(nil)

// NewCollector registers the session metrics on reg under namespace.
// It panics if the metrics are already registered on reg.
func NewCollector(reg prometheus.Registerer, namespace string) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		locks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "lock_total",
			Help:      "Session lock attempts by result.",
		}, []string{"result"}),
		lockWait: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "lock_wait_seconds",
			Help:      "Time spent waiting for a session lock.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5, 30, 300},
		}),
		writes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "writes_total",
			Help:      "Session writes by outcome.",
		}, []string{"outcome"}),
		gc: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "gc_total",
			Help:      "Expired session sweeps by result.",
		}, []string{"result"}),
	}
}

// ObserveLock implements session.Observer.
func (c *Collector) ObserveLock(acquired bool, wait time.Duration) {
	result := "acquired"
	if !acquired {
		result = "failed"
	}
	c.locks.WithLabelValues(result).Inc()
	c.lockWait.Observe(wait.Seconds())
}

// ObserveWrite implements session.Observer.
func (c *Collector) ObserveWrite(outcome session.WriteOutcome) {
	c.writes.WithLabelValues(outcome.String()).Inc()
}

// ObserveGC implements session.Observer.
func (c *Collector) ObserveGC(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.gc.WithLabelValues(result).Inc()
}
