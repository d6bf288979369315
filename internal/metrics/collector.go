// Package metrics provides internal metrics collection for the resilience
// components. This package is internal and should not be imported by
// external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector aggregates the diagnostic events emitted by breakers,
// limiters and budgeters: state transitions, rejections, throttle waits
// and history truncations.
type Collector struct {
	breakerTransitions *prometheus.CounterVec
	breakerRejections  *prometheus.CounterVec
	limiterThrottles   *prometheus.CounterVec
	limiterWait        *prometheus.HistogramVec
	messagesDropped    *prometheus.CounterVec
	truncations        *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector creates a collector registering its metrics under the given
// namespace on the default prometheus registry.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.breakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "breaker_transitions_total",
			Help:      "Circuit breaker state transitions.",
		},
		[]string{"name", "from", "to"},
	)

	c.breakerRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "breaker_rejections_total",
			Help:      "Calls rejected because the circuit was open.",
		},
		[]string{"name"},
	)

	c.limiterThrottles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "limiter_throttles_total",
			Help:      "Callers suspended waiting for a rate limit token.",
		},
		[]string{"name"},
	)

	c.limiterWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "limiter_wait_seconds",
			Help:      "Computed waits before a rate limit token is available.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		},
		[]string{"name"},
	)

	c.messagesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "budget_messages_dropped_total",
			Help:      "Messages dropped or cut to fit a token budget.",
		},
		[]string{"name"},
	)

	c.truncations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "budget_truncations_total",
			Help:      "Truncation passes that reduced a message history.",
		},
		[]string{"name"},
	)

	return c
}

// ObserveBreakerTransition records a state transition of the named breaker.
func (c *Collector) ObserveBreakerTransition(name, from, to string) {
	c.breakerTransitions.WithLabelValues(name, from, to).Inc()
	c.logger.Debug("breaker transition",
		zap.String("name", name),
		zap.String("from", from),
		zap.String("to", to))
}

// ObserveBreakerRejection records a call rejected while the circuit was open.
func (c *Collector) ObserveBreakerRejection(name string) {
	c.breakerRejections.WithLabelValues(name).Inc()
}

// ObserveThrottle records a caller suspending for the given wait.
func (c *Collector) ObserveThrottle(name string, wait time.Duration) {
	c.limiterThrottles.WithLabelValues(name).Inc()
	c.limiterWait.WithLabelValues(name).Observe(wait.Seconds())
}

// ObserveTruncation records a truncation pass that dropped or cut messages.
func (c *Collector) ObserveTruncation(name string, dropped int) {
	c.truncations.WithLabelValues(name).Inc()
	c.messagesDropped.WithLabelValues(name).Add(float64(dropped))
}
