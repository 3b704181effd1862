/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package admission

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsLabelQueueFull = "queue_full"

const (
	metricsValYes = "yes"
	metricsValNo  = "no"
)

// MetricsCollector represents a collector of metrics about admission outcomes.
type MetricsCollector interface {
	// IncAdmitted increments the total number of admitted requests.
	IncAdmitted()

	// IncQueued increments the total number of requests that were queued
	// before the admission decision.
	IncQueued()

	// IncRejected increments the total number of rejected requests.
	// queueFull tells whether the request was rejected because the queue was full.
	IncRejected(queueFull bool)

	// SetRefillRate sets the current token refill rate in tokens per second.
	SetRefillRate(rate float64)

	// SetRollingLatency sets the moving average latency over the performance window.
	SetRollingLatency(avg time.Duration)
}

// PrometheusMetricsOpts represents options for PrometheusMetrics.
type PrometheusMetricsOpts struct {
	// Namespace is a namespace for metrics. It will be prepended to all metric names.
	Namespace string

	// ConstLabels is a set of labels that will be applied to all metrics.
	ConstLabels prometheus.Labels

	// CurriedLabelNames is a list of label names that will be curried with the provided labels.
	// See PrometheusMetrics.MustCurryWith method for more details.
	// Keep in mind that if this list is not empty,
	// PrometheusMetrics.MustCurryWith method must be called further with the same labels.
	// Otherwise, the collector will panic.
	CurriedLabelNames []string
}

// PrometheusMetrics represents Prometheus metrics for admission control.
type PrometheusMetrics struct {
	AdmittedTotal  *prometheus.CounterVec
	QueuedTotal    *prometheus.CounterVec
	RejectedTotal  *prometheus.CounterVec
	RefillRate     *prometheus.GaugeVec
	RollingLatency *prometheus.GaugeVec
}

// NewPrometheusMetrics creates a new instance of PrometheusMetrics with default options.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{})
}

// NewPrometheusMetricsWithOpts creates a new instance of PrometheusMetrics with the provided options.
func NewPrometheusMetricsWithOpts(opts PrometheusMetricsOpts) *PrometheusMetrics {
	admittedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "admission_admitted_total",
			Help:        "Number of requests admitted by the admission controller.",
			ConstLabels: opts.ConstLabels,
		},
		opts.CurriedLabelNames,
	)

	queuedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "admission_queued_total",
			Help:        "Number of requests queued before the admission decision.",
			ConstLabels: opts.ConstLabels,
		},
		opts.CurriedLabelNames,
	)

	rejectedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "admission_rejected_total",
			Help:        "Number of requests rejected by the admission controller.",
			ConstLabels: opts.ConstLabels,
		},
		append([]string{metricsLabelQueueFull}, opts.CurriedLabelNames...),
	)

	refillRate := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "admission_refill_rate_tokens_per_second",
			Help:        "Current token refill rate of the admission controller.",
			ConstLabels: opts.ConstLabels,
		},
		opts.CurriedLabelNames,
	)

	rollingLatency := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "admission_rolling_avg_latency_seconds",
			Help:        "Moving average latency over the admission performance window.",
			ConstLabels: opts.ConstLabels,
		},
		opts.CurriedLabelNames,
	)

	return &PrometheusMetrics{
		AdmittedTotal:  admittedTotal,
		QueuedTotal:    queuedTotal,
		RejectedTotal:  rejectedTotal,
		RefillRate:     refillRate,
		RollingLatency: rollingLatency,
	}
}

// MustCurryWith curries the metrics collector with the provided labels.
func (pm *PrometheusMetrics) MustCurryWith(labels prometheus.Labels) *PrometheusMetrics {
	return &PrometheusMetrics{
		AdmittedTotal:  pm.AdmittedTotal.MustCurryWith(labels),
		QueuedTotal:    pm.QueuedTotal.MustCurryWith(labels),
		RejectedTotal:  pm.RejectedTotal.MustCurryWith(labels),
		RefillRate:     pm.RefillRate.MustCurryWith(labels),
		RollingLatency: pm.RollingLatency.MustCurryWith(labels),
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(
		pm.AdmittedTotal,
		pm.QueuedTotal,
		pm.RejectedTotal,
		pm.RefillRate,
		pm.RollingLatency,
	)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.AdmittedTotal)
	prometheus.Unregister(pm.QueuedTotal)
	prometheus.Unregister(pm.RejectedTotal)
	prometheus.Unregister(pm.RefillRate)
	prometheus.Unregister(pm.RollingLatency)
}

// IncAdmitted increments the total number of admitted requests.
func (pm *PrometheusMetrics) IncAdmitted() {
	pm.AdmittedTotal.With(nil).Inc()
}

// IncQueued increments the total number of queued requests.
func (pm *PrometheusMetrics) IncQueued() {
	pm.QueuedTotal.With(nil).Inc()
}

// IncRejected increments the total number of rejected requests.
func (pm *PrometheusMetrics) IncRejected(queueFull bool) {
	queueFullVal := metricsValNo
	if queueFull {
		queueFullVal = metricsValYes
	}
	pm.RejectedTotal.With(prometheus.Labels{metricsLabelQueueFull: queueFullVal}).Inc()
}

// SetRefillRate sets the current token refill rate in tokens per second.
func (pm *PrometheusMetrics) SetRefillRate(rate float64) {
	pm.RefillRate.With(nil).Set(rate)
}

// SetRollingLatency sets the moving average latency over the performance window.
func (pm *PrometheusMetrics) SetRollingLatency(avg time.Duration) {
	pm.RollingLatency.With(nil).Set(avg.Seconds())
}

type disabledMetrics struct{}

func (disabledMetrics) IncAdmitted()                    {}
func (disabledMetrics) IncQueued()                      {}
func (disabledMetrics) IncRejected(bool)                {}
func (disabledMetrics) SetRefillRate(float64)           {}
func (disabledMetrics) SetRollingLatency(time.Duration) {}
