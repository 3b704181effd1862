/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package respcache

import "github.com/prometheus/client_golang/prometheus"

// MetricsCollector represents a collector of metrics to analyze how (effectively or not) cache is used.
type MetricsCollector interface {
	// IncHits increments the total number of lookups satisfied from the cache.
	IncHits()

	// IncMisses increments the total number of lookups that were not satisfied from the cache.
	IncMisses()

	// AddEvictions increments the total number of evicted entries.
	AddEvictions(int)

	// IncStoreErrors increments the total number of backing store failures.
	IncStoreErrors()

	// SetAmount sets the total number of entries in the cache.
	SetAmount(amount int)
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

// PrometheusMetrics represents Prometheus metrics for the cache.
type PrometheusMetrics struct {
	HitsTotal        *prometheus.CounterVec
	MissesTotal      *prometheus.CounterVec
	EvictionsTotal   *prometheus.CounterVec
	StoreErrorsTotal *prometheus.CounterVec
	EntriesAmount    *prometheus.GaugeVec
}

// NewPrometheusMetrics creates a new instance of PrometheusMetrics with default options.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{})
}

// NewPrometheusMetricsWithOpts creates a new instance of PrometheusMetrics with the provided options.
func NewPrometheusMetricsWithOpts(opts PrometheusMetricsOpts) *PrometheusMetrics {
	hitsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "response_cache_hits_total",
			Help:        "Number of lookups satisfied from the response cache.",
			ConstLabels: opts.ConstLabels,
		},
		opts.CurriedLabelNames,
	)

	missesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "response_cache_misses_total",
			Help:        "Number of lookups not satisfied from the response cache.",
			ConstLabels: opts.ConstLabels,
		},
		opts.CurriedLabelNames,
	)

	evictionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "response_cache_evictions_total",
			Help:        "Number of entries evicted from the response cache.",
			ConstLabels: opts.ConstLabels,
		},
		opts.CurriedLabelNames,
	)

	storeErrorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "response_cache_store_errors_total",
			Help:        "Number of response cache backing store failures.",
			ConstLabels: opts.ConstLabels,
		},
		opts.CurriedLabelNames,
	)

	entriesAmount := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "response_cache_entries_amount",
			Help:        "Total number of entries in the response cache.",
			ConstLabels: opts.ConstLabels,
		},
		opts.CurriedLabelNames,
	)

	return &PrometheusMetrics{
		HitsTotal:        hitsTotal,
		MissesTotal:      missesTotal,
		EvictionsTotal:   evictionsTotal,
		StoreErrorsTotal: storeErrorsTotal,
		EntriesAmount:    entriesAmount,
	}
}

// MustCurryWith curries the metrics collector with the provided labels.
func (pm *PrometheusMetrics) MustCurryWith(labels prometheus.Labels) *PrometheusMetrics {
	return &PrometheusMetrics{
		HitsTotal:        pm.HitsTotal.MustCurryWith(labels),
		MissesTotal:      pm.MissesTotal.MustCurryWith(labels),
		EvictionsTotal:   pm.EvictionsTotal.MustCurryWith(labels),
		StoreErrorsTotal: pm.StoreErrorsTotal.MustCurryWith(labels),
		EntriesAmount:    pm.EntriesAmount.MustCurryWith(labels),
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(
		pm.HitsTotal,
		pm.MissesTotal,
		pm.EvictionsTotal,
		pm.StoreErrorsTotal,
		pm.EntriesAmount,
	)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.HitsTotal)
	prometheus.Unregister(pm.MissesTotal)
	prometheus.Unregister(pm.EvictionsTotal)
	prometheus.Unregister(pm.StoreErrorsTotal)
	prometheus.Unregister(pm.EntriesAmount)
}

// IncHits increments the total number of lookups satisfied from the cache.
func (pm *PrometheusMetrics) IncHits() {
	pm.HitsTotal.With(nil).Inc()
}

// IncMisses increments the total number of lookups that were not satisfied from the cache.
func (pm *PrometheusMetrics) IncMisses() {
	pm.MissesTotal.With(nil).Inc()
}

// AddEvictions increments the total number of evicted entries.
func (pm *PrometheusMetrics) AddEvictions(n int) {
	pm.EvictionsTotal.With(nil).Add(float64(n))
}

// IncStoreErrors increments the total number of backing store failures.
func (pm *PrometheusMetrics) IncStoreErrors() {
	pm.StoreErrorsTotal.With(nil).Inc()
}

// SetAmount sets the total number of entries in the cache.
func (pm *PrometheusMetrics) SetAmount(amount int) {
	pm.EntriesAmount.With(nil).Set(float64(amount))
}

type disabledMetrics struct{}

func (disabledMetrics) IncHits()         {}
func (disabledMetrics) IncMisses()       {}
func (disabledMetrics) AddEvictions(int) {}
func (disabledMetrics) IncStoreErrors()  {}
func (disabledMetrics) SetAmount(int)    {}
