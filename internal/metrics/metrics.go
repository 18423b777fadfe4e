// Package metrics exposes Prometheus instrumentation for the miner:
// API request outcomes, retries, quota hits, and per-run discovery
// counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all collectors behind a dedicated registry so tests
// can instantiate it without fighting the global default registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	apiRequests   *prometheus.CounterVec
	apiRetries    *prometheus.CounterVec
	quotaHits     *prometheus.CounterVec
	itemsKept     *prometheus.CounterVec
	priceLookups  prometheus.Counter
	matchOutcomes *prometheus.CounterVec
	crawlerRuns   *prometheus.CounterVec
	taskDuration  prometheus.Histogram
}

// New creates a Metrics with its own registry and all collectors
// registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbminer_api_requests_total",
			Help: "API requests by platform and outcome.",
		}, []string{"platform", "outcome"}),
		apiRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbminer_api_retries_total",
			Help: "Retried API attempts by platform.",
		}, []string{"platform"}),
		quotaHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbminer_quota_exceeded_total",
			Help: "Quota-exceeded responses by platform.",
		}, []string{"platform"}),
		itemsKept: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbminer_items_kept_total",
			Help: "Discovered items kept after filtering, by task root.",
		}, []string{"root"}),
		priceLookups: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arbminer_price_lookups_total",
			Help: "Price quote lookups issued.",
		}),
		matchOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbminer_match_outcomes_total",
			Help: "Cross-marketplace match outcomes by basis and acceptance.",
		}, []string{"basis", "accepted"}),
		crawlerRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbminer_crawler_runs_total",
			Help: "Crawler runs by stop reason.",
		}, []string{"stop_reason"}),
		taskDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "arbminer_task_duration_seconds",
			Help:    "Duration of a single discovery task.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
	}

	registry.MustRegister(
		m.apiRequests,
		m.apiRetries,
		m.quotaHits,
		m.itemsKept,
		m.priceLookups,
		m.matchOutcomes,
		m.crawlerRuns,
		m.taskDuration,
	)

	return m
}

// Registry returns the underlying registry for HTTP exposition.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return prometheus.NewRegistry()
	}
	return m.registry
}

func (m *Metrics) RecordAPIRequest(platform, outcome string) {
	if m == nil {
		return
	}
	m.apiRequests.WithLabelValues(platform, outcome).Inc()
}

func (m *Metrics) RecordAPIRetry(platform string) {
	if m == nil {
		return
	}
	m.apiRetries.WithLabelValues(platform).Inc()
}

func (m *Metrics) RecordQuotaExceeded(platform string) {
	if m == nil {
		return
	}
	m.quotaHits.WithLabelValues(platform).Inc()
}

func (m *Metrics) RecordItemsKept(root string, n int) {
	if m == nil {
		return
	}
	m.itemsKept.WithLabelValues(root).Add(float64(n))
}

func (m *Metrics) RecordPriceLookup() {
	if m == nil {
		return
	}
	m.priceLookups.Inc()
}

func (m *Metrics) RecordMatchOutcome(basis string, accepted bool) {
	if m == nil {
		return
	}
	label := "false"
	if accepted {
		label = "true"
	}
	m.matchOutcomes.WithLabelValues(basis, label).Inc()
}

func (m *Metrics) RecordCrawlerRun(stopReason string) {
	if m == nil {
		return
	}
	m.crawlerRuns.WithLabelValues(stopReason).Inc()
}

func (m *Metrics) ObserveTaskDuration(seconds float64) {
	if m == nil {
		return
	}
	m.taskDuration.Observe(seconds)
}
