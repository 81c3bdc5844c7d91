package filter

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Evaluation results used as metric label values.
const (
	resultProceed  = "proceed"
	resultRedirect = "redirect"
	resultError    = "error"
)

// Metrics contains access filter metrics.
type Metrics struct {
	registerer prometheus.Registerer

	// evaluationTotal counts evaluations by result.
	evaluationTotal *prometheus.CounterVec

	// evaluationDuration measures evaluation duration.
	evaluationDuration prometheus.Histogram

	// redirectTotal counts redirects by role.
	redirectTotal *prometheus.CounterVec

	// ruleCount tracks the number of registered rules by disposition.
	ruleCount *prometheus.GaugeVec

	// cacheHits counts decision cache hits.
	cacheHits prometheus.Counter

	// cacheMisses counts decision cache misses.
	cacheMisses prometheus.Counter
}

// NewMetrics creates new filter metrics registered with
// prometheus.DefaultRegisterer.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegisterer(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer creates a new Metrics instance with a custom
// registerer.
func NewMetricsWithRegisterer(namespace string, registerer prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "avaccess"
	}
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		registerer: registerer,
	}

	m.evaluationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "filter",
			Name:      "evaluation_total",
			Help:      "Total number of access evaluations",
		},
		[]string{"result"},
	)

	m.evaluationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "filter",
			Name:      "evaluation_duration_seconds",
			Help:      "Access evaluation duration in seconds",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
	)

	m.redirectTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "filter",
			Name:      "redirect_total",
			Help:      "Total number of restricted requests redirected",
		},
		[]string{"role"},
	)

	m.ruleCount = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "filter",
			Name:      "rule_count",
			Help:      "Number of registered access rules",
		},
		[]string{"disposition"},
	)

	m.cacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "filter",
			Name:      "cache_hits_total",
			Help:      "Total number of decision cache hits",
		},
	)

	m.cacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "filter",
			Name:      "cache_misses_total",
			Help:      "Total number of decision cache misses",
		},
	)

	// Register all metrics with the provided registerer, ignoring duplicates.
	collectors := []prometheus.Collector{
		m.evaluationTotal,
		m.evaluationDuration,
		m.redirectTotal,
		m.ruleCount,
		m.cacheHits,
		m.cacheMisses,
	}
	for _, c := range collectors {
		_ = registerer.Register(c)
	}

	return m
}

// Init pre-initializes common label combinations with zero values so the
// metrics appear in /metrics output immediately after startup. Idempotent.
func (m *Metrics) Init() {
	if m == nil {
		return
	}
	for _, result := range []string{resultProceed, resultRedirect, resultError} {
		m.evaluationTotal.WithLabelValues(result)
	}
	for _, disposition := range []string{string(DispositionAllow), string(DispositionDeny)} {
		m.ruleCount.WithLabelValues(disposition)
	}
}

// RecordEvaluation records an access evaluation.
func (m *Metrics) RecordEvaluation(result string, duration time.Duration) {
	if m == nil || m.evaluationTotal == nil {
		return
	}
	m.evaluationTotal.WithLabelValues(result).Inc()
	m.evaluationDuration.Observe(duration.Seconds())
}

// RecordRedirect records a redirected request.
func (m *Metrics) RecordRedirect(role string) {
	if m == nil || m.redirectTotal == nil {
		return
	}
	m.redirectTotal.WithLabelValues(role).Inc()
}

// SetRuleCount sets the rule count for a disposition.
func (m *Metrics) SetRuleCount(disposition string, count int) {
	if m == nil || m.ruleCount == nil {
		return
	}
	m.ruleCount.WithLabelValues(disposition).Set(float64(count))
}

// RecordCacheHit records a decision cache hit.
func (m *Metrics) RecordCacheHit() {
	if m == nil || m.cacheHits == nil {
		return
	}
	m.cacheHits.Inc()
}

// RecordCacheMiss records a decision cache miss.
func (m *Metrics) RecordCacheMiss() {
	if m == nil || m.cacheMisses == nil {
		return
	}
	m.cacheMisses.Inc()
}
