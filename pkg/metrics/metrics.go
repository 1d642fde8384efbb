// Package metrics exposes Prometheus counters and histograms for policy
// analysis, generation and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/berkguzel/iamrisk/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "iamrisk"

// Generator operations.
const (
	OperationGenerate = "generate"
	OperationExplain  = "explain"
)

type Metrics struct {
	registry *prometheus.Registry

	analyses          *prometheus.CounterVec
	riskScore         prometheus.Histogram
	findings          prometheus.Counter
	generatorRequests *prometheus.CounterVec
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

// New builds the metric set on a fresh registry that also carries the
// standard Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Policy risk analyses by resulting risk level.",
		}, []string{"level"}),
		riskScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "risk_score",
			Help:      "Distribution of policy risk scores.",
			Buckets:   []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		}),
		findings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "findings_total",
			Help:      "Security findings reported across all analyses.",
		}),
		generatorRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generator_requests_total",
			Help:      "Policy generation and explanation requests by outcome.",
		}, []string{"operation", "status"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.analyses,
		m.riskScore,
		m.findings,
		m.generatorRequests,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

func (m *Metrics) ObserveReport(report types.RiskReport) {
	m.analyses.WithLabelValues(string(report.Level)).Inc()
	m.riskScore.Observe(report.Score)
	m.findings.Add(float64(len(report.Findings)))
}

// ObserveGenerator counts one generator call as "success" or "error".
func (m *Metrics) ObserveGenerator(operation string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.generatorRequests.WithLabelValues(operation, status).Inc()
}

func (m *Metrics) ObserveHTTP(route string, code int, duration time.Duration) {
	m.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(duration.Seconds())
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// CacheStats reports policy cache counters under the keys "size", "hits",
// "misses" and "evicted".
type CacheStats interface {
	GetMetrics() map[string]int64
}

// RegisterPolicyCache exposes the counters of cache as
// iamrisk_policy_cache_* series, read at scrape time.
func (m *Metrics) RegisterPolicyCache(cache CacheStats) error {
	stat := func(key string) func() float64 {
		return func() float64 {
			return float64(cache.GetMetrics()[key])
		}
	}

	cs := []prometheus.Collector{
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "policy_cache_hits_total",
			Help:      "Policy document cache hits.",
		}, stat("hits")),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "policy_cache_misses_total",
			Help:      "Policy document cache misses.",
		}, stat("misses")),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "policy_cache_evictions_total",
			Help:      "Policy documents evicted by expiry or size.",
		}, stat("evicted")),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "policy_cache_size",
			Help:      "Policy documents currently cached.",
		}, stat("size")),
	}
	for _, c := range cs {
		if err := m.registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}
