package engine

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics collects Prometheus-compatible metrics for workflow
// execution: step latency, retry counts, retrieval call volume, and
// budget-exhaustion events. All metrics are namespaced "workflowengine_".
type PrometheusMetrics struct {
	stepLatency *prometheus.HistogramVec
	retries     *prometheus.CounterVec
	nodesActive prometheus.Gauge

	retrievalRequests *prometheus.CounterVec
	retrievalBudget   *prometheus.CounterVec

	mu      sync.RWMutex
	enabled bool
}

// NewPrometheusMetrics registers every workflow-engine metric with registry
// (prometheus.DefaultRegisterer if nil).
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &PrometheusMetrics{
		enabled: true,

		stepLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "workflowengine",
			Name:      "step_latency_ms",
			Help:      "Node execution duration in milliseconds, by node type and outcome status",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 30000},
		}, []string{"execution_id", "node_type", "status"}),

		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "workflowengine",
			Name:      "node_retries_total",
			Help:      "Cumulative retry attempts across all nodes",
		}, []string{"execution_id", "node_type"}),

		nodesActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "workflowengine",
			Name:      "nodes_active",
			Help:      "Nodes currently executing across all in-flight executions",
		}),

		retrievalRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "workflowengine",
			Name:      "retrieval_requests_total",
			Help:      "Retrieval attempts issued by the orchestrator, by strategy and outcome status",
		}, []string{"strategy", "status"}),

		retrievalBudget: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "workflowengine",
			Name:      "retrieval_budget_exceeded_total",
			Help:      "Retrieval attempts refused because an aggregate budget cap was already hit",
		}, []string{"reason"}),
	}
}

func (pm *PrometheusMetrics) RecordStep(executionID, nodeType, status string, d time.Duration) {
	if pm == nil || !pm.enabled {
		return
	}
	pm.stepLatency.WithLabelValues(executionID, nodeType, status).Observe(float64(d.Milliseconds()))
}

func (pm *PrometheusMetrics) IncrementRetries(executionID, nodeType string) {
	if pm == nil || !pm.enabled {
		return
	}
	pm.retries.WithLabelValues(executionID, nodeType).Inc()
}

func (pm *PrometheusMetrics) SetNodesActive(n int) {
	if pm == nil || !pm.enabled {
		return
	}
	pm.nodesActive.Set(float64(n))
}

func (pm *PrometheusMetrics) RecordRetrievalAttempt(strategy, status string) {
	if pm == nil || !pm.enabled {
		return
	}
	pm.retrievalRequests.WithLabelValues(strategy, status).Inc()
}

func (pm *PrometheusMetrics) RecordBudgetExceeded(reason string) {
	if pm == nil || !pm.enabled {
		return
	}
	pm.retrievalBudget.WithLabelValues(reason).Inc()
}

// Disable stops recording without unregistering collectors, useful in tests
// that construct an Engine but don't want per-case metric noise.
func (pm *PrometheusMetrics) Disable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = false
}

// Enable re-enables recording after Disable.
func (pm *PrometheusMetrics) Enable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = true
}
