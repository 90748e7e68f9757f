package obsv

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gorango/flowcraft/internal/executor"
)

// Metrics upgrades smilemakc/mbflow's hand-rolled, mutex-guarded
// MetricsCollector (workflowMetrics/nodeMetrics maps updated via
// RecordWorkflowExecution/RecordNodeExecution) to real Prometheus
// collectors, since client_golang is already part of this engine's stack
// rather than something the teacher reaches for — see DESIGN.md for why
// the teacher's in-memory struct isn't carried forward as-is.
type Metrics struct {
	nodeDuration     *prometheus.HistogramVec
	nodeTotal        *prometheus.CounterVec
	workflowDuration *prometheus.HistogramVec
	workflowTotal    *prometheus.CounterVec
}

// NewMetrics constructs and registers the engine's collectors against reg.
// Pass prometheus.NewRegistry() in tests to avoid colliding with the
// global default registry across parallel test packages.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		nodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "flowcraft",
			Subsystem: "node",
			Name:      "duration_seconds",
			Help:      "Node execution duration in seconds, labeled by strategy and outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"uses", "status"}),
		nodeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowcraft",
			Subsystem: "node",
			Name:      "total",
			Help:      "Total node executions, labeled by strategy and outcome.",
		}, []string{"uses", "status"}),
		workflowDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "flowcraft",
			Subsystem: "workflow",
			Name:      "duration_seconds",
			Help:      "Workflow run duration in seconds, labeled by outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"blueprint_id", "status"}),
		workflowTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowcraft",
			Subsystem: "workflow",
			Name:      "total",
			Help:      "Total workflow runs, labeled by outcome.",
		}, []string{"blueprint_id", "status"}),
	}
	reg.MustRegister(m.nodeDuration, m.nodeTotal, m.workflowDuration, m.workflowTotal)
	return m
}

// NodeMiddleware wraps the strategy dispatch, recording duration and
// success/failure counts per node.Uses — the per-node half of the
// teacher's RecordNodeExecution(nodeType, duration, success, cached).
func (m *Metrics) NodeMiddleware() executor.Middleware {
	return func(next executor.Handler) executor.Handler {
		return func(ctx context.Context, sc *executor.StrategyContext) (*executor.Result, error) {
			start := time.Now()
			result, err := next(ctx, sc)
			status := "success"
			if err != nil {
				status = "failure"
			}
			m.nodeDuration.WithLabelValues(sc.Node.Uses, status).Observe(time.Since(start).Seconds())
			m.nodeTotal.WithLabelValues(sc.Node.Uses, status).Inc()
			return result, err
		}
	}
}

// RecordWorkflowExecution records one completed run, the generalized
// counterpart of the teacher's RecordWorkflowExecution(workflowID,
// duration, success).
func (m *Metrics) RecordWorkflowExecution(blueprintID string, duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	m.workflowDuration.WithLabelValues(blueprintID, status).Observe(duration.Seconds())
	m.workflowTotal.WithLabelValues(blueprintID, status).Inc()
}
