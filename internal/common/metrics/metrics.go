// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	NodeExecutionsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "node_executions_completed_total",
			Help: "Total number of node executions completed",
		},
		[]string{"node"},
	)

	NodeExecutionsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "node_executions_failed_total",
			Help: "Total number of node executions failed",
		},
		[]string{"node", "error_code"},
	)

	NodeExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "node_execution_duration_seconds",
			Help: "Duration of node execution in seconds",
		},
		[]string{"node"},
	)

	WorkflowRunsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "workflow_runs_active",
			Help: "Number of workflow runs in flight",
		},
		[]string{"route"},
	)

	LLMCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_calls_total",
			Help: "Total number of LLM API calls",
		},
		[]string{"node", "kind"},
	)
)
