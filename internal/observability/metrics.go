package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	toolExecutionTotal    *prometheus.CounterVec
	toolExecutionDuration *prometheus.HistogramVec
	toolRetriesTotal      *prometheus.CounterVec
	toolBlockedTotal      *prometheus.CounterVec

	agentRunTotal    *prometheus.CounterVec
	agentRunDuration prometheus.Histogram
	agentStepsTotal  *prometheus.CounterVec

	consentDecisionsTotal *prometheus.CounterVec

	memoryOperationsTotal *prometheus.CounterVec
	memoryOpDuration      *prometheus.HistogramVec

	plannerCallsTotal *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			toolExecutionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "stepwise_tool_executions_total",
					Help: "Total tool executions by tool and status.",
				},
				[]string{"tool", "status"},
			),
			toolExecutionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "stepwise_tool_duration_seconds",
					Help:    "Tool execution duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"tool"},
			),
			toolRetriesTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "stepwise_tool_retries_total",
					Help: "Tool attempts beyond the first.",
				},
				[]string{"tool"},
			),
			toolBlockedTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "stepwise_tool_blocked_total",
					Help: "Tool calls blocked by validation, policy or timeout.",
				},
				[]string{"tool", "reason"},
			),
			agentRunTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "stepwise_agent_runs_total",
					Help: "Total agent runs by terminal status.",
				},
				[]string{"status"},
			),
			agentRunDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "stepwise_agent_run_duration_seconds",
					Help:    "Agent run duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			agentStepsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "stepwise_agent_steps_total",
					Help: "History records written by kind.",
				},
				[]string{"kind"},
			),
			consentDecisionsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "stepwise_consent_decisions_total",
					Help: "Consent decisions by decision and source.",
				},
				[]string{"decision", "source"},
			),
			memoryOperationsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "stepwise_memory_operations_total",
					Help: "Memory operations by kind and operation.",
				},
				[]string{"kind", "op"},
			),
			memoryOpDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "stepwise_memory_operation_duration_seconds",
					Help:    "Memory operation duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"op"},
			),
			plannerCallsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "stepwise_planner_calls_total",
					Help: "Planner calls by model and status.",
				},
				[]string{"model", "status"},
			),
		}

		prometheus.MustRegister(
			m.toolExecutionTotal,
			m.toolExecutionDuration,
			m.toolRetriesTotal,
			m.toolBlockedTotal,
			m.agentRunTotal,
			m.agentRunDuration,
			m.agentStepsTotal,
			m.consentDecisionsTotal,
			m.memoryOperationsTotal,
			m.memoryOpDuration,
			m.plannerCallsTotal,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

func RecordToolExecution(tool string, duration time.Duration, success bool) {
	m := getMetrics()
	m.toolExecutionTotal.WithLabelValues(tool, statusLabel(success)).Inc()
	m.toolExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

func RecordToolRetry(tool string) {
	getMetrics().toolRetriesTotal.WithLabelValues(tool).Inc()
}

func RecordToolBlocked(tool, reason string) {
	getMetrics().toolBlockedTotal.WithLabelValues(tool, reason).Inc()
}

func RecordAgentRun(status string, duration time.Duration) {
	m := getMetrics()
	m.agentRunTotal.WithLabelValues(status).Inc()
	m.agentRunDuration.Observe(duration.Seconds())
}

func RecordAgentStep(kind string) {
	getMetrics().agentStepsTotal.WithLabelValues(kind).Inc()
}

func RecordConsentDecision(decision, source string) {
	getMetrics().consentDecisionsTotal.WithLabelValues(decision, source).Inc()
}

func RecordMemoryOperation(kind, op string, duration time.Duration) {
	m := getMetrics()
	m.memoryOperationsTotal.WithLabelValues(kind, op).Inc()
	m.memoryOpDuration.WithLabelValues(op).Observe(duration.Seconds())
}

func RecordPlannerCall(model string, success bool) {
	getMetrics().plannerCallsTotal.WithLabelValues(model, statusLabel(success)).Inc()
}
