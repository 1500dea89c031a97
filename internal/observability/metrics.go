package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	activeSessions prometheus.Gauge
	sessionsSwept  prometheus.Counter

	turnTotal    *prometheus.CounterVec
	turnDuration *prometheus.HistogramVec
	turnSteps    prometheus.Histogram
	handoffTotal *prometheus.CounterVec

	toolExecutionTotal    *prometheus.CounterVec
	toolExecutionDuration *prometheus.HistogramVec

	ledgerOpTotal    *prometheus.CounterVec
	ledgerOpDuration *prometheus.HistogramVec

	quoteFetchTotal *prometheus.CounterVec

	engineRequestTotal *prometheus.CounterVec
	tokenUsageTotal    *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			activeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "active_sessions",
					Help: "Current active session count.",
				},
			),
			sessionsSwept: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "sessions_swept_total",
					Help: "Total sessions evicted by the idle sweep.",
				},
			),
			turnTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "turn_total",
					Help: "Total conversation turns by final agent and status.",
				},
				[]string{"agent", "status"},
			),
			turnDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "turn_duration_seconds",
					Help:    "Conversation turn duration in seconds by final agent.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"agent"},
			),
			turnSteps: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "turn_steps",
					Help:    "Internal steps consumed per conversation turn.",
					Buckets: []float64{1, 2, 3, 5, 8, 10, 15},
				},
			),
			handoffTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "handoff_total",
					Help: "Total agent handoffs by source and target.",
				},
				[]string{"from", "to"},
			),
			toolExecutionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tool_execution_total",
					Help: "Total tool executions by tool and status.",
				},
				[]string{"tool", "status"},
			),
			toolExecutionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "tool_execution_duration_seconds",
					Help:    "Tool execution duration in seconds by tool.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"tool"},
			),
			ledgerOpTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ledger_op_total",
					Help: "Total ledger operations by table and operation.",
				},
				[]string{"table", "op"},
			),
			ledgerOpDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "ledger_op_duration_seconds",
					Help:    "Ledger operation duration in seconds by table and operation.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"table", "op"},
			),
			quoteFetchTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "quote_fetch_total",
					Help: "Total quote fetch attempts by source and status.",
				},
				[]string{"source", "status"},
			),
			engineRequestTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "engine_request_total",
					Help: "Total execution engine requests by engine.",
				},
				[]string{"engine"},
			),
			tokenUsageTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "token_usage_total",
					Help: "Total tokens consumed by engine and direction.",
				},
				[]string{"engine", "direction"},
			),
		}

		prometheus.MustRegister(
			m.activeSessions,
			m.sessionsSwept,
			m.turnTotal,
			m.turnDuration,
			m.turnSteps,
			m.handoffTotal,
			m.toolExecutionTotal,
			m.toolExecutionDuration,
			m.ledgerOpTotal,
			m.ledgerOpDuration,
			m.quoteFetchTotal,
			m.engineRequestTotal,
			m.tokenUsageTotal,
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

func SetActiveSessions(count int) {
	m := getMetrics()
	m.activeSessions.Set(float64(count))
}

func RecordSessionsSwept(count int) {
	m := getMetrics()
	m.sessionsSwept.Add(float64(count))
}

func RecordTurn(agent, status string, duration time.Duration, steps int) {
	m := getMetrics()
	m.turnTotal.WithLabelValues(agent, status).Inc()
	m.turnDuration.WithLabelValues(agent).Observe(duration.Seconds())
	m.turnSteps.Observe(float64(steps))
}

func RecordHandoff(from, to string) {
	m := getMetrics()
	m.handoffTotal.WithLabelValues(from, to).Inc()
}

func RecordToolExecution(tool, status string, duration time.Duration) {
	m := getMetrics()
	m.toolExecutionTotal.WithLabelValues(tool, status).Inc()
	m.toolExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

func RecordLedgerOp(table, op string, duration time.Duration) {
	m := getMetrics()
	m.ledgerOpTotal.WithLabelValues(table, op).Inc()
	m.ledgerOpDuration.WithLabelValues(table, op).Observe(duration.Seconds())
}

func RecordQuoteFetch(source, status string) {
	m := getMetrics()
	m.quoteFetchTotal.WithLabelValues(source, status).Inc()
}

func RecordEngineRequest(engine string, inputTokens, outputTokens int) {
	m := getMetrics()
	m.engineRequestTotal.WithLabelValues(engine).Inc()
	m.tokenUsageTotal.WithLabelValues(engine, "input").Add(float64(inputTokens))
	m.tokenUsageTotal.WithLabelValues(engine, "output").Add(float64(outputTokens))
}
