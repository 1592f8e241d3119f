package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	pipelineRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warechat_pipeline_runs_total",
			Help: "Total number of pipeline runs by terminal outcome.",
		},
		[]string{"outcome"},
	)
	pipelineDurationMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "warechat_pipeline_duration_ms",
			Help:    "End-to-end pipeline run latency in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
	)
	generationTokensTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warechat_generation_tokens_total",
			Help: "Total number of generator tokens consumed.",
		},
	)
	queryExecutionMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "warechat_query_execution_ms",
			Help:    "Warehouse query execution latency in milliseconds.",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 5000, 30000},
		},
	)
	gateRejectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warechat_gate_rejections_total",
			Help: "Total number of generated statements rejected by the safety gate.",
		},
	)
	schemaReloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warechat_schema_reloads_total",
			Help: "Total number of schema catalog reload attempts.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		pipelineRunsTotal,
		pipelineDurationMs,
		generationTokensTotal,
		queryExecutionMs,
		gateRejectionsTotal,
		schemaReloadsTotal,
	)
}

// ObservePipelineRun records one terminal pipeline outcome. The outcome is
// "ok" or the failure kind.
func ObservePipelineRun(outcome string, elapsed time.Duration) {
	pipelineRunsTotal.WithLabelValues(outcome).Inc()
	pipelineDurationMs.Observe(float64(elapsed.Milliseconds()))
}

func AddGenerationTokens(tokens int) {
	if tokens > 0 {
		generationTokensTotal.Add(float64(tokens))
	}
}

func ObserveQueryExecution(elapsed time.Duration) {
	queryExecutionMs.Observe(float64(elapsed.Milliseconds()))
}

func IncrementGateRejection() {
	gateRejectionsTotal.Inc()
}

func ObserveSchemaReload(success bool) {
	result := "ok"
	if !success {
		result = "error"
	}
	schemaReloadsTotal.WithLabelValues(result).Inc()
}
