package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	StageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "codeforge",
		Name:      "stage_duration_seconds",
		Help:      "Pipeline stage duration by stage and outcome.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"stage", "status"})

	PipelineRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codeforge",
		Name:      "pipeline_runs_total",
		Help:      "Finished pipeline runs by terminal status.",
	}, []string{"status"})

	ModelCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codeforge",
		Name:      "model_calls_total",
		Help:      "Model gateway calls by kind and outcome.",
	}, []string{"kind", "outcome"})

	IngestedChunks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "codeforge",
		Name:      "ingested_chunks_total",
		Help:      "Document chunks written by ingestion.",
	})

	registry = prometheus.NewRegistry()
)

func init() {
	registry.MustRegister(
		StageDuration,
		PipelineRuns,
		ModelCalls,
		IngestedChunks,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// ObserveStage 记录阶段耗时
func ObserveStage(stage, status string, d time.Duration) {
	StageDuration.WithLabelValues(stage, status).Observe(d.Seconds())
}

// Handler /metrics 暴露端点
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
