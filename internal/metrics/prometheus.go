package metrics

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "content_stage_duration_seconds",
			Help:    "Generation stage duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"stage", "status"},
	)

	PipelineRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "content_pipeline_runs_total",
			Help: "Total pipeline operations by outcome",
		},
		[]string{"operation", "status"},
	)

	PipelineDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "content_pipeline_duration_seconds",
			Help:    "End-to-end pipeline operation duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"operation"},
	)

	DocumentsPersisted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "content_documents_persisted_total",
			Help: "Documents written to the document store",
		},
		[]string{"collection"},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "content_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	VectorsUpserted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "content_vectors_upserted_total",
			Help: "Vectors written to the vector index",
		},
		[]string{"doc_type", "cleanup_mode"},
	)

	EmbeddingCost = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "content_embedding_cost_usd",
			Help: "Estimated embedding API cost in USD",
		},
	)

	WebSearchTriggered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "content_web_search_triggered_total",
			Help: "Total number of research web searches",
		},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "content_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "content_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)
)

var registerOnce sync.Once

func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(StageDuration)
		prometheus.MustRegister(PipelineRuns)
		prometheus.MustRegister(PipelineDuration)
		prometheus.MustRegister(DocumentsPersisted)
		prometheus.MustRegister(LLMTokensUsed)
		prometheus.MustRegister(VectorsUpserted)
		prometheus.MustRegister(EmbeddingCost)
		prometheus.MustRegister(WebSearchTriggered)
		prometheus.MustRegister(CacheHits)
		prometheus.MustRegister(CacheMisses)
	})
}

func RecordStage(stage, status string, d time.Duration) {
	StageDuration.WithLabelValues(stage, status).Observe(d.Seconds())
}

func RecordPipelineRun(operation, status string, d time.Duration) {
	PipelineRuns.WithLabelValues(operation, status).Inc()
	PipelineDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func RecordDocumentPersisted(collection string) {
	DocumentsPersisted.WithLabelValues(collection).Inc()
}

func RecordTokens(model, kind string, n int) {
	if n > 0 {
		LLMTokensUsed.WithLabelValues(model, kind).Add(float64(n))
	}
}

func RecordUpsert(docType, cleanupMode string, vectors int, cost float64) {
	VectorsUpserted.WithLabelValues(docType, cleanupMode).Add(float64(vectors))
	if cost > 0 {
		EmbeddingCost.Add(cost)
	}
}

func RecordCache(cacheType string, hit bool) {
	if hit {
		CacheHits.WithLabelValues(cacheType).Inc()
		return
	}
	CacheMisses.WithLabelValues(cacheType).Inc()
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
