package metrics

import "github.com/prometheus/client_golang/prometheus"

// Pipeline and embedding Prometheus metrics.
var (
	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "snapvalue",
			Name:      "embedding_requests_total",
			Help:      "Total number of image embedding backend requests",
		},
		[]string{"kind", "status"}, // kind: "single" / "batch"
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "snapvalue",
			Name:      "embedding_request_duration_seconds",
			Help:      "Image embedding backend request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"kind"},
	)

	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "snapvalue",
			Name:      "embedding_cache_total",
			Help:      "Embedding cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss" / "hit_prefix"
	)

	ThumbnailDownloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "snapvalue",
			Name:      "thumbnail_downloads_total",
			Help:      "Thumbnail download attempts by outcome",
		},
		[]string{"status"}, // "ok" / "failed"
	)

	MarketplaceSearchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "snapvalue",
			Name:      "marketplace_searches_total",
			Help:      "Marketplace search requests by side and outcome",
		},
		[]string{"side", "status"}, // side: "active" / "sold"
	)

	PipelineStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "snapvalue",
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"stage"},
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers Prometheus pipeline metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(EmbeddingRequestsTotal)
	prometheus.MustRegister(EmbeddingRequestDuration)
	prometheus.MustRegister(EmbeddingCacheTotal)
	prometheus.MustRegister(ThumbnailDownloadsTotal)
	prometheus.MustRegister(MarketplaceSearchesTotal)
	prometheus.MustRegister(PipelineStageDuration)
	pipelineMetricsRegistered = true
}
