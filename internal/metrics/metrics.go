package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "video_insights"

var (
	// PipelineRuns counts finished pipeline runs by outcome and failing stage.
	PipelineRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pipeline_runs_total",
		Help:      "Pipeline runs by outcome (completed|failed) and stage (empty on success)",
	}, []string{"outcome", "stage"})

	// StageDuration tracks how long each pipeline stage takes.
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "pipeline_stage_duration_seconds",
		Help:      "Duration of pipeline stages",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2.5, 12), // 10ms to ~10min
	}, []string{"stage"})

	// CleanupFailures counts artifacts that could not be removed.
	CleanupFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cleanup_failures_total",
		Help:      "Artifacts left behind because removal failed",
	}, []string{"artifact"})

	// TranscriptionInFlight is the number of engine calls currently running.
	TranscriptionInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "transcription_in_flight",
		Help:      "Transcription engine calls in progress",
	})

	// TranscriptionWaiting is the number of requests queued for the engine slot.
	TranscriptionWaiting = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "transcription_waiting",
		Help:      "Requests waiting for a transcription engine slot",
	})

	// AnalysisAttempts counts calls to the language model by provider and result.
	AnalysisAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "analysis_attempts_total",
		Help:      "Language model calls by provider and result (ok|provider_error|invalid_json)",
	}, []string{"provider", "result"})

	// HTTPRequestDuration tracks handler latency by route pattern.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latencies in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.005, 3, 12),
	}, []string{"method", "route", "status"})

	// HTTPRequestsInFlight is the number of requests being served.
	HTTPRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "http_requests_in_flight",
		Help:      "Current number of HTTP requests being served",
	})

	// UploadBytes tracks accepted upload sizes.
	UploadBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "upload_bytes",
		Help:      "Size of stored uploads",
		Buckets:   prometheus.ExponentialBuckets(64<<10, 4, 10), // 64KiB to ~16GiB
	})
)
