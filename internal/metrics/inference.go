package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "qaserve"

var modelStates = []string{"unloaded", "loaded", "failed"}

// Inference Prometheus metrics.
var (
	InferenceRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inference_requests_total",
			Help:      "Total number of model pipeline calls",
		},
		[]string{"kind", "model", "status"},
	)

	InferenceRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_request_duration_seconds",
			Help:      "Model pipeline call duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"kind", "model"},
	)

	InferenceBatchSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_batch_size",
			Help:      "Number of items per batched pipeline call",
			Buckets:   []float64{1, 2, 4, 8, 16, 32, 64, 128},
		},
		[]string{"kind"},
	)

	InferenceErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inference_errors_total",
			Help:      "Total model pipeline errors",
		},
		[]string{"kind", "model", "error_type"},
	)

	AnswersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extractive_answers_total",
			Help:      "Extractive answers by outcome after thresholding",
		},
		[]string{"outcome"}, // "answered" / "no_answer"
	)

	AnswerCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answer_cache_total",
			Help:      "Extractive answer cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)

	ModelState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_state",
			Help:      "Model load state per kind (1 for the current state)",
		},
		[]string{"kind", "state"},
	)

	ModelLoadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_load_duration_seconds",
			Help:      "Duration of the single load attempt per model kind",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"kind", "status"},
	)
)

var inferenceMetricsRegistered bool

// RegisterInferenceMetrics registers the inference metrics. Must be called once from main.
func RegisterInferenceMetrics() {
	if inferenceMetricsRegistered {
		return
	}
	prometheus.MustRegister(InferenceRequestsTotal)
	prometheus.MustRegister(InferenceRequestDuration)
	prometheus.MustRegister(InferenceBatchSize)
	prometheus.MustRegister(InferenceErrorsTotal)
	prometheus.MustRegister(AnswersTotal)
	prometheus.MustRegister(AnswerCacheTotal)
	prometheus.MustRegister(ModelState)
	prometheus.MustRegister(ModelLoadDuration)
	inferenceMetricsRegistered = true
}

// SetModelState marks state as current for kind and clears the others.
func SetModelState(kind, state string) {
	for _, s := range modelStates {
		v := 0.0
		if s == state {
			v = 1
		}
		ModelState.WithLabelValues(kind, s).Set(v)
	}
}

// ObserveModelLoad records the duration of a load attempt.
func ObserveModelLoad(kind, status string, d time.Duration) {
	ModelLoadDuration.WithLabelValues(kind, status).Observe(d.Seconds())
}

// RecordAnswer counts a thresholded extractive outcome.
func RecordAnswer(noAnswer bool) {
	if noAnswer {
		AnswersTotal.WithLabelValues("no_answer").Inc()
		return
	}
	AnswersTotal.WithLabelValues("answered").Inc()
}
