package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const NAMESPACE = "ytsentiment"

var (
	AnalysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: NAMESPACE,
			Name:      "analyses_total",
			Help:      "Total number of video analyses by outcome",
		},
		[]string{"outcome"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: NAMESPACE,
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	CommentsClassified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: NAMESPACE,
			Name:      "comments_classified_total",
			Help:      "Total number of classified comments by label",
		},
		[]string{"label"},
	)

	CommentsPerAnalysis = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: NAMESPACE,
			Name:      "comments_per_analysis",
			Help:      "Distribution of comment counts per analysis",
			Buckets:   []float64{1, 10, 25, 50, 100, 250, 500, 1000, 5000},
		},
	)

	NormalizationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: NAMESPACE,
			Name:      "normalization_failures_total",
			Help:      "Comments whose normalization failed and fell back to raw text",
		},
	)

	PredictorHealthy = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: NAMESPACE,
			Name:      "predictor_healthy",
			Help:      "Predictor health (1 = healthy, 0 = unhealthy)",
		},
	)
)

// ObserveStage records how long a stage took since start.
func ObserveStage(stage string, start time.Time) {
	StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func RecordAnalysis(outcome string) {
	AnalysesTotal.WithLabelValues(outcome).Inc()
}

func RecordLabels(counts map[string]int) {
	for label, n := range counts {
		CommentsClassified.WithLabelValues(label).Add(float64(n))
	}
}

func SetPredictorHealthy(healthy bool) {
	if healthy {
		PredictorHealthy.Set(1)
		return
	}
	PredictorHealthy.Set(0)
}
