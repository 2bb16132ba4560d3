package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for AnalysesTotal.
const (
	OutcomeReport       = "report"
	OutcomeNothingFound = "nothing_found"
	OutcomeInferenceErr = "inference_error"
	OutcomeSaveErr      = "save_error"
)

var (
	AnalysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "xray",
		Name:      "analyses_total",
		Help:      "Processed uploads by analysis mode and outcome.",
	}, []string{"mode", "outcome"})

	InferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "xray",
		Name:      "inference_seconds",
		Help:      "Time spent in the vision model call.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"mode"})

	AnnotationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "xray",
		Name:      "annotation_failures_total",
		Help:      "Reports delivered without an annotated image because rendering failed.",
	})

	CleanupFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "xray",
		Name:      "artifact_cleanup_failures_total",
		Help:      "Temporary files that could not be deleted.",
	})
)
