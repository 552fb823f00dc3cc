package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "studyquiz"

var (
	DocumentsUploaded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "documents_uploaded_total",
		Help:      "Documents accepted for extraction.",
	})

	Extractions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "extractions_total",
		Help:      "Text extraction runs by winning method and outcome.",
	}, []string{"method", "status"})

	QuizGenerations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "quiz_generations_total",
		Help:      "Quiz generation jobs by outcome.",
	}, []string{"status"})

	AttemptsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "attempts_submitted_total",
		Help:      "Submitted quiz attempts by reason.",
	}, []string{"reason"})

	GenerationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "generation_duration_seconds",
		Help:      "Wall time of quiz generation jobs.",
		Buckets:   []float64{1, 2.5, 5, 10, 20, 40, 60, 120, 300},
	})

	AttemptScore = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "attempt_score_percent",
		Help:      "Score distribution of submitted attempts.",
		Buckets:   prometheus.LinearBuckets(0, 10, 11),
	})

	GenerationJobsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "generation_jobs_in_flight",
		Help:      "Quiz generation jobs currently running.",
	})
)

// Outcome labels
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)
