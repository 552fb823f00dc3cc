package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(QuizGenerations.WithLabelValues(StatusSuccess))
	QuizGenerations.WithLabelValues(StatusSuccess).Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(QuizGenerations.WithLabelValues(StatusSuccess)))

	before = testutil.ToFloat64(Extractions.WithLabelValues("ocr", StatusFailure))
	Extractions.WithLabelValues("ocr", StatusFailure).Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(Extractions.WithLabelValues("ocr", StatusFailure)))
}

func TestInFlightGauge(t *testing.T) {
	start := testutil.ToFloat64(GenerationJobsInFlight)
	GenerationJobsInFlight.Inc()
	assert.Equal(t, start+1, testutil.ToFloat64(GenerationJobsInFlight))
	GenerationJobsInFlight.Dec()
	assert.Equal(t, start, testutil.ToFloat64(GenerationJobsInFlight))
}

func TestCollectorNames(t *testing.T) {
	assert.Equal(t, 1, testutil.CollectAndCount(DocumentsUploaded, "studyquiz_documents_uploaded_total"))
	assert.Equal(t, 1, testutil.CollectAndCount(GenerationDuration, "studyquiz_generation_duration_seconds"))
}
