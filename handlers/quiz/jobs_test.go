package quiz

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/studyquiz-api/model"
	"github.com/sahilchouksey/studyquiz-api/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sequence(jobs ...*model.GenerationJob) func(context.Context) (*model.GenerationJob, error) {
	i := 0
	return func(context.Context) (*model.GenerationJob, error) {
		job := jobs[i]
		if i < len(jobs)-1 {
			i++
		}
		return job, nil
	}
}

func TestStreamJob_EmitsProgressUntilComplete(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)

	start := &model.GenerationJob{JobID: "j1", Status: model.JobStatusProcessing, Phase: model.PhaseExtracting, Progress: 10}
	poll := sequence(
		&model.GenerationJob{JobID: "j1", Status: model.JobStatusProcessing, Phase: model.PhaseExtracting, Progress: 10},
		&model.GenerationJob{JobID: "j1", Status: model.JobStatusProcessing, Phase: model.PhaseGenerating, Progress: 50},
		&model.GenerationJob{JobID: "j1", Status: model.JobStatusCompleted, Phase: model.PhaseCompleted, Progress: 100},
	)

	err := streamJob(context.Background(), w, start, poll, time.Millisecond)
	require.NoError(t, err)

	out := buf.String()
	assert.Equal(t, 2, strings.Count(out, "event: progress\n"))
	assert.Contains(t, out, ": ping\n\n")
	assert.Contains(t, out, "event: complete\n")
	assert.NotContains(t, out, "event: error\n")
}

func TestStreamJob_FailedJobEndsWithError(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)

	start := &model.GenerationJob{JobID: "j2", Status: model.JobStatusQueued, Phase: model.PhaseQueued}
	poll := sequence(&model.GenerationJob{JobID: "j2", Status: model.JobStatusFailed, Phase: model.PhaseFailed, Error: "no usable questions"})

	require.NoError(t, streamJob(context.Background(), w, start, poll, time.Millisecond))

	out := buf.String()
	assert.Contains(t, out, "event: error\n")
	assert.Contains(t, out, "GENERATION_FAILED")
	assert.Contains(t, out, "no usable questions")
}

func TestStreamJob_FinishedJobCompletesImmediately(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)

	done := &model.GenerationJob{JobID: "j3", Status: model.JobStatusCompleted, Progress: 100}
	poll := func(context.Context) (*model.GenerationJob, error) {
		t.Fatal("poll must not be called for a finished job")
		return nil, nil
	}

	require.NoError(t, streamJob(context.Background(), w, done, poll, time.Millisecond))
	assert.Contains(t, buf.String(), "event: complete\n")
}

func TestStreamJob_PollErrorStops(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)

	start := &model.GenerationJob{JobID: "j4", Status: model.JobStatusProcessing}
	boom := errors.New("redis down")
	err := streamJob(context.Background(), w, start, func(context.Context) (*model.GenerationJob, error) {
		return nil, boom
	}, time.Millisecond)

	assert.ErrorIs(t, err, boom)
	assert.Contains(t, buf.String(), "JOB_UNAVAILABLE")
}

func TestStreamJob_ContextTimeout(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := &model.GenerationJob{JobID: "j5", Status: model.JobStatusProcessing}
	err := streamJob(ctx, w, start, sequence(start), time.Hour)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "STREAM_TIMEOUT")
}

func TestQuizErrorMapping(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
	}{
		{services.ErrQuizNotFound, fiber.StatusNotFound},
		{services.ErrDocumentNotFound, fiber.StatusNotFound},
		{services.ErrJobNotFound, fiber.StatusNotFound},
		{services.ErrInvalidTimeLimit, fiber.StatusBadRequest},
		{services.ErrInvalidQuiz, fiber.StatusBadRequest},
		{services.ErrNoUsableQuestions, fiber.StatusUnprocessableEntity},
		{services.ErrGenerationInProgress, fiber.StatusConflict},
		{services.ErrGeneratorUnavailable, fiber.StatusServiceUnavailable},
		{errors.New("boom"), fiber.StatusInternalServerError},
	}

	for _, tt := range tests {
		app := fiber.New()
		app.Get("/", func(c *fiber.Ctx) error { return quizError(c, tt.err, "failed") })

		resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
		require.NoError(t, err)
		assert.Equal(t, tt.wantStatus, resp.StatusCode, tt.err.Error())
	}
}
