package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sahilchouksey/studyquiz-api/model"
	"github.com/sahilchouksey/studyquiz-api/services/ai"
	"github.com/sahilchouksey/studyquiz-api/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

var testDefaults = GenerationDefaults{QuestionCount: 10, MaxQuestions: 20, TimeLimitSeconds: 600}

func intPtr(v int) *int { return &v }

func TestGenerateQuizRequestParamsDefaults(t *testing.T) {
	params, err := GenerateQuizRequest{DocumentID: 1}.Params(testDefaults)
	require.NoError(t, err)
	assert.Equal(t, 10, params.QuestionCount)
	assert.Equal(t, model.DifficultyMixed, params.Difficulty)
	assert.Equal(t, 600, params.TimeLimitSeconds)
}

func TestGenerateQuizRequestParamsOverrides(t *testing.T) {
	req := GenerateQuizRequest{
		DocumentID:       1,
		QuestionCount:    5,
		Difficulty:       model.DifficultyHard,
		FocusTopic:       "channels",
		TimeLimitSeconds: intPtr(0),
	}
	params, err := req.Params(testDefaults)
	require.NoError(t, err)
	assert.Equal(t, 5, params.QuestionCount)
	assert.Equal(t, model.DifficultyHard, params.Difficulty)
	assert.Equal(t, "channels", params.FocusTopic)
	assert.Zero(t, params.TimeLimitSeconds, "explicit zero makes the quiz untimed")
}

func TestGenerateQuizRequestParamsValidation(t *testing.T) {
	tests := []struct {
		name string
		req  GenerateQuizRequest
		want error
	}{
		{"too few questions", GenerateQuizRequest{QuestionCount: 2}, ErrInvalidQuiz},
		{"above configured max", GenerateQuizRequest{QuestionCount: 21}, ErrInvalidQuiz},
		{"unknown difficulty", GenerateQuizRequest{Difficulty: "brutal"}, ErrInvalidQuiz},
		{"time limit too short", GenerateQuizRequest{TimeLimitSeconds: intPtr(30)}, ErrInvalidTimeLimit},
		{"time limit too long", GenerateQuizRequest{TimeLimitSeconds: intPtr(MaxTimeLimitSeconds + 1)}, ErrInvalidTimeLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.req.Params(testDefaults)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestGenerateQuizRequestParamsCapsMax(t *testing.T) {
	defaults := GenerationDefaults{QuestionCount: 10, MaxQuestions: 500}
	_, err := GenerateQuizRequest{QuestionCount: MaxQuestionCount + 1}.Params(defaults)
	assert.ErrorIs(t, err, ErrInvalidQuiz)

	_, err = GenerateQuizRequest{QuestionCount: MaxQuestionCount}.Params(defaults)
	assert.NoError(t, err)
}

func TestPhaseProgressIsMonotonic(t *testing.T) {
	phases := []string{
		model.PhaseQueued,
		model.PhaseExtracting,
		model.PhasePrompting,
		model.PhaseGenerating,
		model.PhaseParsing,
		model.PhaseValidating,
		model.PhaseSaving,
		model.PhaseCompleted,
	}
	last := -1
	for _, p := range phases {
		progress := PhaseProgress(p)
		assert.Greater(t, progress, last, p)
		last = progress
	}
	assert.Equal(t, 100, PhaseProgress(model.PhaseCompleted))
	assert.Zero(t, PhaseProgress("unknown"))
}

func TestJobStateTTL(t *testing.T) {
	assert.Equal(t, time.Hour, JobStateTTL(model.JobStatusCompleted))
	assert.Equal(t, 24*time.Hour, JobStateTTL(model.JobStatusFailed))
	assert.Equal(t, 24*time.Hour, JobStateTTL(model.JobStatusProcessing))
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		kind        ErrorType
		recoverable bool
	}{
		{"nil", nil, ErrorTypeUnknown, false},
		{"deadline", fmt.Errorf("generate: %w", context.DeadlineExceeded), ErrorTypeTimeout, true},
		{"canceled", context.Canceled, ErrorTypeUnknown, false},
		{"no json", fmt.Errorf("parse: %w", utils.ErrNoJSONFound), ErrorTypeParse, true},
		{"bad quiz json", fmt.Errorf("%w: unexpected token", ErrQuizParse), ErrorTypeParse, true},
		{"no usable questions", ErrNoUsableQuestions, ErrorTypeValidation, true},
		{"connection refused", errors.New("dial tcp: connection refused"), ErrorTypeNetwork, true},
		{"rate limited", fmt.Errorf("generate: %w", &ai.StatusError{StatusCode: 429, Body: "slow down"}), ErrorTypeLLM, true},
		{"provider 502", &ai.StatusError{StatusCode: 502}, ErrorTypeLLM, true},
		{"provider rejects request", fmt.Errorf("generate: %w", &ai.StatusError{StatusCode: 400, Body: "context length exceeded"}), ErrorTypeLLM, false},
		{"provider rejects key", &ai.StatusError{StatusCode: 401, Body: "invalid api key"}, ErrorTypeLLM, false},
		{"gemini quota", fmt.Errorf("gemini generate content: %w", genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED"}), ErrorTypeLLM, true},
		{"gemini invalid argument", fmt.Errorf("gemini generate content: %w", genai.APIError{Code: 400, Status: "INVALID_ARGUMENT"}), ErrorTypeLLM, false},
		{"rate limit text", errors.New("upstream said status 429"), ErrorTypeLLM, true},
		{"gemini unavailable", errors.New("Error 503, Status: UNAVAILABLE"), ErrorTypeLLM, true},
		{"database", errors.New("failed to save quiz: sql: database is closed"), ErrorTypeDatabase, false},
		{"bad request", errors.New("inference returned status 400"), ErrorTypeUnknown, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, recoverable := ClassifyError(tt.err)
			assert.Equal(t, tt.kind, kind)
			assert.Equal(t, tt.recoverable, recoverable)
		})
	}
}
