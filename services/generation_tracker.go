package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sahilchouksey/studyquiz-api/model"
	"github.com/sahilchouksey/studyquiz-api/services/ai"
	"github.com/sahilchouksey/studyquiz-api/utils"
	"github.com/sahilchouksey/studyquiz-api/utils/cache"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TTL configurations for mirrored job states
const (
	JobStateTTLSuccess = 1 * time.Hour  // 1 hour for successful jobs
	JobStateTTLFailure = 24 * time.Hour // 24 hours for failed jobs
	JobStateTTLPending = 24 * time.Hour // 24 hours for queued/processing jobs
	JobLockTTL         = 30 * time.Minute
)

// ErrJobNotFound is returned for unknown job ids or jobs of another user
var ErrJobNotFound = errors.New("generation job not found")

// ErrorType represents the type of error that occurred
type ErrorType string

const (
	ErrorTypeNetwork    ErrorType = "network"
	ErrorTypeLLM        ErrorType = "llm"
	ErrorTypeTimeout    ErrorType = "timeout"
	ErrorTypeDatabase   ErrorType = "database"
	ErrorTypeParse      ErrorType = "parse"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeUnknown    ErrorType = "unknown"
)

// PhaseProgress maps a pipeline phase to its reported percentage
func PhaseProgress(phase string) int {
	switch phase {
	case model.PhaseQueued:
		return 0
	case model.PhaseExtracting:
		return 10
	case model.PhasePrompting:
		return 30
	case model.PhaseGenerating:
		return 50
	case model.PhaseParsing:
		return 75
	case model.PhaseValidating:
		return 85
	case model.PhaseSaving:
		return 95
	case model.PhaseCompleted:
		return 100
	default:
		return 0
	}
}

// JobStateTTL picks how long the Redis mirror of a job lives
func JobStateTTL(status model.GenerationJobStatus) time.Duration {
	switch status {
	case model.JobStatusCompleted:
		return JobStateTTLSuccess
	case model.JobStatusFailed:
		return JobStateTTLFailure
	default:
		return JobStateTTLPending
	}
}

// GenerationTracker persists generation job state to Postgres and mirrors it
// to Redis so progress polling stays off the database
type GenerationTracker struct {
	db    *gorm.DB
	cache *cache.RedisCache
	log   *logrus.Entry
}

// NewGenerationTracker creates a tracker. redisCache may be nil.
func NewGenerationTracker(db *gorm.DB, redisCache *cache.RedisCache) *GenerationTracker {
	return &GenerationTracker{db: db, cache: redisCache, log: utils.WithComponent("Generation Tracker")}
}

// CreateJob stores a new queued job
func (t *GenerationTracker) CreateJob(ctx context.Context, userID, documentID uint, params GenerateQuizParams) (*model.GenerationJob, error) {
	job := &model.GenerationJob{
		JobID:            uuid.NewString(),
		UserID:           userID,
		DocumentID:       documentID,
		Status:           model.JobStatusQueued,
		Phase:            model.PhaseQueued,
		Progress:         PhaseProgress(model.PhaseQueued),
		Message:          "Quiz generation queued",
		QuestionCount:    params.QuestionCount,
		Difficulty:       params.Difficulty,
		FocusTopic:       params.FocusTopic,
		TimeLimitSeconds: params.TimeLimitSeconds,
	}

	if err := t.db.WithContext(ctx).Omit(clause.Associations).Create(job).Error; err != nil {
		return nil, fmt.Errorf("failed to create generation job: %w", err)
	}
	t.mirror(ctx, job)
	return job, nil
}

// Start marks the job as processing
func (t *GenerationTracker) Start(ctx context.Context, jobID string) (*model.GenerationJob, error) {
	return t.update(ctx, jobID, func(job *model.GenerationJob) {
		now := time.Now()
		job.Status = model.JobStatusProcessing
		job.StartedAt = &now
	})
}

// Phase records a pipeline phase and its progress percentage
func (t *GenerationTracker) Phase(ctx context.Context, jobID, phase, message string) error {
	_, err := t.update(ctx, jobID, func(job *model.GenerationJob) {
		job.Phase = phase
		job.Progress = PhaseProgress(phase)
		job.Message = message
	})
	return err
}

// Complete finishes the job with the saved quiz
func (t *GenerationTracker) Complete(ctx context.Context, jobID string, quizID uint, llmCalls, dropped int) (*model.GenerationJob, error) {
	return t.update(ctx, jobID, func(job *model.GenerationJob) {
		now := time.Now()
		job.Status = model.JobStatusCompleted
		job.Phase = model.PhaseCompleted
		job.Progress = 100
		job.Message = "Quiz generated"
		job.QuizID = &quizID
		job.LLMCalls = llmCalls
		job.DroppedQuestions = dropped
		job.CompletedAt = &now
	})
}

// Fail finishes the job with an error. Progress stays where it stopped.
func (t *GenerationTracker) Fail(ctx context.Context, jobID string, cause error, llmCalls int) (*model.GenerationJob, error) {
	errType, _ := ClassifyError(cause)
	return t.update(ctx, jobID, func(job *model.GenerationJob) {
		now := time.Now()
		job.Status = model.JobStatusFailed
		job.Phase = model.PhaseFailed
		job.Message = fmt.Sprintf("Quiz generation failed (%s)", errType)
		job.Error = cause.Error()
		job.LLMCalls = llmCalls
		job.CompletedAt = &now
	})
}

func (t *GenerationTracker) update(ctx context.Context, jobID string, mutate func(*model.GenerationJob)) (*model.GenerationJob, error) {
	var job model.GenerationJob
	if err := t.db.WithContext(ctx).Where("job_id = ?", jobID).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to load generation job: %w", err)
	}

	mutate(&job)

	if err := t.db.WithContext(ctx).Omit(clause.Associations).Save(&job).Error; err != nil {
		return nil, fmt.Errorf("failed to update generation job: %w", err)
	}
	t.mirror(ctx, &job)
	return &job, nil
}

func (t *GenerationTracker) mirror(ctx context.Context, job *model.GenerationJob) {
	if t.cache == nil {
		return
	}
	key := fmt.Sprintf(model.RedisKeyJobState, job.JobID)
	if err := t.cache.SetJSON(ctx, key, job, JobStateTTL(job.Status)); err != nil {
		t.log.WithError(err).WithField("job_id", job.JobID).Warn("Failed to mirror job state")
	}
}

// GetJob returns the job, reading the Redis mirror first. userID scopes the
// lookup; pass 0 for internal callers.
func (t *GenerationTracker) GetJob(ctx context.Context, jobID string, userID uint) (*model.GenerationJob, error) {
	if t.cache != nil {
		var job model.GenerationJob
		key := fmt.Sprintf(model.RedisKeyJobState, jobID)
		if err := t.cache.GetJSON(ctx, key, &job); err == nil {
			if userID != 0 && job.UserID != userID {
				return nil, ErrJobNotFound
			}
			return &job, nil
		}
	}

	query := t.db.WithContext(ctx).Where("job_id = ?", jobID)
	if userID != 0 {
		query = query.Where("user_id = ?", userID)
	}

	var job model.GenerationJob
	if err := query.First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to load generation job: %w", err)
	}
	return &job, nil
}

// ListJobs returns the most recent jobs of a user
func (t *GenerationTracker) ListJobs(ctx context.Context, userID uint, limit int) ([]model.GenerationJob, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var jobs []model.GenerationJob
	err := t.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list generation jobs: %w", err)
	}
	return jobs, nil
}

// ClassifyError classifies an error and determines if a retry may help
func ClassifyError(err error) (ErrorType, bool) {
	if err == nil {
		return ErrorTypeUnknown, false
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorTypeTimeout, true
	case errors.Is(err, context.Canceled):
		return ErrorTypeUnknown, false
	case errors.Is(err, utils.ErrNoJSONFound), errors.Is(err, ErrQuizParse):
		return ErrorTypeParse, true
	case errors.Is(err, ErrNoUsableQuestions):
		return ErrorTypeValidation, true
	}

	if code := ai.StatusCode(err); code != 0 {
		return ErrorTypeLLM, ai.RetryableStatus(code)
	}

	errStr := strings.ToLower(err.Error())

	// Network errors (recoverable)
	if strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "network") ||
		strings.Contains(errStr, "dial") ||
		strings.Contains(errStr, "eof") ||
		strings.Contains(errStr, "reset by peer") {
		return ErrorTypeNetwork, true
	}

	// Provider errors (recoverable)
	if strings.Contains(errStr, "status 429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "resource_exhausted") ||
		strings.Contains(errStr, "status 500") ||
		strings.Contains(errStr, "status 502") ||
		strings.Contains(errStr, "status 503") ||
		strings.Contains(errStr, "status 504") ||
		strings.Contains(errStr, "unavailable") ||
		strings.Contains(errStr, "empty response") {
		return ErrorTypeLLM, true
	}

	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded") {
		return ErrorTypeTimeout, true
	}

	// Database errors (not recoverable)
	if strings.Contains(errStr, "database") ||
		strings.Contains(errStr, "transaction") ||
		strings.Contains(errStr, "sql") {
		return ErrorTypeDatabase, false
	}

	return ErrorTypeUnknown, false
}
