package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sahilchouksey/studyquiz-api/model"
	"github.com/sahilchouksey/studyquiz-api/services/events"
	"github.com/sahilchouksey/studyquiz-api/services/metrics"
	"github.com/sahilchouksey/studyquiz-api/utils"
	"github.com/sahilchouksey/studyquiz-api/utils/cache"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// GenerationTimeout bounds one generation job end to end
const GenerationTimeout = 15 * time.Minute

var (
	ErrGenerationInProgress = errors.New("a quiz is already being generated for this document")
	ErrGeneratorUnavailable = errors.New("quiz generation is not configured")
)

// GenerateQuizRequest starts a generation job
type GenerateQuizRequest struct {
	DocumentID       uint             `json:"document_id" validate:"required"`
	QuestionCount    int              `json:"question_count" validate:"omitempty,min=3,max=30"`
	Difficulty       model.Difficulty `json:"difficulty" validate:"omitempty,oneof=easy medium hard mixed"`
	FocusTopic       string           `json:"focus_topic" validate:"max=200"`
	TimeLimitSeconds *int             `json:"time_limit_seconds"`
}

// GenerationDefaults fills unset request fields
type GenerationDefaults struct {
	QuestionCount    int
	MaxQuestions     int
	TimeLimitSeconds int
}

// Params resolves the request against defaults
func (r GenerateQuizRequest) Params(defaults GenerationDefaults) (GenerateQuizParams, error) {
	params := GenerateQuizParams{
		QuestionCount:    r.QuestionCount,
		Difficulty:       r.Difficulty,
		FocusTopic:       r.FocusTopic,
		TimeLimitSeconds: defaults.TimeLimitSeconds,
	}
	if params.QuestionCount == 0 {
		params.QuestionCount = defaults.QuestionCount
	}
	maxQuestions := defaults.MaxQuestions
	if maxQuestions <= 0 || maxQuestions > MaxQuestionCount {
		maxQuestions = MaxQuestionCount
	}
	if params.QuestionCount < MinQuestionCount || params.QuestionCount > maxQuestions {
		return params, fmt.Errorf("%w: question_count must be between %d and %d", ErrInvalidQuiz, MinQuestionCount, maxQuestions)
	}
	if params.Difficulty == "" {
		params.Difficulty = model.DifficultyMixed
	}
	if !params.Difficulty.IsValid() {
		return params, fmt.Errorf("%w: unknown difficulty %q", ErrInvalidQuiz, params.Difficulty)
	}
	if r.TimeLimitSeconds != nil {
		params.TimeLimitSeconds = *r.TimeLimitSeconds
	}
	if err := ValidateTimeLimit(params.TimeLimitSeconds); err != nil {
		return params, err
	}
	return params, nil
}

// GenerationService runs document-to-quiz jobs in the background
type GenerationService struct {
	db            *gorm.DB
	cache         *cache.RedisCache
	tracker       *GenerationTracker
	generator     *QuizGenerator
	documents     *DocumentService
	quizzes       *QuizService
	notifications *NotificationService
	publisher     events.Publisher
	runner        *TaskRunner
	defaults      GenerationDefaults
	log           *logrus.Entry
}

// GenerationServiceConfig wires the generation service
type GenerationServiceConfig struct {
	Cache         *cache.RedisCache
	Generator     *QuizGenerator // nil disables generation
	Documents     *DocumentService
	Quizzes       *QuizService
	Notifications *NotificationService
	Publisher     events.Publisher
	Defaults      GenerationDefaults
	Workers       int
}

// NewGenerationService creates a generation service
func NewGenerationService(db *gorm.DB, cfg GenerationServiceConfig) *GenerationService {
	if cfg.Publisher == nil {
		cfg.Publisher = events.NoopPublisher{}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	return &GenerationService{
		db:            db,
		cache:         cfg.Cache,
		tracker:       NewGenerationTracker(db, cfg.Cache),
		generator:     cfg.Generator,
		documents:     cfg.Documents,
		quizzes:       cfg.Quizzes,
		notifications: cfg.Notifications,
		publisher:     cfg.Publisher,
		runner:        NewTaskRunner(cfg.Workers),
		defaults:      cfg.Defaults,
		log:           utils.WithComponent("Quiz Generation"),
	}
}

// Defaults returns the configured request defaults
func (s *GenerationService) Defaults() GenerationDefaults {
	return s.defaults
}

// Tracker exposes job state lookups
func (s *GenerationService) Tracker() *GenerationTracker {
	return s.tracker
}

func documentLockKey(documentID uint) string {
	return fmt.Sprintf(model.RedisKeyDocumentLock, documentID)
}

// acquireDocument makes sure only one job runs per document. Redis SETNX is
// the primary guard; without Redis the job table is consulted instead.
func (s *GenerationService) acquireDocument(ctx context.Context, documentID uint, token string) error {
	if s.cache != nil {
		ok, err := s.cache.AcquireLock(ctx, documentLockKey(documentID), token, JobLockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire generation lock: %w", err)
		}
		if !ok {
			return ErrGenerationInProgress
		}
		return nil
	}

	var active int64
	err := s.db.WithContext(ctx).Model(&model.GenerationJob{}).
		Where("document_id = ? AND status IN ?", documentID, []model.GenerationJobStatus{model.JobStatusQueued, model.JobStatusProcessing}).
		Count(&active).Error
	if err != nil {
		return fmt.Errorf("failed to check running jobs: %w", err)
	}
	if active > 0 {
		return ErrGenerationInProgress
	}
	return nil
}

func (s *GenerationService) releaseDocument(ctx context.Context, documentID uint, token string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.ReleaseLock(ctx, documentLockKey(documentID), token); err != nil {
		s.log.WithError(err).WithField("document_id", documentID).Warn("Failed to release generation lock")
	}
}

// Enqueue validates the request, takes the document lock and schedules the job
func (s *GenerationService) Enqueue(ctx context.Context, userID uint, req GenerateQuizRequest) (*model.GenerationJob, error) {
	if s.generator == nil {
		return nil, ErrGeneratorUnavailable
	}

	params, err := req.Params(s.defaults)
	if err != nil {
		return nil, err
	}

	doc, err := s.documents.GetDocument(ctx, req.DocumentID, userID)
	if err != nil {
		return nil, err
	}

	token := uuid.NewString()
	if err := s.acquireDocument(ctx, doc.ID, token); err != nil {
		return nil, err
	}

	job, err := s.tracker.CreateJob(ctx, userID, doc.ID, params)
	if err != nil {
		s.releaseDocument(ctx, doc.ID, token)
		return nil, err
	}

	s.setDocumentStatus(ctx, doc.ID, model.GenerationStatusPending, "")

	jobCopy := *job
	err = s.runner.GoOrDrop("generate:"+job.JobID, GenerationTimeout, func(runCtx context.Context) {
		defer s.releaseDocument(context.WithoutCancel(runCtx), jobCopy.DocumentID, token)
		s.run(runCtx, &jobCopy, doc.Title, params)
	}, func(dropErr error) {
		dropCtx := context.Background()
		s.releaseDocument(dropCtx, jobCopy.DocumentID, token)
		if _, err := s.tracker.Fail(dropCtx, jobCopy.JobID, dropErr, 0); err != nil {
			s.log.WithError(err).WithField("job_id", jobCopy.JobID).Warn("Failed to record dropped job")
		}
		s.setDocumentStatus(dropCtx, jobCopy.DocumentID, model.GenerationStatusFailed, dropErr.Error())
	})
	if err != nil {
		s.releaseDocument(ctx, doc.ID, token)
		_, _ = s.tracker.Fail(ctx, job.JobID, err, 0)
		s.setDocumentStatus(ctx, doc.ID, model.GenerationStatusFailed, err.Error())
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"job_id": job.JobID, "document_id": doc.ID, "questions": params.QuestionCount}).Info("Generation job queued")
	return job, nil
}

func (s *GenerationService) setDocumentStatus(ctx context.Context, documentID uint, status model.GenerationStatus, errMsg string) {
	err := s.db.WithContext(ctx).Model(&model.Document{}).Where("id = ?", documentID).Updates(map[string]interface{}{
		"generation_status": status,
		"generation_error":  errMsg,
	}).Error
	if err != nil {
		s.log.WithError(err).WithField("document_id", documentID).Warn("Failed to update generation status")
	}
}

// run executes the pipeline for one job
func (s *GenerationService) run(ctx context.Context, job *model.GenerationJob, docTitle string, params GenerateQuizParams) {
	started := time.Now()
	metrics.GenerationJobsInFlight.Inc()
	defer metrics.GenerationJobsInFlight.Dec()
	defer func() { metrics.GenerationDuration.Observe(time.Since(started).Seconds()) }()

	logger := s.log.WithField("job_id", job.JobID)
	llmCalls := 0

	fail := func(cause error) {
		// record the failure even when the job context expired
		bg := context.WithoutCancel(ctx)
		failed, err := s.tracker.Fail(bg, job.JobID, cause, llmCalls)
		if err != nil {
			logger.WithError(err).Error("Failed to record job failure")
			failed = job
		}
		s.setDocumentStatus(bg, job.DocumentID, model.GenerationStatusFailed, cause.Error())
		metrics.QuizGenerations.WithLabelValues(metrics.StatusFailure).Inc()
		logger.WithError(cause).Warn("Quiz generation failed")

		s.notifications.NotifyGeneration(bg, failed, nil, cause)
		events.PublishAsync(s.publisher, events.QuizGenerationFailed, map[string]interface{}{
			"job_id":      job.JobID,
			"document_id": job.DocumentID,
			"user_id":     job.UserID,
			"error":       cause.Error(),
		})
	}

	if _, err := s.tracker.Start(ctx, job.JobID); err != nil {
		fail(err)
		return
	}
	s.setDocumentStatus(ctx, job.DocumentID, model.GenerationStatusProcessing, "")

	phase := func(name, message string) {
		if err := s.tracker.Phase(ctx, job.JobID, name, message); err != nil {
			logger.WithError(err).Debug("Failed to record phase")
		}
	}

	phase(model.PhaseExtracting, "Reading document text")
	text, err := s.documents.EnsureText(ctx, job.DocumentID)
	if err != nil {
		fail(fmt.Errorf("document text unavailable: %w", err))
		return
	}

	result, err := s.generator.Generate(ctx, text, params, phase)
	if result != nil {
		llmCalls = result.LLMCalls
	}
	if err != nil {
		fail(err)
		return
	}

	phase(model.PhaseSaving, "Saving quiz")
	documentID := job.DocumentID
	quiz := BuildQuizModel(job.UserID, &documentID, docTitle+" quiz", result.Quiz, params, model.QuizSourceGenerated)
	if err := s.quizzes.SaveQuiz(ctx, quiz); err != nil {
		fail(err)
		return
	}

	done, err := s.tracker.Complete(ctx, job.JobID, quiz.ID, result.LLMCalls, result.Dropped)
	if err != nil {
		logger.WithError(err).Error("Failed to record job completion")
		done = job
	}
	s.setDocumentStatus(ctx, job.DocumentID, model.GenerationStatusCompleted, "")
	metrics.QuizGenerations.WithLabelValues(metrics.StatusSuccess).Inc()
	logger.WithFields(logrus.Fields{
		"quiz_id":   quiz.ID,
		"questions": quiz.QuestionCount,
		"llm_calls": result.LLMCalls,
		"dropped":   result.Dropped,
		"elapsed":   time.Since(started).Round(time.Millisecond),
	}).Info("Quiz generated")

	s.notifications.NotifyGeneration(ctx, done, quiz, nil)
	events.PublishAsync(s.publisher, events.QuizGenerated, map[string]interface{}{
		"job_id":      job.JobID,
		"quiz_id":     quiz.ID,
		"document_id": job.DocumentID,
		"user_id":     job.UserID,
		"questions":   quiz.QuestionCount,
	})
}

// GetJob returns a job owned by userID
func (s *GenerationService) GetJob(ctx context.Context, jobID string, userID uint) (*model.GenerationJob, error) {
	return s.tracker.GetJob(ctx, jobID, userID)
}

// ListJobs returns the user's recent jobs
func (s *GenerationService) ListJobs(ctx context.Context, userID uint, limit int) ([]model.GenerationJob, error) {
	return s.tracker.ListJobs(ctx, userID, limit)
}

// RecoverStuckJobs fails jobs left in queued or processing longer than
// olderThan that no worker of this process is running
func (s *GenerationService) RecoverStuckJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)

	var stuck []model.GenerationJob
	err := s.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", []model.GenerationJobStatus{model.JobStatusQueued, model.JobStatusProcessing}, cutoff).
		Find(&stuck).Error
	if err != nil {
		return 0, fmt.Errorf("failed to find stuck jobs: %w", err)
	}

	var recovered int64
	for _, job := range stuck {
		if s.runner.Running("generate:" + job.JobID) {
			s.runner.Cancel("generate:" + job.JobID)
			continue
		}
		if _, err := s.tracker.Fail(ctx, job.JobID, errors.New("generation timed out"), job.LLMCalls); err != nil {
			s.log.WithError(err).WithField("job_id", job.JobID).Warn("Failed to recover stuck job")
			continue
		}
		s.setDocumentStatus(ctx, job.DocumentID, model.GenerationStatusFailed, "generation timed out")
		if s.cache != nil {
			if err := s.cache.Delete(ctx, documentLockKey(job.DocumentID)); err != nil {
				s.log.WithError(err).Warn("Failed to clear stale generation lock")
			}
		}
		recovered++
	}
	return recovered, nil
}

// Shutdown cancels running jobs and waits for them
func (s *GenerationService) Shutdown(ctx context.Context) error {
	return s.runner.Shutdown(ctx)
}
