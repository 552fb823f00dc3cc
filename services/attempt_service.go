package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/sahilchouksey/studyquiz-api/model"
	"github.com/sahilchouksey/studyquiz-api/services/events"
	"github.com/sahilchouksey/studyquiz-api/services/metrics"
	"github.com/sahilchouksey/studyquiz-api/utils"
	"github.com/sahilchouksey/studyquiz-api/utils/cache"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SubmitGracePeriod is how long after the deadline late answers are still
// merged and overdue attempts are left for the client to submit
const SubmitGracePeriod = 30 * time.Second

var (
	ErrAttemptNotFound    = errors.New("attempt not found")
	ErrAttemptSubmitted   = errors.New("attempt has already been submitted")
	ErrAttemptExpired     = errors.New("attempt time limit has passed")
	ErrAttemptInProgress  = errors.New("attempt has not been submitted yet")
	ErrIncompleteAnswers  = errors.New("every question must be answered before submitting")
	ErrInvalidAnswer      = errors.New("invalid answer")
	ErrQuizHasNoQuestions = errors.New("quiz has no questions")
)

// IncompleteAnswersError lists the questions still unanswered on a manual submit
type IncompleteAnswersError struct {
	MissingQuestionIDs []uint
}

func (e *IncompleteAnswersError) Error() string {
	return fmt.Sprintf("%d question(s) unanswered", len(e.MissingQuestionIDs))
}

func (e *IncompleteAnswersError) Is(target error) bool {
	return target == ErrIncompleteAnswers
}

// AttemptExpiredError carries the final result of an attempt that was
// force-submitted because its deadline passed
type AttemptExpiredError struct {
	Result *AttemptResult
}

func (e *AttemptExpiredError) Error() string {
	return ErrAttemptExpired.Error()
}

func (e *AttemptExpiredError) Is(target error) bool {
	return target == ErrAttemptExpired
}

// AnswerMap maps question id to chosen option id. A nil option clears the
// answer.
type AnswerMap map[uint]*uint

// SaveProgressRequest is the periodic autosave payload
type SaveProgressRequest struct {
	Answers            AnswerMap `json:"answers"`
	CurrentIndex       *int      `json:"current_index"`
	FlaggedQuestionIDs []uint    `json:"flagged_question_ids"` // nil leaves flags unchanged
}

// SubmitAttemptRequest submits an attempt, optionally with final answers
type SubmitAttemptRequest struct {
	Answers AnswerMap `json:"answers"`
	Force   bool      `json:"force"` // client countdown reached zero
}

// AttemptView is an attempt as shown while taking it
type AttemptView struct {
	model.QuizAttempt
	QuizTitle        string           `json:"quiz_title"`
	TimeLimitSeconds int              `json:"time_limit_seconds"`
	Questions        []PublicQuestion `json:"questions"`
	SavedAnswers     AnswerMap        `json:"saved_answers"`
	RemainingSeconds int              `json:"remaining_seconds"` // -1 when untimed
	Resumed          bool             `json:"resumed"`
}

// QuestionReview is one graded question of a submitted attempt
type QuestionReview struct {
	QuestionID       uint             `json:"question_id"`
	Position         int              `json:"position"`
	Text             string           `json:"text"`
	Topic            string           `json:"topic"`
	Difficulty       model.Difficulty `json:"difficulty"`
	Explanation      string           `json:"explanation,omitempty"`
	Options          []model.Option   `json:"options"`
	SelectedOptionID *uint            `json:"selected_option_id"`
	CorrectOptionID  uint             `json:"correct_option_id"`
	IsCorrect        bool             `json:"is_correct"`
}

// AttemptResult is the graded outcome of a submitted attempt
type AttemptResult struct {
	Attempt   model.QuizAttempt `json:"attempt"`
	QuizTitle string            `json:"quiz_title"`
	Review    []QuestionReview  `json:"review"`
}

// QuizHistory summarizes every attempt of one quiz
type QuizHistory struct {
	QuizID       uint                `json:"quiz_id"`
	AttemptCount int                 `json:"attempt_count"`
	BestScore    float64             `json:"best_score"`
	LatestScore  float64             `json:"latest_score"`
	Attempts     []model.QuizAttempt `json:"attempts"`
}

// ListAttemptsOptions filters attempt history
type ListAttemptsOptions struct {
	UserID uint
	QuizID *uint
	Status string
	Limit  int
	Offset int
}

// ComputeExpiry returns the deadline for a quiz time limit, nil when untimed
func ComputeExpiry(startedAt time.Time, timeLimitSeconds int) *time.Time {
	if timeLimitSeconds <= 0 {
		return nil
	}
	expires := startedAt.Add(time.Duration(timeLimitSeconds) * time.Second)
	return &expires
}

// ValidateAnswers checks every question and option id against the quiz
func ValidateAnswers(questions []model.Question, answers AnswerMap) error {
	byID := make(map[uint]*model.Question, len(questions))
	for i := range questions {
		byID[questions[i].ID] = &questions[i]
	}
	for questionID, optionID := range answers {
		q, ok := byID[questionID]
		if !ok {
			return fmt.Errorf("%w: question %d is not part of this quiz", ErrInvalidAnswer, questionID)
		}
		if optionID != nil && !q.HasOption(*optionID) {
			return fmt.Errorf("%w: option %d does not belong to question %d", ErrInvalidAnswer, *optionID, questionID)
		}
	}
	return nil
}

// MissingQuestionIDs returns unanswered question ids in question order
func MissingQuestionIDs(questions []model.Question, answers AnswerMap) []uint {
	missing := []uint{}
	for _, q := range questions {
		if opt, ok := answers[q.ID]; !ok || opt == nil {
			missing = append(missing, q.ID)
		}
	}
	return missing
}

// RoundScore returns correct/total as a percentage rounded to 2 decimals
func RoundScore(correct, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(correct)*10000/float64(total)) / 100
}

// ScoreAnswers grades answers against the quiz key
func ScoreAnswers(questions []model.Question, answers AnswerMap) (answered, correct int, score float64) {
	for _, q := range questions {
		opt, ok := answers[q.ID]
		if !ok || opt == nil {
			continue
		}
		answered++
		if c := q.CorrectOption(); c != nil && c.ID == *opt {
			correct++
		}
	}
	return answered, correct, RoundScore(correct, len(questions))
}

// ResolveSubmitReason decides how an attempt is being closed
func ResolveSubmitReason(force, deadlinePassed bool) model.SubmitReason {
	switch {
	case force:
		return model.SubmitReasonForced
	case deadlinePassed:
		return model.SubmitReasonTimeout
	default:
		return model.SubmitReasonManual
	}
}

// TimeSpentSeconds measures from start to end, capped at the deadline
func TimeSpentSeconds(startedAt, end time.Time, expiresAt *time.Time) int {
	if expiresAt != nil && end.After(*expiresAt) {
		end = *expiresAt
	}
	if end.Before(startedAt) {
		return 0
	}
	return int(end.Sub(startedAt).Seconds())
}

// FilterFlags keeps flagged ids that belong to the quiz, deduplicated and sorted
func FilterFlags(questions []model.Question, flagged []uint) []uint {
	valid := make(map[uint]bool, len(questions))
	for _, q := range questions {
		valid[q.ID] = true
	}
	seen := make(map[uint]bool)
	out := []uint{}
	for _, id := range flagged {
		if valid[id] && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ClampIndex keeps a question index inside the quiz
func ClampIndex(index, total int) int {
	if index < 0 || total == 0 {
		return 0
	}
	if index >= total {
		return total - 1
	}
	return index
}

// BuildReview grades every question for the result screen
func BuildReview(questions []model.Question, answers AnswerMap) []QuestionReview {
	review := make([]QuestionReview, 0, len(questions))
	for _, q := range questions {
		r := QuestionReview{
			QuestionID:  q.ID,
			Position:    q.Position,
			Text:        q.Text,
			Topic:       q.Topic,
			Difficulty:  q.Difficulty,
			Explanation: q.Explanation,
			Options:     q.Options,
		}
		if c := q.CorrectOption(); c != nil {
			r.CorrectOptionID = c.ID
		}
		if opt, ok := answers[q.ID]; ok && opt != nil {
			selected := *opt
			r.SelectedOptionID = &selected
			r.IsCorrect = selected == r.CorrectOptionID
		}
		review = append(review, r)
	}
	return review
}

// AttemptService runs stateful quiz sessions
type AttemptService struct {
	db            *gorm.DB
	cache         *cache.RedisCache
	notifications *NotificationService
	publisher     events.Publisher
	now           func() time.Time
	log           *logrus.Entry
}

// NewAttemptService creates an attempt service. redisCache may be nil.
func NewAttemptService(db *gorm.DB, redisCache *cache.RedisCache, notifications *NotificationService, publisher events.Publisher) *AttemptService {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &AttemptService{
		db:            db,
		cache:         redisCache,
		notifications: notifications,
		publisher:     publisher,
		now:           time.Now,
		log:           utils.WithComponent("Attempts"),
	}
}

// loadQuiz returns the quiz with ordered questions, including soft-deleted
// quizzes so running attempts can still finish
func loadQuiz(tx *gorm.DB, quizID uint) (*model.Quiz, error) {
	var quiz model.Quiz
	if err := orderedQuestions(tx.Unscoped()).First(&quiz, quizID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("failed to load quiz: %w", err)
	}
	return &quiz, nil
}

func loadAnswers(tx *gorm.DB, attemptID uint) (AnswerMap, error) {
	var rows []model.AttemptAnswer
	if err := tx.Where("attempt_id = ?", attemptID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load answers: %w", err)
	}
	answers := make(AnswerMap, len(rows))
	for _, row := range rows {
		answers[row.QuestionID] = row.OptionID
	}
	return answers, nil
}

// lockAttempt loads an attempt of userID with a row lock. userID 0 skips the
// ownership check.
func lockAttempt(tx *gorm.DB, attemptID, userID uint) (*model.QuizAttempt, error) {
	query := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", attemptID)
	if userID != 0 {
		query = query.Where("user_id = ?", userID)
	}
	var attempt model.QuizAttempt
	if err := query.First(&attempt).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to load attempt: %w", err)
	}
	return &attempt, nil
}

// upsertAnswers writes answers keyed on (attempt_id, question_id)
func upsertAnswers(tx *gorm.DB, attemptID uint, answers AnswerMap, at time.Time) error {
	if len(answers) == 0 {
		return nil
	}
	rows := make([]model.AttemptAnswer, 0, len(answers))
	for questionID, optionID := range answers {
		rows = append(rows, model.AttemptAnswer{
			AttemptID:  attemptID,
			QuestionID: questionID,
			OptionID:   optionID,
			AnsweredAt: at,
		})
	}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "attempt_id"}, {Name: "question_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"option_id", "answered_at", "updated_at"}),
	}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("failed to save answers: %w", err)
	}
	return nil
}

func mergeAnswers(saved, incoming AnswerMap) AnswerMap {
	merged := make(AnswerMap, len(saved)+len(incoming))
	for k, v := range saved {
		merged[k] = v
	}
	for k, v := range incoming {
		merged[k] = v
	}
	return merged
}

// finalize grades and closes an attempt inside tx
func (s *AttemptService) finalize(tx *gorm.DB, attempt *model.QuizAttempt, quiz *model.Quiz, answers AnswerMap, reason model.SubmitReason, now time.Time) error {
	answered, correct, score := ScoreAnswers(quiz.Questions, answers)

	attempt.Status = model.AttemptStatusSubmitted
	attempt.SubmittedAt = &now
	attempt.SubmitReason = reason
	attempt.TotalQuestions = len(quiz.Questions)
	attempt.AnsweredCount = answered
	attempt.CorrectAnswers = correct
	attempt.Score = score
	attempt.TimeSpentSeconds = TimeSpentSeconds(attempt.StartedAt, now, attempt.ExpiresAt)

	err := tx.Model(attempt).Updates(map[string]interface{}{
		"status":             attempt.Status,
		"submitted_at":       now,
		"submit_reason":      reason,
		"total_questions":    attempt.TotalQuestions,
		"answered_count":     answered,
		"correct_answers":    correct,
		"score":              score,
		"time_spent_seconds": attempt.TimeSpentSeconds,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to submit attempt: %w", err)
	}

	// record correctness per answer for topic analytics
	var correctIDs []uint
	for _, q := range quiz.Questions {
		if c := q.CorrectOption(); c != nil {
			correctIDs = append(correctIDs, c.ID)
		}
	}
	if err := tx.Model(&model.AttemptAnswer{}).Where("attempt_id = ?", attempt.ID).
		Update("is_correct", gorm.Expr("option_id IS NOT NULL AND option_id IN ?", correctIDs)).Error; err != nil {
		return fmt.Errorf("failed to grade answers: %w", err)
	}
	return nil
}

// afterSubmit runs the side effects of a committed submit
func (s *AttemptService) afterSubmit(ctx context.Context, attempt *model.QuizAttempt) {
	metrics.AttemptsSubmitted.WithLabelValues(string(attempt.SubmitReason)).Inc()
	metrics.AttemptScore.Observe(attempt.Score)

	if s.cache != nil {
		if err := s.cache.Delete(ctx, cache.DashboardKey(attempt.UserID)); err != nil {
			s.log.WithError(err).Debug("Failed to invalidate dashboard cache")
		}
	}
	if attempt.SubmitReason == model.SubmitReasonTimeout {
		s.notifications.NotifyAttemptTimeout(ctx, attempt)
	}
	events.PublishAsync(s.publisher, events.AttemptSubmitted, map[string]interface{}{
		"attempt_id": attempt.ID,
		"quiz_id":    attempt.QuizID,
		"user_id":    attempt.UserID,
		"score":      attempt.Score,
		"reason":     attempt.SubmitReason,
	})

	s.log.WithFields(logrus.Fields{
		"attempt_id": attempt.ID,
		"score":      attempt.Score,
		"reason":     attempt.SubmitReason,
	}).Info("Attempt submitted")
}

func (s *AttemptService) view(attempt *model.QuizAttempt, quiz *model.Quiz, answers AnswerMap, now time.Time) *AttemptView {
	if attempt.FlaggedQuestionIDs == nil {
		attempt.FlaggedQuestionIDs = datatypes.JSONSlice[uint]{}
	}
	remaining := attempt.RemainingSeconds(now)
	if attempt.IsSubmitted() && remaining > 0 {
		remaining = 0
	}
	return &AttemptView{
		QuizAttempt:      *attempt,
		QuizTitle:        quiz.Title,
		TimeLimitSeconds: quiz.TimeLimitSeconds,
		Questions:        PublicQuestions(quiz.Questions),
		SavedAnswers:     answers,
		RemainingSeconds: remaining,
	}
}

// StartAttempt resumes the user's running attempt for the quiz or starts a
// new one. An expired running attempt is force-submitted first.
func (s *AttemptService) StartAttempt(ctx context.Context, quizID, userID uint) (*AttemptView, error) {
	now := s.now()
	var (
		view    *AttemptView
		expired *model.QuizAttempt
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var owned int64
		if err := tx.Model(&model.Quiz{}).Where("id = ? AND user_id = ?", quizID, userID).Count(&owned).Error; err != nil {
			return fmt.Errorf("failed to load quiz: %w", err)
		}
		if owned == 0 {
			return ErrQuizNotFound
		}
		// serializes concurrent starts so a quiz never gets two running attempts
		if err := lockQuizRow(tx, quizID); err != nil {
			return fmt.Errorf("failed to lock quiz: %w", err)
		}

		quiz, err := loadQuiz(tx, quizID)
		if err != nil {
			return err
		}
		if len(quiz.Questions) == 0 {
			return ErrQuizHasNoQuestions
		}

		var running model.QuizAttempt
		err = tx.Where("quiz_id = ? AND user_id = ? AND status = ?", quizID, userID, model.AttemptStatusInProgress).
			Order("started_at DESC").First(&running).Error
		switch {
		case err == nil && !running.IsExpired(now):
			answers, err := loadAnswers(tx, running.ID)
			if err != nil {
				return err
			}
			view = s.view(&running, quiz, answers, now)
			view.Resumed = true
			return nil
		case err == nil:
			answers, err := loadAnswers(tx, running.ID)
			if err != nil {
				return err
			}
			if err := s.finalize(tx, &running, quiz, answers, model.SubmitReasonTimeout, now); err != nil {
				return err
			}
			expired = &running
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return fmt.Errorf("failed to look up running attempt: %w", err)
		}

		attempt := &model.QuizAttempt{
			UserID:             userID,
			QuizID:             quizID,
			Status:             model.AttemptStatusInProgress,
			StartedAt:          now,
			ExpiresAt:          ComputeExpiry(now, quiz.TimeLimitSeconds),
			TotalQuestions:     len(quiz.Questions),
			FlaggedQuestionIDs: datatypes.JSONSlice[uint]{},
		}
		if err := tx.Omit(clause.Associations).Create(attempt).Error; err != nil {
			return fmt.Errorf("failed to create attempt: %w", err)
		}
		view = s.view(attempt, quiz, AnswerMap{}, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if expired != nil {
		s.afterSubmit(ctx, expired)
	}
	return view, nil
}

// GetAttempt returns the attempt state for the taking screen. An overdue
// attempt is force-submitted on the way.
func (s *AttemptService) GetAttempt(ctx context.Context, attemptID, userID uint) (*AttemptView, error) {
	now := s.now()
	var (
		view      *AttemptView
		submitted bool
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		attempt, err := lockAttempt(tx, attemptID, userID)
		if err != nil {
			return err
		}
		quiz, err := loadQuiz(tx, attempt.QuizID)
		if err != nil {
			return err
		}
		answers, err := loadAnswers(tx, attempt.ID)
		if err != nil {
			return err
		}
		if !attempt.IsSubmitted() && attempt.IsExpired(now) {
			if err := s.finalize(tx, attempt, quiz, answers, model.SubmitReasonTimeout, now); err != nil {
				return err
			}
			submitted = true
		}
		view = s.view(attempt, quiz, answers, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if submitted {
		s.afterSubmit(ctx, &view.QuizAttempt)
	}
	return view, nil
}

// SaveProgress autosaves answers, position and flags. Saving after the
// deadline force-submits and returns *AttemptExpiredError.
func (s *AttemptService) SaveProgress(ctx context.Context, attemptID, userID uint, req SaveProgressRequest) (*AttemptView, error) {
	now := s.now()
	var (
		view    *AttemptView
		expired *AttemptResult
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		attempt, err := lockAttempt(tx, attemptID, userID)
		if err != nil {
			return err
		}
		if attempt.IsSubmitted() {
			return ErrAttemptSubmitted
		}
		quiz, err := loadQuiz(tx, attempt.QuizID)
		if err != nil {
			return err
		}

		// the deadline wins over a malformed payload
		if attempt.IsExpired(now) {
			answers, err := loadAnswers(tx, attempt.ID)
			if err != nil {
				return err
			}
			if err := s.finalize(tx, attempt, quiz, answers, model.SubmitReasonTimeout, now); err != nil {
				return err
			}
			expired = &AttemptResult{Attempt: *attempt, QuizTitle: quiz.Title, Review: BuildReview(quiz.Questions, answers)}
			return nil
		}

		if err := ValidateAnswers(quiz.Questions, req.Answers); err != nil {
			return err
		}
		if err := upsertAnswers(tx, attempt.ID, req.Answers, now); err != nil {
			return err
		}
		answers, err := loadAnswers(tx, attempt.ID)
		if err != nil {
			return err
		}

		answered, _, _ := ScoreAnswers(quiz.Questions, answers)
		updates := map[string]interface{}{
			"last_saved_at":  now,
			"answered_count": answered,
		}
		attempt.LastSavedAt = &now
		attempt.AnsweredCount = answered
		if req.CurrentIndex != nil {
			attempt.CurrentIndex = ClampIndex(*req.CurrentIndex, len(quiz.Questions))
			updates["current_index"] = attempt.CurrentIndex
		}
		if req.FlaggedQuestionIDs != nil {
			attempt.FlaggedQuestionIDs = FilterFlags(quiz.Questions, req.FlaggedQuestionIDs)
			updates["flagged_question_ids"] = attempt.FlaggedQuestionIDs
		}
		if err := tx.Model(attempt).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to save progress: %w", err)
		}

		view = s.view(attempt, quiz, answers, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if expired != nil {
		s.afterSubmit(ctx, &expired.Attempt)
		return nil, &AttemptExpiredError{Result: expired}
	}
	return view, nil
}

// SubmitAttempt merges final answers and grades the attempt. A manual submit
// with unanswered questions returns *IncompleteAnswersError; the merged
// answers are kept.
func (s *AttemptService) SubmitAttempt(ctx context.Context, attemptID, userID uint, req SubmitAttemptRequest) (*AttemptResult, error) {
	now := s.now()
	var (
		result  *AttemptResult
		missing []uint
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		attempt, err := lockAttempt(tx, attemptID, userID)
		if err != nil {
			return err
		}
		if attempt.IsSubmitted() {
			return ErrAttemptSubmitted
		}
		quiz, err := loadQuiz(tx, attempt.QuizID)
		if err != nil {
			return err
		}
		deadlinePassed := attempt.IsExpired(now)
		lateCutoff := attempt.ExpiresAt != nil && !now.Before(attempt.ExpiresAt.Add(SubmitGracePeriod))
		// answers past the grace window are discarded unvalidated
		if !lateCutoff {
			if err := ValidateAnswers(quiz.Questions, req.Answers); err != nil {
				return err
			}
			if err := upsertAnswers(tx, attempt.ID, req.Answers, now); err != nil {
				return err
			}
		}
		answers, err := loadAnswers(tx, attempt.ID)
		if err != nil {
			return err
		}

		reason := ResolveSubmitReason(req.Force, deadlinePassed)
		if reason == model.SubmitReasonManual {
			if m := MissingQuestionIDs(quiz.Questions, answers); len(m) > 0 {
				missing = m
				answered, _, _ := ScoreAnswers(quiz.Questions, answers)
				return tx.Model(attempt).Updates(map[string]interface{}{
					"last_saved_at":  now,
					"answered_count": answered,
				}).Error
			}
		}

		if err := s.finalize(tx, attempt, quiz, answers, reason, now); err != nil {
			return err
		}
		result = &AttemptResult{Attempt: *attempt, QuizTitle: quiz.Title, Review: BuildReview(quiz.Questions, answers)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if missing != nil {
		return nil, &IncompleteAnswersError{MissingQuestionIDs: missing}
	}

	s.afterSubmit(ctx, &result.Attempt)
	return result, nil
}

// GetResult returns the graded review of a submitted attempt
func (s *AttemptService) GetResult(ctx context.Context, attemptID, userID uint) (*AttemptResult, error) {
	view, err := s.GetAttempt(ctx, attemptID, userID)
	if err != nil {
		return nil, err
	}
	if !view.IsSubmitted() {
		return nil, ErrAttemptInProgress
	}

	quiz, err := loadQuiz(s.db.WithContext(ctx), view.QuizID)
	if err != nil {
		return nil, err
	}
	return &AttemptResult{
		Attempt:   view.QuizAttempt,
		QuizTitle: quiz.Title,
		Review:    BuildReview(quiz.Questions, view.SavedAnswers),
	}, nil
}

// ListAttempts returns a page of the user's attempts, newest first
func (s *AttemptService) ListAttempts(ctx context.Context, opts ListAttemptsOptions) ([]model.QuizAttempt, int64, error) {
	query := s.db.WithContext(ctx).Model(&model.QuizAttempt{}).Where("user_id = ?", opts.UserID)
	if opts.QuizID != nil {
		query = query.Where("quiz_id = ?", *opts.QuizID)
	}
	if opts.Status != "" {
		query = query.Where("status = ?", opts.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count attempts: %w", err)
	}

	var attempts []model.QuizAttempt
	err := query.Preload("Quiz", func(tx *gorm.DB) *gorm.DB {
		return tx.Unscoped().Select("id", "title", "difficulty", "question_count", "time_limit_seconds")
	}).Order("started_at DESC").Limit(opts.Limit).Offset(opts.Offset).Find(&attempts).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list attempts: %w", err)
	}
	return attempts, total, nil
}

// GetQuizHistory returns every attempt of a quiz with best and latest score
func (s *AttemptService) GetQuizHistory(ctx context.Context, quizID, userID uint) (*QuizHistory, error) {
	var owned int64
	if err := s.db.WithContext(ctx).Model(&model.Quiz{}).Where("id = ? AND user_id = ?", quizID, userID).Count(&owned).Error; err != nil {
		return nil, fmt.Errorf("failed to load quiz: %w", err)
	}
	if owned == 0 {
		return nil, ErrQuizNotFound
	}

	var attempts []model.QuizAttempt
	if err := s.db.WithContext(ctx).
		Where("quiz_id = ? AND user_id = ?", quizID, userID).
		Order("started_at DESC").
		Find(&attempts).Error; err != nil {
		return nil, fmt.Errorf("failed to load attempts: %w", err)
	}
	return SummarizeHistory(quizID, attempts), nil
}

// SummarizeHistory computes best and latest scores over submitted attempts.
// attempts must be newest first.
func SummarizeHistory(quizID uint, attempts []model.QuizAttempt) *QuizHistory {
	history := &QuizHistory{QuizID: quizID, AttemptCount: len(attempts), Attempts: attempts}
	latestSeen := false
	for _, a := range attempts {
		if !a.IsSubmitted() {
			continue
		}
		if !latestSeen {
			history.LatestScore = a.Score
			latestSeen = true
		}
		if a.Score > history.BestScore {
			history.BestScore = a.Score
		}
	}
	return history
}

// ExpireOverdueAttempts force-submits running attempts whose deadline passed
// more than grace ago
func (s *AttemptService) ExpireOverdueAttempts(ctx context.Context, grace time.Duration) (int64, error) {
	now := s.now()
	cutoff := now.Add(-grace)

	var ids []uint
	if err := s.db.WithContext(ctx).Model(&model.QuizAttempt{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?", model.AttemptStatusInProgress, cutoff).
		Pluck("id", &ids).Error; err != nil {
		return 0, fmt.Errorf("failed to find overdue attempts: %w", err)
	}

	var expired int64
	for _, id := range ids {
		var closed *model.QuizAttempt
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			attempt, err := lockAttempt(tx, id, 0)
			if err != nil {
				return err
			}
			if attempt.IsSubmitted() {
				return nil
			}
			quiz, err := loadQuiz(tx, attempt.QuizID)
			if err != nil {
				return err
			}
			answers, err := loadAnswers(tx, attempt.ID)
			if err != nil {
				return err
			}
			if err := s.finalize(tx, attempt, quiz, answers, model.SubmitReasonTimeout, now); err != nil {
				return err
			}
			closed = attempt
			return nil
		})
		if err != nil {
			s.log.WithError(err).WithField("attempt_id", id).Warn("Failed to expire attempt")
			continue
		}
		if closed != nil {
			s.afterSubmit(ctx, closed)
			expired++
		}
	}
	return expired, nil
}
