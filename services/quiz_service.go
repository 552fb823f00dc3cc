package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sahilchouksey/studyquiz-api/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Time limit bounds for timed quizzes. Zero means untimed.
const (
	MinTimeLimitSeconds = 60
	MaxTimeLimitSeconds = 7200
)

var (
	ErrQuizNotFound     = errors.New("quiz not found")
	ErrInvalidQuiz      = errors.New("invalid quiz")
	ErrInvalidTimeLimit = fmt.Errorf("time limit must be 0 or between %d and %d seconds", MinTimeLimitSeconds, MaxTimeLimitSeconds)
)

// ValidateTimeLimit accepts 0 (untimed) or a value inside the bounds
func ValidateTimeLimit(seconds int) error {
	if seconds == 0 || (seconds >= MinTimeLimitSeconds && seconds <= MaxTimeLimitSeconds) {
		return nil
	}
	return ErrInvalidTimeLimit
}

// PublicOption is an option without its answer key
type PublicOption struct {
	ID       uint   `json:"id"`
	Position int    `json:"position"`
	Text     string `json:"text"`
}

// PublicQuestion is a question as shown while taking a quiz
type PublicQuestion struct {
	ID         uint             `json:"id"`
	Position   int              `json:"position"`
	Text       string           `json:"text"`
	Topic      string           `json:"topic"`
	Difficulty model.Difficulty `json:"difficulty"`
	Options    []PublicOption   `json:"options"`
}

// PublicQuestions strips correctness flags and explanations
func PublicQuestions(questions []model.Question) []PublicQuestion {
	out := make([]PublicQuestion, 0, len(questions))
	for _, q := range questions {
		pq := PublicQuestion{ID: q.ID, Position: q.Position, Text: q.Text, Topic: q.Topic, Difficulty: q.Difficulty}
		for _, o := range q.Options {
			pq.Options = append(pq.Options, PublicOption{ID: o.ID, Position: o.Position, Text: o.Text})
		}
		out = append(out, pq)
	}
	return out
}

// QuizView is a quiz with its questions in the public shape
type QuizView struct {
	model.Quiz
	Questions []PublicQuestion `json:"questions"`
}

// NewQuizView hides the answer key of quiz
func NewQuizView(quiz *model.Quiz) *QuizView {
	return &QuizView{Quiz: *quiz, Questions: PublicQuestions(quiz.Questions)}
}

// UpdateQuizRequest carries the editable quiz fields
type UpdateQuizRequest struct {
	Title            *string `json:"title" validate:"omitempty,min=1,max=255"`
	Description      *string `json:"description" validate:"omitempty,max=2000"`
	TimeLimitSeconds *int    `json:"time_limit_seconds"`
}

// CreateQuizRequest creates a quiz from questions written by hand
type CreateQuizRequest struct {
	Title            string              `json:"title" validate:"required,min=1,max=255"`
	Description      string              `json:"description" validate:"max=2000"`
	DocumentID       *uint               `json:"document_id"`
	Difficulty       model.Difficulty    `json:"difficulty" validate:"omitempty,oneof=easy medium hard mixed"`
	TimeLimitSeconds int                 `json:"time_limit_seconds"`
	Questions        []GeneratedQuestion `json:"questions" validate:"required,min=1,max=100"`
}

// QuizService provides quiz CRUD and persistence
type QuizService struct {
	db *gorm.DB
}

// NewQuizService creates a new quiz service
func NewQuizService(db *gorm.DB) *QuizService {
	return &QuizService{db: db}
}

// orderedQuestions preloads questions and options in position order
func orderedQuestions(db *gorm.DB) *gorm.DB {
	return db.Preload("Questions", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("quiz_questions.position ASC")
	}).Preload("Questions.Options", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("quiz_options.position ASC")
	})
}

// SaveQuiz inserts the quiz with its questions and options atomically
func (s *QuizService) SaveQuiz(ctx context.Context, quiz *model.Quiz) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("User", "Document").Create(quiz).Error; err != nil {
			return fmt.Errorf("failed to save quiz: %w", err)
		}
		return nil
	})
}

// CreateManualQuiz validates hand-written questions with the same filter as
// generated output and saves the quiz
func (s *QuizService) CreateManualQuiz(ctx context.Context, userID uint, req CreateQuizRequest) (*model.Quiz, []DroppedQuestion, error) {
	if err := ValidateTimeLimit(req.TimeLimitSeconds); err != nil {
		return nil, nil, err
	}
	if req.DocumentID != nil {
		var count int64
		if err := s.db.WithContext(ctx).Model(&model.Document{}).
			Where("id = ? AND user_id = ?", *req.DocumentID, userID).
			Count(&count).Error; err != nil {
			return nil, nil, fmt.Errorf("failed to check document: %w", err)
		}
		if count == 0 {
			return nil, nil, ErrDocumentNotFound
		}
	}

	difficulty := req.Difficulty
	if difficulty == "" {
		difficulty = model.DifficultyMixed
	}

	kept, dropped := FilterQuestions(req.Questions, 0, difficulty)
	if len(kept) == 0 {
		return nil, dropped, ErrNoUsableQuestions
	}

	generated := &GeneratedQuiz{Title: strings.TrimSpace(req.Title), Description: strings.TrimSpace(req.Description), Questions: kept}
	params := GenerateQuizParams{Difficulty: difficulty, TimeLimitSeconds: req.TimeLimitSeconds}
	quiz := BuildQuizModel(userID, req.DocumentID, "Untitled quiz", generated, params, model.QuizSourceManual)

	if err := s.SaveQuiz(ctx, quiz); err != nil {
		return nil, nil, err
	}
	return quiz, dropped, nil
}

// ListQuizzes returns a page of the user's quizzes without questions
func (s *QuizService) ListQuizzes(ctx context.Context, userID uint, documentID *uint, limit, offset int) ([]model.Quiz, int64, error) {
	query := s.db.WithContext(ctx).Model(&model.Quiz{}).Where("user_id = ?", userID)
	if documentID != nil {
		query = query.Where("document_id = ?", *documentID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count quizzes: %w", err)
	}

	var quizzes []model.Quiz
	if err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&quizzes).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list quizzes: %w", err)
	}
	return quizzes, total, nil
}

// GetQuiz returns a quiz owned by userID with questions and options
func (s *QuizService) GetQuiz(ctx context.Context, quizID, userID uint) (*model.Quiz, error) {
	var quiz model.Quiz
	err := orderedQuestions(s.db.WithContext(ctx)).
		Where("id = ? AND user_id = ?", quizID, userID).
		First(&quiz).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("failed to fetch quiz: %w", err)
	}
	return &quiz, nil
}

// UpdateQuiz changes title, description or time limit
func (s *QuizService) UpdateQuiz(ctx context.Context, quizID, userID uint, req UpdateQuizRequest) (*model.Quiz, error) {
	updates := map[string]interface{}{}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return nil, fmt.Errorf("%w: title cannot be empty", ErrInvalidQuiz)
		}
		updates["title"] = title
	}
	if req.Description != nil {
		updates["description"] = strings.TrimSpace(*req.Description)
	}
	if req.TimeLimitSeconds != nil {
		if err := ValidateTimeLimit(*req.TimeLimitSeconds); err != nil {
			return nil, err
		}
		updates["time_limit_seconds"] = *req.TimeLimitSeconds
	}

	if len(updates) > 0 {
		result := s.db.WithContext(ctx).Model(&model.Quiz{}).
			Where("id = ? AND user_id = ?", quizID, userID).
			Updates(updates)
		if result.Error != nil {
			return nil, fmt.Errorf("failed to update quiz: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return nil, ErrQuizNotFound
		}
	}
	return s.GetQuiz(ctx, quizID, userID)
}

// DeleteQuiz soft-deletes a quiz
func (s *QuizService) DeleteQuiz(ctx context.Context, quizID, userID uint) error {
	result := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", quizID, userID).
		Delete(&model.Quiz{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete quiz: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrQuizNotFound
	}
	return nil
}

// lockQuizRow takes a row lock on the quiz inside tx
func lockQuizRow(tx *gorm.DB, quizID uint) error {
	var id uint
	return tx.Model(&model.Quiz{}).Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").Where("id = ?", quizID).Scan(&id).Error
}
