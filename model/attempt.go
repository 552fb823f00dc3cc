package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AttemptStatus is the lifecycle state of a quiz attempt
type AttemptStatus string

const (
	AttemptStatusInProgress AttemptStatus = "in_progress"
	AttemptStatusSubmitted  AttemptStatus = "submitted"
)

// SubmitReason records why an attempt was submitted
type SubmitReason string

const (
	SubmitReasonManual  SubmitReason = "manual"  // student pressed submit with every question answered
	SubmitReasonForced  SubmitReason = "forced"  // client countdown reached zero
	SubmitReasonTimeout SubmitReason = "timeout" // server noticed the deadline passed
)

// QuizAttempt is one sitting of a quiz by a user
type QuizAttempt struct {
	ID                 uint                      `gorm:"primaryKey" json:"id"`
	CreatedAt          time.Time                 `json:"created_at"`
	UpdatedAt          time.Time                 `json:"updated_at"`
	DeletedAt          gorm.DeletedAt            `gorm:"index" json:"-"`
	UserID             uint                      `gorm:"not null;index:idx_attempt_user_quiz" json:"user_id"`
	QuizID             uint                      `gorm:"not null;index:idx_attempt_user_quiz" json:"quiz_id"`
	Status             AttemptStatus             `gorm:"type:varchar(20);default:'in_progress';index" json:"status"`
	StartedAt          time.Time                 `gorm:"not null" json:"started_at"`
	ExpiresAt          *time.Time                `gorm:"index" json:"expires_at,omitempty"` // nil for untimed quizzes
	SubmittedAt        *time.Time                `json:"submitted_at,omitempty"`
	LastSavedAt        *time.Time                `json:"last_saved_at,omitempty"`
	CurrentIndex       int                       `gorm:"default:0" json:"current_index"`
	FlaggedQuestionIDs datatypes.JSONSlice[uint] `gorm:"type:jsonb" json:"flagged_question_ids"`
	TotalQuestions     int                       `gorm:"default:0" json:"total_questions"`
	AnsweredCount      int                       `gorm:"default:0" json:"answered_count"`
	CorrectAnswers     int                       `gorm:"default:0" json:"correct_answers"`
	Score              float64                   `gorm:"default:0" json:"score"` // percentage 0-100
	TimeSpentSeconds   int                       `gorm:"default:0" json:"time_spent_seconds"`
	SubmitReason       SubmitReason              `gorm:"type:varchar(20)" json:"submit_reason,omitempty"`

	// Relationships
	User    User            `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Quiz    *Quiz           `gorm:"foreignKey:QuizID;constraint:OnDelete:CASCADE" json:"quiz,omitempty"`
	Answers []AttemptAnswer `gorm:"foreignKey:AttemptID;constraint:OnDelete:CASCADE" json:"answers,omitempty"`
}

// TableName specifies the table name for QuizAttempt
func (QuizAttempt) TableName() string {
	return "quiz_attempts"
}

// IsSubmitted reports whether the attempt is closed
func (a *QuizAttempt) IsSubmitted() bool {
	return a.Status == AttemptStatusSubmitted
}

// IsExpired reports whether the deadline passed at the given instant
func (a *QuizAttempt) IsExpired(now time.Time) bool {
	return a.ExpiresAt != nil && !now.Before(*a.ExpiresAt)
}

// RemainingSeconds returns whole seconds left, -1 for untimed attempts
func (a *QuizAttempt) RemainingSeconds(now time.Time) int {
	if a.ExpiresAt == nil {
		return -1
	}
	left := a.ExpiresAt.Sub(now)
	if left <= 0 {
		return 0
	}
	return int(left.Seconds())
}

// AttemptAnswer is the saved choice for one question of an attempt
type AttemptAnswer struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	AttemptID  uint      `gorm:"not null;uniqueIndex:idx_attempt_question" json:"attempt_id"`
	QuestionID uint      `gorm:"not null;uniqueIndex:idx_attempt_question" json:"question_id"`
	OptionID   *uint     `json:"option_id"`
	IsCorrect  bool      `gorm:"default:false" json:"-"`
	AnsweredAt time.Time `json:"answered_at"`
}

// TableName specifies the table name for AttemptAnswer
func (AttemptAnswer) TableName() string {
	return "quiz_attempt_answers"
}
