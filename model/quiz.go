package model

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Difficulty of a quiz or a single question
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
	DifficultyMixed  Difficulty = "mixed"
)

// IsValid reports whether d is a known difficulty
func (d Difficulty) IsValid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard, DifficultyMixed:
		return true
	}
	return false
}

// QuizSource records how a quiz was created
type QuizSource string

const (
	QuizSourceGenerated QuizSource = "generated"
	QuizSourceManual    QuizSource = "manual"
)

// OptionsPerQuestion is the fixed number of choices every question carries
const OptionsPerQuestion = 4

// Quiz is a set of multiple-choice questions owned by a user
type Quiz struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`
	UserID           uint           `gorm:"not null;index" json:"user_id"`
	DocumentID       *uint          `gorm:"index" json:"document_id,omitempty"`
	Title            string         `gorm:"type:varchar(255);not null" json:"title"`
	Description      string         `gorm:"type:text" json:"description"`
	Difficulty       Difficulty     `gorm:"type:varchar(20);default:'medium'" json:"difficulty"`
	Source           QuizSource     `gorm:"type:varchar(20);default:'generated'" json:"source"`
	TimeLimitSeconds int            `gorm:"default:0" json:"time_limit_seconds"` // 0 means untimed
	QuestionCount    int            `gorm:"default:0" json:"question_count"`
	Topics           pq.StringArray `gorm:"type:text[]" json:"topics"`

	// Relationships
	User      User       `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Document  *Document  `gorm:"foreignKey:DocumentID" json:"-"`
	Questions []Question `gorm:"foreignKey:QuizID;constraint:OnDelete:CASCADE" json:"questions,omitempty"`
}

// TableName specifies the table name for Quiz
func (Quiz) TableName() string {
	return "quizzes"
}

// IsTimed reports whether attempts on this quiz have a deadline
func (q *Quiz) IsTimed() bool {
	return q.TimeLimitSeconds > 0
}

// Question is a single multiple-choice question
type Question struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	QuizID      uint       `gorm:"not null;index" json:"quiz_id"`
	Position    int        `gorm:"not null" json:"position"`
	Text        string     `gorm:"type:text;not null" json:"text"`
	Topic       string     `gorm:"type:varchar(120);default:'General'" json:"topic"`
	Difficulty  Difficulty `gorm:"type:varchar(20)" json:"difficulty"`
	Explanation string     `gorm:"type:text" json:"explanation,omitempty"`

	Options []Option `gorm:"foreignKey:QuestionID;constraint:OnDelete:CASCADE" json:"options"`
}

// TableName specifies the table name for Question
func (Question) TableName() string {
	return "quiz_questions"
}

// CorrectOption returns the option flagged correct, nil if none
func (q *Question) CorrectOption() *Option {
	for i := range q.Options {
		if q.Options[i].IsCorrect {
			return &q.Options[i]
		}
	}
	return nil
}

// HasOption reports whether optionID belongs to this question
func (q *Question) HasOption(optionID uint) bool {
	for _, o := range q.Options {
		if o.ID == optionID {
			return true
		}
	}
	return false
}

// Option is one answer choice of a question
type Option struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	QuestionID  uint   `gorm:"not null;index" json:"question_id"`
	Position    int    `gorm:"not null" json:"position"`
	Text        string `gorm:"type:text;not null" json:"text"`
	IsCorrect   bool   `gorm:"default:false" json:"is_correct"`
	Explanation string `gorm:"type:text" json:"explanation,omitempty"`
}

// TableName specifies the table name for Option
func (Option) TableName() string {
	return "quiz_options"
}
