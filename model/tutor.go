package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
)

// MessageRole represents the role of the message sender
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleSystem    MessageRole = "system"
)

// MessageStatus represents the completion status of a message
type MessageStatus string

const (
	MessageStatusComplete MessageStatus = "complete"
	MessageStatusPartial  MessageStatus = "partial" // cut off by disconnect or provider error
)

// Citation points at the document excerpt an answer was grounded on
type Citation struct {
	ChunkIndex int     `json:"chunk_index"`
	Snippet    string  `json:"snippet"`
	Score      float64 `json:"score"`
}

// Citations is stored as a JSONB array
type Citations []Citation

// Scan implements the sql.Scanner interface for reading from database
func (c *Citations) Scan(value interface{}) error {
	if value == nil {
		*c = Citations{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("failed to unmarshal citations value")
	}
	if len(bytes) == 0 {
		*c = Citations{}
		return nil
	}

	return json.Unmarshal(bytes, c)
}

// Value implements the driver.Valuer interface for writing to database
func (c Citations) Value() (driver.Value, error) {
	if len(c) == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal(c)
}

// TutorSession is a conversation with the AI tutor, optionally grounded
// on a document and bound to a quiz attempt
type TutorSession struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
	UserID        uint           `gorm:"not null;index" json:"user_id"`
	DocumentID    *uint          `gorm:"index" json:"document_id,omitempty"`
	AttemptID     *uint          `gorm:"index" json:"attempt_id,omitempty"`
	Title         string         `gorm:"type:varchar(255)" json:"title"`
	IsArchived    bool           `gorm:"default:false" json:"is_archived"`
	MessageCount  int            `gorm:"default:0" json:"message_count"`
	LastMessageAt *time.Time     `json:"last_message_at,omitempty"`

	// Relationships
	User     User           `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Document *Document      `gorm:"foreignKey:DocumentID;constraint:OnDelete:SET NULL" json:"-"`
	Attempt  *QuizAttempt   `gorm:"foreignKey:AttemptID;constraint:OnDelete:SET NULL" json:"-"`
	Messages []TutorMessage `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"messages,omitempty"`
}

// TableName specifies the table name for TutorSession
func (TutorSession) TableName() string {
	return "tutor_sessions"
}

// TutorMessage is a single turn in a tutor session
type TutorMessage struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
	SessionID    uint           `gorm:"not null;index" json:"session_id"`
	UserID       uint           `gorm:"not null;index" json:"user_id"`
	Role         MessageRole    `gorm:"type:varchar(20);not null" json:"role"`
	Content      string         `gorm:"type:text;not null" json:"content"`
	Citations    Citations      `gorm:"type:jsonb" json:"citations,omitempty"`
	ModelUsed    string         `gorm:"type:varchar(100)" json:"model_used,omitempty"`
	ResponseTime int            `gorm:"default:0" json:"response_time_ms"`
	IsStreamed   bool           `gorm:"default:false" json:"is_streamed"`
	Status       MessageStatus  `gorm:"type:varchar(20);default:'complete'" json:"status"`
	ErrorMessage string         `gorm:"type:text" json:"error_message,omitempty"`
}

// TableName specifies the table name for TutorMessage
func (TutorMessage) TableName() string {
	return "tutor_messages"
}

// IsPartial returns true if this message was cut off
func (m *TutorMessage) IsPartial() bool {
	return m.Status == MessageStatusPartial
}

// MarkAsPartial sets the message status to partial with error info
func (m *TutorMessage) MarkAsPartial(errorMessage string) {
	m.Status = MessageStatusPartial
	m.ErrorMessage = errorMessage
}
