package model

import (
	"time"

	"gorm.io/datatypes"
)

// ActivityType represents the type of user activity
type ActivityType string

const (
	ActivityTypeLogin          ActivityType = "login"
	ActivityTypeDocumentUpload ActivityType = "document_upload"
	ActivityTypeQuizGenerate   ActivityType = "quiz_generate"
	ActivityTypeAttemptStart   ActivityType = "attempt_start"
	ActivityTypeAttemptSubmit  ActivityType = "attempt_submit"
	ActivityTypeTutorMessage   ActivityType = "tutor_message"
)

// UserActivity is an append-only audit of what a student did
type UserActivity struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	UserID       uint           `gorm:"not null;index:idx_user_activity" json:"user_id"`
	ActivityType ActivityType   `gorm:"type:varchar(50);not null;index:idx_activity_type" json:"activity_type"`
	ResourceType string         `gorm:"type:varchar(50)" json:"resource_type"` // document, quiz, attempt, tutor_session
	ResourceID   uint           `json:"resource_id"`
	Metadata     datatypes.JSON `gorm:"type:jsonb" json:"metadata,omitempty"`
	IPAddress    string         `gorm:"type:varchar(45)" json:"ip_address"`
	UserAgent    string         `gorm:"type:text" json:"user_agent"`
	CreatedAt    time.Time      `gorm:"index:idx_created_at" json:"created_at"`

	// Relationships
	User User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName specifies the table name for UserActivity
func (UserActivity) TableName() string {
	return "user_activities"
}
