package model

import (
	"time"

	"gorm.io/gorm"
)

const (
	RoleStudent = "student"
	RoleAdmin   = "admin"
)

// User represents a registered user in the system
type User struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
	Email        string         `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string         `gorm:"not null" json:"-"` // Never expose password in JSON
	Name         string         `gorm:"not null" json:"name"`
	Role         string         `gorm:"type:varchar(20);default:'student'" json:"role"` // student, admin
	Bio          string         `gorm:"type:text" json:"bio"`
	GradeLevel   string         `gorm:"type:varchar(50)" json:"grade_level"`
	TokenVersion int            `gorm:"default:0" json:"-"` // Increment to invalidate all user tokens
	LastLoginAt  *time.Time     `json:"last_login_at,omitempty"`

	// Relationships
	Documents      []Document          `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Quizzes        []Quiz              `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Attempts       []QuizAttempt       `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	TutorSessions  []TutorSession      `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	TokenBlacklist []JWTTokenBlacklist `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

// IsAdmin reports whether the user carries the admin role
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
