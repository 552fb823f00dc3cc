package model

import "time"

// GenerationJobStatus represents the status of a quiz generation job
type GenerationJobStatus string

const (
	JobStatusQueued     GenerationJobStatus = "queued"
	JobStatusProcessing GenerationJobStatus = "processing"
	JobStatusCompleted  GenerationJobStatus = "completed"
	JobStatusFailed     GenerationJobStatus = "failed"
)

// Pipeline phases reported while a job runs
const (
	PhaseQueued     = "queued"
	PhaseExtracting = "extracting"
	PhasePrompting  = "prompting"
	PhaseGenerating = "generating"
	PhaseParsing    = "parsing"
	PhaseValidating = "validating"
	PhaseSaving     = "saving"
	PhaseCompleted  = "completed"
	PhaseFailed     = "failed"
)

// GenerationJob is the durable record of one document-to-quiz run
type GenerationJob struct {
	ID               uint                `gorm:"primaryKey" json:"-"`
	JobID            string              `gorm:"type:varchar(64);uniqueIndex;not null" json:"job_id"`
	UserID           uint                `gorm:"not null;index" json:"user_id"`
	DocumentID       uint                `gorm:"not null;index" json:"document_id"`
	QuizID           *uint               `json:"quiz_id,omitempty"`
	Status           GenerationJobStatus `gorm:"type:varchar(20);default:'queued';index" json:"status"`
	Phase            string              `gorm:"type:varchar(20)" json:"phase"`
	Progress         int                 `gorm:"default:0" json:"progress"` // 0-100
	Message          string              `gorm:"type:text" json:"message"`
	Error            string              `gorm:"type:text" json:"error,omitempty"`
	QuestionCount    int                 `json:"question_count"`
	Difficulty       Difficulty          `gorm:"type:varchar(20)" json:"difficulty"`
	FocusTopic       string              `gorm:"type:varchar(255)" json:"focus_topic,omitempty"`
	TimeLimitSeconds int                 `json:"time_limit_seconds"`
	LLMCalls         int                 `gorm:"default:0" json:"llm_calls"`
	DroppedQuestions int                 `gorm:"default:0" json:"dropped_questions"`
	StartedAt        *time.Time          `json:"started_at,omitempty"`
	CompletedAt      *time.Time          `json:"completed_at,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`

	// Relationships
	User     User     `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Document Document `gorm:"foreignKey:DocumentID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName specifies the table name for GenerationJob
func (GenerationJob) TableName() string {
	return "quiz_generation_jobs"
}

// IsFinished reports whether the job reached a terminal state
func (j *GenerationJob) IsFinished() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// Redis key patterns for generation jobs
const (
	// RedisKeyJobState mirrors the job row as JSON for cheap polling
	// Usage: fmt.Sprintf(RedisKeyJobState, jobID)
	RedisKeyJobState = "quiz_gen:job:%s"

	// RedisKeyDocumentLock prevents concurrent generation for one document
	// Usage: fmt.Sprintf(RedisKeyDocumentLock, documentID)
	RedisKeyDocumentLock = "quiz_gen:lock:%d"
)
