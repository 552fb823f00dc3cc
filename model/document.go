package model

import (
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"
)

// ExtractionStatus tracks the text extraction lifecycle of a document
type ExtractionStatus string

const (
	ExtractionStatusPending    ExtractionStatus = "pending"
	ExtractionStatusProcessing ExtractionStatus = "processing"
	ExtractionStatusCompleted  ExtractionStatus = "completed"
	ExtractionStatusFailed     ExtractionStatus = "failed"
)

// GenerationStatus tracks quiz generation for a document
type GenerationStatus string

const (
	GenerationStatusNone       GenerationStatus = "none"
	GenerationStatusPending    GenerationStatus = "pending"
	GenerationStatusProcessing GenerationStatus = "processing"
	GenerationStatusCompleted  GenerationStatus = "completed"
	GenerationStatusFailed     GenerationStatus = "failed"
)

// ExtractionMethod records which strategy produced the document text
type ExtractionMethod string

const (
	ExtractionMethodPDFRows   ExtractionMethod = "pdf_rows"
	ExtractionMethodPDFPlain  ExtractionMethod = "pdf_plain"
	ExtractionMethodOCR       ExtractionMethod = "ocr"
	ExtractionMethodPlainText ExtractionMethod = "plain_text"
	ExtractionMethodHTML      ExtractionMethod = "html"
)

// Document represents an uploaded study document
type Document struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
	UserID      uint           `gorm:"not null;index" json:"user_id"`
	Title       string         `gorm:"type:varchar(255);not null" json:"title"`
	Filename    string         `gorm:"type:varchar(255);not null" json:"filename"`
	ContentType string         `gorm:"type:varchar(100)" json:"content_type"`
	FileSize    int64          `json:"file_size"`
	StorageKey  string         `gorm:"type:varchar(500)" json:"-"`
	StorageURL  string         `gorm:"type:varchar(1000)" json:"storage_url,omitempty"`

	// Extraction state
	ExtractionStatus ExtractionStatus `gorm:"type:varchar(20);default:'pending';index" json:"extraction_status"`
	ExtractionMethod ExtractionMethod `gorm:"type:varchar(20)" json:"extraction_method,omitempty"`
	ExtractionError  string           `gorm:"type:text" json:"extraction_error,omitempty"`
	ExtractedText    string           `gorm:"type:text" json:"-"`
	PageCount        int              `gorm:"default:0" json:"page_count"`
	WordCount        int              `gorm:"default:0" json:"word_count"`
	ExtractedAt      *time.Time       `json:"extracted_at,omitempty"`

	// Quiz generation state
	GenerationStatus GenerationStatus `gorm:"type:varchar(20);default:'none'" json:"generation_status"`
	GenerationError  string           `gorm:"type:text" json:"generation_error,omitempty"`

	// Relationships
	User    User   `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Quizzes []Quiz `gorm:"foreignKey:DocumentID;constraint:OnDelete:SET NULL" json:"-"`
}

// TableName specifies the table name for Document
func (Document) TableName() string {
	return "documents"
}

// IsStored reports whether the original file lives in object storage
func (d *Document) IsStored() bool {
	return d.StorageKey != "" && d.StorageKey != "disabled"
}

// HasText reports whether extraction finished with usable text
func (d *Document) HasText() bool {
	return d.ExtractionStatus == ExtractionStatusCompleted && strings.TrimSpace(d.ExtractedText) != ""
}

// Preview returns the first n runes of the extracted text
func (d *Document) Preview(n int) string {
	text := strings.TrimSpace(d.ExtractedText)
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	runes := []rune(text)
	return string(runes[:n]) + "..."
}
