package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sahilchouksey/studyquiz-api/model"
	"github.com/sahilchouksey/studyquiz-api/services/events"
	"github.com/sahilchouksey/studyquiz-api/services/metrics"
	"github.com/sahilchouksey/studyquiz-api/services/storage"
	"github.com/sahilchouksey/studyquiz-api/utils"
	"github.com/sahilchouksey/studyquiz-api/utils/pdfvalidation"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Upload limits for non-PDF files. PDFs use pdfvalidation.StudyDocumentLimits.
const (
	MaxOtherUploadBytes = 10 * 1024 * 1024
	ExtractionTimeout   = 10 * time.Minute
	PreviewRunes        = 500
)

var (
	ErrDocumentNotFound    = errors.New("document not found")
	ErrFileTooLarge        = errors.New("file is too large")
	ErrInvalidDocument     = errors.New("invalid document")
	ErrNotRetryable        = errors.New("only documents whose extraction failed can be retried")
	ErrStorageUnavailable  = errors.New("document storage is not available")
	ErrOriginalUnavailable = errors.New("original file is not available for re-extraction")
)

// DocumentService handles document upload, extraction and management
type DocumentService struct {
	db            *gorm.DB
	store         storage.ObjectStore
	extractor     *TextExtractor
	ocrClient     *OCRClient
	notifications *NotificationService
	publisher     events.Publisher
	runner        *TaskRunner
	log           *logrus.Entry
}

// DocumentServiceConfig wires the optional collaborators. A nil Store
// disables object storage; a nil OCR client removes the OCR fallback.
type DocumentServiceConfig struct {
	Store         storage.ObjectStore
	OCR           *OCRClient
	Notifications *NotificationService
	Publisher     events.Publisher
	Workers       int
}

// NewDocumentService creates a new document service
func NewDocumentService(db *gorm.DB, cfg DocumentServiceConfig) *DocumentService {
	var ocr OCRProcessor
	if cfg.OCR != nil {
		ocr = cfg.OCR
	}
	if cfg.Publisher == nil {
		cfg.Publisher = events.NoopPublisher{}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}

	return &DocumentService{
		db:            db,
		store:         cfg.Store,
		extractor:     NewTextExtractor(NewPDFExtractor(), ocr),
		ocrClient:     cfg.OCR,
		notifications: cfg.Notifications,
		publisher:     cfg.Publisher,
		runner:        NewTaskRunner(cfg.Workers),
		log:           utils.WithComponent("Document Service"),
	}
}

// UploadDocumentRequest represents a request to upload a document
type UploadDocumentRequest struct {
	UserID   uint
	Title    string
	Filename string
	Content  []byte
}

// ListDocumentsOptions filters the document list
type ListDocumentsOptions struct {
	UserID uint
	Status string
	Search string
	Limit  int
	Offset int
}

// ValidateUpload checks type and size limits and returns the file kind
func ValidateUpload(filename string, content []byte) (FileKind, error) {
	kind, err := DetectFileKind(filename)
	if err != nil {
		return "", err
	}
	if len(content) == 0 {
		return "", fmt.Errorf("%w: file is empty", ErrInvalidDocument)
	}

	if kind == FileKindPDF {
		result, err := pdfvalidation.ValidatePDFBytes(content, pdfvalidation.StudyDocumentLimits)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidDocument, err)
		}
		if !result.Valid {
			if result.FileSize > int64(pdfvalidation.StudyDocumentLimits.MaxFileSizeMB)*1024*1024 {
				return "", fmt.Errorf("%w: %s", ErrFileTooLarge, result.Error)
			}
			return "", fmt.Errorf("%w: %s", ErrInvalidDocument, result.Error)
		}
		return kind, nil
	}

	if len(content) > MaxOtherUploadBytes {
		return "", fmt.Errorf("%w: maximum is %dMB", ErrFileTooLarge, MaxOtherUploadBytes/(1024*1024))
	}
	return kind, nil
}

// defaultTitle derives a readable title from a filename
func defaultTitle(filename string) string {
	name := filename
	if i := strings.LastIndex(name, "."); i > 0 {
		name = name[:i]
	}
	name = strings.NewReplacer("_", " ", "-", " ").Replace(name)
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return "Untitled document"
	}
	return name
}

// UploadDocument stores the file, creates the row and starts extraction in
// the background
func (s *DocumentService) UploadDocument(ctx context.Context, req UploadDocumentRequest) (*model.Document, error) {
	if _, err := ValidateUpload(req.Filename, req.Content); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = defaultTitle(req.Filename)
	}

	document := &model.Document{
		UserID:           req.UserID,
		Title:            title,
		Filename:         req.Filename,
		ContentType:      storage.GetContentType(req.Filename),
		FileSize:         int64(len(req.Content)),
		StorageKey:       storage.DisabledKey,
		ExtractionStatus: model.ExtractionStatusPending,
		GenerationStatus: model.GenerationStatusNone,
	}

	if s.store != nil {
		key := storage.GenerateKey(req.UserID, req.Filename)
		url, err := s.store.Upload(ctx, key, req.Content, document.ContentType)
		if err != nil {
			return nil, fmt.Errorf("failed to upload to object storage: %w", err)
		}
		document.StorageKey = key
		document.StorageURL = url
	}

	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(document).Error; err != nil {
		if document.IsStored() {
			if delErr := s.store.Delete(ctx, document.StorageKey); delErr != nil {
				s.log.WithError(delErr).Warn("Failed to clean up stored object after insert failure")
			}
		}
		return nil, fmt.Errorf("failed to create document record: %w", err)
	}

	metrics.DocumentsUploaded.Inc()
	s.log.WithFields(logrus.Fields{"document_id": document.ID, "user_id": req.UserID, "bytes": len(req.Content)}).Info("Document uploaded")

	s.scheduleExtraction(document, req.Content)
	return document, nil
}

func extractionTaskKey(documentID uint) string {
	return fmt.Sprintf("extract:%d", documentID)
}

func (s *DocumentService) scheduleExtraction(document *model.Document, content []byte) {
	doc := *document
	err := s.runner.GoOrDrop(extractionTaskKey(doc.ID), ExtractionTimeout, func(ctx context.Context) {
		_ = s.runExtraction(ctx, &doc, content)
	}, func(dropErr error) {
		s.failExtraction(context.Background(), &doc, dropErr)
	})
	if err != nil {
		s.failExtraction(context.Background(), &doc, fmt.Errorf("extraction not scheduled: %w", err))
	}
}

// runExtraction drives one document through the extraction chain and
// records the outcome on its status flags
func (s *DocumentService) runExtraction(ctx context.Context, doc *model.Document, content []byte) error {
	logger := s.log.WithField("document_id", doc.ID)

	if err := s.db.WithContext(ctx).Model(&model.Document{}).Where("id = ?", doc.ID).Updates(map[string]interface{}{
		"extraction_status": model.ExtractionStatusProcessing,
		"extraction_error":  "",
	}).Error; err != nil {
		logger.WithError(err).Error("Failed to mark extraction processing")
		return err
	}

	result, err := s.extractor.Extract(ctx, content, doc.Filename)
	if err != nil && s.canOCRByURL(doc) {
		logger.WithError(err).Info("Retrying through OCR with a presigned URL")
		result, err = s.extractByURL(ctx, doc)
	}
	if err != nil {
		s.failExtraction(ctx, doc, err)
		return err
	}

	now := time.Now()
	doc.ExtractionStatus = model.ExtractionStatusCompleted
	doc.ExtractionMethod = result.Method
	doc.ExtractedText = result.Text
	doc.PageCount = result.PageCount
	doc.WordCount = result.WordCount
	doc.ExtractedAt = &now

	if err := s.db.WithContext(ctx).Model(&model.Document{}).Where("id = ?", doc.ID).Updates(map[string]interface{}{
		"extraction_status": doc.ExtractionStatus,
		"extraction_method": doc.ExtractionMethod,
		"extraction_error":  "",
		"extracted_text":    doc.ExtractedText,
		"page_count":        doc.PageCount,
		"word_count":        doc.WordCount,
		"extracted_at":      now,
	}).Error; err != nil {
		logger.WithError(err).Error("Failed to store extracted text")
		return fmt.Errorf("failed to store extracted text: %w", err)
	}

	metrics.Extractions.WithLabelValues(string(result.Method), metrics.StatusSuccess).Inc()
	logger.WithFields(logrus.Fields{"method": result.Method, "words": result.WordCount}).Info("Extraction completed")

	notifyCtx := context.WithoutCancel(ctx)
	s.notifications.NotifyExtraction(notifyCtx, doc, nil)
	events.PublishAsync(s.publisher, events.DocumentExtracted, map[string]interface{}{
		"document_id": doc.ID,
		"user_id":     doc.UserID,
		"method":      result.Method,
		"words":       result.WordCount,
	})
	return nil
}

func (s *DocumentService) failExtraction(ctx context.Context, doc *model.Document, cause error) {
	// the task context may already be cancelled
	ctx = context.WithoutCancel(ctx)
	doc.ExtractionStatus = model.ExtractionStatusFailed
	doc.ExtractionError = cause.Error()

	if err := s.db.WithContext(ctx).Model(&model.Document{}).Where("id = ?", doc.ID).Updates(map[string]interface{}{
		"extraction_status": model.ExtractionStatusFailed,
		"extraction_error":  cause.Error(),
	}).Error; err != nil {
		s.log.WithError(err).WithField("document_id", doc.ID).Error("Failed to record extraction failure")
	}

	metrics.Extractions.WithLabelValues("none", metrics.StatusFailure).Inc()
	s.log.WithError(cause).WithField("document_id", doc.ID).Warn("Extraction failed")

	s.notifications.NotifyExtraction(ctx, doc, cause)
	events.PublishAsync(s.publisher, events.DocumentExtractionFailed, map[string]interface{}{
		"document_id": doc.ID,
		"user_id":     doc.UserID,
		"error":       cause.Error(),
	})
}

func (s *DocumentService) canOCRByURL(doc *model.Document) bool {
	if s.ocrClient == nil || s.store == nil || !doc.IsStored() {
		return false
	}
	kind, err := DetectFileKind(doc.Filename)
	return err == nil && (kind == FileKindPDF || kind == FileKindImage)
}

// extractByURL lets the OCR service fetch the stored file itself
func (s *DocumentService) extractByURL(ctx context.Context, doc *model.Document) (*ExtractionResult, error) {
	url, err := s.store.PresignedURL(doc.StorageKey, 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("%w: presign: %v", ErrExtractionFailed, err)
	}
	resp, err := s.ocrClient.ProcessURL(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: ocr by url: %v", ErrExtractionFailed, err)
	}

	text := NormalizeText(resp.Text)
	if CountNonSpace(text) < MinUsableChars {
		return nil, fmt.Errorf("%w: ocr by url produced only %d characters", ErrExtractionFailed, CountNonSpace(text))
	}
	return &ExtractionResult{
		Text:      text,
		Method:    model.ExtractionMethodOCR,
		PageCount: resp.PageCount,
		WordCount: len(strings.Fields(text)),
	}, nil
}

// RetryExtraction re-runs the chain on a document whose extraction failed
func (s *DocumentService) RetryExtraction(ctx context.Context, documentID, userID uint) (*model.Document, error) {
	doc, err := s.GetDocument(ctx, documentID, userID)
	if err != nil {
		return nil, err
	}
	if doc.ExtractionStatus != model.ExtractionStatusFailed {
		return nil, ErrNotRetryable
	}

	content, err := s.loadOriginal(ctx, doc)
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(doc).Updates(map[string]interface{}{
		"extraction_status": model.ExtractionStatusPending,
		"extraction_error":  "",
	}).Error; err != nil {
		return nil, fmt.Errorf("failed to reset extraction status: %w", err)
	}
	doc.ExtractionStatus = model.ExtractionStatusPending
	doc.ExtractionError = ""

	s.scheduleExtraction(doc, content)
	return doc, nil
}

func (s *DocumentService) loadOriginal(ctx context.Context, doc *model.Document) ([]byte, error) {
	if s.store == nil || !doc.IsStored() {
		return nil, ErrOriginalUnavailable
	}
	content, err := s.store.Download(ctx, doc.StorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, ErrOriginalUnavailable
		}
		return nil, fmt.Errorf("failed to download original: %w", err)
	}
	return content, nil
}

// EnsureText returns the extracted text of a document, waiting for a running
// extraction or re-running a failed or orphaned one
func (s *DocumentService) EnsureText(ctx context.Context, documentID uint) (string, error) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		var doc model.Document
		if err := s.db.WithContext(ctx).First(&doc, documentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return "", ErrDocumentNotFound
			}
			return "", fmt.Errorf("failed to load document: %w", err)
		}

		switch {
		case doc.HasText():
			return doc.ExtractedText, nil
		case doc.ExtractionStatus == model.ExtractionStatusFailed,
			doc.ExtractionStatus == model.ExtractionStatusCompleted,
			!s.runner.Running(extractionTaskKey(doc.ID)):
			// nobody is working on it; run the chain inline
			content, err := s.loadOriginal(ctx, &doc)
			if err != nil {
				if doc.ExtractionError != "" {
					return "", fmt.Errorf("%w: %s", ErrExtractionFailed, doc.ExtractionError)
				}
				return "", err
			}
			if err := s.runExtraction(ctx, &doc, content); err != nil {
				return "", err
			}
			return doc.ExtractedText, nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

// GetDocument returns a document owned by userID
func (s *DocumentService) GetDocument(ctx context.Context, documentID, userID uint) (*model.Document, error) {
	var doc model.Document
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", documentID, userID).First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDocumentNotFound
		}
		return nil, fmt.Errorf("failed to fetch document: %w", err)
	}
	return &doc, nil
}

// ListDocuments returns a page of the user's documents
func (s *DocumentService) ListDocuments(ctx context.Context, opts ListDocumentsOptions) ([]model.Document, int64, error) {
	query := s.db.WithContext(ctx).Model(&model.Document{}).Where("user_id = ?", opts.UserID)

	if opts.Status != "" {
		query = query.Where("extraction_status = ?", opts.Status)
	}
	if search := strings.TrimSpace(opts.Search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		query = query.Where("(LOWER(title) LIKE ? OR LOWER(filename) LIKE ?)", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count documents: %w", err)
	}

	var docs []model.Document
	err := query.
		Omit("extracted_text").
		Order("created_at DESC").
		Limit(opts.Limit).
		Offset(opts.Offset).
		Find(&docs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, total, nil
}

// DeleteDocument soft-deletes the row and removes the stored object
func (s *DocumentService) DeleteDocument(ctx context.Context, documentID, userID uint) error {
	doc, err := s.GetDocument(ctx, documentID, userID)
	if err != nil {
		return err
	}

	s.runner.Cancel(extractionTaskKey(doc.ID))

	if err := s.db.WithContext(ctx).Delete(doc).Error; err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	if s.store != nil && doc.IsStored() {
		if err := s.store.Delete(ctx, doc.StorageKey); err != nil {
			s.log.WithError(err).WithField("key", doc.StorageKey).Warn("Failed to delete stored object")
		}
	}
	return nil
}

// GetDownloadURL returns a presigned URL for the original file
func (s *DocumentService) GetDownloadURL(ctx context.Context, documentID, userID uint, expiration time.Duration) (string, error) {
	doc, err := s.GetDocument(ctx, documentID, userID)
	if err != nil {
		return "", err
	}
	if s.store == nil || !doc.IsStored() {
		return "", ErrStorageUnavailable
	}

	url, err := s.store.PresignedURL(doc.StorageKey, expiration)
	if err != nil {
		return "", fmt.Errorf("failed to generate download URL: %w", err)
	}
	return url, nil
}

// FailStuckExtractions marks documents that sat in pending or processing
// longer than olderThan as failed. Documents whose task is still queued or
// running in this process are left to it.
func (s *DocumentService) FailStuckExtractions(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)

	var ids []uint
	err := s.db.WithContext(ctx).Model(&model.Document{}).
		Where("extraction_status IN ? AND updated_at < ?",
			[]model.ExtractionStatus{model.ExtractionStatusPending, model.ExtractionStatusProcessing}, cutoff).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, fmt.Errorf("failed to find stuck extractions: %w", err)
	}

	stuck := make([]uint, 0, len(ids))
	for _, id := range ids {
		if !s.runner.Running(extractionTaskKey(id)) {
			stuck = append(stuck, id)
		}
	}
	if len(stuck) == 0 {
		return 0, nil
	}

	result := s.db.WithContext(ctx).Model(&model.Document{}).
		Where("id IN ?", stuck).
		Updates(map[string]interface{}{
			"extraction_status": model.ExtractionStatusFailed,
			"extraction_error":  "extraction timed out",
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to fail stuck extractions: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Shutdown waits for running extractions
func (s *DocumentService) Shutdown(ctx context.Context) error {
	return s.runner.Shutdown(ctx)
}
