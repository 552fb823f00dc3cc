package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sahilchouksey/studyquiz-api/model"
	"github.com/sahilchouksey/studyquiz-api/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrNotificationNotFound is returned when the notification does not exist
// or belongs to another user
var ErrNotificationNotFound = errors.New("notification not found")

// NotificationService handles user notifications
type NotificationService struct {
	db  *gorm.DB
	log *logrus.Entry
}

// NewNotificationService creates a new notification service
func NewNotificationService(db *gorm.DB) *NotificationService {
	return &NotificationService{db: db, log: utils.WithComponent("Notifications")}
}

// CreateNotificationRequest represents a request to create a notification
type CreateNotificationRequest struct {
	UserID   uint
	Type     model.NotificationType
	Category model.NotificationCategory
	Title    string
	Message  string
	Metadata *model.NotificationMetadata
}

// ListNotificationsOptions represents options for listing notifications
type ListNotificationsOptions struct {
	UserID     uint
	UnreadOnly bool
	Category   string
	Limit      int
	Offset     int
}

// CreateNotification creates a new notification for a user
func (s *NotificationService) CreateNotification(ctx context.Context, req CreateNotificationRequest) (*model.UserNotification, error) {
	notification := &model.UserNotification{
		UserID:   req.UserID,
		Type:     req.Type,
		Category: req.Category,
		Title:    req.Title,
		Message:  req.Message,
	}

	if req.Metadata != nil {
		metadataJSON, err := json.Marshal(req.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metadata: %w", err)
		}
		notification.Metadata = datatypes.JSON(metadataJSON)
	}

	if err := s.db.WithContext(ctx).Omit("User").Create(notification).Error; err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}

	s.log.WithFields(logrus.Fields{"user_id": req.UserID, "id": notification.ID}).Debug(req.Title)
	return notification, nil
}

// notify creates a notification and only logs failures. Background jobs use
// it so a notification problem never fails the job itself.
func (s *NotificationService) notify(ctx context.Context, req CreateNotificationRequest) {
	if s == nil {
		return
	}
	if _, err := s.CreateNotification(ctx, req); err != nil {
		s.log.WithError(err).WithField("user_id", req.UserID).Warn("Failed to create notification")
	}
}

// NotifyExtraction reports the outcome of text extraction for a document
func (s *NotificationService) NotifyExtraction(ctx context.Context, doc *model.Document, extractErr error) {
	req := CreateNotificationRequest{
		UserID:   doc.UserID,
		Category: model.NotificationCategoryExtraction,
		Metadata: &model.NotificationMetadata{DocumentID: doc.ID},
	}
	if extractErr != nil {
		req.Type = model.NotificationTypeError
		req.Title = "Text extraction failed"
		req.Message = fmt.Sprintf("We could not read %q: %v", doc.Title, extractErr)
	} else {
		req.Type = model.NotificationTypeSuccess
		req.Title = "Document ready"
		req.Message = fmt.Sprintf("%q was processed (%d words).", doc.Title, doc.WordCount)
	}
	s.notify(ctx, req)
}

// NotifyGeneration reports the outcome of a quiz generation job
func (s *NotificationService) NotifyGeneration(ctx context.Context, job *model.GenerationJob, quiz *model.Quiz, genErr error) {
	meta := &model.NotificationMetadata{DocumentID: job.DocumentID, JobID: job.JobID}
	req := CreateNotificationRequest{
		UserID:   job.UserID,
		Category: model.NotificationCategoryGeneration,
		Metadata: meta,
	}
	if genErr != nil {
		req.Type = model.NotificationTypeError
		req.Title = "Quiz generation failed"
		req.Message = genErr.Error()
	} else {
		meta.QuizID = quiz.ID
		meta.Questions = quiz.QuestionCount
		req.Type = model.NotificationTypeSuccess
		req.Title = "Quiz ready"
		req.Message = fmt.Sprintf("%q is ready with %d questions.", quiz.Title, quiz.QuestionCount)
	}
	s.notify(ctx, req)
}

// NotifyAttemptTimeout tells the student their attempt was submitted for them
func (s *NotificationService) NotifyAttemptTimeout(ctx context.Context, attempt *model.QuizAttempt) {
	s.notify(ctx, CreateNotificationRequest{
		UserID:   attempt.UserID,
		Type:     model.NotificationTypeWarning,
		Category: model.NotificationCategoryAttempt,
		Title:    "Time is up",
		Message:  fmt.Sprintf("Your attempt was submitted automatically with a score of %.2f%%.", attempt.Score),
		Metadata: &model.NotificationMetadata{QuizID: attempt.QuizID, AttemptID: attempt.ID, Score: attempt.Score},
	})
}

// GetNotificationsByUser retrieves notifications for a user
func (s *NotificationService) GetNotificationsByUser(ctx context.Context, opts ListNotificationsOptions) ([]model.UserNotification, int64, error) {
	var notifications []model.UserNotification
	var total int64

	query := s.db.WithContext(ctx).Model(&model.UserNotification{}).
		Where("user_id = ?", opts.UserID)

	if opts.UnreadOnly {
		query = query.Where("read = ?", false)
	}

	if opts.Category != "" {
		query = query.Where("category = ?", opts.Category)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	if opts.Limit > 0 && opts.Limit <= 100 {
		query = query.Limit(opts.Limit)
	} else {
		query = query.Limit(50)
	}

	if opts.Offset > 0 {
		query = query.Offset(opts.Offset)
	}

	if err := query.Order("created_at DESC").Find(&notifications).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch notifications: %w", err)
	}

	return notifications, total, nil
}

// MarkAsRead marks a notification as read
func (s *NotificationService) MarkAsRead(ctx context.Context, notificationID uint, userID uint) error {
	result := s.db.WithContext(ctx).Model(&model.UserNotification{}).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Update("read", true)

	if result.Error != nil {
		return fmt.Errorf("failed to mark notification as read: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// MarkAllAsRead marks all notifications for a user as read
func (s *NotificationService) MarkAllAsRead(ctx context.Context, userID uint) (int64, error) {
	result := s.db.WithContext(ctx).Model(&model.UserNotification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Update("read", true)

	if result.Error != nil {
		return 0, fmt.Errorf("failed to mark all notifications as read: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// DeleteNotification deletes a notification
func (s *NotificationService) DeleteNotification(ctx context.Context, notificationID uint, userID uint) error {
	result := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Delete(&model.UserNotification{})

	if result.Error != nil {
		return fmt.Errorf("failed to delete notification: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// DeleteAllNotifications deletes all notifications for a user
func (s *NotificationService) DeleteAllNotifications(ctx context.Context, userID uint) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&model.UserNotification{})

	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete all notifications: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// GetUnreadCount returns the count of unread notifications for a user
func (s *NotificationService) GetUnreadCount(ctx context.Context, userID uint) (int64, error) {
	var count int64

	err := s.db.WithContext(ctx).Model(&model.UserNotification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

// CleanupOldNotifications permanently removes read notifications older than
// the given age
func (s *NotificationService) CleanupOldNotifications(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)

	result := s.db.WithContext(ctx).Unscoped().
		Where("created_at < ? AND read = ?", cutoff, true).
		Delete(&model.UserNotification{})

	if result.Error != nil {
		return 0, fmt.Errorf("failed to cleanup old notifications: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		s.log.Infof("Cleaned up %d old notifications", result.RowsAffected)
	}
	return result.RowsAffected, nil
}
