package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/sahilchouksey/studyquiz-api/model"
	"github.com/sahilchouksey/studyquiz-api/services"
)

const (
	StuckJobThreshold = 30 * time.Minute
	RetentionPeriod   = 30 * 24 * time.Hour
)

// ExpireOverdueAttempts force-submits attempts whose deadline passed more
// than the grace period ago. Runs every minute.
func (m *CronManager) ExpireOverdueAttempts(ctx context.Context) (int64, string, error) {
	if m.deps.Attempts == nil {
		return 0, "attempt service not configured", nil
	}
	expired, err := m.deps.Attempts.ExpireOverdueAttempts(ctx, services.SubmitGracePeriod)
	if err != nil {
		return expired, "", err
	}
	return expired, fmt.Sprintf("Force-submitted %d overdue attempts", expired), nil
}

// RecoverStuckGenerations fails generation jobs and extractions that have
// been processing for too long. Runs every 10 minutes.
func (m *CronManager) RecoverStuckGenerations(ctx context.Context) (int64, string, error) {
	var jobs, documents int64
	var err error

	if m.deps.Generation != nil {
		jobs, err = m.deps.Generation.RecoverStuckJobs(ctx, StuckJobThreshold)
		if err != nil {
			return jobs, "", fmt.Errorf("failed to recover generation jobs: %w", err)
		}
	}
	if m.deps.Documents != nil {
		documents, err = m.deps.Documents.FailStuckExtractions(ctx, StuckJobThreshold)
		if err != nil {
			return jobs + documents, "", fmt.Errorf("failed to recover extractions: %w", err)
		}
	}
	return jobs + documents, fmt.Sprintf("Failed %d stuck generation jobs and %d stuck extractions", jobs, documents), nil
}

// CleanupTokenBlacklist removes blacklist entries whose tokens have expired.
// Runs every hour.
func (m *CronManager) CleanupTokenBlacklist(ctx context.Context) (int64, string, error) {
	if m.deps.Blacklist == nil {
		return 0, "blacklist not configured", nil
	}
	removed, err := m.deps.Blacklist.CleanupExpiredTokens(ctx)
	if err != nil {
		return 0, "", fmt.Errorf("failed to clean token blacklist: %w", err)
	}
	return removed, fmt.Sprintf("Removed %d expired blacklist entries", removed), nil
}

// CleanupOldData prunes read notifications, cron logs and finished
// generation jobs past the retention period. Runs daily at 3 AM.
func (m *CronManager) CleanupOldData(ctx context.Context) (int64, string, error) {
	var totalCleaned int64
	var failures int
	cutoff := time.Now().Add(-RetentionPeriod)

	// 1. Read notifications
	if m.deps.Notifications != nil {
		removed, err := m.deps.Notifications.CleanupOldNotifications(ctx, RetentionPeriod)
		if err != nil {
			m.log.WithError(err).Warn("Failed to clean notifications")
			failures++
		} else {
			totalCleaned += removed
		}
	}

	// 2. Cron job logs
	result := m.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&model.CronJobLog{})
	if result.Error != nil {
		m.log.WithError(result.Error).Warn("Failed to clean cron logs")
		failures++
	} else {
		totalCleaned += result.RowsAffected
	}

	// 3. Finished generation jobs
	result = m.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", []model.GenerationJobStatus{model.JobStatusCompleted, model.JobStatusFailed}, cutoff).
		Delete(&model.GenerationJob{})
	if result.Error != nil {
		m.log.WithError(result.Error).Warn("Failed to clean generation jobs")
		failures++
	} else {
		totalCleaned += result.RowsAffected
	}

	if failures > 0 {
		return totalCleaned, "", fmt.Errorf("%d cleanup steps failed after removing %d records", failures, totalCleaned)
	}
	return totalCleaned, fmt.Sprintf("Cleaned up %d total records", totalCleaned), nil
}
