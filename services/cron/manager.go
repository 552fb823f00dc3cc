package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sahilchouksey/studyquiz-api/model"
	"github.com/sahilchouksey/studyquiz-api/services"
	"github.com/sahilchouksey/studyquiz-api/utils"
	"github.com/sahilchouksey/studyquiz-api/utils/auth"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Dependencies are the services the scheduled jobs act on
type Dependencies struct {
	Attempts      *services.AttemptService
	Generation    *services.GenerationService
	Documents     *services.DocumentService
	Notifications *services.NotificationService
	Blacklist     *auth.BlacklistService
}

// JobFunc runs one scheduled job and reports how many rows it touched
type JobFunc func(ctx context.Context) (affected int64, message string, err error)

// job describes one scheduled entry
type job struct {
	name     string
	schedule string
	timeout  time.Duration
	run      JobFunc
}

// CronManager manages all scheduled cron jobs
type CronManager struct {
	cron *cron.Cron
	db   *gorm.DB
	deps Dependencies
	log  *logrus.Entry
}

// NewCronManager creates a new cron manager
func NewCronManager(db *gorm.DB, deps Dependencies) *CronManager {
	// Create cron with seconds precision
	c := cron.New(cron.WithSeconds())

	return &CronManager{
		cron: c,
		db:   db,
		deps: deps,
		log:  utils.WithComponent("Cron"),
	}
}

// Start starts all cron jobs
func (m *CronManager) Start() error {
	m.log.Info("Starting cron jobs...")

	// Register all jobs
	if err := m.registerJobs(); err != nil {
		return err
	}

	// Start the cron scheduler
	m.cron.Start()

	m.log.WithField("jobs", len(m.cron.Entries())).Info("Cron jobs started successfully")
	return nil
}

// Stop stops all cron jobs and waits for running ones to return
func (m *CronManager) Stop() {
	m.log.Info("Stopping cron jobs...")
	ctx := m.cron.Stop()
	<-ctx.Done()
	m.log.Info("Cron jobs stopped")
}

func (m *CronManager) jobs() []job {
	return []job{
		{name: "expire_overdue_attempts", schedule: "0 * * * * *", timeout: 50 * time.Second, run: m.ExpireOverdueAttempts},
		{name: "recover_stuck_generations", schedule: "0 */10 * * * *", timeout: 5 * time.Minute, run: m.RecoverStuckGenerations},
		{name: "cleanup_token_blacklist", schedule: "0 0 * * * *", timeout: 5 * time.Minute, run: m.CleanupTokenBlacklist},
		{name: "cleanup_old_data", schedule: "0 0 3 * * *", timeout: 10 * time.Minute, run: m.CleanupOldData},
	}
}

// registerJobs registers all cron jobs with their schedules
func (m *CronManager) registerJobs() error {
	for _, j := range m.jobs() {
		j := j
		if _, err := m.cron.AddFunc(j.schedule, func() { m.Run(j.name, j.timeout, j.run) }); err != nil {
			return fmt.Errorf("failed to register cron job %s: %w", j.name, err)
		}
	}

	m.log.Info("All cron jobs registered successfully")
	return nil
}

// Run executes fn under a timeout and records the run in cron_job_logs
func (m *CronManager) Run(name string, timeout time.Duration, fn JobFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	entry := m.logJobStart(name)
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			m.logJobError(entry, started, fmt.Errorf("panic: %v", r))
		}
	}()

	affected, message, err := fn(ctx)
	if err != nil {
		m.logJobError(entry, started, err)
		return
	}
	m.logJobComplete(entry, started, affected, message)
}

// logJobStart logs the start of a cron job
func (m *CronManager) logJobStart(jobName string) *model.CronJobLog {
	m.log.WithField("job", jobName).Debug("Starting job")

	cronLog := &model.CronJobLog{
		JobName:   jobName,
		Status:    model.CronStatusStarted,
		StartedAt: time.Now(),
		Metadata:  []byte("{}"),
	}
	if err := m.db.Create(cronLog).Error; err != nil {
		m.log.WithError(err).WithField("job", jobName).Warn("Failed to record cron start")
	}
	return cronLog
}

// logJobComplete logs successful completion of a cron job
func (m *CronManager) logJobComplete(entry *model.CronJobLog, started time.Time, affected int64, message string) {
	fields := logrus.Fields{"job": entry.JobName, "affected": affected}
	if affected > 0 {
		m.log.WithFields(fields).Info(message)
	} else {
		m.log.WithFields(fields).Debug(message)
	}

	if entry.ID == 0 {
		return
	}
	m.db.Model(entry).Updates(map[string]interface{}{
		"status":       model.CronStatusCompleted,
		"completed_at": time.Now(),
		"duration":     time.Since(started).Milliseconds(),
		"message":      message,
		"affected":     affected,
	})
}

// logJobError logs a cron job error
func (m *CronManager) logJobError(entry *model.CronJobLog, started time.Time, err error) {
	m.log.WithError(err).WithField("job", entry.JobName).Error("Cron job failed")

	if entry.ID == 0 {
		return
	}
	m.db.Model(entry).Updates(map[string]interface{}{
		"status":       model.CronStatusFailed,
		"completed_at": time.Now(),
		"duration":     time.Since(started).Milliseconds(),
		"error_msg":    err.Error(),
	})
}
