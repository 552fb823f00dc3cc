package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/sahilchouksey/studyquiz-api/model"
	"github.com/sahilchouksey/studyquiz-api/utils"
	"github.com/sahilchouksey/studyquiz-api/utils/cache"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	RecentAttemptsLimit = 5
	WeakTopicsLimit     = 3
	DefaultTrendDays    = 30
	MaxTrendDays        = 365
)

// AnalyticsService handles progress analytics and reporting
type AnalyticsService struct {
	db    *gorm.DB
	cache *cache.RedisCache
	now   func() time.Time
	log   *logrus.Entry
}

// NewAnalyticsService creates a new analytics service. redisCache may be nil.
func NewAnalyticsService(db *gorm.DB, redisCache *cache.RedisCache) *AnalyticsService {
	return &AnalyticsService{
		db:    db,
		cache: redisCache,
		now:   time.Now,
		log:   utils.WithComponent("Analytics"),
	}
}

// RecentAttempt is a submitted attempt as listed on the dashboard
type RecentAttempt struct {
	AttemptID        uint      `json:"attempt_id"`
	QuizID           uint      `json:"quiz_id"`
	QuizTitle        string    `json:"quiz_title"`
	Score            float64   `json:"score"`
	CorrectAnswers   int       `json:"correct_answers"`
	TotalQuestions   int       `json:"total_questions"`
	TimeSpentSeconds int       `json:"time_spent_seconds"`
	SubmittedAt      time.Time `json:"submitted_at"`
}

// TopicAccuracy is answered/correct counts for one question topic
type TopicAccuracy struct {
	Topic    string  `json:"topic"`
	Answered int64   `json:"answered"`
	Correct  int64   `json:"correct"`
	Accuracy float64 `json:"accuracy"` // percentage 0-100
}

// Dashboard represents the student's overview
type Dashboard struct {
	UserID            uint            `json:"user_id"`
	TotalDocuments    int64           `json:"total_documents"`
	TotalQuizzes      int64           `json:"total_quizzes"`
	TotalAttempts     int64           `json:"total_attempts"`
	AverageScore      float64         `json:"average_score"`
	BestScore         float64         `json:"best_score"`
	LatestScore       float64         `json:"latest_score"`
	TotalStudySeconds int64           `json:"total_study_seconds"`
	CurrentStreakDays int             `json:"current_streak_days"`
	LongestStreakDays int             `json:"longest_streak_days"`
	RecentAttempts    []RecentAttempt `json:"recent_attempts"`
	WeakTopics        []TopicAccuracy `json:"weak_topics"`
	GeneratedAt       time.Time       `json:"generated_at"`
}

// GetDashboard returns the dashboard for a user, served from Redis when
// a fresh copy exists
func (s *AnalyticsService) GetDashboard(ctx context.Context, userID uint) (*Dashboard, error) {
	key := cache.DashboardKey(userID)
	if s.cache != nil {
		var cached Dashboard
		err := s.cache.GetJSON(ctx, key, &cached)
		if err == nil {
			return &cached, nil
		}
		if !errors.Is(err, cache.ErrNotFound) {
			s.log.WithError(err).Debug("Dashboard cache read failed")
		}
	}

	dashboard, err := s.buildDashboard(ctx, userID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, key, dashboard, cache.DashboardTTL); err != nil {
			s.log.WithError(err).Debug("Dashboard cache write failed")
		}
	}
	return dashboard, nil
}

// InvalidateDashboard drops the cached dashboard of a user
func (s *AnalyticsService) InvalidateDashboard(ctx context.Context, userID uint) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, cache.DashboardKey(userID)); err != nil {
		s.log.WithError(err).Debug("Dashboard cache delete failed")
	}
}

func (s *AnalyticsService) buildDashboard(ctx context.Context, userID uint) (*Dashboard, error) {
	db := s.db.WithContext(ctx)
	now := s.now()
	d := &Dashboard{UserID: userID, GeneratedAt: now}

	if err := db.Model(&model.Document{}).Where("user_id = ?", userID).Count(&d.TotalDocuments).Error; err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}

	if err := db.Model(&model.Quiz{}).Where("user_id = ?", userID).Count(&d.TotalQuizzes).Error; err != nil {
		return nil, fmt.Errorf("failed to count quizzes: %w", err)
	}

	submitted := db.Model(&model.QuizAttempt{}).
		Where("user_id = ? AND status = ?", userID, model.AttemptStatusSubmitted)

	var totals struct {
		Count   int64
		Average float64
		Best    float64
		Seconds int64
	}
	if err := submitted.Session(&gorm.Session{}).
		Select("COUNT(*) as count, COALESCE(AVG(score), 0) as average, COALESCE(MAX(score), 0) as best, COALESCE(SUM(time_spent_seconds), 0) as seconds").
		Scan(&totals).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate attempts: %w", err)
	}
	d.TotalAttempts = totals.Count
	d.AverageScore = round2(totals.Average)
	d.BestScore = totals.Best
	d.TotalStudySeconds = totals.Seconds

	// Recent attempts
	var recent []model.QuizAttempt
	if err := submitted.Session(&gorm.Session{}).
		Preload("Quiz", func(tx *gorm.DB) *gorm.DB { return tx.Unscoped().Select("id", "title") }).
		Order("submitted_at DESC").
		Limit(RecentAttemptsLimit).
		Find(&recent).Error; err != nil {
		return nil, fmt.Errorf("failed to load recent attempts: %w", err)
	}
	d.RecentAttempts = make([]RecentAttempt, 0, len(recent))
	for _, a := range recent {
		d.RecentAttempts = append(d.RecentAttempts, toRecentAttempt(a))
	}
	if len(recent) > 0 {
		d.LatestScore = recent[0].Score
	}

	// Streak over distinct UTC days with a submitted attempt
	var days []time.Time
	if err := submitted.Session(&gorm.Session{}).
		Distinct("DATE(submitted_at AT TIME ZONE 'UTC')").
		Pluck("DATE(submitted_at AT TIME ZONE 'UTC')", &days).Error; err != nil {
		return nil, fmt.Errorf("failed to load study days: %w", err)
	}
	d.CurrentStreakDays, d.LongestStreakDays = ComputeStreak(days, now)

	topics, err := s.GetTopicAccuracy(ctx, userID)
	if err != nil {
		return nil, err
	}
	d.WeakTopics = WeakestTopics(topics, WeakTopicsLimit)

	return d, nil
}

func toRecentAttempt(a model.QuizAttempt) RecentAttempt {
	r := RecentAttempt{
		AttemptID:        a.ID,
		QuizID:           a.QuizID,
		Score:            a.Score,
		CorrectAnswers:   a.CorrectAnswers,
		TotalQuestions:   a.TotalQuestions,
		TimeSpentSeconds: a.TimeSpentSeconds,
	}
	if a.Quiz != nil {
		r.QuizTitle = a.Quiz.Title
	}
	if a.SubmittedAt != nil {
		r.SubmittedAt = *a.SubmittedAt
	}
	return r
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func utcDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ComputeStreak returns the current and longest runs of consecutive UTC days.
// The current streak stays alive until a full day passes without activity.
func ComputeStreak(days []time.Time, now time.Time) (current, longest int) {
	if len(days) == 0 {
		return 0, 0
	}

	unique := make(map[time.Time]bool, len(days))
	sorted := make([]time.Time, 0, len(days))
	for _, d := range days {
		day := utcDay(d)
		if !unique[day] {
			unique[day] = true
			sorted = append(sorted, day)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	run := 0
	for i, day := range sorted {
		if i > 0 && sorted[i-1].AddDate(0, 0, 1).Equal(day) {
			run++
		} else {
			run = 1
		}
		if run > longest {
			longest = run
		}
	}

	today := utcDay(now)
	cursor := today
	if !unique[cursor] {
		cursor = today.AddDate(0, 0, -1)
	}
	for unique[cursor] {
		current++
		cursor = cursor.AddDate(0, 0, -1)
	}
	return current, longest
}

// WeakestTopics returns up to n topics with the lowest accuracy, breaking
// ties by the number of answers
func WeakestTopics(topics []TopicAccuracy, n int) []TopicAccuracy {
	out := make([]TopicAccuracy, len(topics))
	copy(out, topics)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Accuracy != out[j].Accuracy {
			return out[i].Accuracy < out[j].Accuracy
		}
		if out[i].Answered != out[j].Answered {
			return out[i].Answered > out[j].Answered
		}
		return out[i].Topic < out[j].Topic
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// GetTopicAccuracy aggregates answered and correct counts per question topic
// over submitted attempts
func (s *AnalyticsService) GetTopicAccuracy(ctx context.Context, userID uint) ([]TopicAccuracy, error) {
	var topics []TopicAccuracy
	if err := s.db.WithContext(ctx).Model(&model.AttemptAnswer{}).
		Select(`
			quiz_questions.topic as topic,
			COUNT(*) as answered,
			SUM(CASE WHEN quiz_attempt_answers.is_correct THEN 1 ELSE 0 END) as correct
		`).
		Joins("JOIN quiz_questions ON quiz_questions.id = quiz_attempt_answers.question_id").
		Joins("JOIN quiz_attempts ON quiz_attempts.id = quiz_attempt_answers.attempt_id").
		Where("quiz_attempts.user_id = ? AND quiz_attempts.status = ? AND quiz_attempts.deleted_at IS NULL", userID, model.AttemptStatusSubmitted).
		Where("quiz_attempt_answers.option_id IS NOT NULL").
		Group("quiz_questions.topic").
		Order("quiz_questions.topic ASC").
		Scan(&topics).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate topics: %w", err)
	}

	for i := range topics {
		if topics[i].Answered > 0 {
			topics[i].Accuracy = round2(float64(topics[i].Correct) * 100 / float64(topics[i].Answered))
		}
	}
	return topics, nil
}

// TrendPoint is the daily average score
type TrendPoint struct {
	Date         string  `json:"date"`
	Attempts     int64   `json:"attempts"`
	AverageScore float64 `json:"average_score"`
}

// GetScoreTrend returns one point per UTC day over the last days days
func (s *AnalyticsService) GetScoreTrend(ctx context.Context, userID uint, days int) ([]TrendPoint, error) {
	if days <= 0 {
		days = DefaultTrendDays
	}
	if days > MaxTrendDays {
		days = MaxTrendDays
	}
	now := s.now()
	startDate := utcDay(now).AddDate(0, 0, -(days - 1))

	var rows []TrendPoint
	if err := s.db.WithContext(ctx).Model(&model.QuizAttempt{}).
		Select("TO_CHAR(DATE(submitted_at AT TIME ZONE 'UTC'), 'YYYY-MM-DD') as date, COUNT(*) as attempts, COALESCE(AVG(score), 0) as average_score").
		Where("user_id = ? AND status = ? AND submitted_at >= ?", userID, model.AttemptStatusSubmitted, startDate).
		Group("DATE(submitted_at AT TIME ZONE 'UTC')").
		Order("date ASC").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch score trend: %w", err)
	}

	return FillTrend(rows, startDate, days), nil
}

// FillTrend places rows on a continuous day axis, zero-filling gaps
func FillTrend(rows []TrendPoint, start time.Time, days int) []TrendPoint {
	byDate := make(map[string]TrendPoint, len(rows))
	for _, r := range rows {
		byDate[r.Date] = r
	}
	out := make([]TrendPoint, 0, days)
	for i := 0; i < days; i++ {
		date := utcDay(start).AddDate(0, 0, i).Format("2006-01-02")
		point, ok := byDate[date]
		if !ok {
			point = TrendPoint{Date: date}
		}
		point.AverageScore = round2(point.AverageScore)
		out = append(out, point)
	}
	return out
}

// QuizImprovement compares the first, best and latest score on a quiz
type QuizImprovement struct {
	QuizID      uint    `json:"quiz_id"`
	QuizTitle   string  `json:"quiz_title"`
	Attempts    int     `json:"attempts"`
	FirstScore  float64 `json:"first_score"`
	BestScore   float64 `json:"best_score"`
	LatestScore float64 `json:"latest_score"`
	Improvement float64 `json:"improvement"` // latest minus first
}

// GetImprovement returns per-quiz improvement over submitted attempts
func (s *AnalyticsService) GetImprovement(ctx context.Context, userID uint) ([]QuizImprovement, error) {
	var attempts []model.QuizAttempt
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, model.AttemptStatusSubmitted).
		Preload("Quiz", func(tx *gorm.DB) *gorm.DB { return tx.Unscoped().Select("id", "title") }).
		Order("submitted_at ASC").
		Find(&attempts).Error; err != nil {
		return nil, fmt.Errorf("failed to load attempts: %w", err)
	}
	return ComputeImprovement(attempts), nil
}

// ComputeImprovement groups attempts by quiz. attempts must be oldest first.
func ComputeImprovement(attempts []model.QuizAttempt) []QuizImprovement {
	index := make(map[uint]int)
	var out []QuizImprovement
	for _, a := range attempts {
		i, ok := index[a.QuizID]
		if !ok {
			item := QuizImprovement{QuizID: a.QuizID, FirstScore: a.Score, BestScore: a.Score}
			if a.Quiz != nil {
				item.QuizTitle = a.Quiz.Title
			}
			out = append(out, item)
			i = len(out) - 1
			index[a.QuizID] = i
		}
		item := &out[i]
		item.Attempts++
		item.LatestScore = a.Score
		if a.Score > item.BestScore {
			item.BestScore = a.Score
		}
		item.Improvement = round2(item.LatestScore - item.FirstScore)
	}
	if out == nil {
		out = []QuizImprovement{}
	}
	return out
}

// PlatformStats represents overall platform statistics for admins
type PlatformStats struct {
	TotalUsers            int64   `json:"total_users"`
	ActiveUsers           int64   `json:"active_users_7d"`
	NewUsersToday         int64   `json:"new_users_today"`
	TotalDocuments        int64   `json:"total_documents"`
	DocumentsExtracted    int64   `json:"documents_extracted"`
	DocumentsFailed       int64   `json:"documents_failed"`
	StorageUsedBytes      int64   `json:"storage_used_bytes"`
	TotalQuizzes          int64   `json:"total_quizzes"`
	TotalAttempts         int64   `json:"total_attempts"`
	AverageScore          float64 `json:"average_score"`
	GenerationJobs        int64   `json:"generation_jobs"`
	GenerationsFailed     int64   `json:"generations_failed"`
	GenerationSuccessRate float64 `json:"generation_success_rate"` // percentage of finished jobs
	TotalTutorMessages    int64   `json:"total_tutor_messages"`
}

// GetPlatformStats retrieves overall platform statistics
func (s *AnalyticsService) GetPlatformStats(ctx context.Context) (*PlatformStats, error) {
	db := s.db.WithContext(ctx)
	stats := &PlatformStats{}

	// Users
	if err := db.Model(&model.User{}).Count(&stats.TotalUsers).Error; err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}

	sevenDaysAgo := s.now().AddDate(0, 0, -7)
	if err := db.Model(&model.UserActivity{}).
		Where("created_at >= ?", sevenDaysAgo).
		Distinct("user_id").
		Count(&stats.ActiveUsers).Error; err != nil {
		return nil, fmt.Errorf("failed to count active users: %w", err)
	}

	if err := db.Model(&model.User{}).
		Where("created_at >= ?", utcDay(s.now())).
		Count(&stats.NewUsersToday).Error; err != nil {
		return nil, fmt.Errorf("failed to count new users: %w", err)
	}

	// Documents
	if err := db.Model(&model.Document{}).Count(&stats.TotalDocuments).Error; err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}

	if err := db.Model(&model.Document{}).
		Where("extraction_status = ?", model.ExtractionStatusCompleted).
		Count(&stats.DocumentsExtracted).Error; err != nil {
		return nil, fmt.Errorf("failed to count extracted documents: %w", err)
	}

	if err := db.Model(&model.Document{}).
		Where("extraction_status = ?", model.ExtractionStatusFailed).
		Count(&stats.DocumentsFailed).Error; err != nil {
		return nil, fmt.Errorf("failed to count failed documents: %w", err)
	}

	var storageResult struct {
		Total int64
	}
	if err := db.Model(&model.Document{}).
		Select("COALESCE(SUM(file_size), 0) as total").
		Scan(&storageResult).Error; err != nil {
		return nil, fmt.Errorf("failed to calculate storage: %w", err)
	}
	stats.StorageUsedBytes = storageResult.Total

	// Quizzes and attempts
	if err := db.Model(&model.Quiz{}).Count(&stats.TotalQuizzes).Error; err != nil {
		return nil, fmt.Errorf("failed to count quizzes: %w", err)
	}

	var attemptResult struct {
		Count   int64
		Average float64
	}
	if err := db.Model(&model.QuizAttempt{}).
		Where("status = ?", model.AttemptStatusSubmitted).
		Select("COUNT(*) as count, COALESCE(AVG(score), 0) as average").
		Scan(&attemptResult).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate attempts: %w", err)
	}
	stats.TotalAttempts = attemptResult.Count
	stats.AverageScore = round2(attemptResult.Average)

	// Generation
	var completed int64
	if err := db.Model(&model.GenerationJob{}).Count(&stats.GenerationJobs).Error; err != nil {
		return nil, fmt.Errorf("failed to count generation jobs: %w", err)
	}
	if err := db.Model(&model.GenerationJob{}).
		Where("status = ?", model.JobStatusCompleted).
		Count(&completed).Error; err != nil {
		return nil, fmt.Errorf("failed to count completed jobs: %w", err)
	}
	if err := db.Model(&model.GenerationJob{}).
		Where("status = ?", model.JobStatusFailed).
		Count(&stats.GenerationsFailed).Error; err != nil {
		return nil, fmt.Errorf("failed to count failed jobs: %w", err)
	}
	stats.GenerationSuccessRate = SuccessRate(completed, stats.GenerationsFailed)

	if err := db.Model(&model.TutorMessage{}).
		Where("role = ?", model.MessageRoleUser).
		Count(&stats.TotalTutorMessages).Error; err != nil {
		return nil, fmt.Errorf("failed to count tutor messages: %w", err)
	}

	return stats, nil
}

// SuccessRate returns completed/(completed+failed) as a percentage
func SuccessRate(completed, failed int64) float64 {
	finished := completed + failed
	if finished == 0 {
		return 0
	}
	return round2(float64(completed) * 100 / float64(finished))
}

// TimeSeriesPoint represents a data point in time series
type TimeSeriesPoint struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// GetActivityTimeSeries retrieves activity over time, optionally for one user
func (s *AnalyticsService) GetActivityTimeSeries(ctx context.Context, userID uint, days int, activityType model.ActivityType) ([]TimeSeriesPoint, error) {
	if days <= 0 {
		days = DefaultTrendDays
	}
	startDate := utcDay(s.now()).AddDate(0, 0, -(days - 1))

	var results []TimeSeriesPoint
	query := s.db.WithContext(ctx).Model(&model.UserActivity{}).
		Select("TO_CHAR(DATE(created_at), 'YYYY-MM-DD') as date, COUNT(*) as count").
		Where("created_at >= ?", startDate).
		Group("DATE(created_at)").
		Order("date ASC")

	if userID != 0 {
		query = query.Where("user_id = ?", userID)
	}
	if activityType != "" {
		query = query.Where("activity_type = ?", activityType)
	}

	if err := query.Scan(&results).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch time series: %w", err)
	}

	return results, nil
}

// LogActivity logs a user activity for requests the activity middleware
// cannot see, such as login
func (s *AnalyticsService) LogActivity(ctx context.Context, userID uint, activityType model.ActivityType, resourceType string, resourceID uint, ipAddress string, userAgent string) error {
	activity := model.UserActivity{
		UserID:       userID,
		ActivityType: activityType,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		IPAddress:    ipAddress,
		UserAgent:    userAgent,
	}

	if err := s.db.WithContext(ctx).Create(&activity).Error; err != nil {
		return fmt.Errorf("failed to log activity: %w", err)
	}

	return nil
}
