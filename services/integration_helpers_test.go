package services

import (
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sahilchouksey/studyquiz-api/database"
	"github.com/sahilchouksey/studyquiz-api/model"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	migrateOnce sync.Once
	migrateErr  error
)

// integrationDB connects to TEST_DATABASE_DSN and migrates the schema once
// per test binary
func integrationDB(t *testing.T) *gorm.DB {
	t.Helper()
	if os.Getenv("RUN_INTEGRATION_TESTS") != "true" {
		t.Skip("Skipping integration test. Set RUN_INTEGRATION_TESTS=true to run.")
	}
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("Skipping integration test. TEST_DATABASE_DSN is not set.")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	migrateOnce.Do(func() { migrateErr = db.AutoMigrate(database.Models()...) })
	require.NoError(t, migrateErr)
	return db
}

// createTestUser inserts a throwaway user. Deleting it cascades to the rows
// the test created.
func createTestUser(t *testing.T, db *gorm.DB) *model.User {
	t.Helper()
	user := &model.User{
		Email:        fmt.Sprintf("it-%s@example.com", uuid.NewString()),
		PasswordHash: "not-a-real-hash",
		Name:         "Integration Student",
		Role:         "student",
	}
	require.NoError(t, db.Create(user).Error)
	t.Cleanup(func() { db.Unscoped().Delete(&model.User{}, user.ID) })
	return user
}

// createTestQuiz stores a quiz with n questions whose second option is the
// correct one
func createTestQuiz(t *testing.T, db *gorm.DB, userID uint, n, timeLimitSeconds int) *model.Quiz {
	t.Helper()
	quiz := &model.Quiz{
		UserID:           userID,
		Title:            "Integration quiz",
		Difficulty:       model.DifficultyMedium,
		Source:           model.QuizSourceManual,
		TimeLimitSeconds: timeLimitSeconds,
		QuestionCount:    n,
	}
	for i := 1; i <= n; i++ {
		q := model.Question{Position: i, Text: fmt.Sprintf("Question %d?", i), Topic: "Go", Difficulty: model.DifficultyMedium}
		for j := 0; j < model.OptionsPerQuestion; j++ {
			q.Options = append(q.Options, model.Option{Position: j, Text: fmt.Sprintf("Option %d", j), IsCorrect: j == 1})
		}
		quiz.Questions = append(quiz.Questions, q)
	}
	require.NoError(t, db.Omit("User", "Document").Create(quiz).Error)
	return quiz
}

// testClock is a settable time source for services with a now field
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Now().UTC().Truncate(time.Second)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
