package database

import (
	"errors"
	"fmt"

	"github.com/sahilchouksey/studyquiz-api/config"
	"github.com/sahilchouksey/studyquiz-api/model"
	"github.com/sahilchouksey/studyquiz-api/utils"
	"github.com/sahilchouksey/studyquiz-api/utils/auth"
	"gorm.io/gorm"
)

// Seeder handles database seeding operations
type Seeder struct {
	db *gorm.DB
}

// NewSeeder creates a new seeder instance
func NewSeeder(db *gorm.DB) *Seeder {
	return &Seeder{db: db}
}

// SeedAll runs all seed functions
func (s *Seeder) SeedAll() error {
	log := utils.WithComponent("Seeder")
	log.Info("Starting database seeding...")

	admin, err := s.SeedAdminUser()
	if err != nil {
		return fmt.Errorf("failed to seed admin user: %w", err)
	}

	if admin != nil {
		if err := s.SeedSampleQuiz(admin.ID); err != nil {
			return fmt.Errorf("failed to seed sample quiz: %w", err)
		}
	}

	log.Info("Database seeding completed successfully")
	return nil
}

// SeedAdminUser creates the admin user from ADMIN_EMAIL and ADMIN_PASSWORD.
// It returns the existing admin when one is already present.
func (s *Seeder) SeedAdminUser() (*model.User, error) {
	log := utils.WithComponent("Seeder")

	var existing model.User
	err := s.db.Where("role = ?", model.RoleAdmin).First(&existing).Error
	if err == nil {
		log.Info("Admin user already exists, skipping...")
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	adminEmail := config.GetString("ADMIN_EMAIL", "")
	adminPassword := config.GetString("ADMIN_PASSWORD", "")
	if adminEmail == "" || adminPassword == "" {
		log.Warn("ADMIN_EMAIL and ADMIN_PASSWORD environment variables not set, skipping admin user creation")
		return nil, nil
	}

	passwordHash, err := auth.HashPassword(adminPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	admin := &model.User{
		Email:        adminEmail,
		PasswordHash: passwordHash,
		Name:         "System Administrator",
		Role:         model.RoleAdmin,
	}
	if err := s.db.Create(admin).Error; err != nil {
		return nil, err
	}

	log.WithField("email", admin.Email).Info("Created admin user")
	return admin, nil
}

// SeedSampleQuiz creates a small manual quiz so a fresh install has
// something to attempt
func (s *Seeder) SeedSampleQuiz(ownerID uint) error {
	log := utils.WithComponent("Seeder")

	var count int64
	if err := s.db.Model(&model.Quiz{}).Where("user_id = ? AND source = ?", ownerID, model.QuizSourceManual).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		log.Info("Sample quiz already exists, skipping...")
		return nil
	}

	quiz := SampleQuiz(ownerID)
	if err := s.db.Create(quiz).Error; err != nil {
		return err
	}

	log.WithField("quiz_id", quiz.ID).Infof("Created sample quiz with %d questions", len(quiz.Questions))
	return nil
}

// SampleQuiz builds the seed quiz in memory
func SampleQuiz(ownerID uint) *model.Quiz {
	type q struct {
		text, topic, explanation string
		options                  [model.OptionsPerQuestion]string
		correct                  int
	}

	items := []q{
		{
			text:        "Which keyword starts a goroutine?",
			topic:       "Concurrency",
			explanation: "The go statement runs a function call in a new goroutine.",
			options:     [4]string{"go", "async", "spawn", "thread"},
			correct:     0,
		},
		{
			text:        "What does a nil map return when read with a missing key?",
			topic:       "Maps",
			explanation: "Reads from a nil map return the zero value; only writes panic.",
			options:     [4]string{"It panics", "The zero value", "An error", "nil always"},
			correct:     1,
		},
		{
			text:        "Which statement defers a call until the surrounding function returns?",
			topic:       "Control flow",
			explanation: "Deferred calls run in LIFO order when the function returns.",
			options:     [4]string{"finally", "after", "defer", "later"},
			correct:     2,
		},
	}

	quiz := &model.Quiz{
		UserID:           ownerID,
		Title:            "Go Fundamentals",
		Description:      "A short warm-up quiz on core Go language features.",
		Difficulty:       model.DifficultyEasy,
		Source:           model.QuizSourceManual,
		TimeLimitSeconds: 300,
		QuestionCount:    len(items),
	}

	topics := make([]string, 0, len(items))
	for i, item := range items {
		question := model.Question{
			Position:    i + 1,
			Text:        item.text,
			Topic:       item.topic,
			Difficulty:  model.DifficultyEasy,
			Explanation: item.explanation,
		}
		for j, text := range item.options {
			question.Options = append(question.Options, model.Option{
				Position:  j + 1,
				Text:      text,
				IsCorrect: j == item.correct,
			})
		}
		quiz.Questions = append(quiz.Questions, question)
		topics = append(topics, item.topic)
	}
	quiz.Topics = topics

	return quiz
}

// RunSeeds is the main entry point for seeding
func RunSeeds(db *gorm.DB) error {
	return NewSeeder(db).SeedAll()
}
