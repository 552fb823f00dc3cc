package database

import (
	"fmt"
	"time"

	"github.com/sahilchouksey/studyquiz-api/config"
	"github.com/sahilchouksey/studyquiz-api/model"
	"github.com/sahilchouksey/studyquiz-api/utils"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Storage defines the interface that all database implementations must satisfy
type Storage interface {
	// Lifecycle methods
	Init() error
	Close() error
	HealthCheck() error

	// GORM DB access
	GetDB() interface{} // Returns *gorm.DB
}

type GORMStore struct {
	db *gorm.DB
}

// DSN builds the postgres connection string from the environment
func DSN(env *config.EnviornmentVariable) string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		env.DB_HOST,
		env.DB_USER_NAME,
		env.DB_PASSWORD,
		env.DB_NAME,
		env.DB_PORT,
		env.DB_SSL_MODE,
	)
}

// StartGORM initializes a GORM connection to PostgreSQL
func StartGORM() (*GORMStore, error) {
	getEnv, err := config.Get()
	if err != nil {
		return nil, err
	}
	return OpenGORM(DSN(getEnv), getEnv.IsProduction())
}

// OpenGORM connects to the given DSN and configures the pool
func OpenGORM(dsn string, production bool) (*GORMStore, error) {
	log := utils.WithComponent("Database")

	// Configure GORM logger
	gormLogger := logger.Default.LogMode(logger.Info)
	if production {
		gormLogger = logger.Default.LogMode(logger.Error)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormLogger,
		PrepareStmt:    true,
		TranslateError: true, // unique violations surface as gorm.ErrDuplicatedKey
	})
	if err != nil {
		log.WithError(err).Error("Unable to connect to PostgreSQL with GORM")
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// Connection pool settings
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.Info("Successfully connected to PostgreSQL Database with GORM")

	return &GORMStore{db: db}, nil
}

// Models lists every table owned by the service, in dependency order
func Models() []interface{} {
	return []interface{}{
		// Users and auth
		&model.User{},
		&model.JWTTokenBlacklist{},

		// Documents and quizzes
		&model.Document{},
		&model.Quiz{},
		&model.Question{},
		&model.Option{},
		&model.GenerationJob{},

		// Quiz-taking
		&model.QuizAttempt{},
		&model.AttemptAnswer{},

		// Tutor
		&model.TutorSession{},
		&model.TutorMessage{},

		// Audit, notifications and background jobs
		&model.UserActivity{},
		&model.UserNotification{},
		&model.CronJobLog{},
	}
}

// Init runs the AutoMigrate to create/update tables
func (s *GORMStore) Init() error {
	log := utils.WithComponent("Database")
	log.Info("Running GORM AutoMigrate for all models...")

	if err := s.db.AutoMigrate(Models()...); err != nil {
		log.WithError(err).Error("Error running AutoMigrate")
		return err
	}

	log.Info("GORM AutoMigrate completed successfully")
	return nil
}

// Close closes the database connection
func (s *GORMStore) Close() error {
	utils.WithComponent("Database").Info("Closing GORM PostgreSQL connection...")
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetDB returns the GORM DB instance for use in services/handlers
func (s *GORMStore) GetDB() interface{} {
	return s.db
}

// HealthCheck verifies the database connection is alive
func (s *GORMStore) HealthCheck() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
