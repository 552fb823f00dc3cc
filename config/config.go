package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// This function will Load the ENVIORNMENT VARIABLES from .env if GO_ENV variable is not set
func LoadENV() error {
	goEnv := os.Getenv("GO_ENV")

	if goEnv == "" || goEnv == "development" {
		err := godotenv.Load()
		if err != nil && !os.IsNotExist(err) {
			return err
		}
	}

	return nil
}

type EnviornmentVariable struct {
	// All variables
	GO_ENV       string
	DB_USER_NAME string
	DB_PASSWORD  string
	DB_NAME      string
	DB_HOST      string
	DB_PORT      string
	DB_SSL_MODE  string
	PORT         int
	// Logging
	LOG_LEVEL string
	LOG_FILE  string
	// HTTP
	ALLOWED_ORIGINS string
	CRON_ENABLED    bool
	// JWT Configuration
	JWT_SECRET string
	JWT_ISSUER string
	// Redis Configuration
	REDIS_URL string
	// Object storage (S3 compatible)
	STORAGE_ACCESS_KEY string
	STORAGE_SECRET_KEY string
	STORAGE_BUCKET     string
	STORAGE_REGION     string
	STORAGE_ENDPOINT   string
	STORAGE_CDN_URL    string
	// OCR service
	OCR_SERVICE_URL string
	// AI provider
	AI_PROVIDER          string
	GEMINI_API_KEY       string
	GEMINI_MODEL         string
	DO_INFERENCE_API_KEY string
	DO_INFERENCE_MODEL   string
	// Messaging
	AMQP_URL      string
	AMQP_EXCHANGE string
	// Quiz defaults
	QUIZ_DEFAULT_QUESTIONS  int
	QUIZ_MAX_QUESTIONS      int
	QUIZ_DEFAULT_TIME_LIMIT int
}

func Get() (*EnviornmentVariable, error) {

	port, err := strconv.Atoi(os.Getenv("PORT"))
	if err != nil {
		port = 8080
	}

	envVariables := &EnviornmentVariable{
		GO_ENV:       os.Getenv("GO_ENV"),
		DB_USER_NAME: os.Getenv("DB_USER_NAME"),
		DB_PASSWORD:  os.Getenv("DB_PASSWORD"),
		DB_NAME:      os.Getenv("DB_NAME"),
		DB_HOST:      GetString("DB_HOST", "localhost"),
		DB_PORT:      GetString("DB_PORT", "5432"),
		DB_SSL_MODE:  GetString("DB_SSL_MODE", "disable"),
		PORT:         port,
		// Logging
		LOG_LEVEL: GetString("LOG_LEVEL", "info"),
		LOG_FILE:  os.Getenv("LOG_FILE"),
		// HTTP
		ALLOWED_ORIGINS: GetString("ALLOWED_ORIGINS", "*"),
		CRON_ENABLED:    GetBool("CRON_ENABLED", true),
		// JWT
		JWT_SECRET: os.Getenv("JWT_SECRET"),
		JWT_ISSUER: GetString("JWT_ISSUER", "studyquiz-api"),
		// Redis
		REDIS_URL: GetString("REDIS_URL", "redis://localhost:6379/0"),
		// Storage
		STORAGE_ACCESS_KEY: os.Getenv("STORAGE_ACCESS_KEY"),
		STORAGE_SECRET_KEY: os.Getenv("STORAGE_SECRET_KEY"),
		STORAGE_BUCKET:     os.Getenv("STORAGE_BUCKET"),
		STORAGE_REGION:     GetString("STORAGE_REGION", "us-east-1"),
		STORAGE_ENDPOINT:   os.Getenv("STORAGE_ENDPOINT"),
		STORAGE_CDN_URL:    os.Getenv("STORAGE_CDN_URL"),
		// OCR
		OCR_SERVICE_URL: GetString("OCR_SERVICE_URL", "http://127.0.0.1:8081"),
		// AI
		AI_PROVIDER:          GetString("AI_PROVIDER", "gemini"),
		GEMINI_API_KEY:       os.Getenv("GEMINI_API_KEY"),
		GEMINI_MODEL:         GetString("GEMINI_MODEL", "gemini-2.0-flash"),
		DO_INFERENCE_API_KEY: os.Getenv("DO_INFERENCE_API_KEY"),
		DO_INFERENCE_MODEL:   os.Getenv("DO_INFERENCE_MODEL"),
		// Messaging
		AMQP_URL:      os.Getenv("AMQP_URL"),
		AMQP_EXCHANGE: GetString("AMQP_EXCHANGE", "studyquiz.events"),
		// Quiz
		QUIZ_DEFAULT_QUESTIONS:  GetInt("QUIZ_DEFAULT_QUESTIONS", 10),
		QUIZ_MAX_QUESTIONS:      GetInt("QUIZ_MAX_QUESTIONS", 30),
		QUIZ_DEFAULT_TIME_LIMIT: GetInt("QUIZ_DEFAULT_TIME_LIMIT", 600),
	}

	return envVariables, nil
}

// IsProduction reports whether the service runs with GO_ENV=production
func (e *EnviornmentVariable) IsProduction() bool {
	return e.GO_ENV == "production"
}

// StorageEnabled reports whether object storage credentials are present
func (e *EnviornmentVariable) StorageEnabled() bool {
	return e.STORAGE_ACCESS_KEY != "" && e.STORAGE_SECRET_KEY != "" && e.STORAGE_BUCKET != "" && e.STORAGE_ENDPOINT != ""
}

// GetString returns the env value or fallback when unset
func GetString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// GetInt returns the env value parsed as int or fallback
func GetInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

// GetBool returns the env value parsed as bool or fallback
func GetBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

// GetDuration returns the env value parsed with time.ParseDuration or fallback
func GetDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}
