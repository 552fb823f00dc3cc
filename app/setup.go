package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/sahilchouksey/studyquiz-api/api"
	"github.com/sahilchouksey/studyquiz-api/config"
	"github.com/sahilchouksey/studyquiz-api/database"
	"github.com/sahilchouksey/studyquiz-api/router"
	"github.com/sahilchouksey/studyquiz-api/services"
	"github.com/sahilchouksey/studyquiz-api/services/ai"
	"github.com/sahilchouksey/studyquiz-api/services/cron"
	"github.com/sahilchouksey/studyquiz-api/services/events"
	"github.com/sahilchouksey/studyquiz-api/services/storage"
	"github.com/sahilchouksey/studyquiz-api/utils"
	"github.com/sahilchouksey/studyquiz-api/utils/auth"
	"github.com/sahilchouksey/studyquiz-api/utils/cache"
	"gorm.io/gorm"
)

// ShutdownTimeout bounds how long in-flight requests and background jobs
// get to finish after SIGINT/SIGTERM
const ShutdownTimeout = 30 * time.Second

// Worker pool sizes for the background runners
const (
	ExtractionWorkers = 4
	GenerationWorkers = 2
)

func SetupAndRunServer() error {
	// Load ENV
	if err := config.LoadENV(); err != nil {
		return err
	}

	getEnv, err := config.Get()
	if err != nil {
		return err
	}

	if err := utils.InitLogger(getEnv.LOG_LEVEL, getEnv.LOG_FILE, getEnv.IsProduction()); err != nil {
		utils.Log.WithError(err).Warn("Log file could not be opened, logging to stdout only")
	}
	log := utils.WithComponent("App")

	if getEnv.JWT_SECRET == "" {
		return errors.New("JWT_SECRET environment variable is not set")
	}

	// Initialize GORM database connection
	store, err := database.StartGORM()
	if err != nil {
		log.Error("Check whether Postgres is running and the DB_* variables are set")
		return err
	}
	defer store.Close()

	if err := store.Init(); err != nil {
		log.Error("Failed to initialize database tables")
		return err
	}

	db, ok := store.GetDB().(*gorm.DB)
	if !ok {
		return errors.New("failed to get GORM DB instance")
	}

	if config.GetBool("SEED_ON_START", false) {
		if err := database.RunSeeds(db); err != nil {
			log.WithError(err).Warn("Seeding failed")
		}
	}

	// Redis is optional: caching, job mirrors, document locks and brute
	// force protection degrade to the database or turn off
	redisCache, err := cache.NewRedisCache(getEnv.REDIS_URL)
	if err != nil {
		log.WithError(err).Warn("Redis unavailable; caching and brute force protection are disabled")
		redisCache = nil
	} else {
		defer redisCache.Close()
	}

	svc, shutdownServices, err := buildServices(getEnv, db, redisCache)
	if err != nil {
		return err
	}

	// Initialize Cron Manager (only if enabled via environment variable)
	var cronManager *cron.CronManager
	if getEnv.CRON_ENABLED {
		cronManager = cron.NewCronManager(db, cron.Dependencies{
			Attempts:      svc.Attempts,
			Generation:    svc.Generation,
			Documents:     svc.Documents,
			Notifications: svc.Notifications,
			Blacklist:     svc.Blacklist,
		})
		if err := cronManager.Start(); err != nil {
			// Don't fail the app, just log the warning
			log.WithError(err).Warn("Failed to start cron jobs")
			cronManager = nil
		}
	}

	// Init API
	server := api.NewAPIServer(fmt.Sprintf(":%d", getEnv.PORT))
	router.SetupRoutes(server.GetEngine(), store, svc, getEnv.ALLOWED_ORIGINS)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Run() }()

	select {
	case err := <-serverErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP server did not shut down cleanly")
	}
	if cronManager != nil {
		cronManager.Stop()
	}
	shutdownServices(shutdownCtx)

	log.Info("Server stopped")
	return nil
}

// buildServices wires the service graph. The returned function drains the
// background workers and closes the event publisher.
func buildServices(env *config.EnviornmentVariable, db *gorm.DB, redisCache *cache.RedisCache) (*router.Services, func(context.Context), error) {
	log := utils.WithComponent("App")

	jwtManager := auth.NewJWTManager(auth.JWTConfig{
		Secret:        env.JWT_SECRET,
		Expiry:        24 * time.Hour,
		RefreshExpiry: 7 * 24 * time.Hour,
		Issuer:        env.JWT_ISSUER,
	})

	var objectStore storage.ObjectStore
	if env.StorageEnabled() {
		s3Store, err := storage.NewS3Store(storage.Config{
			AccessKey: env.STORAGE_ACCESS_KEY,
			SecretKey: env.STORAGE_SECRET_KEY,
			Bucket:    env.STORAGE_BUCKET,
			Region:    env.STORAGE_REGION,
			Endpoint:  env.STORAGE_ENDPOINT,
			CDNURL:    env.STORAGE_CDN_URL,
			PathStyle: config.GetBool("STORAGE_PATH_STYLE", false),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to configure object storage: %w", err)
		}
		objectStore = s3Store
	} else {
		log.Warn("Object storage is not configured; originals are kept only for the extraction run")
	}

	var ocrClient *services.OCRClient
	if env.OCR_SERVICE_URL != "" {
		ocrClient = services.NewOCRClient(env.OCR_SERVICE_URL)
	}

	publisher, err := events.NewPublisher(env.AMQP_URL, env.AMQP_EXCHANGE)
	if err != nil {
		log.WithError(err).Warn("AMQP unavailable; domain events are dropped")
		publisher = events.NoopPublisher{}
	}

	var generator *services.QuizGenerator
	provider, err := ai.NewProvider(context.Background(), ai.Config{
		Provider:        env.AI_PROVIDER,
		GeminiAPIKey:    env.GEMINI_API_KEY,
		GeminiModel:     env.GEMINI_MODEL,
		InferenceAPIKey: env.DO_INFERENCE_API_KEY,
		InferenceModel:  env.DO_INFERENCE_MODEL,
		InferenceURL:    config.GetString("DO_INFERENCE_URL", ""),
	})
	if err != nil {
		log.WithError(err).Warn("AI provider unavailable; quiz generation and the tutor are disabled")
		provider = nil
	} else {
		generator = services.NewQuizGenerator(provider)
	}

	notifications := services.NewNotificationService(db)
	analytics := services.NewAnalyticsService(db, redisCache)
	documents := services.NewDocumentService(db, services.DocumentServiceConfig{
		Store:         objectStore,
		OCR:           ocrClient,
		Notifications: notifications,
		Publisher:     publisher,
		Workers:       ExtractionWorkers,
	})
	quizzes := services.NewQuizService(db)
	generation := services.NewGenerationService(db, services.GenerationServiceConfig{
		Cache:         redisCache,
		Generator:     generator,
		Documents:     documents,
		Quizzes:       quizzes,
		Notifications: notifications,
		Publisher:     publisher,
		Defaults: services.GenerationDefaults{
			QuestionCount:    env.QUIZ_DEFAULT_QUESTIONS,
			MaxQuestions:     env.QUIZ_MAX_QUESTIONS,
			TimeLimitSeconds: env.QUIZ_DEFAULT_TIME_LIMIT,
		},
		Workers: GenerationWorkers,
	})
	attempts := services.NewAttemptService(db, redisCache, notifications, publisher)

	svc := &router.Services{
		DB:            db,
		Cache:         redisCache,
		JWT:           jwtManager,
		Blacklist:     auth.NewBlacklistService(db),
		Documents:     documents,
		Generation:    generation,
		Quizzes:       quizzes,
		Attempts:      attempts,
		Analytics:     analytics,
		Tutor:         services.NewTutorService(db, provider, attempts),
		Notifications: notifications,
	}

	shutdown := func(ctx context.Context) {
		if err := generation.Shutdown(ctx); err != nil {
			log.WithError(err).Warn("Generation workers did not finish before shutdown")
		}
		if err := documents.Shutdown(ctx); err != nil {
			log.WithError(err).Warn("Extraction workers did not finish before shutdown")
		}
		if err := publisher.Close(); err != nil {
			log.WithError(err).Warn("Failed to close event publisher")
		}
	}

	return svc, shutdown, nil
}
