package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sahilchouksey/studyquiz-api/database"
	"github.com/sahilchouksey/studyquiz-api/handlers"
	admin_handlers "github.com/sahilchouksey/studyquiz-api/handlers/admin"
	analytics_handlers "github.com/sahilchouksey/studyquiz-api/handlers/analytics"
	attempt_handlers "github.com/sahilchouksey/studyquiz-api/handlers/attempt"
	auth_handlers "github.com/sahilchouksey/studyquiz-api/handlers/auth"
	document_handlers "github.com/sahilchouksey/studyquiz-api/handlers/document"
	notification_handlers "github.com/sahilchouksey/studyquiz-api/handlers/notification"
	quiz_handlers "github.com/sahilchouksey/studyquiz-api/handlers/quiz"
	tutor_handlers "github.com/sahilchouksey/studyquiz-api/handlers/tutor"
	"github.com/sahilchouksey/studyquiz-api/model"
	"github.com/sahilchouksey/studyquiz-api/services"
	"github.com/sahilchouksey/studyquiz-api/utils/auth"
	"github.com/sahilchouksey/studyquiz-api/utils/cache"
	"github.com/sahilchouksey/studyquiz-api/utils/middleware"
	"gorm.io/gorm"
)

// Rate limits per client IP
const (
	APIRateLimit  = 100
	AuthRateLimit = 10
	RateWindow    = time.Minute
)

// Services carries everything the routes need. Cache may be nil.
type Services struct {
	DB            *gorm.DB
	Cache         *cache.RedisCache
	JWT           *auth.JWTManager
	Blacklist     *auth.BlacklistService
	Documents     *services.DocumentService
	Generation    *services.GenerationService
	Quizzes       *services.QuizService
	Attempts      *services.AttemptService
	Analytics     *services.AnalyticsService
	Tutor         *services.TutorService
	Notifications *services.NotificationService
}

// SetupRoutes registers middleware and every route on app
func SetupRoutes(app *fiber.App, store database.Storage, svc *Services, allowedOrigins string) {
	db := svc.DB

	bruteForceProtection := middleware.NewBruteForceProtection(svc.Cache)
	authMiddleware := middleware.NewAuthMiddleware(svc.JWT, db)

	authHandler := auth_handlers.NewAuthHandler(db, svc.JWT, svc.Blacklist, bruteForceProtection, svc.Analytics)
	documentHandler := document_handlers.NewDocumentHandler(svc.Documents, svc.Generation)
	quizHandler := quiz_handlers.NewQuizHandler(svc.Quizzes, svc.Generation, svc.Attempts)
	attemptHandler := attempt_handlers.NewAttemptHandler(svc.Attempts)
	analyticsHandler := analytics_handlers.NewAnalyticsHandler(svc.Analytics)
	tutorHandler := tutor_handlers.NewTutorHandler(svc.Tutor)
	notificationHandler := notification_handlers.NewNotificationHandler(svc.Notifications)

	middleware.SetupSecurity(app, middleware.SecurityConfig{
		AllowedOrigins:    allowedOrigins,
		RateLimitRequests: APIRateLimit,
		RateLimitWindow:   RateWindow,
	})

	// Public endpoints
	app.Get("/health", func(c *fiber.Ctx) error { return handlers.HandleCheckHealth(c, store, svc.Cache) })
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api/v1")
	authLimiter := middleware.RateLimit(AuthRateLimit, RateWindow)

	// Auth routes
	authGroup := api.Group("/auth")
	authGroup.Post("/register", authLimiter, authHandler.Register)
	authGroup.Post("/login", authLimiter, bruteForceProtection.CheckAndRecordAttempt(), authHandler.Login)
	authGroup.Post("/refresh", authHandler.RefreshToken)
	authGroup.Post("/logout", authMiddleware.Required(), authHandler.Logout)
	authGroup.Post("/logout-all", authMiddleware.Required(), authHandler.LogoutAll)

	// Profile routes
	profile := api.Group("/profile", authMiddleware.Required())
	profile.Get("/", authHandler.GetProfile)
	profile.Patch("/", authHandler.UpdateProfile)
	profile.Post("/change-password", authHandler.ChangePassword)

	// Documents
	documents := api.Group("/documents", authMiddleware.Required())
	documents.Post("/", middleware.TrackActivity(db, model.ActivityTypeDocumentUpload, "document"), documentHandler.UploadDocument)
	documents.Get("/", documentHandler.ListDocuments)
	documents.Get("/:id", documentHandler.GetDocument)
	documents.Delete("/:id", documentHandler.DeleteDocument)
	documents.Post("/:id/retry", documentHandler.RetryExtraction)
	documents.Get("/:id/download", documentHandler.GetDownloadURL)

	// Quizzes and generation jobs; the static paths come before /:id
	quizzes := api.Group("/quizzes", authMiddleware.Required())
	quizzes.Post("/generate", middleware.TrackActivity(db, model.ActivityTypeQuizGenerate, "document"), quizHandler.GenerateQuiz)
	quizzes.Get("/jobs", quizHandler.ListJobs)
	quizzes.Get("/jobs/:id", quizHandler.GetJob)
	quizzes.Get("/jobs/:id/stream", quizHandler.StreamJob)
	quizzes.Get("/", quizHandler.ListQuizzes)
	quizzes.Post("/", quizHandler.CreateQuiz)
	quizzes.Get("/:id", quizHandler.GetQuiz)
	quizzes.Patch("/:id", quizHandler.UpdateQuiz)
	quizzes.Delete("/:id", quizHandler.DeleteQuiz)
	quizzes.Get("/:id/history", quizHandler.GetQuizHistory)
	quizzes.Post("/:id/attempts", middleware.TrackActivity(db, model.ActivityTypeAttemptStart, "attempt"), attemptHandler.StartAttempt)

	// Attempts
	attempts := api.Group("/attempts", authMiddleware.Required())
	attempts.Get("/", attemptHandler.ListAttempts)
	attempts.Get("/:id", attemptHandler.GetAttempt)
	attempts.Put("/:id/progress", attemptHandler.SaveProgress)
	attempts.Post("/:id/submit", middleware.TrackActivity(db, model.ActivityTypeAttemptSubmit, "attempt"), attemptHandler.SubmitAttempt)
	attempts.Get("/:id/result", attemptHandler.GetResult)

	// Progress analytics
	analytics := api.Group("/analytics", authMiddleware.Required())
	analytics.Get("/dashboard", analyticsHandler.GetDashboard)
	analytics.Get("/trend", analyticsHandler.GetScoreTrend)
	analytics.Get("/topics", analyticsHandler.GetTopicAccuracy)
	analytics.Get("/improvement", analyticsHandler.GetImprovement)
	analytics.Get("/activity", analyticsHandler.GetActivity)

	// AI tutor
	tutor := api.Group("/tutor", authMiddleware.Required())
	tutor.Post("/sessions", tutorHandler.CreateSession)
	tutor.Get("/sessions", tutorHandler.ListSessions)
	tutor.Get("/sessions/:id", tutorHandler.GetSession)
	tutor.Patch("/sessions/:id", tutorHandler.UpdateSession)
	tutor.Delete("/sessions/:id", tutorHandler.DeleteSession)
	tutor.Get("/sessions/:id/messages", tutorHandler.GetMessages)
	tutor.Post("/sessions/:id/messages", middleware.TrackActivity(db, model.ActivityTypeTutorMessage, "tutor_session"), tutorHandler.SendMessage)
	tutor.Post("/sessions/:id/messages/stream", middleware.TrackActivity(db, model.ActivityTypeTutorMessage, "tutor_session"), tutorHandler.StreamMessage)

	// Notifications
	notifications := api.Group("/notifications", authMiddleware.Required())
	notifications.Get("/", notificationHandler.GetNotifications)
	notifications.Get("/unread-count", notificationHandler.GetUnreadCount)
	notifications.Post("/read-all", notificationHandler.MarkAllAsRead)
	notifications.Patch("/:id/read", notificationHandler.MarkAsRead)
	notifications.Delete("/:id", notificationHandler.DeleteNotification)
	notifications.Delete("/", notificationHandler.DeleteAllNotifications)

	// Admin
	admin := api.Group("/admin", authMiddleware.RequireAdmin())
	admin.Get("/stats", analyticsHandler.GetPlatformStats)
	admin.Get("/stats/activity", analyticsHandler.GetPlatformActivity)
	admin.Get("/users", func(c *fiber.Ctx) error { return admin_handlers.ListUsers(c, store) })
	admin.Get("/users/:id", func(c *fiber.Ctx) error { return admin_handlers.GetUser(c, store) })
	admin.Patch("/users/:id", func(c *fiber.Ctx) error { return admin_handlers.UpdateUser(c, store) })
	admin.Delete("/users/:id", func(c *fiber.Ctx) error { return admin_handlers.DeleteUser(c, store) })
	admin.Post("/users/:id/reset-password", func(c *fiber.Ctx) error { return admin_handlers.ResetUserPassword(c, store) })
	admin.Get("/cron-logs", func(c *fiber.Ctx) error { return admin_handlers.ListCronJobLogs(c, store) })
	admin.Get("/cron-logs/:id", func(c *fiber.Ctx) error { return admin_handlers.GetCronJobLog(c, store) })
}
