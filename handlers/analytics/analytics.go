package analytics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/studyquiz-api/model"
	"github.com/sahilchouksey/studyquiz-api/services"
	"github.com/sahilchouksey/studyquiz-api/utils"
	"github.com/sahilchouksey/studyquiz-api/utils/middleware"
	"github.com/sahilchouksey/studyquiz-api/utils/response"
)

// AnalyticsHandler handles progress and reporting requests
type AnalyticsHandler struct {
	analyticsService *services.AnalyticsService
}

// NewAnalyticsHandler creates a new analytics handler
func NewAnalyticsHandler(analyticsService *services.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{analyticsService: analyticsService}
}

var activityTypes = map[model.ActivityType]bool{
	model.ActivityTypeLogin:          true,
	model.ActivityTypeDocumentUpload: true,
	model.ActivityTypeQuizGenerate:   true,
	model.ActivityTypeAttemptStart:   true,
	model.ActivityTypeAttemptSubmit:  true,
	model.ActivityTypeTutorMessage:   true,
}

// GetDashboard handles GET /api/v1/analytics/dashboard
func (h *AnalyticsHandler) GetDashboard(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	dashboard, err := h.analyticsService.GetDashboard(c.UserContext(), userID)
	if err != nil {
		utils.WithRequest(c).WithError(err).Error("Failed to build dashboard")
		return response.InternalServerError(c, "Failed to fetch dashboard")
	}

	return response.Success(c, dashboard)
}

// GetScoreTrend handles GET /api/v1/analytics/trend?days=30
func (h *AnalyticsHandler) GetScoreTrend(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	days := c.QueryInt("days", services.DefaultTrendDays)
	trend, err := h.analyticsService.GetScoreTrend(c.UserContext(), userID, days)
	if err != nil {
		utils.WithRequest(c).WithError(err).Error("Failed to build score trend")
		return response.InternalServerError(c, "Failed to fetch score trend")
	}

	return response.Success(c, trend)
}

// GetTopicAccuracy handles GET /api/v1/analytics/topics
func (h *AnalyticsHandler) GetTopicAccuracy(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	topics, err := h.analyticsService.GetTopicAccuracy(c.UserContext(), userID)
	if err != nil {
		utils.WithRequest(c).WithError(err).Error("Failed to compute topic accuracy")
		return response.InternalServerError(c, "Failed to fetch topic accuracy")
	}

	return response.Success(c, topics)
}

// GetImprovement handles GET /api/v1/analytics/improvement
func (h *AnalyticsHandler) GetImprovement(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	improvement, err := h.analyticsService.GetImprovement(c.UserContext(), userID)
	if err != nil {
		utils.WithRequest(c).WithError(err).Error("Failed to compute improvement")
		return response.InternalServerError(c, "Failed to fetch improvement")
	}

	return response.Success(c, improvement)
}

// GetActivity handles GET /api/v1/analytics/activity?days=30&type=attempt_submit
func (h *AnalyticsHandler) GetActivity(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	return h.activity(c, userID)
}

// GetPlatformStats handles GET /api/v1/admin/stats
func (h *AnalyticsHandler) GetPlatformStats(c *fiber.Ctx) error {
	stats, err := h.analyticsService.GetPlatformStats(c.UserContext())
	if err != nil {
		utils.WithRequest(c).WithError(err).Error("Failed to compute platform stats")
		return response.InternalServerError(c, "Failed to fetch platform stats")
	}

	return response.Success(c, stats)
}

// GetPlatformActivity handles GET /api/v1/admin/stats/activity across all users
func (h *AnalyticsHandler) GetPlatformActivity(c *fiber.Ctx) error {
	return h.activity(c, 0)
}

func (h *AnalyticsHandler) activity(c *fiber.Ctx, userID uint) error {
	activityType := model.ActivityType(c.Query("type"))
	if activityType != "" && !activityTypes[activityType] {
		return response.BadRequest(c, "Unknown activity type")
	}

	days := c.QueryInt("days", services.DefaultTrendDays)
	if days > services.MaxTrendDays {
		days = services.MaxTrendDays
	}

	series, err := h.analyticsService.GetActivityTimeSeries(c.UserContext(), userID, days, activityType)
	if err != nil {
		utils.WithRequest(c).WithError(err).Error("Failed to build activity series")
		return response.InternalServerError(c, "Failed to fetch activity")
	}

	return response.Success(c, series)
}
