package middleware

import (
	"encoding/json"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/studyquiz-api/model"
	"github.com/sahilchouksey/studyquiz-api/utils"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Locals keys a handler may set to enrich the activity entry
const (
	ActivityResourceIDKey = "activity_resource_id"
	ActivityMetadataKey   = "activity_metadata"
)

// SetActivityResource lets a handler report the id of the row it created
func SetActivityResource(c *fiber.Ctx, id uint, metadata map[string]interface{}) {
	c.Locals(ActivityResourceIDKey, id)
	if metadata != nil {
		c.Locals(ActivityMetadataKey, metadata)
	}
}

// TrackActivity records a user_activities row after a successful request.
// It must run after AuthMiddleware.Required.
func TrackActivity(db *gorm.DB, activityType model.ActivityType, resourceType string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()
		if err != nil || c.Response().StatusCode() >= fiber.StatusBadRequest {
			return err
		}

		userID, ok := GetUserID(c)
		if !ok {
			return nil
		}

		var resourceID uint
		if id, ok := c.Locals(ActivityResourceIDKey).(uint); ok {
			resourceID = id
		} else if param := c.Params("id"); param != "" {
			if parsed, perr := strconv.ParseUint(param, 10, 32); perr == nil {
				resourceID = uint(parsed)
			}
		}

		var metadata datatypes.JSON
		if meta, ok := c.Locals(ActivityMetadataKey).(map[string]interface{}); ok {
			if raw, merr := json.Marshal(meta); merr == nil {
				metadata = raw
			}
		}

		// Fiber recycles the context once the handler returns
		activity := model.UserActivity{
			UserID:       userID,
			ActivityType: activityType,
			ResourceType: resourceType,
			ResourceID:   resourceID,
			Metadata:     metadata,
			IPAddress:    c.IP(),
			UserAgent:    string(c.Request().Header.UserAgent()),
		}

		go func() {
			if cerr := db.Create(&activity).Error; cerr != nil {
				utils.WithComponent("Activity").WithError(cerr).Warn("Failed to record user activity")
			}
		}()

		return nil
	}
}
