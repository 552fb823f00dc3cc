package admin

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/studyquiz-api/database"
	"github.com/sahilchouksey/studyquiz-api/model"
	"github.com/sahilchouksey/studyquiz-api/utils/response"
	"gorm.io/gorm"
)

// ListCronJobLogs retrieves background job runs with pagination
// GET /admin/cron-logs?job=expire_overdue_attempts&status=failed
func ListCronJobLogs(c *fiber.Ctx, store database.Storage) error {
	db, ok := store.GetDB().(*gorm.DB)
	if !ok {
		return response.InternalServerError(c, "Database connection error")
	}

	page, limit, offset := response.ParsePagination(c, 20)

	query := db.WithContext(c.UserContext()).Model(&model.CronJobLog{})
	if job := c.Query("job"); job != "" {
		query = query.Where("job_name = ?", job)
	}
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return response.InternalServerError(c, "Failed to count cron logs")
	}

	var logs []model.CronJobLog
	if err := query.Offset(offset).Limit(limit).Order("started_at DESC").Find(&logs).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch cron logs")
	}

	return response.Paginated(c, logs, response.CalculatePagination(page, limit, total))
}

// GetCronJobLog retrieves a single job run
// GET /admin/cron-logs/:id
func GetCronJobLog(c *fiber.Ctx, store database.Storage) error {
	db, ok := store.GetDB().(*gorm.DB)
	if !ok {
		return response.InternalServerError(c, "Database connection error")
	}

	id, ok := response.ParamID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid log ID")
	}

	var log model.CronJobLog
	if err := db.WithContext(c.UserContext()).First(&log, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.NotFound(c, "Cron log not found")
		}
		return response.InternalServerError(c, "Failed to fetch cron log")
	}

	return response.Success(c, log)
}
