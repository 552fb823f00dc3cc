package admin

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/studyquiz-api/database"
	"github.com/sahilchouksey/studyquiz-api/model"
	"github.com/sahilchouksey/studyquiz-api/utils/auth"
	"github.com/sahilchouksey/studyquiz-api/utils/middleware"
	"github.com/sahilchouksey/studyquiz-api/utils/response"
	"gorm.io/gorm"
)

// sortableUserColumns whitelists the ORDER BY columns accepted from clients
var sortableUserColumns = map[string]bool{
	"created_at":    true,
	"last_login_at": true,
	"name":          true,
	"email":         true,
}

// ListUsersRequest represents the query parameters for listing users
type ListUsersRequest struct {
	Role    string `query:"role"`
	Search  string `query:"search"`
	Sort    string `query:"sort"`
	SortDir string `query:"sort_dir"`
}

// UpdateUserRequest represents the request body for updating a user
type UpdateUserRequest struct {
	Name *string `json:"name"`
	Role *string `json:"role"`
}

// ResetPasswordRequest represents the request for admin password reset
type ResetPasswordRequest struct {
	NewPassword string `json:"new_password"`
}

// UserStudyStats summarizes what a user has done on the platform
type UserStudyStats struct {
	Documents     int64   `json:"documents"`
	Quizzes       int64   `json:"quizzes"`
	Attempts      int64   `json:"attempts"`
	AverageScore  float64 `json:"average_score"`
	TutorSessions int64   `json:"tutor_sessions"`
}

// userOrder builds a safe ORDER BY clause from client input
func userOrder(sort, dir string) string {
	if !sortableUserColumns[sort] {
		sort = "created_at"
	}
	if dir != "asc" {
		dir = "desc"
	}
	return sort + " " + dir
}

// ListUsers retrieves all users with pagination and filters
// GET /admin/users
func ListUsers(c *fiber.Ctx, store database.Storage) error {
	db, ok := store.GetDB().(*gorm.DB)
	if !ok {
		return response.InternalServerError(c, "Database connection error")
	}

	var req ListUsersRequest
	if err := c.QueryParser(&req); err != nil {
		return response.BadRequest(c, "Invalid query parameters")
	}
	page, limit, offset := response.ParsePagination(c, 20)

	query := db.WithContext(c.UserContext()).Model(&model.User{})
	if req.Role != "" {
		query = query.Where("role = ?", req.Role)
	}
	if req.Search != "" {
		searchTerm := "%" + strings.ToLower(req.Search) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(email) LIKE ?", searchTerm, searchTerm)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return response.InternalServerError(c, "Failed to count users")
	}

	var users []model.User
	if err := query.Offset(offset).Limit(limit).Order(userOrder(req.Sort, req.SortDir)).Find(&users).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch users")
	}

	return response.Paginated(c, users, response.CalculatePagination(page, limit, total))
}

// GetUser retrieves a specific user with study statistics
// GET /admin/users/:id
func GetUser(c *fiber.Ctx, store database.Storage) error {
	db, ok := store.GetDB().(*gorm.DB)
	if !ok {
		return response.InternalServerError(c, "Database connection error")
	}

	userID, ok := response.ParamID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid user ID")
	}
	db = db.WithContext(c.UserContext())

	var user model.User
	if err := db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.NotFound(c, "User not found")
		}
		return response.InternalServerError(c, "Failed to fetch user")
	}

	var stats UserStudyStats
	db.Model(&model.Document{}).Where("user_id = ?", userID).Count(&stats.Documents)
	db.Model(&model.Quiz{}).Where("user_id = ?", userID).Count(&stats.Quizzes)
	db.Model(&model.QuizAttempt{}).Where("user_id = ? AND status = ?", userID, model.AttemptStatusSubmitted).Count(&stats.Attempts)
	db.Model(&model.QuizAttempt{}).
		Where("user_id = ? AND status = ?", userID, model.AttemptStatusSubmitted).
		Select("COALESCE(ROUND(AVG(score)::numeric, 2), 0)").
		Scan(&stats.AverageScore)
	db.Model(&model.TutorSession{}).Where("user_id = ?", userID).Count(&stats.TutorSessions)

	return response.Success(c, fiber.Map{
		"user":  user,
		"stats": stats,
	})
}

// UpdateUser updates a user's name or role
// PATCH /admin/users/:id
func UpdateUser(c *fiber.Ctx, store database.Storage) error {
	db, ok := store.GetDB().(*gorm.DB)
	if !ok {
		return response.InternalServerError(c, "Database connection error")
	}

	userID, ok := response.ParamID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid user ID")
	}

	var req UpdateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	updates := make(map[string]interface{})
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return response.BadRequest(c, "Name cannot be empty")
		}
		updates["name"] = name
	}
	if req.Role != nil {
		if *req.Role != model.RoleStudent && *req.Role != model.RoleAdmin {
			return response.BadRequest(c, "Role must be student or admin")
		}
		if adminID, _ := middleware.GetUserID(c); adminID == userID && *req.Role != model.RoleAdmin {
			return response.BadRequest(c, "Cannot remove your own admin role")
		}
		updates["role"] = *req.Role
	}

	db = db.WithContext(c.UserContext())
	var user model.User
	if err := db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.NotFound(c, "User not found")
		}
		return response.InternalServerError(c, "Failed to fetch user")
	}

	if len(updates) > 0 {
		if err := db.Model(&user).Updates(updates).Error; err != nil {
			return response.InternalServerError(c, "Failed to update user")
		}
	}

	return response.SuccessWithMessage(c, "User updated successfully", user)
}

// DeleteUser soft deletes a user
// DELETE /admin/users/:id
func DeleteUser(c *fiber.Ctx, store database.Storage) error {
	db, ok := store.GetDB().(*gorm.DB)
	if !ok {
		return response.InternalServerError(c, "Database connection error")
	}

	userID, ok := response.ParamID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid user ID")
	}
	if adminID, _ := middleware.GetUserID(c); adminID == userID {
		return response.BadRequest(c, "Cannot delete your own account")
	}

	result := db.WithContext(c.UserContext()).Delete(&model.User{}, userID)
	if result.Error != nil {
		return response.InternalServerError(c, "Failed to delete user")
	}
	if result.RowsAffected == 0 {
		return response.NotFound(c, "User not found")
	}

	return response.SuccessWithMessage(c, "User deleted successfully", fiber.Map{"user_id": userID})
}

// ResetUserPassword sets a new password and invalidates every session
// POST /admin/users/:id/reset-password
func ResetUserPassword(c *fiber.Ctx, store database.Storage) error {
	db, ok := store.GetDB().(*gorm.DB)
	if !ok {
		return response.InternalServerError(c, "Database connection error")
	}

	userID, ok := response.ParamID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid user ID")
	}

	var req ResetPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := auth.ValidatePassword(req.NewPassword); err != nil {
		return response.BadRequest(c, err.Error())
	}

	hashedPassword, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		return response.InternalServerError(c, "Failed to hash password")
	}

	result := db.WithContext(c.UserContext()).Model(&model.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
		"password_hash": hashedPassword,
		"token_version": gorm.Expr("token_version + 1"),
	})
	if result.Error != nil {
		return response.InternalServerError(c, "Failed to update password")
	}
	if result.RowsAffected == 0 {
		return response.NotFound(c, "User not found")
	}

	return response.SuccessWithMessage(c, "Password reset successfully; all user sessions have been invalidated", fiber.Map{"user_id": userID})
}
