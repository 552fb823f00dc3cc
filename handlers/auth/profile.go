package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/studyquiz-api/model"
	authutil "github.com/sahilchouksey/studyquiz-api/utils/auth"
	"github.com/sahilchouksey/studyquiz-api/utils/middleware"
	"github.com/sahilchouksey/studyquiz-api/utils/response"
	"gorm.io/gorm"
)

// UpdateProfileRequest represents a profile update request
type UpdateProfileRequest struct {
	Name       *string `json:"name" validate:"omitempty,min=2,max=100"`
	Bio        *string `json:"bio" validate:"omitempty,max=1000"`
	GradeLevel *string `json:"grade_level" validate:"omitempty,max=50"`
}

// ChangePasswordRequest represents a password change request
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=72"`
}

// GetProfile retrieves the current user's profile
func (h *AuthHandler) GetProfile(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "Not authenticated")
	}
	return response.Success(c, NewUserResponse(user))
}

// UpdateProfile updates the current user's profile
func (h *AuthHandler) UpdateProfile(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "Not authenticated")
	}

	var req UpdateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if errs := h.validator.Validate(&req); errs != nil {
		return response.ValidationError(c, errs)
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = strings.TrimSpace(*req.Name)
	}
	if req.Bio != nil {
		updates["bio"] = strings.TrimSpace(*req.Bio)
	}
	if req.GradeLevel != nil {
		updates["grade_level"] = strings.TrimSpace(*req.GradeLevel)
	}

	db := h.db.WithContext(c.UserContext())
	if len(updates) > 0 {
		if err := db.Model(&model.User{}).Where("id = ?", userID).Updates(updates).Error; err != nil {
			return response.InternalServerError(c, "Failed to update profile")
		}
	}

	var user model.User
	if err := db.First(&user, userID).Error; err != nil {
		return response.NotFound(c, "User not found")
	}
	return response.Success(c, NewUserResponse(&user))
}

// ChangePassword verifies the current password, stores the new one and
// invalidates every outstanding token
func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "Not authenticated")
	}

	var req ChangePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if errs := h.validator.Validate(&req); errs != nil {
		return response.ValidationError(c, errs)
	}
	if err := authutil.ValidatePassword(req.NewPassword); err != nil {
		return response.BadRequest(c, err.Error())
	}

	db := h.db.WithContext(c.UserContext())
	var user model.User
	if err := db.First(&user, userID).Error; err != nil {
		return response.NotFound(c, "User not found")
	}

	if err := authutil.VerifyPassword(user.PasswordHash, req.CurrentPassword); err != nil {
		return response.Unauthorized(c, "Current password is incorrect")
	}

	hashed, err := authutil.HashPassword(req.NewPassword)
	if err != nil {
		return response.InternalServerError(c, "Failed to process password")
	}

	if err := db.Model(&model.User{}).Where("id = ?", user.ID).Updates(map[string]interface{}{
		"password_hash": hashed,
		"token_version": gorm.Expr("token_version + 1"),
	}).Error; err != nil {
		return response.InternalServerError(c, "Failed to change password")
	}

	user.TokenVersion++
	pair, err := h.jwtManager.GeneratePair(user.ID, user.Email, user.Role, user.TokenVersion)
	if err != nil {
		return response.InternalServerError(c, "Failed to generate tokens")
	}

	return response.Success(c, AuthResponse{User: NewUserResponse(&user), TokenPair: *pair})
}
