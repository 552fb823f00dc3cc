package auth

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/studyquiz-api/model"
	"github.com/sahilchouksey/studyquiz-api/utils"
	authutil "github.com/sahilchouksey/studyquiz-api/utils/auth"
	"github.com/sahilchouksey/studyquiz-api/utils/response"
)

// LoginRequest represents a user login request
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Login handles user login
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if errs := h.validator.Validate(&req); errs != nil {
		return response.ValidationError(c, errs)
	}

	ip := c.IP()
	ctx := c.UserContext()

	// Find user by email
	var user model.User
	if err := h.db.WithContext(ctx).Where("email = ?", req.Email).First(&user).Error; err != nil {
		// Record failed attempt even if user not found
		if h.bruteForceProtection != nil {
			_ = h.bruteForceProtection.RecordFailedAttempt(ctx, ip, req.Email)
		}
		return response.Unauthorized(c, "Invalid email or password")
	}

	// Verify password
	if err := authutil.VerifyPassword(user.PasswordHash, req.Password); err != nil {
		if h.bruteForceProtection != nil {
			_ = h.bruteForceProtection.RecordFailedAttempt(ctx, ip, req.Email)
		}
		return response.Unauthorized(c, "Invalid email or password")
	}

	// Clear failed attempts on successful login
	if h.bruteForceProtection != nil {
		_ = h.bruteForceProtection.RecordSuccessfulAttempt(ctx, ip)
	}

	now := time.Now()
	user.LastLoginAt = &now
	if err := h.db.WithContext(ctx).Model(&user).Update("last_login_at", now).Error; err != nil {
		utils.WithRequest(c).WithError(err).Warn("Failed to record last login")
	}

	pair, err := h.jwtManager.GeneratePair(user.ID, user.Email, user.Role, user.TokenVersion)
	if err != nil {
		return response.InternalServerError(c, "Failed to generate tokens")
	}

	if h.analytics != nil {
		if err := h.analytics.LogActivity(ctx, user.ID, model.ActivityTypeLogin, "user", user.ID, ip, string(c.Request().Header.UserAgent())); err != nil {
			utils.WithRequest(c).WithError(err).Warn("Failed to log login activity")
		}
	}

	return response.Success(c, AuthResponse{User: NewUserResponse(&user), TokenPair: *pair})
}
