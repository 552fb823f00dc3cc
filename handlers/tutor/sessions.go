package tutor

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/studyquiz-api/services"
	"github.com/sahilchouksey/studyquiz-api/utils"
	"github.com/sahilchouksey/studyquiz-api/utils/middleware"
	"github.com/sahilchouksey/studyquiz-api/utils/response"
	"github.com/sahilchouksey/studyquiz-api/utils/validation"
)

// TutorHandler handles AI tutor sessions and messages
type TutorHandler struct {
	validator    *validation.Validator
	tutorService *services.TutorService
}

// NewTutorHandler creates a new tutor handler
func NewTutorHandler(tutorService *services.TutorService) *TutorHandler {
	return &TutorHandler{
		validator:    validation.NewValidator(),
		tutorService: tutorService,
	}
}

// CreateSessionRequest represents the request body for creating a session
type CreateSessionRequest struct {
	DocumentID *uint  `json:"document_id"`
	AttemptID  *uint  `json:"attempt_id"`
	Title      string `json:"title" validate:"max=255"`
}

// UpdateSessionRequest archives or restores a session
type UpdateSessionRequest struct {
	IsArchived *bool `json:"is_archived" validate:"required"`
}

// SendMessageRequest represents the request body for sending a message
type SendMessageRequest struct {
	Content string `json:"content" validate:"required"`
}

// CreateSession handles POST /api/v1/tutor/sessions
func (h *TutorHandler) CreateSession(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	var req CreateSessionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return response.BadRequest(c, "Invalid request body")
		}
	}
	if errs := h.validator.Validate(&req); errs != nil {
		return response.ValidationError(c, errs)
	}

	session, err := h.tutorService.CreateSession(c.UserContext(), services.CreateTutorSessionRequest{
		UserID:     userID,
		DocumentID: req.DocumentID,
		AttemptID:  req.AttemptID,
		Title:      req.Title,
	})
	if err != nil {
		return tutorError(c, err, "Failed to create session")
	}

	return response.Created(c, session)
}

// ListSessions handles GET /api/v1/tutor/sessions
func (h *TutorHandler) ListSessions(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	page, limit, offset := response.ParsePagination(c, 20)
	sessions, total, err := h.tutorService.ListSessions(c.UserContext(), userID, c.QueryBool("include_archived"), limit, offset)
	if err != nil {
		return tutorError(c, err, "Failed to fetch sessions")
	}

	return response.Paginated(c, sessions, response.CalculatePagination(page, limit, total))
}

// GetSession handles GET /api/v1/tutor/sessions/:id. The first page of
// messages is embedded; later pages come from GetMessages.
func (h *TutorHandler) GetSession(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}
	id, ok := response.ParamID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid session ID")
	}

	session, err := h.tutorService.GetSession(c.UserContext(), id, userID)
	if err != nil {
		return tutorError(c, err, "Failed to fetch session")
	}

	page, limit, offset := response.ParsePagination(c, 50)
	messages, total, err := h.tutorService.GetSessionMessages(c.UserContext(), id, userID, limit, offset)
	if err != nil {
		return tutorError(c, err, "Failed to fetch messages")
	}

	return response.Success(c, fiber.Map{
		"session":    session,
		"messages":   messages,
		"pagination": response.CalculatePagination(page, limit, total),
	})
}

// GetMessages handles GET /api/v1/tutor/sessions/:id/messages
func (h *TutorHandler) GetMessages(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}
	id, ok := response.ParamID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid session ID")
	}

	page, limit, offset := response.ParsePagination(c, 50)
	messages, total, err := h.tutorService.GetSessionMessages(c.UserContext(), id, userID, limit, offset)
	if err != nil {
		return tutorError(c, err, "Failed to fetch messages")
	}

	return response.Paginated(c, messages, response.CalculatePagination(page, limit, total))
}

// UpdateSession handles PATCH /api/v1/tutor/sessions/:id
func (h *TutorHandler) UpdateSession(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}
	id, ok := response.ParamID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid session ID")
	}

	var req UpdateSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if errs := h.validator.Validate(&req); errs != nil {
		return response.ValidationError(c, errs)
	}

	session, err := h.tutorService.SetArchived(c.UserContext(), id, userID, *req.IsArchived)
	if err != nil {
		return tutorError(c, err, "Failed to update session")
	}

	return response.Success(c, session)
}

// DeleteSession handles DELETE /api/v1/tutor/sessions/:id
func (h *TutorHandler) DeleteSession(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}
	id, ok := response.ParamID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid session ID")
	}

	if err := h.tutorService.DeleteSession(c.UserContext(), id, userID); err != nil {
		return tutorError(c, err, "Failed to delete session")
	}

	return response.SuccessWithMessage(c, "Session deleted successfully", nil)
}

func tutorError(c *fiber.Ctx, err error, fallback string) error {
	switch {
	case errors.Is(err, services.ErrSessionNotFound):
		return response.NotFound(c, "Session not found")
	case errors.Is(err, services.ErrDocumentNotFound):
		return response.NotFound(c, "Document not found")
	case errors.Is(err, services.ErrAttemptNotFound):
		return response.NotFound(c, "Attempt not found")
	case errors.Is(err, services.ErrSessionArchived):
		return response.Conflict(c, err.Error())
	case errors.Is(err, services.ErrEmptyMessage), errors.Is(err, services.ErrMessageTooLong):
		return response.BadRequest(c, err.Error())
	case errors.Is(err, services.ErrTutorUnavailable):
		return response.ServiceUnavailable(c, err.Error())
	}
	utils.WithRequest(c).WithError(err).Error(fallback)
	return response.InternalServerError(c, fallback)
}
