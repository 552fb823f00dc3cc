package attempt

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/studyquiz-api/model"
	"github.com/sahilchouksey/studyquiz-api/services"
	"github.com/sahilchouksey/studyquiz-api/utils"
	"github.com/sahilchouksey/studyquiz-api/utils/middleware"
	"github.com/sahilchouksey/studyquiz-api/utils/response"
)

// AttemptHandler handles quiz-taking requests
type AttemptHandler struct {
	attemptService *services.AttemptService
}

// NewAttemptHandler creates a new attempt handler
func NewAttemptHandler(attemptService *services.AttemptService) *AttemptHandler {
	return &AttemptHandler{attemptService: attemptService}
}

// StartAttempt handles POST /api/v1/quizzes/:id/attempts. An unexpired
// in-progress attempt is resumed with 200; a new one answers 201.
func (h *AttemptHandler) StartAttempt(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}
	quizID, ok := response.ParamID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid quiz ID")
	}

	view, err := h.attemptService.StartAttempt(c.UserContext(), quizID, userID)
	if err != nil {
		return attemptError(c, err, "Failed to start attempt")
	}
	middleware.SetActivityResource(c, view.ID, map[string]interface{}{"quiz_id": quizID, "resumed": view.Resumed})

	if view.Resumed {
		return response.SuccessWithMessage(c, "Attempt resumed", view)
	}
	return response.Created(c, view)
}

// ListAttempts handles GET /api/v1/attempts
func (h *AttemptHandler) ListAttempts(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	status := c.Query("status")
	if status != "" && status != string(model.AttemptStatusInProgress) && status != string(model.AttemptStatusSubmitted) {
		return response.BadRequest(c, "status must be in_progress or submitted")
	}

	page, limit, offset := response.ParsePagination(c, 20)
	attempts, total, err := h.attemptService.ListAttempts(c.UserContext(), services.ListAttemptsOptions{
		UserID: userID,
		QuizID: response.QueryID(c, "quiz_id"),
		Status: status,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return attemptError(c, err, "Failed to fetch attempts")
	}

	return response.Paginated(c, attempts, response.CalculatePagination(page, limit, total))
}

// GetAttempt handles GET /api/v1/attempts/:id
func (h *AttemptHandler) GetAttempt(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}
	id, ok := response.ParamID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid attempt ID")
	}

	view, err := h.attemptService.GetAttempt(c.UserContext(), id, userID)
	if err != nil {
		return attemptError(c, err, "Failed to fetch attempt")
	}

	return response.Success(c, view)
}

// SaveProgress handles PUT /api/v1/attempts/:id/progress
func (h *AttemptHandler) SaveProgress(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}
	id, ok := response.ParamID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid attempt ID")
	}

	var req services.SaveProgressRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	view, err := h.attemptService.SaveProgress(c.UserContext(), id, userID, req)
	if err != nil {
		return attemptError(c, err, "Failed to save progress")
	}

	return response.Success(c, view)
}

// SubmitAttempt handles POST /api/v1/attempts/:id/submit
func (h *AttemptHandler) SubmitAttempt(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}
	id, ok := response.ParamID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid attempt ID")
	}

	var req services.SubmitAttemptRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return response.BadRequest(c, "Invalid request body")
		}
	}

	result, err := h.attemptService.SubmitAttempt(c.UserContext(), id, userID, req)
	if err != nil {
		return attemptError(c, err, "Failed to submit attempt")
	}
	middleware.SetActivityResource(c, id, map[string]interface{}{
		"quiz_id": result.Attempt.QuizID,
		"score":   result.Attempt.Score,
		"reason":  result.Attempt.SubmitReason,
	})

	return response.SuccessWithMessage(c, "Attempt submitted", result)
}

// GetResult handles GET /api/v1/attempts/:id/result
func (h *AttemptHandler) GetResult(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}
	id, ok := response.ParamID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid attempt ID")
	}

	result, err := h.attemptService.GetResult(c.UserContext(), id, userID)
	if err != nil {
		return attemptError(c, err, "Failed to fetch result")
	}

	return response.Success(c, result)
}

func attemptError(c *fiber.Ctx, err error, fallback string) error {
	var incomplete *services.IncompleteAnswersError
	if errors.As(err, &incomplete) {
		return response.UnprocessableEntity(c, services.ErrIncompleteAnswers.Error(), "INCOMPLETE_ANSWERS", fiber.Map{
			"missing_question_ids": incomplete.MissingQuestionIDs,
		})
	}

	var expired *services.AttemptExpiredError
	if errors.As(err, &expired) {
		return response.Gone(c, "The time limit has passed and the attempt was submitted", "ATTEMPT_EXPIRED", expired.Result)
	}

	switch {
	case errors.Is(err, services.ErrAttemptNotFound):
		return response.NotFound(c, "Attempt not found")
	case errors.Is(err, services.ErrQuizNotFound):
		return response.NotFound(c, "Quiz not found")
	case errors.Is(err, services.ErrAttemptSubmitted):
		return response.Error(c, fiber.StatusConflict, err.Error(), "ATTEMPT_SUBMITTED")
	case errors.Is(err, services.ErrAttemptInProgress):
		return response.Error(c, fiber.StatusConflict, err.Error(), "ATTEMPT_IN_PROGRESS")
	case errors.Is(err, services.ErrInvalidAnswer):
		return response.BadRequest(c, err.Error())
	case errors.Is(err, services.ErrQuizHasNoQuestions):
		return response.UnprocessableEntity(c, err.Error(), "QUIZ_EMPTY", nil)
	}
	utils.WithRequest(c).WithError(err).Error(fallback)
	return response.InternalServerError(c, fallback)
}
