package quiz

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/studyquiz-api/services"
	"github.com/sahilchouksey/studyquiz-api/utils"
	"github.com/sahilchouksey/studyquiz-api/utils/middleware"
	"github.com/sahilchouksey/studyquiz-api/utils/response"
	"github.com/sahilchouksey/studyquiz-api/utils/validation"
)

// QuizHandler handles quiz CRUD and generation requests
type QuizHandler struct {
	validator         *validation.Validator
	quizService       *services.QuizService
	generationService *services.GenerationService
	attemptService    *services.AttemptService
}

// NewQuizHandler creates a new quiz handler
func NewQuizHandler(quizService *services.QuizService, generationService *services.GenerationService, attemptService *services.AttemptService) *QuizHandler {
	return &QuizHandler{
		validator:         validation.NewValidator(),
		quizService:       quizService,
		generationService: generationService,
		attemptService:    attemptService,
	}
}

// ListQuizzes handles GET /api/v1/quizzes
func (h *QuizHandler) ListQuizzes(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	page, limit, offset := response.ParsePagination(c, 20)
	quizzes, total, err := h.quizService.ListQuizzes(c.UserContext(), userID, response.QueryID(c, "document_id"), limit, offset)
	if err != nil {
		utils.WithRequest(c).WithError(err).Error("Failed to list quizzes")
		return response.InternalServerError(c, "Failed to fetch quizzes")
	}

	return response.Paginated(c, quizzes, response.CalculatePagination(page, limit, total))
}

// GetQuiz handles GET /api/v1/quizzes/:id. The answer key is only included
// with ?include_answers=true.
func (h *QuizHandler) GetQuiz(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}
	id, ok := response.ParamID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid quiz ID")
	}

	quiz, err := h.quizService.GetQuiz(c.UserContext(), id, userID)
	if err != nil {
		return quizError(c, err, "Failed to fetch quiz")
	}

	if c.QueryBool("include_answers") {
		return response.Success(c, quiz)
	}
	return response.Success(c, services.NewQuizView(quiz))
}

// CreateQuiz handles POST /api/v1/quizzes
func (h *QuizHandler) CreateQuiz(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	var req services.CreateQuizRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if errs := h.validator.Validate(&req); errs != nil {
		return response.ValidationError(c, errs)
	}

	quiz, dropped, err := h.quizService.CreateManualQuiz(c.UserContext(), userID, req)
	if err != nil {
		return quizError(c, err, "Failed to create quiz")
	}
	middleware.SetActivityResource(c, quiz.ID, nil)

	return response.Created(c, fiber.Map{
		"quiz":              quiz,
		"dropped_questions": dropped,
	})
}

// UpdateQuiz handles PATCH /api/v1/quizzes/:id
func (h *QuizHandler) UpdateQuiz(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}
	id, ok := response.ParamID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid quiz ID")
	}

	var req services.UpdateQuizRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if errs := h.validator.Validate(&req); errs != nil {
		return response.ValidationError(c, errs)
	}

	quiz, err := h.quizService.UpdateQuiz(c.UserContext(), id, userID, req)
	if err != nil {
		return quizError(c, err, "Failed to update quiz")
	}

	return response.Success(c, services.NewQuizView(quiz))
}

// DeleteQuiz handles DELETE /api/v1/quizzes/:id
func (h *QuizHandler) DeleteQuiz(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}
	id, ok := response.ParamID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid quiz ID")
	}

	if err := h.quizService.DeleteQuiz(c.UserContext(), id, userID); err != nil {
		return quizError(c, err, "Failed to delete quiz")
	}

	return response.SuccessWithMessage(c, "Quiz deleted successfully", nil)
}

// GetQuizHistory handles GET /api/v1/quizzes/:id/history
func (h *QuizHandler) GetQuizHistory(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}
	id, ok := response.ParamID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid quiz ID")
	}

	history, err := h.attemptService.GetQuizHistory(c.UserContext(), id, userID)
	if err != nil {
		return quizError(c, err, "Failed to fetch quiz history")
	}

	return response.Success(c, history)
}

func quizError(c *fiber.Ctx, err error, fallback string) error {
	switch {
	case errors.Is(err, services.ErrQuizNotFound):
		return response.NotFound(c, "Quiz not found")
	case errors.Is(err, services.ErrDocumentNotFound):
		return response.NotFound(c, "Document not found")
	case errors.Is(err, services.ErrJobNotFound):
		return response.NotFound(c, "Generation job not found")
	case errors.Is(err, services.ErrInvalidQuiz), errors.Is(err, services.ErrInvalidTimeLimit):
		return response.BadRequest(c, err.Error())
	case errors.Is(err, services.ErrNoUsableQuestions):
		return response.UnprocessableEntity(c, err.Error(), "NO_USABLE_QUESTIONS", nil)
	case errors.Is(err, services.ErrGenerationInProgress):
		return response.Conflict(c, err.Error())
	case errors.Is(err, services.ErrGeneratorUnavailable), errors.Is(err, services.ErrRunnerStopped):
		return response.ServiceUnavailable(c, err.Error())
	}
	utils.WithRequest(c).WithError(err).Error(fallback)
	return response.InternalServerError(c, fallback)
}
