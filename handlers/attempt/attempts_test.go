package attempt

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/studyquiz-api/model"
	"github.com/sahilchouksey/studyquiz-api/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttemptErrorMapping(t *testing.T) {
	result := &services.AttemptResult{Attempt: model.QuizAttempt{ID: 7, Score: 40}}

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"incomplete", &services.IncompleteAnswersError{MissingQuestionIDs: []uint{4, 9}}, fiber.StatusUnprocessableEntity, "INCOMPLETE_ANSWERS"},
		{"expired", &services.AttemptExpiredError{Result: result}, fiber.StatusGone, "ATTEMPT_EXPIRED"},
		{"not found", services.ErrAttemptNotFound, fiber.StatusNotFound, "NOT_FOUND"},
		{"quiz not found", services.ErrQuizNotFound, fiber.StatusNotFound, "NOT_FOUND"},
		{"double submit", services.ErrAttemptSubmitted, fiber.StatusConflict, "ATTEMPT_SUBMITTED"},
		{"result too early", services.ErrAttemptInProgress, fiber.StatusConflict, "ATTEMPT_IN_PROGRESS"},
		{"bad answer", fmt.Errorf("%w: question 12 is not part of this quiz", services.ErrInvalidAnswer), fiber.StatusBadRequest, "BAD_REQUEST"},
		{"empty quiz", services.ErrQuizHasNoQuestions, fiber.StatusUnprocessableEntity, "QUIZ_EMPTY"},
		{"unknown", errors.New("connection reset"), fiber.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/", func(c *fiber.Ctx) error { return attemptError(c, tt.err, "failed") })

			resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			errBody := body["error"].(map[string]interface{})
			assert.Equal(t, tt.wantCode, errBody["code"])
		})
	}
}

func TestAttemptErrorMapping_IncompleteDetails(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return attemptError(c, &services.IncompleteAnswersError{MissingQuestionIDs: []uint{4, 9}}, "failed")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)

	var body struct {
		Error struct {
			Details struct {
				MissingQuestionIDs []uint `json:"missing_question_ids"`
			} `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, []uint{4, 9}, body.Error.Details.MissingQuestionIDs)
}

func TestAttemptErrorMapping_ExpiredCarriesResult(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return attemptError(c, &services.AttemptExpiredError{Result: &services.AttemptResult{
			Attempt: model.QuizAttempt{ID: 7, Score: 40, SubmitReason: model.SubmitReasonTimeout},
		}}, "failed")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusGone, resp.StatusCode)

	var body struct {
		Data services.AttemptResult `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, uint(7), body.Data.Attempt.ID)
	assert.Equal(t, model.SubmitReasonTimeout, body.Data.Attempt.SubmitReason)
}

func TestHandlersRejectAnonymousAndBadIDs(t *testing.T) {
	h := NewAttemptHandler(nil)
	app := fiber.New()
	app.Get("/anon/:id", h.GetAttempt)
	app.Get("/authed/:id", func(c *fiber.Ctx) error {
		c.Locals("user_id", uint(1))
		return h.GetAttempt(c)
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/anon/1", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/authed/abc", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
