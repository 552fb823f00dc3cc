package response

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, body io.Reader) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(body).Decode(&out))
	return out
}

func TestEnvelopes(t *testing.T) {
	app := fiber.New()
	app.Get("/ok", func(c *fiber.Ctx) error { return Success(c, fiber.Map{"id": 1}) })
	app.Get("/accepted", func(c *fiber.Ctx) error { return Accepted(c, "queued", fiber.Map{"job_id": "j1"}) })
	app.Get("/incomplete", func(c *fiber.Ctx) error {
		return UnprocessableEntity(c, "Unanswered questions", "INCOMPLETE_ANSWERS",
			fiber.Map{"missing_question_ids": []uint{3, 5}})
	})
	app.Get("/gone", func(c *fiber.Ctx) error { return Gone(c, "expired", "ATTEMPT_EXPIRED", fiber.Map{"score": 50}) })

	resp, err := app.Test(httptest.NewRequest("GET", "/ok", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	body := decode(t, resp.Body)
	assert.Equal(t, true, body["success"])
	assert.NotContains(t, body, "error")

	resp, err = app.Test(httptest.NewRequest("GET", "/accepted", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)
	body = decode(t, resp.Body)
	assert.Equal(t, "queued", body["message"])

	resp, err = app.Test(httptest.NewRequest("GET", "/incomplete", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	body = decode(t, resp.Body)
	errBody := body["error"].(map[string]interface{})
	assert.Equal(t, "INCOMPLETE_ANSWERS", errBody["code"])
	details := errBody["details"].(map[string]interface{})
	assert.Equal(t, []interface{}{float64(3), float64(5)}, details["missing_question_ids"])

	resp, err = app.Test(httptest.NewRequest("GET", "/gone", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusGone, resp.StatusCode)
	body = decode(t, resp.Body)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, float64(50), body["data"].(map[string]interface{})["score"])
}

func TestParsePagination(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		page, limit, offset := ParsePagination(c, 20)
		return c.JSON(fiber.Map{"page": page, "limit": limit, "offset": offset})
	})

	cases := []struct {
		query               string
		page, limit, offset float64
	}{
		{"", 1, 20, 0},
		{"?page=3&limit=10", 3, 10, 20},
		{"?page=0&limit=500", 1, 100, 0},
		{"?limit=-1", 1, 20, 0},
	}
	for _, tc := range cases {
		resp, err := app.Test(httptest.NewRequest("GET", "/"+tc.query, nil))
		require.NoError(t, err)
		body := decode(t, resp.Body)
		assert.Equal(t, tc.page, body["page"], tc.query)
		assert.Equal(t, tc.limit, body["limit"], tc.query)
		assert.Equal(t, tc.offset, body["offset"], tc.query)
	}
}

func TestCalculatePagination(t *testing.T) {
	meta := CalculatePagination(2, 10, 25)
	assert.Equal(t, 3, meta.TotalPages)
	assert.Equal(t, int64(25), meta.Total)

	empty := CalculatePagination(1, 10, 0)
	assert.Equal(t, 0, empty.TotalPages)
}

func TestParamIDAndQueryID(t *testing.T) {
	app := fiber.New()
	app.Get("/items/:id", func(c *fiber.Ctx) error {
		id, ok := ParamID(c, "id")
		if !ok {
			return BadRequest(c, "bad id")
		}
		quizID := QueryID(c, "quiz_id")
		return Success(c, fiber.Map{"id": id, "has_quiz": quizID != nil})
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/items/42?quiz_id=7", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	data := decode(t, resp.Body)["data"].(map[string]interface{})
	assert.Equal(t, float64(42), data["id"])
	assert.Equal(t, true, data["has_quiz"])

	resp, err = app.Test(httptest.NewRequest("GET", "/items/42?quiz_id=x", nil))
	require.NoError(t, err)
	data = decode(t, resp.Body)["data"].(map[string]interface{})
	assert.Equal(t, false, data["has_quiz"])

	for _, bad := range []string{"/items/0", "/items/abc", "/items/-3"} {
		resp, err = app.Test(httptest.NewRequest("GET", bad, nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode, bad)
	}
}
