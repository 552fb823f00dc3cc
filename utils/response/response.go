package response

import (
	"github.com/gofiber/fiber/v2"
)

// Response is the envelope every JSON endpoint answers with
type Response struct {
	Success bool         `json:"success"`
	Message string       `json:"message,omitempty"`
	Data    interface{}  `json:"data,omitempty"`
	Error   *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail carries a machine readable code next to the human message
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// fallback messages for helpers called with an empty message
var defaultMessages = map[int]string{
	fiber.StatusUnauthorized:        "Unauthorized access",
	fiber.StatusForbidden:           "Access forbidden",
	fiber.StatusNotFound:            "Resource not found",
	fiber.StatusTooManyRequests:     "Too many requests",
	fiber.StatusInternalServerError: "Internal server error",
	fiber.StatusServiceUnavailable:  "Service temporarily unavailable",
}

func send(c *fiber.Ctx, status int, body Response) error {
	return c.Status(status).JSON(body)
}

func fail(c *fiber.Ctx, status int, code, message string, details, data interface{}) error {
	if message == "" {
		message = defaultMessages[status]
	}
	return send(c, status, Response{
		Data:  data,
		Error: &ErrorDetail{Code: code, Message: message, Details: details},
	})
}

func Success(c *fiber.Ctx, data interface{}) error {
	return send(c, fiber.StatusOK, Response{Success: true, Data: data})
}

func SuccessWithMessage(c *fiber.Ctx, message string, data interface{}) error {
	return send(c, fiber.StatusOK, Response{Success: true, Message: message, Data: data})
}

func Created(c *fiber.Ctx, data interface{}) error {
	return send(c, fiber.StatusCreated, Response{Success: true, Message: "Resource created successfully", Data: data})
}

// Accepted answers 202 for work handed to a background runner
func Accepted(c *fiber.Ctx, message string, data interface{}) error {
	return send(c, fiber.StatusAccepted, Response{Success: true, Message: message, Data: data})
}

func NoContent(c *fiber.Ctx) error {
	return c.SendStatus(fiber.StatusNoContent)
}

// Error writes a failure envelope with the given status and code
func Error(c *fiber.Ctx, statusCode int, message string, code string) error {
	return fail(c, statusCode, code, message, nil, nil)
}

func ErrorWithDetails(c *fiber.Ctx, statusCode int, message string, code string, details interface{}) error {
	return fail(c, statusCode, code, message, details, nil)
}

func BadRequest(c *fiber.Ctx, message string) error {
	return fail(c, fiber.StatusBadRequest, "BAD_REQUEST", message, nil, nil)
}

func Unauthorized(c *fiber.Ctx, message string) error {
	return fail(c, fiber.StatusUnauthorized, "UNAUTHORIZED", message, nil, nil)
}

func Forbidden(c *fiber.Ctx, message string) error {
	return fail(c, fiber.StatusForbidden, "FORBIDDEN", message, nil, nil)
}

func NotFound(c *fiber.Ctx, message string) error {
	return fail(c, fiber.StatusNotFound, "NOT_FOUND", message, nil, nil)
}

func Conflict(c *fiber.Ctx, message string) error {
	return fail(c, fiber.StatusConflict, "CONFLICT", message, nil, nil)
}

func TooManyRequests(c *fiber.Ctx, message string) error {
	return fail(c, fiber.StatusTooManyRequests, "TOO_MANY_REQUESTS", message, nil, nil)
}

// Gone is a failure that still returns a payload, e.g. the graded result
// of an attempt that expired before the client submitted it
func Gone(c *fiber.Ctx, message string, code string, data interface{}) error {
	return fail(c, fiber.StatusGone, code, message, nil, data)
}

// ValidationError reports per-field validator messages
func ValidationError(c *fiber.Ctx, fields map[string]string) error {
	return fail(c, fiber.StatusUnprocessableEntity, "VALIDATION_ERROR", "Validation failed", fields, nil)
}

func UnprocessableEntity(c *fiber.Ctx, message string, code string, details interface{}) error {
	return fail(c, fiber.StatusUnprocessableEntity, code, message, details, nil)
}

func InternalServerError(c *fiber.Ctx, message string) error {
	return fail(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", message, nil, nil)
}

func ServiceUnavailable(c *fiber.Ctx, message string) error {
	return fail(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", message, nil, nil)
}
