package tutor

import (
	"bufio"
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/studyquiz-api/services"
	"github.com/sahilchouksey/studyquiz-api/utils"
	"github.com/sahilchouksey/studyquiz-api/utils/middleware"
	"github.com/sahilchouksey/studyquiz-api/utils/response"
	"github.com/sahilchouksey/studyquiz-api/utils/sse"
)

// SendMessage handles POST /api/v1/tutor/sessions/:id/messages
func (h *TutorHandler) SendMessage(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}
	id, ok := response.ParamID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid session ID")
	}

	var req SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if errs := h.validator.Validate(&req); errs != nil {
		return response.ValidationError(c, errs)
	}

	reply, err := h.tutorService.SendMessage(c.UserContext(), id, userID, req.Content)
	if err != nil {
		return tutorError(c, err, "Failed to send message")
	}

	return response.Created(c, reply)
}

// StreamMessage handles POST /api/v1/tutor/sessions/:id/messages/stream.
// The answer arrives as chunk events followed by one complete event with
// the stored messages.
func (h *TutorHandler) StreamMessage(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}
	id, ok := response.ParamID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid session ID")
	}

	var req SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	content, err := services.ValidateTutorMessage(req.Content)
	if err != nil {
		return tutorError(c, err, "Invalid message")
	}
	if !h.tutorService.Enabled() {
		return tutorError(c, services.ErrTutorUnavailable, "Tutor unavailable")
	}

	// Errors known up front still get a regular JSON response
	session, err := h.tutorService.GetSession(c.UserContext(), id, userID)
	if err != nil {
		return tutorError(c, err, "Failed to fetch session")
	}
	if session.IsArchived {
		return tutorError(c, services.ErrSessionArchived, "Session archived")
	}

	log := utils.WithRequest(c).WithField("session_id", id)
	sse.SetHeaders(c)

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		// The fiber context is recycled once the handler returns. The stream
		// is cancelled when a write fails, which stops the provider.
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		reply, err := h.tutorService.StreamMessage(ctx, id, userID, content, func(chunk string) error {
			if werr := sse.SendChunk(w, chunk); werr != nil {
				cancel()
				return werr
			}
			return nil
		})
		if err != nil {
			if reply != nil {
				log.WithError(err).Info("Tutor stream ended early, partial answer kept")
			}
			_ = sse.SendError(w, streamErrorCode(err), err.Error())
			return
		}

		_ = sse.SendComplete(w, reply)
	})

	return nil
}

func streamErrorCode(err error) string {
	switch {
	case errors.Is(err, services.ErrSessionNotFound):
		return "NOT_FOUND"
	case errors.Is(err, services.ErrSessionArchived):
		return "SESSION_ARCHIVED"
	case errors.Is(err, services.ErrTutorUnavailable):
		return "SERVICE_UNAVAILABLE"
	case errors.Is(err, context.Canceled):
		return "CANCELLED"
	}
	return "STREAM_FAILED"
}
