package quiz

import (
	"bufio"
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/studyquiz-api/model"
	"github.com/sahilchouksey/studyquiz-api/services"
	"github.com/sahilchouksey/studyquiz-api/utils"
	"github.com/sahilchouksey/studyquiz-api/utils/middleware"
	"github.com/sahilchouksey/studyquiz-api/utils/response"
	"github.com/sahilchouksey/studyquiz-api/utils/sse"
)

// Job stream polling settings
const (
	JobPollInterval = time.Second
	// JobStreamTimeout bounds one SSE connection; clients reconnect and
	// resume from the current state
	JobStreamTimeout = 15 * time.Minute
)

// GenerateQuiz handles POST /api/v1/quizzes/generate
func (h *QuizHandler) GenerateQuiz(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	var req services.GenerateQuizRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if errs := h.validator.Validate(&req); errs != nil {
		return response.ValidationError(c, errs)
	}

	job, err := h.generationService.Enqueue(c.UserContext(), userID, req)
	if err != nil {
		return quizError(c, err, "Failed to start quiz generation")
	}
	middleware.SetActivityResource(c, job.DocumentID, map[string]interface{}{"job_id": job.JobID})

	return response.Accepted(c, "Quiz generation started", job)
}

// ListJobs handles GET /api/v1/quizzes/jobs
func (h *QuizHandler) ListJobs(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	jobs, err := h.generationService.ListJobs(c.UserContext(), userID, c.QueryInt("limit", 20))
	if err != nil {
		return quizError(c, err, "Failed to fetch generation jobs")
	}

	return response.Success(c, jobs)
}

// GetJob handles GET /api/v1/quizzes/jobs/:id
func (h *QuizHandler) GetJob(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	job, err := h.generationService.GetJob(c.UserContext(), c.Params("id"), userID)
	if err != nil {
		return quizError(c, err, "Failed to fetch generation job")
	}

	return response.Success(c, job)
}

// StreamJob handles GET /api/v1/quizzes/jobs/:id/stream. It emits a progress
// event whenever the job changes and ends with complete or error.
func (h *QuizHandler) StreamJob(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	jobID := c.Params("id")
	job, err := h.generationService.GetJob(c.UserContext(), jobID, userID)
	if err != nil {
		return quizError(c, err, "Failed to fetch generation job")
	}

	log := utils.WithRequest(c).WithField("job_id", jobID)
	sse.SetHeaders(c)

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		// The fiber context is recycled once the handler returns
		ctx, cancel := context.WithTimeout(context.Background(), JobStreamTimeout)
		defer cancel()

		if err := streamJob(ctx, w, job, func(ctx context.Context) (*model.GenerationJob, error) {
			return h.generationService.GetJob(ctx, jobID, userID)
		}, JobPollInterval); err != nil {
			log.WithError(err).Debug("Job stream ended early")
		}
	})

	return nil
}

// streamJob writes job state until the job finishes, the context ends or
// the client disconnects
func streamJob(ctx context.Context, w *bufio.Writer, job *model.GenerationJob, poll func(context.Context) (*model.GenerationJob, error), interval time.Duration) error {
	if err := sse.SendProgress(w, job); err != nil {
		return err
	}

	lastPhase, lastProgress := job.Phase, job.Progress
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for !job.IsFinished() {
		select {
		case <-ctx.Done():
			return sse.SendError(w, "STREAM_TIMEOUT", "Stream closed before the job finished; reconnect to resume")
		case <-ticker.C:
		}

		next, err := poll(ctx)
		if err != nil {
			_ = sse.SendError(w, "JOB_UNAVAILABLE", err.Error())
			return err
		}
		job = next

		if job.Phase == lastPhase && job.Progress == lastProgress {
			if err := sse.SendKeepAlive(w); err != nil {
				return err
			}
			continue
		}
		lastPhase, lastProgress = job.Phase, job.Progress
		if !job.IsFinished() {
			if err := sse.SendProgress(w, job); err != nil {
				return err
			}
		}
	}

	if job.Status == model.JobStatusFailed {
		return sse.SendError(w, "GENERATION_FAILED", job.Error)
	}
	return sse.SendComplete(w, job)
}
