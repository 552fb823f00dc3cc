package document

import (
	"errors"
	"io"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/studyquiz-api/model"
	"github.com/sahilchouksey/studyquiz-api/services"
	"github.com/sahilchouksey/studyquiz-api/utils"
	"github.com/sahilchouksey/studyquiz-api/utils/middleware"
	"github.com/sahilchouksey/studyquiz-api/utils/response"
	"github.com/sahilchouksey/studyquiz-api/utils/validation"
)

// PreviewLength is the number of characters of extracted text returned by GetDocument
const PreviewLength = 500

// DocumentHandler handles document-related requests
type DocumentHandler struct {
	validator         *validation.Validator
	documentService   *services.DocumentService
	generationService *services.GenerationService
}

// NewDocumentHandler creates a new document handler. generationService may
// be nil, in which case auto_generate is rejected.
func NewDocumentHandler(documentService *services.DocumentService, generationService *services.GenerationService) *DocumentHandler {
	return &DocumentHandler{
		validator:         validation.NewValidator(),
		documentService:   documentService,
		generationService: generationService,
	}
}

// DocumentDetail is a document plus a preview of its extracted text
type DocumentDetail struct {
	model.Document
	TextPreview string `json:"text_preview"`
}

// UploadDocument handles POST /api/v1/documents
func (h *DocumentHandler) UploadDocument(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	file, err := c.FormFile("file")
	if err != nil {
		return response.BadRequest(c, "File is required")
	}

	autoGenerate := c.FormValue("auto_generate") == "true"
	var genReq services.GenerateQuizRequest
	if autoGenerate {
		if h.generationService == nil {
			return response.ServiceUnavailable(c, services.ErrGeneratorUnavailable.Error())
		}
		genReq, err = parseGenerateForm(c)
		if err != nil {
			return response.BadRequest(c, err.Error())
		}
		if _, err := genReq.Params(h.generationService.Defaults()); err != nil {
			return response.BadRequest(c, err.Error())
		}
	}

	f, err := file.Open()
	if err != nil {
		return response.InternalServerError(c, "Failed to open file")
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return response.InternalServerError(c, "Failed to read file")
	}

	doc, err := h.documentService.UploadDocument(c.UserContext(), services.UploadDocumentRequest{
		UserID:   userID,
		Title:    c.FormValue("title"),
		Filename: file.Filename,
		Content:  content,
	})
	if err != nil {
		return h.documentError(c, err, "Failed to upload document")
	}
	middleware.SetActivityResource(c, doc.ID, fiber.Map{"filename": doc.Filename})

	result := fiber.Map{"document": doc}
	if autoGenerate {
		genReq.DocumentID = doc.ID
		job, err := h.generationService.Enqueue(c.UserContext(), userID, genReq)
		if err != nil {
			// The upload itself succeeded; report the generation failure alongside it
			utils.WithRequest(c).WithError(err).WithField("document_id", doc.ID).Warn("Auto-generation could not be queued")
			result["generation_error"] = err.Error()
		} else {
			result["job"] = job
		}
	}

	return response.Created(c, result)
}

func parseGenerateForm(c *fiber.Ctx) (services.GenerateQuizRequest, error) {
	req := services.GenerateQuizRequest{
		Difficulty: model.Difficulty(c.FormValue("difficulty")),
		FocusTopic: c.FormValue("focus_topic"),
	}
	if v := c.FormValue("question_count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return req, errors.New("question_count must be a number")
		}
		req.QuestionCount = n
	}
	if v := c.FormValue("time_limit_seconds"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return req, errors.New("time_limit_seconds must be a number")
		}
		req.TimeLimitSeconds = &n
	}
	return req, nil
}

// ListDocuments handles GET /api/v1/documents
func (h *DocumentHandler) ListDocuments(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	page, limit, offset := response.ParsePagination(c, 20)
	docs, total, err := h.documentService.ListDocuments(c.UserContext(), services.ListDocumentsOptions{
		UserID: userID,
		Status: c.Query("status"),
		Search: c.Query("search"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return response.InternalServerError(c, "Failed to fetch documents")
	}

	return response.Paginated(c, docs, response.CalculatePagination(page, limit, total))
}

// GetDocument handles GET /api/v1/documents/:id
func (h *DocumentHandler) GetDocument(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}
	id, ok := response.ParamID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid document ID")
	}

	doc, err := h.documentService.GetDocument(c.UserContext(), id, userID)
	if err != nil {
		return h.documentError(c, err, "Failed to fetch document")
	}

	return response.Success(c, DocumentDetail{Document: *doc, TextPreview: doc.Preview(PreviewLength)})
}

// DeleteDocument handles DELETE /api/v1/documents/:id
func (h *DocumentHandler) DeleteDocument(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}
	id, ok := response.ParamID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid document ID")
	}

	if err := h.documentService.DeleteDocument(c.UserContext(), id, userID); err != nil {
		return h.documentError(c, err, "Failed to delete document")
	}

	return response.SuccessWithMessage(c, "Document deleted successfully", nil)
}

// RetryExtraction handles POST /api/v1/documents/:id/retry
func (h *DocumentHandler) RetryExtraction(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}
	id, ok := response.ParamID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid document ID")
	}

	doc, err := h.documentService.RetryExtraction(c.UserContext(), id, userID)
	if err != nil {
		return h.documentError(c, err, "Failed to retry extraction")
	}

	return response.Accepted(c, "Extraction restarted", doc)
}

// GetDownloadURL handles GET /api/v1/documents/:id/download
func (h *DocumentHandler) GetDownloadURL(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}
	id, ok := response.ParamID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid document ID")
	}

	// Expiration in minutes, 60 by default and at most 24 hours
	expirationMinutes, _ := strconv.Atoi(c.Query("expiration", "60"))
	if expirationMinutes < 1 || expirationMinutes > 1440 {
		expirationMinutes = 60
	}

	url, err := h.documentService.GetDownloadURL(c.UserContext(), id, userID, time.Duration(expirationMinutes)*time.Minute)
	if err != nil {
		return h.documentError(c, err, "Failed to generate download URL")
	}

	return response.Success(c, fiber.Map{
		"download_url": url,
		"expires_in":   expirationMinutes * 60,
	})
}

func (h *DocumentHandler) documentError(c *fiber.Ctx, err error, fallback string) error {
	switch {
	case errors.Is(err, services.ErrDocumentNotFound):
		return response.NotFound(c, "Document not found")
	case errors.Is(err, services.ErrFileTooLarge):
		return response.Error(c, fiber.StatusRequestEntityTooLarge, err.Error(), "FILE_TOO_LARGE")
	case errors.Is(err, services.ErrUnsupportedFileType):
		return response.Error(c, fiber.StatusUnsupportedMediaType, err.Error(), "UNSUPPORTED_FILE_TYPE")
	case errors.Is(err, services.ErrInvalidDocument):
		return response.BadRequest(c, err.Error())
	case errors.Is(err, services.ErrNotRetryable):
		return response.Conflict(c, err.Error())
	case errors.Is(err, services.ErrOriginalUnavailable), errors.Is(err, services.ErrStorageUnavailable):
		return response.ServiceUnavailable(c, err.Error())
	}
	utils.WithRequest(c).WithError(err).Error(fallback)
	return response.InternalServerError(c, fallback)
}
