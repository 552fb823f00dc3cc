package response

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

// ParamID parses a positive numeric route parameter
func ParamID(c *fiber.Ctx, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Params(name), 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// QueryID parses an optional numeric query parameter. Absent or invalid
// values return nil.
func QueryID(c *fiber.Ctx, name string) *uint {
	raw := c.Query(name)
	if raw == "" {
		return nil
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return nil
	}
	v := uint(id)
	return &v
}

// MaxPageSize caps the limit query parameter on every list endpoint
const MaxPageSize = 100

// PaginationMeta describes the page returned by a list endpoint
type PaginationMeta struct {
	CurrentPage int   `json:"current_page"`
	PerPage     int   `json:"per_page"`
	Total       int64 `json:"total"`
	TotalPages  int   `json:"total_pages"`
}

type paginatedResponse struct {
	Success    bool           `json:"success"`
	Data       interface{}    `json:"data"`
	Pagination PaginationMeta `json:"pagination"`
}

func clampLimit(limit, fallback int) int {
	switch {
	case limit < 1:
		return fallback
	case limit > MaxPageSize:
		return MaxPageSize
	}
	return limit
}

// ParsePagination reads page and limit from the query string and returns
// the matching row offset
func ParsePagination(c *fiber.Ctx, defaultLimit int) (page, limit, offset int) {
	page = max(c.QueryInt("page", 1), 1)
	limit = clampLimit(c.QueryInt("limit", defaultLimit), defaultLimit)
	return page, limit, (page - 1) * limit
}

func CalculatePagination(page, limit int, total int64) PaginationMeta {
	limit = clampLimit(limit, 10)
	return PaginationMeta{
		CurrentPage: max(page, 1),
		PerPage:     limit,
		Total:       total,
		TotalPages:  int((total + int64(limit) - 1) / int64(limit)),
	}
}

// Paginated writes one page of a list with its metadata
func Paginated(c *fiber.Ctx, data interface{}, pagination PaginationMeta) error {
	return c.Status(fiber.StatusOK).JSON(paginatedResponse{
		Success:    true,
		Data:       data,
		Pagination: pagination,
	})
}
