package ai

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"
)

// StatusError is a non-2xx reply from an HTTP provider
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("inference API error (status %d): %s", e.StatusCode, e.Body)
}

// StatusCode returns the HTTP status carried by a provider error, 0 if none
func StatusCode(err error) int {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}

// RetryableStatus reports whether a provider status is worth another call.
// Rate limits, request timeouts and server errors are; client errors are not.
func RetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= 500
}
