package sse

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// Event types emitted by the job and tutor streams
const (
	EventProgress = "progress"
	EventChunk    = "chunk"
	EventComplete = "complete"
	EventError    = "error"
)

// Event represents an SSE event to be sent to clients
type Event struct {
	// Event is the SSE event type. If empty, no "event:" line is written.
	Event string

	// Data is the payload to send (JSON-encoded unless string or []byte)
	Data interface{}

	// ID is an optional event ID for reconnection support
	ID string
}

// SetHeaders prepares a fiber response for an event stream
func SetHeaders(c *fiber.Ctx) {
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("Transfer-Encoding", "chunked")
	c.Set("X-Accel-Buffering", "no")
}

// Send writes an SSE event to the given writer and flushes immediately.
// A flush error means the client is gone.
func Send(w *bufio.Writer, event Event) error {
	if event.ID != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", event.ID); err != nil {
			return fmt.Errorf("failed to write event ID: %w", err)
		}
	}

	if event.Event != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", event.Event); err != nil {
			return fmt.Errorf("failed to write event type: %w", err)
		}
	}

	var dataStr string
	switch v := event.Data.(type) {
	case string:
		dataStr = v
	case []byte:
		dataStr = string(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to marshal event data: %w", err)
		}
		dataStr = string(data)
	}

	// Multi-line payloads need one data: line each
	for _, line := range strings.Split(dataStr, "\n") {
		if _, err := fmt.Fprintf(w, "data: %s\n", line); err != nil {
			return fmt.Errorf("failed to write event data: %w", err)
		}
	}
	if _, err := w.WriteString("\n"); err != nil {
		return fmt.Errorf("failed to terminate event: %w", err)
	}

	return w.Flush()
}

// SendProgress sends a progress event with the given data
func SendProgress(w *bufio.Writer, data interface{}) error {
	return Send(w, Event{Event: EventProgress, Data: data})
}

// SendChunk sends one streamed fragment of generated text
func SendChunk(w *bufio.Writer, text string) error {
	return Send(w, Event{Event: EventChunk, Data: map[string]string{"content": text}})
}

// SendComplete sends a completion event with the given result
func SendComplete(w *bufio.Writer, data interface{}) error {
	return Send(w, Event{Event: EventComplete, Data: data})
}

// SendError sends an error event
func SendError(w *bufio.Writer, code, message string) error {
	return Send(w, Event{
		Event: EventError,
		Data: map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

// SendKeepAlive sends a comment line to keep proxies from closing the stream
func SendKeepAlive(w *bufio.Writer) error {
	if _, err := w.WriteString(": ping\n\n"); err != nil {
		return fmt.Errorf("failed to write keepalive: %w", err)
	}
	return w.Flush()
}
