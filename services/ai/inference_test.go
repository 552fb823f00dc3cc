package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestInference(t *testing.T, handler http.HandlerFunc) *InferenceClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewInferenceClient(InferenceConfig{APIKey: "test-key", BaseURL: server.URL + "/", Model: "test-model"})
}

func sseHandler(lines ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, line := range lines {
			fmt.Fprintf(w, "%s\n\n", line)
		}
	}
}

func deltaEvent(content string) string {
	return fmt.Sprintf(`data: {"choices":[{"delta":{"content":%q}}]}`, content)
}

func TestInferenceCompleteSendsChatRequest(t *testing.T) {
	var got chatRequest
	client := newTestInference(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"{\"ok\":true}"}}]}`)
	})

	req := Prompt("You write quizzes.", "Make one")
	req.JSON = true
	text, err := client.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, text)

	assert.Equal(t, "test-model", got.Model)
	assert.False(t, got.Stream)
	assert.Equal(t, 4096, got.MaxTokens)
	require.NotNil(t, got.ResponseFormat)
	assert.Equal(t, "json_object", got.ResponseFormat.Type)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, RoleSystem, got.Messages[0].Role)
	assert.True(t, strings.HasPrefix(got.Messages[0].Content, "You write quizzes."))
	assert.Equal(t, Message{Role: RoleUser, Content: "Make one"}, got.Messages[1])
}

func TestInferenceCompleteEmptyChoices(t *testing.T) {
	client := newTestInference(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[]}`)
	})

	_, err := client.Complete(context.Background(), Prompt("", "hi"))
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestInferenceStreamJoinsDeltasUntilDone(t *testing.T) {
	client := newTestInference(t, sseHandler(
		": keep-alive",
		deltaEvent("Goroutines "),
		`data: {"choices":[{"delta":{"role":"assistant"}}]}`,
		deltaEvent("are cheap."),
		"data: [DONE]",
		deltaEvent(" ignored after done"),
	))

	var chunks []string
	text, err := client.Stream(context.Background(), Prompt("", "explain"), func(chunk string) error {
		chunks = append(chunks, chunk)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Goroutines are cheap.", text)
	assert.Equal(t, []string{"Goroutines ", "are cheap."}, chunks)
}

func TestInferenceStreamSkipsMalformedChunks(t *testing.T) {
	client := newTestInference(t, sseHandler(
		deltaEvent("first"),
		"data: {not json",
		"event: ping",
		`data: {"choices":[]}`,
		deltaEvent(" second"),
	))

	text, err := client.Stream(context.Background(), Prompt("", "go"), func(string) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, "first second", text)
}

func TestInferenceStreamStopsWhenCallbackFails(t *testing.T) {
	client := newTestInference(t, sseHandler(deltaEvent("one"), deltaEvent("two"), "data: [DONE]"))
	stop := errors.New("client went away")

	text, err := client.Stream(context.Background(), Prompt("", "go"), func(string) error { return stop })
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, "one", text)
}

func TestInferenceStreamWithoutContent(t *testing.T) {
	client := newTestInference(t, sseHandler("data: [DONE]"))

	_, err := client.Stream(context.Background(), Prompt("", "go"), func(string) error { return nil })
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestInferenceErrorStatus(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retryable bool
	}{
		{"bad request", http.StatusBadRequest, false},
		{"unauthorized", http.StatusUnauthorized, false},
		{"rate limited", http.StatusTooManyRequests, true},
		{"server error", http.StatusInternalServerError, true},
		{"bad gateway", http.StatusBadGateway, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestInference(t, func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "upstream says no", tt.status)
			})

			_, err := client.Complete(context.Background(), Prompt("", "hi"))
			var statusErr *StatusError
			require.ErrorAs(t, err, &statusErr)
			assert.Equal(t, tt.status, statusErr.StatusCode)
			assert.Equal(t, "upstream says no", statusErr.Body)
			assert.Equal(t, tt.status, StatusCode(err))
			assert.Equal(t, tt.retryable, RetryableStatus(StatusCode(err)))

			_, err = client.Stream(context.Background(), Prompt("", "hi"), func(string) error { return nil })
			assert.Equal(t, tt.status, StatusCode(err))
		})
	}
}

func TestStatusCodeWithoutProviderStatus(t *testing.T) {
	assert.Zero(t, StatusCode(errors.New("dial tcp: connection refused")))
	assert.Zero(t, StatusCode(nil))
}
