package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalEnvelope(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	body, err := Marshal(QuizGenerated, map[string]interface{}{"quiz_id": 7}, at)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "quiz.generated", decoded["type"])
	assert.Equal(t, "2025-03-01T12:00:00Z", decoded["occurred_at"])
	assert.Equal(t, float64(7), decoded["payload"].(map[string]interface{})["quiz_id"])
}

func TestMarshalRejectsUnencodablePayload(t *testing.T) {
	_, err := Marshal(AttemptSubmitted, make(chan int), time.Now())
	assert.Error(t, err)
}

func TestNewPublisherWithoutURLIsNoop(t *testing.T) {
	p, err := NewPublisher("", "")
	require.NoError(t, err)
	assert.IsType(t, NoopPublisher{}, p)
	assert.NoError(t, p.Publish(context.Background(), DocumentExtracted, nil))
	assert.NoError(t, p.Close())
}

func TestPublishAsyncToleratesNilPublisher(t *testing.T) {
	assert.NotPanics(t, func() { PublishAsync(nil, QuizGenerationFailed, nil) })
}
