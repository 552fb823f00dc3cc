package sse

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSend_WritesEventAndJSONData(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)

	err := SendProgress(w, map[string]int{"progress": 50})
	require.NoError(t, err)

	assert.Equal(t, "event: progress\ndata: {\"progress\":50}\n\n", buf.String())
}

func TestSend_SplitsMultilineStrings(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)

	require.NoError(t, Send(w, Event{ID: "7", Data: "line one\nline two"}))

	assert.Equal(t, "id: 7\ndata: line one\ndata: line two\n\n", buf.String())
}

func TestSendChunkAndError(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)

	require.NoError(t, SendChunk(w, "Photo"))
	require.NoError(t, SendError(w, "AI_ERROR", "provider unavailable"))

	out := buf.String()
	assert.Contains(t, out, "event: chunk\ndata: {\"content\":\"Photo\"}\n\n")
	assert.Contains(t, out, "event: error\ndata: {\"code\":\"AI_ERROR\",\"message\":\"provider unavailable\"}\n\n")
}

func TestSendKeepAlive(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)

	require.NoError(t, SendKeepAlive(w))
	assert.Equal(t, ": ping\n\n", buf.String())
}
