package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "already valid",
			input:    `{"a":1}`,
			expected: `{"a":1}`,
		},
		{
			name:     "markdown fence with prose",
			input:    "Here you go:\n```json\n{\"a\":1}\n```\nGood luck!",
			expected: `{"a":1}`,
		},
		{
			name:     "prose around object",
			input:    `Sure! {"a": {"b": "}"}} Hope this helps`,
			expected: `{"a": {"b": "}"}}`,
		},
		{
			name:     "trailing commas",
			input:    `{"a": [1, 2,],}`,
			expected: `{"a": [1, 2]}`,
		},
		{
			name:     "truncated output",
			input:    `{"questions": [{"text": "Q1"}, {"text": "Q2"`,
			expected: `{"questions": [{"text": "Q1"}]}`,
		},
		{
			name:     "smart quotes",
			input:    `{“a”: 1}`,
			expected: `{"a": 1}`,
		},
		{
			name:     "bracketed prose before object",
			input:    "Based on section [2] of the material, here is the quiz:\n{\"title\": \"T\", \"questions\": [{\"text\": \"Q1\"}]}",
			expected: `{"title": "T", "questions": [{"text": "Q1"}]}`,
		},
		{
			name:     "bracketed prose before truncated object",
			input:    "See [1] and [2].\n{\"questions\": [{\"text\": \"Q1\"}, {\"text\": \"Q2\"",
			expected: `{"questions": [{"text": "Q1"}]}`,
		},
		{
			name:     "top level array",
			input:    "result: [1, 2, 3] done",
			expected: `[1, 2, 3]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.input)
			require.NoError(t, err)
			assert.JSONEq(t, tt.expected, got)
		})
	}
}

func TestExtractJSON_NoJSON(t *testing.T) {
	for _, input := range []string{"", "   ", "I cannot help with that."} {
		_, err := ExtractJSON(input)
		assert.ErrorIs(t, err, ErrNoJSONFound, "input %q", input)
	}
}

func TestExtractJSONTo(t *testing.T) {
	var out struct {
		Title     string `json:"title"`
		Questions []struct {
			Text string `json:"text"`
		} `json:"questions"`
	}

	err := ExtractJSONTo("```json\n{\"title\": \"Cells\", \"questions\": [{\"text\": \"What is ATP?\"},]}\n```", &out)
	require.NoError(t, err)
	assert.Equal(t, "Cells", out.Title)
	require.Len(t, out.Questions, 1)
	assert.Equal(t, "What is ATP?", out.Questions[0].Text)
}
