package services

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/sahilchouksey/studyquiz-api/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkTextOverlap(t *testing.T) {
	words := make([]string, 0, 600)
	for i := 0; i < 600; i++ {
		words = append(words, "word")
	}
	text := strings.Join(words, " ") // 2999 runes

	chunks := ChunkText(text, TutorChunkSize, TutorChunkOverlap)
	require.Len(t, chunks, 3)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.LessOrEqual(t, utf8.RuneCountInString(c.Text), TutorChunkSize)
		assert.False(t, strings.HasPrefix(c.Text, " "))
	}
	assert.True(t, strings.HasSuffix(chunks[2].Text, "word"))
}

func TestChunkTextShortAndEmpty(t *testing.T) {
	assert.Nil(t, ChunkText("   ", 100, 10))

	chunks := ChunkText("short text", 100, 10)
	require.Len(t, chunks, 1)
	assert.Equal(t, "short text", chunks[0].Text)
}

func TestChunkTextWithoutWhitespace(t *testing.T) {
	text := strings.Repeat("x", 250)
	chunks := ChunkText(text, 100, 20)

	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0].Text, 100)
	assert.Len(t, chunks[1].Text, 100)
	assert.Len(t, chunks[2].Text, 90)
}

func TestTokenize(t *testing.T) {
	tokens := Tokenize("What is the Go scheduler, and how do goroutines work?")
	assert.Equal(t, []string{"go", "scheduler", "goroutines", "work"}, tokens)
	assert.Empty(t, Tokenize("is the a of"))
}

func TestRankChunks(t *testing.T) {
	chunks := []Chunk{
		{Index: 0, Text: "Introduction to the course and grading policy."},
		{Index: 1, Text: "Goroutines are scheduled by the Go runtime scheduler."},
		{Index: 2, Text: "Channels let goroutines communicate."},
		{Index: 3, Text: "Maps are hash tables."},
		{Index: 4, Text: "The scheduler multiplexes goroutines onto threads."},
	}

	ranked := RankChunks(chunks, "How does the scheduler run goroutines?", 4)
	require.Len(t, ranked, 3)
	assert.Equal(t, 1, ranked[0].Index)
	assert.Equal(t, 2, ranked[0].Score)
	assert.Equal(t, 4, ranked[1].Index, "ties keep document order")
	assert.Equal(t, 2, ranked[2].Index)
	assert.Equal(t, 1, ranked[2].Score)
}

func TestRankChunksFallsBackToOpening(t *testing.T) {
	chunks := []Chunk{{Index: 0, Text: "alpha"}, {Index: 1, Text: "beta"}, {Index: 2, Text: "gamma"}}

	ranked := RankChunks(chunks, "summarize", 2)
	require.Len(t, ranked, 2)
	assert.Equal(t, 0, ranked[0].Index)
	assert.Equal(t, 1, ranked[1].Index)
	assert.Zero(t, ranked[0].Score)

	assert.Nil(t, RankChunks(nil, "anything", 4))
}

func TestBuildTutorSystemPrompt(t *testing.T) {
	excerpts := []ScoredChunk{{Chunk: Chunk{Index: 2, Text: "Channels let goroutines communicate."}, Score: 1}}
	missed := []MissedQuestion{{Text: "What closes a channel?", Correct: "close()", Explanation: "Only senders close."}}

	prompt := BuildTutorSystemPrompt("Go notes", excerpts, missed)
	assert.Contains(t, prompt, "does not cover")
	assert.Contains(t, prompt, "Document: Go notes")
	assert.Contains(t, prompt, "[Excerpt 3]")
	assert.Contains(t, prompt, "What closes a channel?")
	assert.Contains(t, prompt, "Student did not answer")
	assert.Contains(t, prompt, "Correct answer: close()")

	bare := BuildTutorSystemPrompt("", nil, nil)
	assert.Contains(t, bare, "No document is attached")
	assert.NotContains(t, bare, "missed")
}

func TestCitationsFor(t *testing.T) {
	long := strings.Repeat("a", 300)
	citations := CitationsFor([]ScoredChunk{{Chunk: Chunk{Index: 5, Text: long}, Score: 3}})

	require.Len(t, citations, 1)
	assert.Equal(t, 5, citations[0].ChunkIndex)
	assert.Equal(t, 3.0, citations[0].Score)
	assert.Equal(t, citationSnippetLen+3, len(citations[0].Snippet))
	assert.Empty(t, CitationsFor(nil))
}

func TestMissedQuestions(t *testing.T) {
	qs := gradedQuestions(3)
	for i := range qs {
		for j := range qs[i].Options {
			qs[i].Options[j].Text = string(rune('A' + j))
		}
	}
	review := BuildReview(qs, AnswerMap{1: uintPtr(11), 2: uintPtr(23)})

	missed := MissedQuestions(review)
	require.Len(t, missed, 2)
	assert.Equal(t, "D", missed[0].Chosen)
	assert.Equal(t, "B", missed[0].Correct)
	assert.Empty(t, missed[1].Chosen)
}

func TestValidateTutorMessage(t *testing.T) {
	content, err := ValidateTutorMessage("  why?  ")
	require.NoError(t, err)
	assert.Equal(t, "why?", content)

	_, err = ValidateTutorMessage("   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = ValidateTutorMessage(strings.Repeat("x", MaxTutorMessageLen+1))
	assert.ErrorIs(t, err, ErrMessageTooLong)
}

func TestTutorMessagePartial(t *testing.T) {
	msg := model.TutorMessage{Status: model.MessageStatusComplete}
	msg.MarkAsPartial("client disconnected")
	assert.True(t, msg.IsPartial())
	assert.Equal(t, "client disconnected", msg.ErrorMessage)
}
