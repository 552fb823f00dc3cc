package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/sahilchouksey/studyquiz-api/model"
	"github.com/sahilchouksey/studyquiz-api/services/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedProvider returns canned responses in order
type scriptedProvider struct {
	responses []string
	errs      []error
	requests  []ai.Request
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Complete(_ context.Context, req ai.Request) (string, error) {
	i := len(p.requests)
	p.requests = append(p.requests, req)
	if i < len(p.errs) && p.errs[i] != nil {
		return "", p.errs[i]
	}
	if i < len(p.responses) {
		return p.responses[i], nil
	}
	return "", errors.New("no scripted response")
}

func (p *scriptedProvider) Stream(ctx context.Context, req ai.Request, onChunk func(string) error) (string, error) {
	out, err := p.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	for _, word := range strings.SplitAfter(out, " ") {
		if err := onChunk(word); err != nil {
			return out, err
		}
	}
	return out, nil
}

func sampleQuestion(text string, correct int) GeneratedQuestion {
	q := GeneratedQuestion{Text: text, Topic: "Go"}
	for i := 0; i < 4; i++ {
		q.Options = append(q.Options, GeneratedOption{Text: fmt.Sprintf("%s option %d", text, i), IsCorrect: i == correct})
	}
	return q
}

const validQuizJSON = `{
  "title": "Go basics",
  "questions": [
    {"text": "What keyword starts a goroutine?", "topic": "Concurrency", "difficulty": "easy",
     "options": [
       {"text": "go", "is_correct": true, "explanation": "go starts a goroutine"},
       {"text": "async", "is_correct": false},
       {"text": "spawn", "is_correct": false},
       {"text": "thread", "is_correct": false}
     ]},
    {"text": "Which type is a reference type?", "topic": "Types",
     "options": [
       {"text": "int", "is_correct": false},
       {"text": "map", "is_correct": true},
       {"text": "struct", "is_correct": false},
       {"text": "array", "is_correct": false}
     ]}
  ]
}`

func TestTrimSourcePrefersParagraphBoundary(t *testing.T) {
	text := strings.Repeat("a", 60) + "\n\n" + strings.Repeat("b", 60)
	assert.Equal(t, strings.Repeat("a", 60), TrimSource(text, 100))
	assert.Equal(t, text, TrimSource(text, 1000))
}

func TestTrimSourceFallsBackToSentence(t *testing.T) {
	text := strings.Repeat("word ", 10) + "end. " + strings.Repeat("x", 50)
	trimmed := TrimSource(text, 70)
	assert.True(t, strings.HasSuffix(trimmed, "end."), trimmed)
	assert.LessOrEqual(t, len(trimmed), 70)
}

func TestBuildQuizPrompt(t *testing.T) {
	req := BuildQuizPrompt("Goroutines are cheap.", GenerateQuizParams{QuestionCount: 5, Difficulty: model.DifficultyHard, FocusTopic: "channels"})

	assert.True(t, req.JSON)
	assert.InDelta(t, 0.2, req.Temperature, 0.001)
	require.Len(t, req.Messages, 1)
	user := req.Messages[0].Content
	assert.Contains(t, user, "Write 5 multiple-choice questions at hard difficulty")
	assert.Contains(t, user, "Focus the questions on: channels.")
	assert.Contains(t, user, "Goroutines are cheap.")
	assert.Contains(t, req.System, "exactly 4 options")
}

func TestBuildQuizPromptMixedDifficulty(t *testing.T) {
	req := BuildQuizPrompt("text", GenerateQuizParams{QuestionCount: 3, Difficulty: model.DifficultyMixed})
	assert.Contains(t, req.Messages[0].Content, "mix of easy, medium and hard")
	assert.NotContains(t, req.Messages[0].Content, "Focus")
}

func TestNextQuestionCount(t *testing.T) {
	assert.Equal(t, 7, NextQuestionCount(10))
	assert.Equal(t, 22, NextQuestionCount(30))
	assert.Equal(t, 3, NextQuestionCount(4))
	assert.Equal(t, 3, NextQuestionCount(3))
}

func TestParseGeneratedQuiz(t *testing.T) {
	t.Run("fenced with prose", func(t *testing.T) {
		quiz, err := ParseGeneratedQuiz("Here you go:\n```json\n" + validQuizJSON + "\n```\nEnjoy!")
		require.NoError(t, err)
		assert.Equal(t, "Go basics", quiz.Title)
		assert.Len(t, quiz.Questions, 2)
	})

	t.Run("bracketed reference before the quiz", func(t *testing.T) {
		quiz, err := ParseGeneratedQuiz("Based on section [2] of the material, here is the quiz:\n" + validQuizJSON)
		require.NoError(t, err)
		assert.Equal(t, "Go basics", quiz.Title)
		assert.Len(t, quiz.Questions, 2)
	})

	t.Run("bare array", func(t *testing.T) {
		quiz, err := ParseGeneratedQuiz(`[{"text":"Q?","options":[]}]`)
		require.NoError(t, err)
		assert.Len(t, quiz.Questions, 1)
	})

	t.Run("trailing comma", func(t *testing.T) {
		quiz, err := ParseGeneratedQuiz(`{"title":"T","questions":[{"text":"Q?","options":[]},]}`)
		require.NoError(t, err)
		assert.Len(t, quiz.Questions, 1)
	})

	t.Run("no json", func(t *testing.T) {
		_, err := ParseGeneratedQuiz("I cannot help with that.")
		assert.ErrorIs(t, err, ErrQuizParse)
	})

	t.Run("object without questions", func(t *testing.T) {
		_, err := ParseGeneratedQuiz(`{"title":"only a title"}`)
		assert.ErrorIs(t, err, ErrQuizParse)
	})
}

func TestFilterQuestions(t *testing.T) {
	noCorrect := sampleQuestion("No correct", -1)
	twoCorrect := sampleQuestion("Two correct", 0)
	twoCorrect.Options[1].IsCorrect = true
	threeOptions := sampleQuestion("Three options", 0)
	threeOptions.Options = threeOptions.Options[:3]
	dupOptions := sampleQuestion("Dup options", 0)
	dupOptions.Options[2].Text = strings.ToUpper(dupOptions.Options[1].Text)
	blankOption := sampleQuestion("Blank option", 0)
	blankOption.Options[3].Text = "   "
	untitled := sampleQuestion("  ", 0)

	padded := sampleQuestion("  Padded  ", 2)
	padded.Topic = ""
	padded.Difficulty = "HARD"

	input := []GeneratedQuestion{
		sampleQuestion("Good one", 1),
		noCorrect,
		twoCorrect,
		threeOptions,
		dupOptions,
		blankOption,
		untitled,
		sampleQuestion("good ONE", 0),
		padded,
	}

	kept, dropped := FilterQuestions(input, 10, model.DifficultyEasy)

	require.Len(t, kept, 2)
	assert.Equal(t, "Good one", kept[0].Text)
	assert.Equal(t, model.DifficultyEasy, kept[0].Difficulty)
	assert.Equal(t, "Padded", kept[1].Text)
	assert.Equal(t, "General", kept[1].Topic)
	assert.Equal(t, model.DifficultyHard, kept[1].Difficulty)

	reasons := map[int]string{}
	for _, d := range dropped {
		reasons[d.Index] = d.Reason
	}
	assert.Len(t, dropped, 7)
	assert.Contains(t, reasons[1], "exactly one correct")
	assert.Contains(t, reasons[2], "got 2")
	assert.Contains(t, reasons[3], "expected 4 options")
	assert.Equal(t, "duplicate option text", reasons[4])
	assert.Equal(t, "empty option text", reasons[5])
	assert.Equal(t, "empty question text", reasons[6])
	assert.Equal(t, "duplicate question text", reasons[7])
}

func TestFilterQuestionsCapsAtLimit(t *testing.T) {
	input := []GeneratedQuestion{sampleQuestion("A", 0), sampleQuestion("B", 1), sampleQuestion("C", 2)}
	kept, dropped := FilterQuestions(input, 2, model.DifficultyMixed)
	assert.Len(t, kept, 2)
	require.Len(t, dropped, 1)
	assert.Equal(t, "over requested count", dropped[0].Reason)
	assert.Equal(t, model.DifficultyMedium, kept[0].Difficulty)
}

func TestFilterQuestionsCopiesCorrectExplanation(t *testing.T) {
	q := sampleQuestion("Why", 1)
	q.Options[1].Explanation = "because"
	kept, _ := FilterQuestions([]GeneratedQuestion{q}, 0, model.DifficultyMedium)
	require.Len(t, kept, 1)
	assert.Equal(t, "because", kept[0].Explanation)
}

func TestGenerateSucceedsFirstTry(t *testing.T) {
	provider := &scriptedProvider{responses: []string{validQuizJSON}}
	gen := NewQuizGenerator(provider)

	var phases []string
	result, err := gen.Generate(context.Background(), "material", GenerateQuizParams{QuestionCount: 5, Difficulty: model.DifficultyMedium},
		func(phase, _ string) { phases = append(phases, phase) })

	require.NoError(t, err)
	assert.Equal(t, 1, result.LLMCalls)
	assert.Len(t, result.Quiz.Questions, 2)
	assert.Equal(t, []string{model.PhasePrompting, model.PhaseGenerating, model.PhaseParsing, model.PhaseValidating}, phases)
}

func TestGenerateRetriesWithSmallerCount(t *testing.T) {
	provider := &scriptedProvider{responses: []string{
		"not json at all",
		`{"questions":[{"text":"bad","options":[]}]}`,
		validQuizJSON,
	}}
	gen := NewQuizGenerator(provider)

	result, err := gen.Generate(context.Background(), "material", GenerateQuizParams{QuestionCount: 10, Difficulty: model.DifficultyEasy}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, result.LLMCalls)
	assert.Equal(t, 1, result.Dropped)

	require.Len(t, provider.requests, 3)
	assert.Contains(t, provider.requests[0].Messages[0].Content, "Write 10 ")
	assert.Contains(t, provider.requests[1].Messages[0].Content, "Write 7 ")
	assert.Contains(t, provider.requests[2].Messages[0].Content, "Write 5 ")
}

func TestGenerateGivesUpAfterThreeTries(t *testing.T) {
	provider := &scriptedProvider{responses: []string{"nope", "still nope", "never"}}
	gen := NewQuizGenerator(provider)

	result, err := gen.Generate(context.Background(), "material", GenerateQuizParams{QuestionCount: 5}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrQuizParse)
	assert.Equal(t, 3, result.LLMCalls)
}

func TestGenerateStopsOnPermanentProviderError(t *testing.T) {
	provider := &scriptedProvider{errs: []error{ai.ErrNotConfigured}}
	gen := NewQuizGenerator(provider)

	_, err := gen.Generate(context.Background(), "material", GenerateQuizParams{QuestionCount: 5}, nil)
	require.ErrorIs(t, err, ai.ErrNotConfigured)
	assert.Len(t, provider.requests, 1)
}

func TestGenerateStopsOnRejectedRequest(t *testing.T) {
	provider := &scriptedProvider{errs: []error{&ai.StatusError{StatusCode: 400, Body: "context length exceeded"}}}
	gen := NewQuizGenerator(provider)

	_, err := gen.Generate(context.Background(), "material", GenerateQuizParams{QuestionCount: 5}, nil)
	require.Error(t, err)
	assert.Equal(t, 400, ai.StatusCode(err))
	assert.Len(t, provider.requests, 1)
}

func TestGenerateRetriesTransientProviderError(t *testing.T) {
	provider := &scriptedProvider{
		errs:      []error{&ai.StatusError{StatusCode: 503, Body: "busy"}, nil},
		responses: []string{"", validQuizJSON},
	}
	gen := NewQuizGenerator(provider)

	result, err := gen.Generate(context.Background(), "material", GenerateQuizParams{QuestionCount: 5}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, result.LLMCalls)
	assert.Contains(t, provider.requests[1].Messages[0].Content, "Write 5 ")
}

func TestBuildQuizModel(t *testing.T) {
	docID := uint(4)
	generated := &GeneratedQuiz{Questions: []GeneratedQuestion{sampleQuestion("A", 0), sampleQuestion("B", 3)}}
	generated.Questions[1].Topic = "Channels"

	quiz := BuildQuizModel(9, &docID, "Notes quiz", generated, GenerateQuizParams{Difficulty: model.DifficultyHard, TimeLimitSeconds: 600}, model.QuizSourceGenerated)

	assert.Equal(t, "Notes quiz", quiz.Title)
	assert.Equal(t, 2, quiz.QuestionCount)
	assert.Equal(t, 600, quiz.TimeLimitSeconds)
	assert.Equal(t, []string{"Go", "Channels"}, []string(quiz.Topics))
	require.Len(t, quiz.Questions, 2)
	assert.Equal(t, 2, quiz.Questions[1].Position)
	assert.True(t, quiz.Questions[1].Options[3].IsCorrect)
	assert.Equal(t, 4, quiz.Questions[1].Options[3].Position)
}
