package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sahilchouksey/studyquiz-api/model"
	"github.com/sahilchouksey/studyquiz-api/services/ai"
	"github.com/sahilchouksey/studyquiz-api/utils"
	"github.com/sirupsen/logrus"
)

// Generation limits
const (
	MaxPromptSourceChars = 24000
	MaxGenerationTries   = 3
	MinQuestionCount     = 3
	MaxQuestionCount     = 30
	QuizTemperature      = 0.2
)

var (
	ErrNoUsableQuestions = errors.New("no usable questions in model output")
	ErrQuizParse         = errors.New("model output is not a quiz document")
)

// GenerateQuizParams are the knobs a student picks for a generated quiz
type GenerateQuizParams struct {
	QuestionCount    int              `json:"question_count"`
	Difficulty       model.Difficulty `json:"difficulty"`
	FocusTopic       string           `json:"focus_topic,omitempty"`
	TimeLimitSeconds int              `json:"time_limit_seconds"`
}

// GeneratedOption is one option as produced by the model
type GeneratedOption struct {
	Text        string `json:"text" validate:"required"`
	IsCorrect   bool   `json:"is_correct"`
	Explanation string `json:"explanation,omitempty"`
}

// GeneratedQuestion is one question as produced by the model
type GeneratedQuestion struct {
	Text        string            `json:"text" validate:"required"`
	Topic       string            `json:"topic,omitempty"`
	Difficulty  model.Difficulty  `json:"difficulty,omitempty"`
	Explanation string            `json:"explanation,omitempty"`
	Options     []GeneratedOption `json:"options" validate:"required,len=4,dive"`
}

// GeneratedQuiz is the JSON document the model is asked to return
type GeneratedQuiz struct {
	Title       string              `json:"title"`
	Description string              `json:"description,omitempty"`
	Questions   []GeneratedQuestion `json:"questions"`
}

// DroppedQuestion records why a question did not survive validation
type DroppedQuestion struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// GenerationResult is the outcome of a successful generation
type GenerationResult struct {
	Quiz     *GeneratedQuiz
	LLMCalls int
	Dropped  int
}

// GenerationPhaseFunc is told when the generator moves to a new phase
type GenerationPhaseFunc func(phase, message string)

const quizSystemPrompt = `You are an expert teacher writing multiple-choice quizzes from study material.

Rules:
1. Use only facts stated in the provided material.
2. Each question must have exactly 4 options with exactly one correct answer.
3. Never use "all of the above" or "none of the above" as an option.
4. Make incorrect options plausible, similar in length and style to the correct one.
5. Give every question a short topic label so results can be grouped by topic.
6. Explain in one or two sentences why the correct answer is correct.

Respond with a JSON object of exactly this shape:
{
  "title": "Descriptive quiz title",
  "description": "One sentence describing what the quiz covers",
  "questions": [
    {
      "text": "Question text?",
      "topic": "Topic label",
      "difficulty": "easy | medium | hard",
      "explanation": "Why the correct answer is correct",
      "options": [
        {"text": "Option A", "is_correct": false, "explanation": "Why A is wrong"},
        {"text": "Option B", "is_correct": true, "explanation": "Why B is right"},
        {"text": "Option C", "is_correct": false, "explanation": "Why C is wrong"},
        {"text": "Option D", "is_correct": false, "explanation": "Why D is wrong"}
      ]
    }
  ]
}`

// QuizGenerator turns document text into validated quiz questions
type QuizGenerator struct {
	provider ai.Provider
	log      *logrus.Entry
}

// NewQuizGenerator creates a generator backed by provider
func NewQuizGenerator(provider ai.Provider) *QuizGenerator {
	return &QuizGenerator{provider: provider, log: utils.WithComponent("Quiz Generator")}
}

// TrimSource cuts text to at most max characters, preferring the last
// paragraph break, then the last sentence end, then the last space.
func TrimSource(text string, max int) string {
	text = strings.TrimSpace(text)
	if len(text) <= max {
		return text
	}

	cut := text[:max]
	// keep at least half the budget when backing off to a boundary
	floor := max / 2
	if i := strings.LastIndex(cut, "\n\n"); i >= floor {
		return strings.TrimSpace(cut[:i])
	}
	if i := strings.LastIndex(cut, ". "); i >= floor {
		return strings.TrimSpace(cut[:i+1])
	}
	if i := strings.LastIndexAny(cut, " \n\t"); i >= floor {
		return strings.TrimSpace(cut[:i])
	}
	return strings.ToValidUTF8(cut, "")
}

// BuildQuizPrompt assembles the provider request for one generation try
func BuildQuizPrompt(source string, params GenerateQuizParams) ai.Request {
	var b strings.Builder

	fmt.Fprintf(&b, "Write %d multiple-choice questions", params.QuestionCount)
	switch params.Difficulty {
	case model.DifficultyMixed, "":
		b.WriteString(" with a mix of easy, medium and hard difficulty")
	default:
		fmt.Fprintf(&b, " at %s difficulty", params.Difficulty)
	}
	b.WriteString(".\n")

	if topic := strings.TrimSpace(params.FocusTopic); topic != "" {
		fmt.Fprintf(&b, "Focus the questions on: %s.\n", topic)
	}

	b.WriteString("\nStudy material:\n\"\"\"\n")
	b.WriteString(TrimSource(source, MaxPromptSourceChars))
	b.WriteString("\n\"\"\"\n")

	req := ai.Prompt(quizSystemPrompt, b.String())
	req.Temperature = QuizTemperature
	req.JSON = true
	req.MaxTokens = 8192
	return req
}

// NextQuestionCount shrinks the requested count by a quarter for a retry
func NextQuestionCount(count int) int {
	next := count * 3 / 4
	if next < MinQuestionCount {
		return MinQuestionCount
	}
	return next
}

// ParseGeneratedQuiz repairs and decodes raw model output. A bare array of
// questions is accepted too.
func ParseGeneratedQuiz(raw string) (*GeneratedQuiz, error) {
	cleaned, err := utils.ExtractJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQuizParse, err)
	}

	if strings.HasPrefix(strings.TrimSpace(cleaned), "[") {
		var questions []GeneratedQuestion
		if err := json.Unmarshal([]byte(cleaned), &questions); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrQuizParse, err)
		}
		return &GeneratedQuiz{Questions: questions}, nil
	}

	var quiz GeneratedQuiz
	if err := json.Unmarshal([]byte(cleaned), &quiz); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQuizParse, err)
	}
	if quiz.Questions == nil {
		return nil, fmt.Errorf("%w: missing questions array", ErrQuizParse)
	}
	return &quiz, nil
}

// FilterQuestions normalizes questions and drops the malformed ones. At most
// limit questions are kept; limit <= 0 keeps all.
func FilterQuestions(questions []GeneratedQuestion, limit int, difficulty model.Difficulty) ([]GeneratedQuestion, []DroppedQuestion) {
	defaultDifficulty := difficulty
	if defaultDifficulty == model.DifficultyMixed || !defaultDifficulty.IsValid() {
		defaultDifficulty = model.DifficultyMedium
	}

	var kept []GeneratedQuestion
	var dropped []DroppedQuestion
	seen := make(map[string]bool)

	for i, q := range questions {
		reason := normalizeQuestion(&q, defaultDifficulty)
		if reason == "" {
			key := strings.ToLower(q.Text)
			if seen[key] {
				reason = "duplicate question text"
			} else {
				seen[key] = true
			}
		}
		if reason == "" && limit > 0 && len(kept) >= limit {
			reason = "over requested count"
		}
		if reason != "" {
			dropped = append(dropped, DroppedQuestion{Index: i, Reason: reason})
			continue
		}
		kept = append(kept, q)
	}
	return kept, dropped
}

// normalizeQuestion trims q in place and returns why it is unusable, or ""
func normalizeQuestion(q *GeneratedQuestion, defaultDifficulty model.Difficulty) string {
	q.Text = strings.TrimSpace(q.Text)
	q.Topic = strings.TrimSpace(q.Topic)
	q.Explanation = strings.TrimSpace(q.Explanation)
	q.Difficulty = model.Difficulty(strings.ToLower(strings.TrimSpace(string(q.Difficulty))))

	if q.Text == "" {
		return "empty question text"
	}
	if q.Topic == "" {
		q.Topic = "General"
	}
	if !q.Difficulty.IsValid() || q.Difficulty == model.DifficultyMixed {
		q.Difficulty = defaultDifficulty
	}

	if len(q.Options) != model.OptionsPerQuestion {
		return fmt.Sprintf("expected %d options, got %d", model.OptionsPerQuestion, len(q.Options))
	}

	correct := 0
	texts := make(map[string]bool, len(q.Options))
	for i := range q.Options {
		opt := &q.Options[i]
		opt.Text = strings.TrimSpace(opt.Text)
		opt.Explanation = strings.TrimSpace(opt.Explanation)
		if opt.Text == "" {
			return "empty option text"
		}
		key := strings.ToLower(opt.Text)
		if texts[key] {
			return "duplicate option text"
		}
		texts[key] = true
		if opt.IsCorrect {
			correct++
		}
	}
	if correct != 1 {
		return fmt.Sprintf("expected exactly one correct option, got %d", correct)
	}

	if q.Explanation == "" {
		for _, opt := range q.Options {
			if opt.IsCorrect {
				q.Explanation = opt.Explanation
			}
		}
	}
	return ""
}

// Generate calls the provider until it yields usable questions or the tries
// run out. Each failed parse or validation shrinks the requested count.
func (g *QuizGenerator) Generate(ctx context.Context, source string, params GenerateQuizParams, onPhase GenerationPhaseFunc) (*GenerationResult, error) {
	if onPhase == nil {
		onPhase = func(string, string) {}
	}

	count := params.QuestionCount
	calls := 0
	droppedTotal := 0
	var lastErr error

	for try := 1; try <= MaxGenerationTries; try++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		attempt := params
		attempt.QuestionCount = count
		logger := g.log.WithFields(logrus.Fields{"try": try, "questions": count, "provider": g.provider.Name()})

		onPhase(model.PhasePrompting, "Building prompt")
		req := BuildQuizPrompt(source, attempt)

		onPhase(model.PhaseGenerating, fmt.Sprintf("Asking the model for %d questions", count))
		calls++
		raw, err := g.provider.Complete(ctx, req)
		if err != nil {
			lastErr = fmt.Errorf("generation call failed: %w", err)
			if _, retry := ClassifyError(err); !retry {
				return nil, lastErr
			}
			logger.WithError(err).Warn("Provider call failed, retrying")
			continue
		}

		onPhase(model.PhaseParsing, "Parsing model output")
		quiz, err := ParseGeneratedQuiz(raw)
		if err != nil {
			lastErr = err
			logger.WithError(err).Warn("Unparseable model output")
			count = NextQuestionCount(count)
			continue
		}

		onPhase(model.PhaseValidating, "Validating questions")
		kept, dropped := FilterQuestions(quiz.Questions, count, params.Difficulty)
		droppedTotal += len(dropped)
		for _, d := range dropped {
			logger.WithFields(logrus.Fields{"index": d.Index, "reason": d.Reason}).Info("Dropped generated question")
		}
		if len(kept) == 0 {
			lastErr = ErrNoUsableQuestions
			logger.Warn("Model output had no usable questions")
			count = NextQuestionCount(count)
			continue
		}

		quiz.Questions = kept
		quiz.Title = strings.TrimSpace(quiz.Title)
		quiz.Description = strings.TrimSpace(quiz.Description)
		logger.WithField("kept", len(kept)).Info("Generated quiz")
		return &GenerationResult{Quiz: quiz, LLMCalls: calls, Dropped: droppedTotal}, nil
	}

	if lastErr == nil {
		lastErr = ErrNoUsableQuestions
	}
	return &GenerationResult{LLMCalls: calls, Dropped: droppedTotal}, fmt.Errorf("quiz generation failed after %d tries: %w", MaxGenerationTries, lastErr)
}

// BuildQuizModel converts validated questions into a quiz ready to insert
func BuildQuizModel(userID uint, documentID *uint, fallbackTitle string, generated *GeneratedQuiz, params GenerateQuizParams, source model.QuizSource) *model.Quiz {
	title := generated.Title
	if title == "" {
		title = fallbackTitle
	}

	quiz := &model.Quiz{
		UserID:           userID,
		DocumentID:       documentID,
		Title:            title,
		Description:      generated.Description,
		Difficulty:       params.Difficulty,
		Source:           source,
		TimeLimitSeconds: params.TimeLimitSeconds,
		QuestionCount:    len(generated.Questions),
	}
	if !quiz.Difficulty.IsValid() {
		quiz.Difficulty = model.DifficultyMixed
	}

	seenTopics := make(map[string]bool)
	for i, q := range generated.Questions {
		question := model.Question{
			Position:    i + 1,
			Text:        q.Text,
			Topic:       q.Topic,
			Difficulty:  q.Difficulty,
			Explanation: q.Explanation,
		}
		for j, o := range q.Options {
			question.Options = append(question.Options, model.Option{
				Position:    j + 1,
				Text:        o.Text,
				IsCorrect:   o.IsCorrect,
				Explanation: o.Explanation,
			})
		}
		quiz.Questions = append(quiz.Questions, question)

		if !seenTopics[q.Topic] {
			seenTopics[q.Topic] = true
			quiz.Topics = append(quiz.Topics, q.Topic)
		}
	}
	return quiz
}
