package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/sahilchouksey/studyquiz-api/model"
	"github.com/sahilchouksey/studyquiz-api/services/ai"
	"github.com/sahilchouksey/studyquiz-api/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	TutorChunkSize     = 1200
	TutorChunkOverlap  = 150
	TutorTopChunks     = 4
	TutorHistoryLength = 10
	TutorTemperature   = 0.7
	TutorMaxTokens     = 2048
	MaxTutorMessageLen = 4000
	citationSnippetLen = 200
)

var (
	ErrSessionNotFound  = errors.New("tutor session not found")
	ErrSessionArchived  = errors.New("tutor session is archived")
	ErrTutorUnavailable = errors.New("AI tutor is not configured")
	ErrEmptyMessage     = errors.New("message content is required")
	ErrMessageTooLong   = fmt.Errorf("message must be at most %d characters", MaxTutorMessageLen)
)

var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "but": true, "if": true,
	"of": true, "to": true, "in": true, "on": true, "at": true, "by": true, "for": true,
	"with": true, "from": true, "as": true, "is": true, "are": true, "was": true, "were": true,
	"be": true, "been": true, "being": true, "it": true, "its": true, "this": true, "that": true,
	"these": true, "those": true, "what": true, "which": true, "who": true, "whom": true,
	"how": true, "why": true, "when": true, "where": true, "do": true, "does": true, "did": true,
	"can": true, "could": true, "would": true, "should": true, "will": true, "shall": true,
	"i": true, "me": true, "my": true, "you": true, "your": true, "we": true, "our": true,
	"he": true, "she": true, "they": true, "them": true, "their": true, "about": true,
	"explain": true, "please": true, "tell": true, "into": true, "than": true, "then": true,
	"so": true, "not": true, "no": true, "yes": true, "there": true, "here": true, "also": true,
}

// Chunk is a slice of document text used as tutor context
type Chunk struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// ScoredChunk is a chunk ranked against a question
type ScoredChunk struct {
	Chunk
	Score int `json:"score"`
}

// MissedQuestion is a question the student got wrong or skipped
type MissedQuestion struct {
	Text        string
	Chosen      string
	Correct     string
	Explanation string
}

// ChunkText splits text into windows of size runes overlapping by overlap
// runes. Window ends are pulled back to whitespace when one is close.
func ChunkText(text string, size, overlap int) []Chunk {
	text = strings.TrimSpace(text)
	if text == "" || size <= 0 {
		return nil
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	runes := []rune(text)
	var chunks []Chunk
	for start := 0; start < len(runes); {
		end := start + size
		if end >= len(runes) {
			end = len(runes)
		} else {
			for i := end; i > start+size*3/4; i-- {
				if unicode.IsSpace(runes[i]) {
					end = i
					break
				}
			}
		}

		piece := strings.TrimSpace(string(runes[start:end]))
		if piece != "" {
			chunks = append(chunks, Chunk{Index: len(chunks), Text: piece})
		}
		if end == len(runes) {
			break
		}
		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// Tokenize lowercases text and returns its words without stop words
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if utf8.RuneCountInString(f) < 2 || stopWords[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}

// RankChunks returns the k chunks sharing the most distinct terms with the
// question, earlier chunks first on ties. Without any overlap the opening
// chunks are returned so the tutor still sees the material.
func RankChunks(chunks []Chunk, question string, k int) []ScoredChunk {
	if len(chunks) == 0 || k <= 0 {
		return nil
	}

	terms := make(map[string]bool)
	for _, t := range Tokenize(question) {
		terms[t] = true
	}

	scored := make([]ScoredChunk, 0, len(chunks))
	for _, c := range chunks {
		seen := make(map[string]bool)
		for _, t := range Tokenize(c.Text) {
			if terms[t] {
				seen[t] = true
			}
		}
		scored = append(scored, ScoredChunk{Chunk: c, Score: len(seen)})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Index < scored[j].Index
	})

	if len(scored) > k {
		scored = scored[:k]
	}
	if scored[0].Score == 0 {
		// nothing matched; scored is already in document order
		return scored
	}
	out := scored[:0]
	for _, s := range scored {
		if s.Score > 0 {
			out = append(out, s)
		}
	}
	return out
}

// BuildTutorSystemPrompt assembles the tutor instructions, excerpts and
// missed questions
func BuildTutorSystemPrompt(documentTitle string, excerpts []ScoredChunk, missed []MissedQuestion) string {
	var b strings.Builder
	b.WriteString("You are a patient study tutor helping a student understand their study material.\n")
	b.WriteString("Answer from the document excerpts below. Reference excerpts as [Excerpt N] when you use them.\n")
	b.WriteString("If the excerpts do not cover the question, say that the material does not cover it before offering general knowledge.\n")
	b.WriteString("Keep answers clear and concise, and use examples where they help.\n")

	if len(excerpts) > 0 {
		if documentTitle != "" {
			fmt.Fprintf(&b, "\nDocument: %s\n", documentTitle)
		}
		for _, e := range excerpts {
			fmt.Fprintf(&b, "\n[Excerpt %d]\n%s\n", e.Index+1, e.Text)
		}
	} else {
		b.WriteString("\nNo document is attached to this session.\n")
	}

	if len(missed) > 0 {
		b.WriteString("\nThe student recently missed these quiz questions. Help them understand the mistakes when relevant:\n")
		for i, m := range missed {
			fmt.Fprintf(&b, "%d. %s\n", i+1, m.Text)
			if m.Chosen != "" {
				fmt.Fprintf(&b, "   Student answered: %s\n", m.Chosen)
			} else {
				b.WriteString("   Student did not answer\n")
			}
			fmt.Fprintf(&b, "   Correct answer: %s\n", m.Correct)
			if m.Explanation != "" {
				fmt.Fprintf(&b, "   Explanation: %s\n", m.Explanation)
			}
		}
	}
	return b.String()
}

// CitationsFor turns the excerpts used for an answer into stored citations
func CitationsFor(excerpts []ScoredChunk) model.Citations {
	citations := make(model.Citations, 0, len(excerpts))
	for _, e := range excerpts {
		snippet := e.Text
		if utf8.RuneCountInString(snippet) > citationSnippetLen {
			snippet = string([]rune(snippet)[:citationSnippetLen]) + "..."
		}
		citations = append(citations, model.Citation{
			ChunkIndex: e.Index,
			Snippet:    snippet,
			Score:      float64(e.Score),
		})
	}
	return citations
}

// MissedQuestions lists wrong or unanswered questions of a graded attempt
func MissedQuestions(review []QuestionReview) []MissedQuestion {
	var missed []MissedQuestion
	for _, r := range review {
		if r.IsCorrect {
			continue
		}
		m := MissedQuestion{Text: r.Text, Explanation: r.Explanation}
		for _, o := range r.Options {
			if o.ID == r.CorrectOptionID {
				m.Correct = o.Text
			}
			if r.SelectedOptionID != nil && o.ID == *r.SelectedOptionID {
				m.Chosen = o.Text
			}
		}
		missed = append(missed, m)
	}
	return missed
}

// ValidateTutorMessage trims and bounds a student message
func ValidateTutorMessage(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrEmptyMessage
	}
	if utf8.RuneCountInString(content) > MaxTutorMessageLen {
		return "", ErrMessageTooLong
	}
	return content, nil
}

// CreateTutorSessionRequest opens a tutor session
type CreateTutorSessionRequest struct {
	UserID     uint
	DocumentID *uint
	AttemptID  *uint
	Title      string
}

// TutorReply is the stored pair of messages for one exchange
type TutorReply struct {
	UserMessage      *model.TutorMessage `json:"user_message"`
	AssistantMessage *model.TutorMessage `json:"assistant_message"`
}

// tutorTurn carries everything needed to answer one message
type tutorTurn struct {
	session     *model.TutorSession
	userMessage *model.TutorMessage
	request     ai.Request
	excerpts    []ScoredChunk
}

// TutorService handles AI tutor sessions
type TutorService struct {
	db       *gorm.DB
	provider ai.Provider
	attempts *AttemptService
	log      *logrus.Entry
}

// NewTutorService creates a tutor service. provider may be nil, in which
// case sending messages fails with ErrTutorUnavailable.
func NewTutorService(db *gorm.DB, provider ai.Provider, attempts *AttemptService) *TutorService {
	return &TutorService{
		db:       db,
		provider: provider,
		attempts: attempts,
		log:      utils.WithComponent("Tutor"),
	}
}

// Enabled reports whether an AI provider is configured
func (s *TutorService) Enabled() bool {
	return s.provider != nil
}

// CreateSession creates a new tutor session
func (s *TutorService) CreateSession(ctx context.Context, req CreateTutorSessionRequest) (*model.TutorSession, error) {
	db := s.db.WithContext(ctx)
	documentID := req.DocumentID

	if req.AttemptID != nil {
		var attempt model.QuizAttempt
		if err := db.Preload("Quiz", func(tx *gorm.DB) *gorm.DB { return tx.Unscoped() }).
			Where("id = ? AND user_id = ?", *req.AttemptID, req.UserID).
			First(&attempt).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrAttemptNotFound
			}
			return nil, fmt.Errorf("failed to fetch attempt: %w", err)
		}
		if documentID == nil && attempt.Quiz != nil {
			documentID = attempt.Quiz.DocumentID
		}
	}

	title := strings.TrimSpace(req.Title)
	if documentID != nil {
		var doc model.Document
		if err := db.Select("id", "title").
			Where("id = ? AND user_id = ?", *documentID, req.UserID).
			First(&doc).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrDocumentNotFound
			}
			return nil, fmt.Errorf("failed to fetch document: %w", err)
		}
		if title == "" {
			title = fmt.Sprintf("Tutor: %s", doc.Title)
		}
	}
	if title == "" {
		title = fmt.Sprintf("Tutor session - %s", time.Now().Format("Jan 2, 2006"))
	}

	session := model.TutorSession{
		UserID:     req.UserID,
		DocumentID: documentID,
		AttemptID:  req.AttemptID,
		Title:      title,
	}
	if err := db.Omit("User", "Document", "Attempt").Create(&session).Error; err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return &session, nil
}

// ListSessions returns the user's sessions, most recently active first
func (s *TutorService) ListSessions(ctx context.Context, userID uint, includeArchived bool, limit, offset int) ([]model.TutorSession, int64, error) {
	query := s.db.WithContext(ctx).Model(&model.TutorSession{}).Where("user_id = ?", userID)
	if !includeArchived {
		query = query.Where("is_archived = ?", false)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count sessions: %w", err)
	}

	var sessions []model.TutorSession
	if err := query.Order("COALESCE(last_message_at, created_at) DESC").
		Limit(limit).Offset(offset).
		Find(&sessions).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch sessions: %w", err)
	}
	return sessions, total, nil
}

// GetSession returns a session owned by userID
func (s *TutorService) GetSession(ctx context.Context, sessionID, userID uint) (*model.TutorSession, error) {
	var session model.TutorSession
	if err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", sessionID, userID).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to fetch session: %w", err)
	}
	return &session, nil
}

// GetSessionMessages returns a page of a session's messages, oldest first
func (s *TutorService) GetSessionMessages(ctx context.Context, sessionID, userID uint, limit, offset int) ([]model.TutorMessage, int64, error) {
	if _, err := s.GetSession(ctx, sessionID, userID); err != nil {
		return nil, 0, err
	}

	var total int64
	if err := s.db.WithContext(ctx).Model(&model.TutorMessage{}).
		Where("session_id = ?", sessionID).
		Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count messages: %w", err)
	}

	var messages []model.TutorMessage
	query := s.db.WithContext(ctx).Where("session_id = ?", sessionID).Order("created_at ASC, id ASC")
	if limit > 0 {
		query = query.Limit(limit).Offset(offset)
	}
	if err := query.Find(&messages).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch messages: %w", err)
	}
	return messages, total, nil
}

// SetArchived archives or restores a session
func (s *TutorService) SetArchived(ctx context.Context, sessionID, userID uint, archived bool) (*model.TutorSession, error) {
	session, err := s.GetSession(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(session).Update("is_archived", archived).Error; err != nil {
		return nil, fmt.Errorf("failed to archive session: %w", err)
	}
	session.IsArchived = archived
	return session, nil
}

// DeleteSession deletes a session and its messages
func (s *TutorService) DeleteSession(ctx context.Context, sessionID, userID uint) error {
	session, err := s.GetSession(ctx, sessionID, userID)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", session.ID).Delete(&model.TutorMessage{}).Error; err != nil {
			return fmt.Errorf("failed to delete messages: %w", err)
		}
		if err := tx.Delete(session).Error; err != nil {
			return fmt.Errorf("failed to delete session: %w", err)
		}
		return nil
	})
}

// prepare stores the student message and builds the completion request
func (s *TutorService) prepare(ctx context.Context, sessionID, userID uint, content string) (*tutorTurn, error) {
	if s.provider == nil {
		return nil, ErrTutorUnavailable
	}
	content, err := ValidateTutorMessage(content)
	if err != nil {
		return nil, err
	}

	session, err := s.GetSession(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if session.IsArchived {
		return nil, ErrSessionArchived
	}
	db := s.db.WithContext(ctx)

	// History is read before the new message is stored
	var history []model.TutorMessage
	if err := db.Where("session_id = ? AND content <> ''", sessionID).
		Order("created_at DESC, id DESC").
		Limit(TutorHistoryLength).
		Find(&history).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch conversation history: %w", err)
	}

	var (
		excerpts []ScoredChunk
		docTitle string
	)
	if session.DocumentID != nil {
		var doc model.Document
		err := db.Select("id", "title", "extracted_text", "extraction_status").First(&doc, *session.DocumentID).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to fetch document: %w", err)
		}
		if err == nil && doc.HasText() {
			docTitle = doc.Title
			excerpts = RankChunks(ChunkText(doc.ExtractedText, TutorChunkSize, TutorChunkOverlap), content, TutorTopChunks)
		}
	}

	var missed []MissedQuestion
	if session.AttemptID != nil && s.attempts != nil {
		result, err := s.attempts.GetResult(ctx, *session.AttemptID, userID)
		switch {
		case err == nil:
			missed = MissedQuestions(result.Review)
		case errors.Is(err, ErrAttemptInProgress), errors.Is(err, ErrAttemptNotFound):
		default:
			s.log.WithError(err).WithField("session_id", sessionID).Warn("Failed to load attempt review")
		}
	}

	userMessage := &model.TutorMessage{
		SessionID: sessionID,
		UserID:    userID,
		Role:      model.MessageRoleUser,
		Content:   content,
		Status:    model.MessageStatusComplete,
	}
	if err := s.store(ctx, session, userMessage); err != nil {
		return nil, err
	}

	req := ai.Request{
		System:      BuildTutorSystemPrompt(docTitle, excerpts, missed),
		Temperature: TutorTemperature,
		MaxTokens:   TutorMaxTokens,
	}
	for i := len(history) - 1; i >= 0; i-- {
		role := ai.RoleUser
		if history[i].Role == model.MessageRoleAssistant {
			role = ai.RoleAssistant
		}
		req.Messages = append(req.Messages, ai.Message{Role: role, Content: history[i].Content})
	}
	req.Messages = append(req.Messages, ai.Message{Role: ai.RoleUser, Content: content})

	return &tutorTurn{session: session, userMessage: userMessage, request: req, excerpts: excerpts}, nil
}

// store saves a message and bumps the session counters
func (s *TutorService) store(ctx context.Context, session *model.TutorSession, message *model.TutorMessage) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(message).Error; err != nil {
			return fmt.Errorf("failed to save %s message: %w", message.Role, err)
		}
		if err := tx.Model(session).Updates(map[string]interface{}{
			"message_count":   gorm.Expr("message_count + ?", 1),
			"last_message_at": message.CreatedAt,
		}).Error; err != nil {
			return fmt.Errorf("failed to update session: %w", err)
		}
		return nil
	})
}

func (s *TutorService) finish(ctx context.Context, turn *tutorTurn, content string, started time.Time, streamed bool, cause error) (*TutorReply, error) {
	assistant := &model.TutorMessage{
		SessionID:    turn.session.ID,
		UserID:       turn.session.UserID,
		Role:         model.MessageRoleAssistant,
		Content:      content,
		Citations:    CitationsFor(turn.excerpts),
		ModelUsed:    s.provider.Name(),
		ResponseTime: int(time.Since(started).Milliseconds()),
		IsStreamed:   streamed,
		Status:       model.MessageStatusComplete,
	}
	if cause != nil {
		assistant.MarkAsPartial(cause.Error())
	}

	// the request context may already be gone when the client disconnected
	if err := s.store(context.WithoutCancel(ctx), turn.session, assistant); err != nil {
		return nil, err
	}
	return &TutorReply{UserMessage: turn.userMessage, AssistantMessage: assistant}, nil
}

// SendMessage answers a student message in one response
func (s *TutorService) SendMessage(ctx context.Context, sessionID, userID uint, content string) (*TutorReply, error) {
	turn, err := s.prepare(ctx, sessionID, userID, content)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	answer, err := s.provider.Complete(ctx, turn.request)
	if err != nil {
		s.log.WithError(err).WithField("session_id", sessionID).Error("Tutor completion failed")
		return nil, fmt.Errorf("failed to get AI response: %w", err)
	}
	return s.finish(ctx, turn, answer, started, false, nil)
}

// StreamMessage answers a student message chunk by chunk. When the stream
// breaks off after some text, that text is stored as a partial message and
// returned together with the error.
func (s *TutorService) StreamMessage(ctx context.Context, sessionID, userID uint, content string, onChunk func(string) error) (*TutorReply, error) {
	turn, err := s.prepare(ctx, sessionID, userID, content)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	answer, streamErr := s.provider.Stream(ctx, turn.request, onChunk)
	if streamErr != nil && strings.TrimSpace(answer) == "" {
		s.log.WithError(streamErr).WithField("session_id", sessionID).Error("Tutor stream failed")
		return nil, fmt.Errorf("failed to get AI response: %w", streamErr)
	}

	reply, err := s.finish(ctx, turn, answer, started, true, streamErr)
	if err != nil {
		return nil, err
	}
	if streamErr != nil {
		s.log.WithError(streamErr).WithField("session_id", sessionID).Warn("Tutor stream interrupted, partial answer stored")
		return reply, streamErr
	}
	return reply, nil
}
