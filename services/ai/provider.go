package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Message roles understood by every provider
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	ErrNotConfigured = errors.New("AI provider is not configured")
	ErrEmptyResponse = errors.New("AI provider returned an empty response")
)

// Message is one turn of a conversation
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a provider-neutral completion request
type Request struct {
	System      string
	Messages    []Message
	Temperature float32
	MaxTokens   int
	JSON        bool // ask for a raw JSON document
}

// Prompt builds a single-turn request
func Prompt(system, user string) Request {
	return Request{
		System:   system,
		Messages: []Message{{Role: RoleUser, Content: user}},
	}
}

// Provider is a text generation backend
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
	// Stream calls onChunk for each fragment and returns the full text. When
	// onChunk returns an error the stream stops and the text so far is
	// returned together with that error.
	Stream(ctx context.Context, req Request, onChunk func(chunk string) error) (string, error)
}

// Config selects and configures a provider
type Config struct {
	Provider        string // gemini | inference
	GeminiAPIKey    string
	GeminiModel     string
	InferenceAPIKey string
	InferenceModel  string
	InferenceURL    string
}

// NewProvider builds the provider named in cfg
func NewProvider(ctx context.Context, cfg Config) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "gemini":
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("%w: GEMINI_API_KEY is empty", ErrNotConfigured)
		}
		return NewGeminiProvider(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	case "inference", "digitalocean":
		if cfg.InferenceAPIKey == "" {
			return nil, fmt.Errorf("%w: DO_INFERENCE_API_KEY is empty", ErrNotConfigured)
		}
		return NewInferenceClient(InferenceConfig{
			APIKey:  cfg.InferenceAPIKey,
			Model:   cfg.InferenceModel,
			BaseURL: cfg.InferenceURL,
		}), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrNotConfigured, cfg.Provider)
	}
}

// jsonInstruction is appended to the system prompt for providers without a
// native JSON mode
const jsonInstruction = "\n\nYou MUST respond with valid JSON only. Do not include markdown formatting, code fences, or explanatory text."
