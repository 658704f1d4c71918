// Package llm adapts an OpenAI-compatible chat completion API to the
// chatbot's single Generate call.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openaigo "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	cache "github.com/patrickmn/go-cache"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4o-mini"
	DefaultTimeout = 30 * time.Second

	// memoryTurns is how many prior messages per session are replayed.
	memoryTurns  = 6
	memoryExpiry = 2 * time.Hour
)

var (
	// ErrNotConfigured is returned when no API key is set.
	ErrNotConfigured = errors.New("generation provider not configured")
	// ErrEmptyCompletion is returned when the provider answers with no text.
	ErrEmptyCompletion = errors.New("generation provider returned empty completion")
)

// Generator turns a system prompt and a user message into reply text.
// Implementations must return an error rather than partial text.
type Generator interface {
	Generate(ctx context.Context, sessionID, systemPrompt, userMessage string) (string, error)
}

// Config holds provider settings.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	MaxRetries int
	HTTPClient *http.Client
}

// OpenAI implements Generator with the openai-go client. It keeps a short
// per-session exchange history so follow-up questions keep their context.
type OpenAI struct {
	client  openaigo.Client
	model   string
	timeout time.Duration
	ready   bool
	memory  *cache.Cache
}

// NewOpenAI builds the adapter. A missing API key yields an adapter whose
// calls fail with ErrNotConfigured.
func NewOpenAI(cfg Config) *OpenAI {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	key := strings.TrimSpace(cfg.APIKey)
	return &OpenAI{
		client: openaigo.NewClient(
			option.WithBaseURL(baseURL),
			option.WithAPIKey(key),
			option.WithHTTPClient(httpClient),
			option.WithMaxRetries(cfg.MaxRetries),
			option.WithRequestTimeout(timeout),
		),
		model:   model,
		timeout: timeout,
		ready:   key != "",
		memory:  cache.New(memoryExpiry, 10*time.Minute),
	}
}

// Generate sends one completion request bounded by the configured timeout.
func (o *OpenAI) Generate(ctx context.Context, sessionID, systemPrompt, userMessage string) (string, error) {
	if !o.ready {
		return "", ErrNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	history := o.history(sessionID)
	messages := make([]openaigo.ChatCompletionMessageParamUnion, 0, len(history)+2)
	messages = append(messages, openaigo.SystemMessage(systemPrompt))
	for _, m := range history {
		if m.assistant {
			messages = append(messages, openaigo.AssistantMessage(m.text))
		} else {
			messages = append(messages, openaigo.UserMessage(m.text))
		}
	}
	messages = append(messages, openaigo.UserMessage(userMessage))

	resp, err := o.client.Chat.Completions.New(ctx, openaigo.ChatCompletionNewParams{
		Model:    openaigo.ChatModel(o.model),
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyCompletion
	}

	o.remember(sessionID, userMessage, text)
	return text, nil
}

type turn struct {
	assistant bool
	text      string
}

func (o *OpenAI) history(sessionID string) []turn {
	if sessionID == "" {
		return nil
	}
	if v, ok := o.memory.Get(sessionID); ok {
		return v.([]turn)
	}
	return nil
}

func (o *OpenAI) remember(sessionID, user, assistant string) {
	if sessionID == "" {
		return
	}
	turns := append(append([]turn(nil), o.history(sessionID)...),
		turn{text: user}, turn{assistant: true, text: assistant})
	if len(turns) > memoryTurns {
		turns = turns[len(turns)-memoryTurns:]
	}
	o.memory.Set(sessionID, turns, cache.DefaultExpiration)
}

// Forget drops the replay history for a session.
func (o *OpenAI) Forget(sessionID string) {
	o.memory.Delete(sessionID)
}
