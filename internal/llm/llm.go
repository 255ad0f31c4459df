// Package llm generates chat completions for the answer assembler.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"unihelp/internal/domain"
	"unihelp/internal/logging"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    string
	Content string
}

// Options tune a single completion call.
type Options struct {
	Temperature float32
	MaxTokens   int
}

// Completer produces the assistant reply to a list of messages.
type Completer interface {
	Complete(ctx context.Context, messages []Message, opts Options) (string, error)
}

// Config configures the OpenAI chat client.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// OpenAI is a Completer backed by an OpenAI-compatible chat endpoint.
type OpenAI struct {
	api    *openai.Client
	model  string
	logger *zap.Logger
}

var _ Completer = (*OpenAI)(nil)

func NewOpenAI(cfg Config, logger *zap.Logger) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai chat: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &OpenAI{
		api:    openai.NewClientWithConfig(oc),
		model:  cfg.Model,
		logger: logging.Or(logger).With(zap.String("component", "llm"), zap.String("model", cfg.Model)),
	}, nil
}

func (o *OpenAI) Model() string { return o.model }

func (o *OpenAI) Complete(ctx context.Context, messages []Message, opts Options) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    make([]openai.ChatCompletionMessage, len(messages)),
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}
	for i, m := range messages {
		req.Messages[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	started := time.Now()
	resp, err := o.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrCompletionService, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no completion choices returned", domain.ErrCompletionService)
	}
	o.logger.Debug("completion",
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("took", time.Since(started)))
	return resp.Choices[0].Message.Content, nil
}
