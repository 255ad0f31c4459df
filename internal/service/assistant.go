package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"unihelp/internal/domain"
	"unihelp/internal/llm"
	"unihelp/internal/logging"
	"unihelp/internal/metrics"
	"unihelp/internal/vectorstore"
)

const (
	DefaultTopK           = 5
	DefaultMaxCharsPerHit = 500
	DefaultFallbackChars  = 600

	answerTemperature = 0.3
	chatTemperature   = 0.4
	answerMaxTokens   = 800
	chatHistoryLimit  = 6
)

// AssistantConfig tunes retrieval and context assembly. Zero values select
// the defaults.
type AssistantConfig struct {
	TopK           int
	MaxCharsPerHit int
	FallbackChars  int
	Temperature    float32
	MaxTokens      int
}

// Answer is a generated reply together with the passages behind it.
type Answer struct {
	Text        string                `json:"answer"`
	Sources     []string              `json:"sources"`
	ContextUsed bool                  `json:"context_used"`
	Fallback    bool                  `json:"fallback"`
	Results     []domain.SearchResult `json:"results,omitempty"`
}

// Assistant answers questions from retrieved passages. Without a completer,
// or when generation fails, it returns the retrieved context itself.
type Assistant struct {
	store     vectorstore.Store
	completer llm.Completer
	cfg       AssistantConfig
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// NewAssistant wires an assistant. completer may be nil.
func NewAssistant(store vectorstore.Store, completer llm.Completer, cfg AssistantConfig, logger *zap.Logger, m *metrics.Metrics) *Assistant {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.MaxCharsPerHit <= 0 {
		cfg.MaxCharsPerHit = DefaultMaxCharsPerHit
	}
	if cfg.FallbackChars <= 0 {
		cfg.FallbackChars = DefaultFallbackChars
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = answerTemperature
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = answerMaxTokens
	}
	return &Assistant{
		store:     store,
		completer: completer,
		cfg:       cfg,
		logger:    logging.Or(logger).With(zap.String("component", "assistant")),
		metrics:   m,
	}
}

// RetrieveContext searches for the k best passages and formats them as a
// labelled context block.
func (a *Assistant) RetrieveContext(ctx context.Context, question string, k int) (string, []domain.SearchResult, error) {
	if k <= 0 {
		k = a.cfg.TopK
	}
	results, err := a.store.Search(ctx, question, k)
	if err != nil {
		return "", nil, fmt.Errorf("search: %w", err)
	}
	return a.formatContext(results), results, nil
}

func (a *Assistant) formatContext(results []domain.SearchResult) string {
	if len(results) == 0 {
		return noDocumentsMessage
	}
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = fmt.Sprintf("[Document %d - %s]\n%s", i+1, sourceName(r), truncateRunes(r.Text, a.cfg.MaxCharsPerHit))
	}
	return strings.Join(parts, "\n\n")
}

// Answer retrieves context for question and asks the completer for a reply.
// Generation failures degrade to a fallback answer instead of an error.
func (a *Assistant) Answer(ctx context.Context, question string) (Answer, error) {
	contextText, results, err := a.RetrieveContext(ctx, question, a.cfg.TopK)
	if err != nil {
		return Answer{}, err
	}
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: userPrompt(contextText, question)},
	}
	return a.generate(ctx, "answer", messages, contextText, results, llm.Options{
		Temperature: a.cfg.Temperature,
		MaxTokens:   a.cfg.MaxTokens,
	}), nil
}

// Chat is Answer with conversation memory. Only the last few history
// messages are sent.
func (a *Assistant) Chat(ctx context.Context, question string, history []llm.Message) (Answer, error) {
	contextText, results, err := a.RetrieveContext(ctx, question, a.cfg.TopK)
	if err != nil {
		return Answer{}, err
	}
	if len(history) > chatHistoryLimit {
		history = history[len(history)-chatHistoryLimit:]
	}
	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: userPrompt(contextText, question)})

	return a.generate(ctx, "chat", messages, contextText, results, llm.Options{
		Temperature: chatTemperature,
		MaxTokens:   a.cfg.MaxTokens,
	}), nil
}

func (a *Assistant) generate(ctx context.Context, mode string, messages []llm.Message, contextText string, results []domain.SearchResult, opts llm.Options) Answer {
	sources := extractSources(results)
	ans := Answer{
		Sources:     sources,
		ContextUsed: len(sources) > 0,
		Results:     results,
	}

	if a.completer == nil {
		a.logger.Warn("no completion provider configured, returning retrieved context")
		return a.fallback(ans, contextText)
	}
	text, err := a.completer.Complete(ctx, messages, opts)
	if err != nil {
		a.logger.Warn("completion failed, returning retrieved context", zap.Error(err))
		return a.fallback(ans, contextText)
	}
	ans.Text = text
	a.metrics.Answered(mode)
	return ans
}

func (a *Assistant) fallback(ans Answer, contextText string) Answer {
	ans.Text = truncateRunes(contextText, a.cfg.FallbackChars)
	ans.Fallback = true
	a.metrics.Answered("fallback")
	return ans
}

// extractSources returns the document names behind results, once each, in
// order of first appearance.
func extractSources(results []domain.SearchResult) []string {
	seen := make(map[string]struct{})
	sources := []string{}
	for _, r := range results {
		name := sourceName(r)
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		sources = append(sources, name)
	}
	return sources
}

func sourceName(r domain.SearchResult) string {
	if r.Metadata.Source == "" {
		return unknownSource
	}
	return r.Metadata.Source
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
