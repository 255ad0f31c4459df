package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unihelp/internal/domain"
)

func TestCompleteSendsMessagesAndOptions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		var req struct {
			Model       string  `json:"model"`
			Temperature float32 `json:"temperature"`
			MaxTokens   int     `json:"max_tokens"`
			Messages    []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req.Model)
		assert.InDelta(t, 0.3, req.Temperature, 1e-6)
		assert.Equal(t, 800, req.MaxTokens)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "QUESTION: ?", req.Messages[1].Content)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"Bonjour"},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":1,"total_tokens":4}}`))
	}))
	defer srv.Close()

	c, err := NewOpenAI(Config{BaseURL: srv.URL, APIKey: "sk"}, nil)
	require.NoError(t, err)
	out, err := c.Complete(context.Background(), []Message{
		{Role: RoleSystem, Content: "persona"},
		{Role: RoleUser, Content: "QUESTION: ?"},
	}, Options{Temperature: 0.3, MaxTokens: 800})
	require.NoError(t, err)
	assert.Equal(t, "Bonjour", out)
}

func TestCompleteErrors(t *testing.T) {
	tests := map[string]http.HandlerFunc{
		"server error": func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
		},
		"no choices": func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"x","choices":[]}`))
		},
	}
	for name, h := range tests {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(h)
			defer srv.Close()
			c, err := NewOpenAI(Config{BaseURL: srv.URL, APIKey: "sk"}, nil)
			require.NoError(t, err)
			_, err = c.Complete(context.Background(), []Message{{Role: RoleUser, Content: "x"}}, Options{})
			assert.ErrorIs(t, err, domain.ErrCompletionService)
		})
	}
}

func TestNewOpenAIRequiresKey(t *testing.T) {
	_, err := NewOpenAI(Config{}, nil)
	assert.Error(t, err)
}
