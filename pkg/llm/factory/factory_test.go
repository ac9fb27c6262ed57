package factory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"chatserver-be/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLLMProvider(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"ollama default url", Config{Provider: "ollama", Model: "llama3"}, false},
		{"openai with key", Config{Provider: "openai", APIKey: "sk-test"}, false},
		{"openai compatible endpoint", Config{Provider: "openai", BaseURL: "http://vllm:8000/v1"}, false},
		{"openai unconfigured", Config{Provider: "openai"}, true},
		{"unknown", Config{Provider: "snowflake-cortex"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewLLMProvider(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, p)
		})
	}
}

func TestOllamaGenerateSendsSystemPrompt(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"model":"llama3","message":{"role":"assistant","content":"SELECT 1"},"done":true}`))
	}))
	defer srv.Close()

	p, err := NewLLMProvider(Config{Provider: "ollama", Model: "llama3", BaseURL: srv.URL})
	require.NoError(t, err)

	out, err := p.Generate(context.Background(), "count orders", llm.WithSystemPrompt("sql only"))
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", out)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "count orders", got.Messages[1].Content)
}

func TestOpenAIGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"` + "```sql\\nSELECT 1\\n```" + `"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	p, err := NewLLMProvider(Config{Provider: "openai", APIKey: "sk-test", BaseURL: srv.URL + "/v1", Model: "gpt-4o-mini"})
	require.NoError(t, err)

	out, err := p.Generate(context.Background(), "count orders")
	require.NoError(t, err)
	assert.Equal(t, "```sql\nSELECT 1\n```", out)
}

func TestOllamaErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	p, err := NewLLMProvider(Config{Provider: "ollama", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = p.Generate(context.Background(), "x")
	assert.Error(t, err)
}
