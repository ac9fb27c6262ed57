package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"chatserver-be/pkg/llm"
)

const (
	// DefaultKeepAlive keeps the model resident between questions so a
	// thread's follow-up does not pay the load time again.
	DefaultKeepAlive = "10m"
	// DefaultSeed pins sampling so the same question yields the same SQL.
	DefaultSeed = 42
	// DefaultContextWindow fits the system prompt, the schema context and
	// the question.
	DefaultContextWindow = 8192
)

var (
	// ErrTruncated means the model hit its token budget mid-answer. A cut-off
	// statement must never reach the SQL gate as if it were complete.
	ErrTruncated = errors.New("ollama response truncated")
	ErrEmpty     = errors.New("ollama returned an empty response")
)

type OllamaProvider struct {
	BaseURL       string
	ModelName     string
	KeepAlive     string
	Seed          int
	ContextWindow int
	Client        *http.Client
}

var _ llm.LLMProvider = &OllamaProvider{}

// NewOllamaProvider talks to a local Ollama server. Callers bound each
// request with a context deadline; the client timeout is only a backstop.
func NewOllamaProvider(baseURL, modelName string) *OllamaProvider {
	return &OllamaProvider{
		BaseURL:       strings.TrimRight(baseURL, "/"),
		ModelName:     modelName,
		KeepAlive:     DefaultKeepAlive,
		Seed:          DefaultSeed,
		ContextWindow: DefaultContextWindow,
		Client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

type chatRequest struct {
	Model     string         `json:"model"`
	Messages  []chatMessage  `json:"messages"`
	Stream    bool           `json:"stream"`
	KeepAlive string         `json:"keep_alive,omitempty"`
	Options   *sampleOptions `json:"options,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// sampleOptions maps to Ollama's model options. Temperature is a pointer
// because zero is meaningful and the server default is not zero.
type sampleOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	Seed        int      `json:"seed"`
	NumPredict  int      `json:"num_predict,omitempty"`
	NumCtx      int      `json:"num_ctx,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

type chatResponse struct {
	Model      string      `json:"model"`
	Message    chatMessage `json:"message"`
	Done       bool        `json:"done"`
	DoneReason string      `json:"done_reason"`
}

// Chat sends a non-streaming chat request. Sampling is greedy unless the
// caller sets a temperature, since the answer is parsed as SQL.
func (o *OllamaProvider) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	options := &llm.Options{Model: o.ModelName}
	for _, opt := range opts {
		opt(options)
	}

	messages := make([]chatMessage, len(history))
	for i, msg := range history {
		role := msg.Role
		if role == "model" {
			role = "assistant"
		}
		messages[i] = chatMessage{Role: role, Content: msg.Content}
	}

	temperature := options.Temperature
	payload, err := json.Marshal(chatRequest{
		Model:     options.Model,
		Messages:  messages,
		KeepAlive: o.KeepAlive,
		Options: &sampleOptions{
			Temperature: &temperature,
			Seed:        o.Seed,
			NumPredict:  options.MaxTokens,
			NumCtx:      o.ContextWindow,
			Stop:        options.Stop,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.BaseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama error: status %d, body: %s", resp.StatusCode, string(body))
	}

	var out chatResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if out.DoneReason == "length" {
		return "", fmt.Errorf("%w: model %s stopped at the token limit", ErrTruncated, out.Model)
	}
	if strings.TrimSpace(out.Message.Content) == "" {
		return "", ErrEmpty
	}
	return out.Message.Content, nil
}

func (o *OllamaProvider) Generate(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	return o.Chat(ctx, llm.PromptHistory(prompt, opts...), opts...)
}
