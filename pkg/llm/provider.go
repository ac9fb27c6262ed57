package llm

import (
	"context"
)

// Message represents a chat message in a provider-agnostic format
type Message struct {
	Role    string // "user", "assistant", "system"
	Content string
}

// Option allows for optional parameters like Temperature, MaxTokens, etc.
type Option func(*Options)

type Options struct {
	Temperature float64
	MaxTokens   int
	Model       string // Override default model
	System      string // System prompt prepended by Generate
	Stop        []string
}

func WithTemperature(temp float64) Option {
	return func(o *Options) {
		o.Temperature = temp
	}
}

func WithMaxTokens(n int) Option {
	return func(o *Options) {
		o.MaxTokens = n
	}
}

// WithStop ends generation at the first of the given sequences.
func WithStop(sequences ...string) Option {
	return func(o *Options) {
		o.Stop = sequences
	}
}

func WithSystemPrompt(prompt string) Option {
	return func(o *Options) {
		o.System = prompt
	}
}

// PromptHistory builds the message list Generate sends: an optional system
// message followed by the user prompt.
func PromptHistory(prompt string, options ...Option) []Message {
	var o Options
	for _, opt := range options {
		opt(&o)
	}
	history := make([]Message, 0, 2)
	if o.System != "" {
		history = append(history, Message{Role: "system", Content: o.System})
	}
	return append(history, Message{Role: "user", Content: prompt})
}

func WithModel(model string) Option {
	return func(o *Options) {
		o.Model = model
	}
}

// LLMProvider defines the contract for any text-generation backend
type LLMProvider interface {
	// Chat sends a chat history to the model and returns the response
	Chat(ctx context.Context, history []Message, options ...Option) (string, error)

	// Generate sends a single prompt to the model (convenience method)
	Generate(ctx context.Context, prompt string, options ...Option) (string, error)
}
