// Package models wraps the AI provider SDKs behind a small common surface:
// a Provider interface for plain text generation, an OpenAI client with
// retrying transport and usage tracking, and a Manager that routes service
// requests to the configured model.
package models

import (
	"context"
	"fmt"
)

// Provider is the minimal text-generation contract every backend satisfies.
type Provider interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// NewProvider builds a chat provider by name. The OpenAI path returns the
// full client; the others are chat-only.
func NewProvider(ctx context.Context, provider, model, promptPrefix string) (Provider, error) {
	switch provider {
	case "openai":
		return NewOpenAIProvider(model, promptPrefix), nil
	case "gemini", "google":
		return NewGeminiProvider(ctx, model, promptPrefix)
	case "ollama":
		return NewOllamaProvider(model, promptPrefix)
	case "anthropic", "claude":
		return NewAnthropicProvider(model, promptPrefix), nil
	case "dummy":
		return NewDummyProvider(promptPrefix), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}
}

// UpstreamError marks a failure that originated in a provider API rather
// than in this process.
type UpstreamError struct {
	Provider string
	Err      error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func upstream(provider string, err error) error {
	if err == nil {
		return nil
	}
	return &UpstreamError{Provider: provider, Err: err}
}
