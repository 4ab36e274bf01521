package translate

import (
	"context"
)

// Request is one translation unit sent to a provider. Text carries the
// chunk content, SystemPrompt the instructions and surrounding context.
type Request struct {
	Text         string
	SystemPrompt string
}

// Result is a completed translation with its token accounting.
type Result struct {
	Text       string
	TokensUsed int
}

// Provider translates text through one backend. Implementations tag
// every failure with an error category so callers can decide retry
// policy without inspecting provider-specific error types.
type Provider interface {
	Translate(ctx context.Context, req Request) (Result, error)
	Name() string
}

// Config holds the provider-independent request parameters.
type Config struct {
	Model       string
	MaxTokens   int
	Temperature float32
	Timeout     int // seconds per request, 0 means no deadline
}

// DefaultConfig returns the translation request defaults.
func DefaultConfig() Config {
	return Config{
		Model:       "gpt-4o-mini",
		MaxTokens:   4096,
		Temperature: 0.3,
		Timeout:     120,
	}
}
