// Package llm provides interfaces and implementations for Large Language Model clients.
//
// The backend (ollama, openai, mock) is a closed set chosen once at process
// start via New; business logic only ever sees the LLM interface.
package llm

import (
	"context"
	"fmt"
)

// GenerateOptions configures the LLM generation request.
type GenerateOptions struct {
	// Model specifies the LLM model to use (e.g., "llama3.2", "gpt-4o-mini").
	Model string

	// SystemPrompt sets the system-level instructions for the model.
	SystemPrompt string

	// Temperature controls randomness in generation (0.0 = deterministic).
	Temperature float32

	// MaxTokens limits the maximum number of tokens in the response.
	MaxTokens int
}

// StreamChunk represents a single chunk of streamed response from the LLM.
type StreamChunk struct {
	// Token contains the generated text fragment.
	Token string

	// Done indicates whether this is the final chunk in the stream.
	Done bool

	// Error contains any error that occurred during streaming.
	Error error
}

// LLM defines the interface for Large Language Model clients.
type LLM interface {
	// Generate sends a prompt to the LLM and returns the complete response.
	// It blocks until the full response is received or an error occurs.
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)

	// GenerateStream sends a prompt to the LLM and returns a channel that
	// streams response chunks as they are generated. The channel is closed
	// when generation completes or an error occurs.
	GenerateStream(ctx context.Context, prompt string, opts GenerateOptions) (<-chan StreamChunk, error)
}

// BackendConfig selects and configures a concrete LLM backend.
type BackendConfig struct {
	// Backend is one of "ollama", "openai", "mock".
	Backend string

	// OllamaURL and OllamaModel configure the ollama backend.
	OllamaURL   string
	OllamaModel string

	// OpenAIBaseURL, OpenAIAPIKey and OpenAIModel configure the openai
	// backend. OpenAIBaseURL may point at any OpenAI-compatible server.
	OpenAIBaseURL string
	OpenAIAPIKey  string
	OpenAIModel   string
}

// New creates the configured LLM backend. Unknown backend names are a
// configuration error; they are rejected here, once, at startup.
func New(cfg BackendConfig) (LLM, error) {
	switch cfg.Backend {
	case "ollama":
		return NewOllamaClient(
			WithBaseURL(cfg.OllamaURL),
			WithModel(cfg.OllamaModel),
		), nil
	case "openai":
		return NewOpenAIClient(OpenAIConfig{
			BaseURL: cfg.OpenAIBaseURL,
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
		}), nil
	case "mock":
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unknown LLM backend %q", cfg.Backend)
	}
}
