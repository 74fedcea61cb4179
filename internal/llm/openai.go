package llm

import (
	"context"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultOpenAIModel is the default model for the OpenAI-compatible backend.
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAIConfig holds configuration for the OpenAI-compatible backend.
type OpenAIConfig struct {
	// BaseURL overrides the API endpoint; leave empty for api.openai.com.
	// Any OpenAI-compatible server (vLLM, LM Studio, llama.cpp) works here.
	BaseURL string

	// APIKey is the bearer token sent with each request.
	APIKey string

	// Model is the default chat model (default: gpt-4o-mini).
	Model string
}

// OpenAIClient implements the LLM interface against OpenAI-compatible
// chat-completion endpoints.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient creates a new OpenAI-compatible LLM client.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
	}
}

// Generate sends a prompt as a chat completion and returns the full response.
func (c *OpenAIClient) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, c.buildRequest(prompt, opts, false))
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}

	return resp.Choices[0].Message.Content, nil
}

// GenerateStream streams the chat completion token by token.
func (c *OpenAIClient) GenerateStream(ctx context.Context, prompt string, opts GenerateOptions) (<-chan StreamChunk, error) {
	stream, err := c.client.CreateChatCompletionStream(ctx, c.buildRequest(prompt, opts, true))
	if err != nil {
		return nil, fmt.Errorf("openai chat completion stream: %w", err)
	}

	chunks := make(chan StreamChunk)

	go func() {
		defer close(chunks)
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				chunks <- StreamChunk{Done: true}
				return
			}
			if err != nil {
				chunks <- StreamChunk{Error: fmt.Errorf("reading stream: %w", err), Done: true}
				return
			}

			if len(resp.Choices) == 0 {
				continue
			}

			select {
			case <-ctx.Done():
				chunks <- StreamChunk{Error: ctx.Err(), Done: true}
				return
			case chunks <- StreamChunk{Token: resp.Choices[0].Delta.Content}:
			}
		}
	}()

	return chunks, nil
}

// buildRequest maps GenerateOptions onto a chat completion request.
func (c *OpenAIClient) buildRequest(prompt string, opts GenerateOptions, stream bool) openai.ChatCompletionRequest {
	model := opts.Model
	if model == "" {
		model = c.model
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if opts.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: opts.SystemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	return openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Stream:      stream,
	}
}

// Ensure OpenAIClient implements LLM interface.
var _ LLM = (*OpenAIClient)(nil)
