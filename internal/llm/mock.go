package llm

import "context"

// MockClient is a canned-response LLM for development and tests: the pipeline
// can be exercised end to end without a model server.
type MockClient struct {
	// Response is returned from every Generate call.
	Response string

	// Err, when set, is returned instead.
	Err error

	// LastPrompt records the most recent prompt for assertions.
	LastPrompt string
}

// NewMockClient creates a mock LLM with a default canned answer.
func NewMockClient() *MockClient {
	return &MockClient{Response: "(mock answer)"}
}

// Generate returns the canned response.
func (c *MockClient) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	c.LastPrompt = prompt
	if c.Err != nil {
		return "", c.Err
	}
	return c.Response, nil
}

// GenerateStream returns the canned response as a single chunk.
func (c *MockClient) GenerateStream(ctx context.Context, prompt string, opts GenerateOptions) (<-chan StreamChunk, error) {
	c.LastPrompt = prompt
	if c.Err != nil {
		return nil, c.Err
	}

	chunks := make(chan StreamChunk, 2)
	chunks <- StreamChunk{Token: c.Response}
	chunks <- StreamChunk{Done: true}
	close(chunks)
	return chunks, nil
}

// Ensure MockClient implements LLM interface.
var _ LLM = (*MockClient)(nil)
