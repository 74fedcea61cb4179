package service

import (
	"errors"
	"fmt"
)

// ErrInvalidRequest marks requests rejected by validation before the
// selection algorithm runs (bad lambda, negative cap, missing query).
var ErrInvalidRequest = errors.New("invalid request")

// UpstreamError wraps a failure from a boundary collaborator (embedder,
// candidate source, LLM). The pipeline never retries; the caller owns
// retry and backoff policy.
type UpstreamError struct {
	Collaborator string
	Err          error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Collaborator, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func upstream(collaborator string, err error) error {
	return &UpstreamError{Collaborator: collaborator, Err: err}
}
