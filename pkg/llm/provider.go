package llm

import (
	"context"
	"errors"
)

// Provider defines the interface for interacting with LLM backends.
// Implementations handle protocol-specific details such as request
// formatting, authentication, and response parsing.
type Provider interface {
	// Complete sends a chat completion request and returns the full response.
	Complete(ctx context.Context, messages []Message) (*Response, error)
}

// ErrRateLimited is returned when the backend rejects a request with
// HTTP 429. Callers surface it to the user differently from other
// completion failures.
var ErrRateLimited = errors.New("llm: rate limited")
