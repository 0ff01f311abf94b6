// Package genai wraps the external text-generation backends. Callers get a
// small Client interface; provider quirks (Gemini, Bedrock) and resilience
// (retry with backoff, failover) live behind it.
package genai

import (
	"context"
	"errors"
	"net"
)

var (
	// ErrOverloaded classifies "service overloaded" responses. Retryable.
	ErrOverloaded = errors.New("genai: service overloaded")
	// ErrEmptyResponse indicates the backend returned no usable text.
	ErrEmptyResponse = errors.New("genai: empty response")
	// ErrNotConfigured indicates no generation credential is available.
	ErrNotConfigured = errors.New("genai: no generation credential configured")
)

// Request is one generation call.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int32
	Temperature float32
}

// Response carries the generated text. Truncated is set when the backend
// stopped at the output-length limit; truncated non-empty text is still
// usable for replies but extraction treats it as incomplete.
type Response struct {
	Text      string
	Truncated bool
}

// Client is the generation backend capability: given a prompt, return text,
// possibly failing transiently.
type Client interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

// IsRetryable reports whether an error is worth another attempt: the
// overloaded class and transport-level failures. Context cancellation and
// every other error class are terminal.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrOverloaded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
