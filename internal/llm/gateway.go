// Package llm provides the language model gateway used by casegen agents.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// ErrTimeout is returned when a model call exceeds its deadline.
var ErrTimeout = errors.New("language model call timed out")

// InvocationError wraps any non-timeout failure of a model call
// (transport errors, provider errors, empty responses).
type InvocationError struct {
	Err error
}

// Error implements the error interface.
func (e *InvocationError) Error() string {
	return fmt.Sprintf("language model invocation failed: %v", e.Err)
}

// Unwrap returns the underlying cause.
func (e *InvocationError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err is a gateway timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// Generation is the result of a single model call.
type Generation struct {
	// Content is the generated text.
	Content string
	// TokenCount is the number of tokens consumed by the call (input + output).
	TokenCount int64
}

// Gateway performs a single call to a hosted language model.
//
// Implementations must return ErrTimeout (possibly wrapped) when the call
// exceeds its deadline and an *InvocationError for every other failure.
type Gateway interface {
	Generate(ctx context.Context, systemPrompt, userMessage string) (*Generation, error)
}

// GatewayFunc adapts an ordinary function to the Gateway interface.
type GatewayFunc func(ctx context.Context, systemPrompt, userMessage string) (*Generation, error)

// Generate calls f.
func (f GatewayFunc) Generate(ctx context.Context, systemPrompt, userMessage string) (*Generation, error) {
	return f(ctx, systemPrompt, userMessage)
}
