// Package llmtest provides a scripted language model gateway for tests.
package llmtest

import (
	"context"
	"errors"
	"sync"

	"github.com/ChuDiRen/casegen/internal/llm"
)

// Reply is one scripted gateway outcome.
type Reply struct {
	Content string
	Tokens  int64
	Err     error
}

// Call records the inputs of one Generate call.
type Call struct {
	SystemPrompt string
	UserMessage  string
}

// ErrExhausted is returned when the script has no more replies and no
// fallback handler is set.
var ErrExhausted = errors.New("llmtest: no scripted reply left")

// Gateway replays scripted replies in order and records every call.
// It is safe for concurrent use.
type Gateway struct {
	mu      sync.Mutex
	replies []Reply
	calls   []Call

	// Handler, when set, answers calls after the script is exhausted.
	Handler func(systemPrompt, userMessage string) Reply
}

var _ llm.Gateway = (*Gateway)(nil)

// New returns a gateway that replays the given replies.
func New(replies ...Reply) *Gateway {
	return &Gateway{replies: replies}
}

// Text is shorthand for a successful reply.
func Text(content string, tokens int64) Reply {
	return Reply{Content: content, Tokens: tokens}
}

// Fail is shorthand for a failing reply.
func Fail(err error) Reply {
	return Reply{Err: err}
}

// Push appends replies to the script.
func (g *Gateway) Push(replies ...Reply) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.replies = append(g.replies, replies...)
}

// Generate returns the next scripted reply.
func (g *Gateway) Generate(ctx context.Context, systemPrompt, userMessage string) (*llm.Generation, error) {
	if err := ctx.Err(); err != nil {
		return nil, &llm.InvocationError{Err: err}
	}

	g.mu.Lock()
	g.calls = append(g.calls, Call{SystemPrompt: systemPrompt, UserMessage: userMessage})
	var (
		r  Reply
		ok bool
	)
	if len(g.replies) > 0 {
		r, g.replies, ok = g.replies[0], g.replies[1:], true
	}
	handler := g.Handler
	g.mu.Unlock()

	if !ok {
		if handler == nil {
			return nil, &llm.InvocationError{Err: ErrExhausted}
		}
		r = handler(systemPrompt, userMessage)
	}
	if r.Err != nil {
		return nil, r.Err
	}
	return &llm.Generation{Content: r.Content, TokenCount: r.Tokens}, nil
}

// Calls returns a copy of the recorded calls.
func (g *Gateway) Calls() []Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Call, len(g.calls))
	copy(out, g.calls)
	return out
}

// CallCount returns the number of Generate calls made so far.
func (g *Gateway) CallCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}
