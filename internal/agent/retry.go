package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/ChuDiRen/casegen/internal/llm"
	"github.com/ChuDiRen/casegen/pkg/models"
)

// RetryPolicy controls how often Agent.Run attempts Process and how long it
// waits between attempts.
type RetryPolicy struct {
	// MaxRetries is the total number of attempts (minimum 1).
	MaxRetries int
	// RetryDelay is the backoff base: attempt n (0-indexed) waits RetryDelay * 2^n.
	RetryDelay time.Duration
}

// DefaultRetryPolicy returns 3 attempts with a 1s backoff base.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, RetryDelay: time.Second}
}

// attempts returns the effective number of attempts.
func (p RetryPolicy) attempts() int {
	if p.MaxRetries < 1 {
		return 1
	}
	return p.MaxRetries
}

// Backoff returns the delay after the given failed attempt (0-indexed).
// Delays too large for a time.Duration saturate at the maximum.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if p.RetryDelay <= 0 {
		return 0
	}
	if attempt >= 63 || p.RetryDelay > time.Duration(math.MaxInt64>>uint(attempt)) {
		return time.Duration(math.MaxInt64)
	}
	return p.RetryDelay << uint(attempt)
}

// Agent wraps a Processor with the uniform run contract: retry with
// exponential backoff, progress and error events, and token accounting.
//
// An Agent and its Processor belong to one task at a time; they are not safe
// for concurrent Run calls.
type Agent struct {
	proc       Processor
	policy     RetryPolicy
	onProgress ProgressFunc
	onError    ErrorFunc
	sleep      func(ctx context.Context, d time.Duration) error
}

// Option configures an Agent.
type Option func(*Agent)

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(a *Agent) {
		a.policy = p
	}
}

// WithProgress sets the progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(a *Agent) {
		a.onProgress = fn
	}
}

// WithErrorHandler sets the error callback.
func WithErrorHandler(fn ErrorFunc) Option {
	return func(a *Agent) {
		a.onError = fn
	}
}

// New wraps a processor into an Agent.
func New(proc Processor, opts ...Option) *Agent {
	a := &Agent{
		proc:   proc,
		policy: DefaultRetryPolicy(),
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name returns the wrapped processor's name.
func (a *Agent) Name() string {
	return a.proc.Name()
}

// Processor returns the wrapped processor.
func (a *Agent) Processor() Processor {
	return a.proc
}

// Policy returns the effective retry policy.
func (a *Agent) Policy() RetryPolicy {
	return a.policy
}

// TokenUsage returns the processor's running token total, or 0 if it does
// not track tokens.
func (a *Agent) TokenUsage() int64 {
	if tc, ok := a.proc.(TokenCounter); ok {
		return tc.TokenUsage()
	}
	return 0
}

// Run executes Process with retries. It always returns a response: when every
// attempt fails the response has Success=false and Error holds the last
// failure. No delay follows the final attempt.
func (a *Agent) Run(ctx context.Context, st models.State) *Response {
	name := a.proc.Name()
	attempts := a.policy.attempts()
	startTokens := a.TokenUsage()

	a.emitProgress(name, "starting", 0)

	var lastErr error
	made := 0
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}
		made++

		resp, err := a.processOnce(ctx, st)
		if err == nil {
			if resp.Agent == "" {
				resp.Agent = name
			}
			resp.Success = true
			resp.Error = ""
			resp.TokensUsed = a.TokenUsage() - startTokens
			resp.setMeta(MetaAttempts, made)
			a.emitProgress(name, "completed", 100)
			return resp
		}

		lastErr = err
		msg := fmt.Sprintf("attempt %d/%d failed: %v", attempt+1, attempts, err)
		if llm.IsTimeout(err) {
			log.Printf("[agent] %s: attempt %d/%d timed out waiting for the model", name, attempt+1, attempts)
		} else {
			log.Printf("[agent] %s: %s", name, msg)
		}
		a.emitError(name, msg, err)

		if attempt < attempts-1 {
			delay := a.policy.Backoff(attempt)
			if err := a.sleep(ctx, delay); err != nil {
				lastErr = fmt.Errorf("%w (while backing off after: %v)", err, lastErr)
				break
			}
		}
	}

	return &Response{
		Agent:      name,
		Success:    false,
		Error:      fmt.Sprintf("%s failed after %d attempt(s): %v", name, made, lastErr),
		Metadata:   map[string]any{MetaAttempts: made},
		TokensUsed: a.TokenUsage() - startTokens,
	}
}

// processOnce runs one attempt, converting panics and empty results into errors.
func (a *Agent) processOnce(ctx context.Context, st models.State) (resp *Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			resp, err = nil, fmt.Errorf("panic in %s: %v", a.proc.Name(), r)
		}
	}()

	resp, err = a.proc.Process(ctx, st)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, fmt.Errorf("%s returned no response", a.proc.Name())
	}
	if !resp.Success && resp.Error != "" {
		return nil, errors.New(resp.Error)
	}
	return resp, nil
}

func (a *Agent) emitProgress(name, message string, percent float64) {
	if a.onProgress != nil {
		a.onProgress(name, message, percent)
	}
}

func (a *Agent) emitError(name, message string, err error) {
	if a.onError != nil {
		a.onError(name, message, err)
	}
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
