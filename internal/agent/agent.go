// Package agent provides the agents of the test-case generation pipeline:
// the shared run contract (retry, backoff, progress and error events, token
// accounting), the specialists (analyzer, designer, writer, reviewer) and the
// supervisor that picks the next stage.
package agent

import (
	"context"

	"github.com/ChuDiRen/casegen/pkg/models"
)

// Metadata keys set by agents on their responses.
const (
	// MetaQualityScore holds the reviewer's score as float64.
	MetaQualityScore = "quality_score"
	// MetaDecision holds the supervisor's models.Decision.
	MetaDecision = "decision"
	// MetaRevision is true when the writer revised earlier test cases.
	MetaRevision = "revision"
	// MetaAttempts holds the number of attempts Run needed.
	MetaAttempts = "attempts"
	// MetaFallback is true when the supervisor asked the model for a decision.
	MetaFallback = "fallback"
)

// Processor is the domain logic of one agent. Process may fail; retries are
// handled by Agent.Run, never inside Process.
type Processor interface {
	// Name identifies the agent (e.g. "analyzer").
	Name() string
	// Process executes one attempt against a snapshot of the task state.
	Process(ctx context.Context, st models.State) (*Response, error)
}

// TokenCounter is implemented by processors that track their model usage.
type TokenCounter interface {
	TokenUsage() int64
}

// ProgressFunc receives progress events. It must not block for long.
type ProgressFunc func(agentName, message string, percent float64)

// ErrorFunc receives error events, one per failed attempt.
type ErrorFunc func(agentName, message string, err error)

// Response is the immutable result of one Agent.Run.
type Response struct {
	// Agent is the name of the agent that produced the response.
	Agent string `json:"agent"`
	// Content is the payload (analysis, test points, test cases, review).
	Content string `json:"content"`
	// Success is false when every attempt failed.
	Success bool `json:"success"`
	// Error is the failure message when Success is false.
	Error string `json:"error,omitempty"`
	// Metadata carries typed side results (see the Meta* keys).
	Metadata map[string]any `json:"metadata,omitempty"`
	// TokensUsed is the number of tokens consumed by this invocation.
	TokensUsed int64 `json:"tokens_used"`
}

// QualityScore returns the reviewer score carried by the response.
func (r *Response) QualityScore() (float64, bool) {
	if r == nil || r.Metadata == nil {
		return 0, false
	}
	v, ok := r.Metadata[MetaQualityScore].(float64)
	return v, ok
}

// Decision returns the supervisor decision carried by the response.
func (r *Response) Decision() (models.Decision, bool) {
	if r == nil || r.Metadata == nil {
		return models.Decision{}, false
	}
	d, ok := r.Metadata[MetaDecision].(models.Decision)
	return d, ok
}

// Attempts returns how many attempts Run made, or 0 if unknown.
func (r *Response) Attempts() int {
	if r == nil || r.Metadata == nil {
		return 0
	}
	n, _ := r.Metadata[MetaAttempts].(int)
	return n
}

func (r *Response) setMeta(key string, value any) {
	if r.Metadata == nil {
		r.Metadata = make(map[string]any)
	}
	r.Metadata[key] = value
}
