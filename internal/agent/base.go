package agent

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/ChuDiRen/casegen/internal/llm"
	"github.com/ChuDiRen/casegen/internal/prompt"
)

// ErrNoGateway is returned when an agent has no language model configured.
var ErrNoGateway = errors.New("no language model gateway configured")

// Config holds the collaborators shared by every agent of a task.
type Config struct {
	// Gateway performs the model calls.
	Gateway llm.Gateway
	// Prompts supplies system prompts. May be nil (no system prompt).
	Prompts prompt.Store
	// TaskType selects task-specific prompts.
	TaskType string
}

// Base implements the parts every model-backed agent shares: its identity,
// the lazily loaded system prompt and the running token counter.
//
// The cached prompt and the counter are plain fields: a Base belongs to one
// task at a time. Build a fresh agent set per task for concurrent tasks.
type Base struct {
	name     string
	taskType string
	gateway  llm.Gateway
	prompts  prompt.Store

	// systemPrompt is nil until first access, then never refreshed.
	systemPrompt *string
	tokens       int64
}

// NewBase creates the shared part of an agent.
func NewBase(name string, cfg Config) Base {
	return Base{
		name:     name,
		taskType: cfg.TaskType,
		gateway:  cfg.Gateway,
		prompts:  cfg.Prompts,
	}
}

// Name returns the agent name.
func (b *Base) Name() string {
	return b.name
}

// TaskType returns the task-type tag used for prompt lookup.
func (b *Base) TaskType() string {
	return b.taskType
}

// SystemPrompt returns the stored prompt for this agent, loading it on first
// access. Later changes in the store are not observed.
func (b *Base) SystemPrompt() string {
	if b.systemPrompt == nil {
		var p string
		if b.prompts != nil {
			p = b.prompts.Lookup(b.name, b.taskType)
		}
		if p == "" {
			log.Printf("[agent] %s: no stored prompt for task type %q", b.name, b.taskType)
		}
		b.systemPrompt = &p
	}
	return *b.systemPrompt
}

// InvokeModel sends a message using the agent's stored system prompt.
func (b *Base) InvokeModel(ctx context.Context, userMessage string) (string, error) {
	return b.InvokeModelWithSystem(ctx, "", userMessage)
}

// InvokeModelWithSystem sends a message with an explicit system prompt.
// An empty systemPrompt falls back to the stored prompt. Token usage is added
// to the agent's running total. Timeouts and invocation failures are
// returned to the caller.
func (b *Base) InvokeModelWithSystem(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	if b.gateway == nil {
		return "", fmt.Errorf("%s: %w", b.name, ErrNoGateway)
	}
	if systemPrompt == "" {
		systemPrompt = b.SystemPrompt()
	}

	gen, err := b.gateway.Generate(ctx, systemPrompt, userMessage)
	if err != nil {
		if llm.IsTimeout(err) {
			log.Printf("[agent] %s: model call timed out: %v", b.name, err)
		} else {
			log.Printf("[agent] %s: model call failed: %v", b.name, err)
		}
		return "", fmt.Errorf("%s: %w", b.name, err)
	}

	b.tokens += gen.TokenCount
	return gen.Content, nil
}

// TokenUsage returns the tokens consumed since creation or the last reset.
func (b *Base) TokenUsage() int64 {
	return b.tokens
}

// ResetTokenUsage clears the running token counter.
func (b *Base) ResetTokenUsage() {
	b.tokens = 0
}
