package pipeline

import (
	"context"
	"fmt"
	"log"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ChuDiRen/casegen/internal/agent"
	"github.com/ChuDiRen/casegen/internal/llm"
	"github.com/ChuDiRen/casegen/internal/prompt"
	"github.com/ChuDiRen/casegen/pkg/models"
)

// Factory builds an Orchestrator with a fresh agent set for one task.
// tc has already been normalized.
type Factory func(tc TaskConfig) (*Orchestrator, error)

// FactoryConfig holds what every task built by NewFactory shares.
type FactoryConfig struct {
	// Gateway is shared; it must be safe for concurrent use.
	Gateway llm.Gateway
	// Prompts is shared; lookups must be safe for concurrent use.
	Prompts prompt.Store
	// PassScore is the review acceptance threshold (default 80).
	PassScore float64
	// Retry is the default retry policy.
	Retry agent.RetryPolicy
	// AgentRetry overrides Retry per agent name.
	AgentRetry map[string]agent.RetryPolicy
	// Recorder persists tasks. Optional.
	Recorder Recorder
	// Emitter receives events of every task. Optional.
	Emitter *EventEmitter
	// LogDir enables per-task debug logs when set.
	LogDir string
	// MaxSteps caps supervisor decisions per run (default 20, raised to fit
	// the iteration budget).
	MaxSteps int
}

func (c FactoryConfig) policy(name string) agent.RetryPolicy {
	if p, ok := c.AgentRetry[name]; ok {
		return p
	}
	if c.Retry.MaxRetries == 0 && c.Retry.RetryDelay == 0 {
		return agent.DefaultRetryPolicy()
	}
	return c.Retry
}

// NewFactory returns a Factory that wires the standard agents.
func NewFactory(cfg FactoryConfig) Factory {
	return func(tc TaskConfig) (*Orchestrator, error) {
		acfg := agent.Config{Gateway: cfg.Gateway, Prompts: cfg.Prompts, TaskType: tc.TaskType}

		wrap := func(p agent.Processor) *agent.Agent {
			opts := []agent.Option{agent.WithRetryPolicy(cfg.policy(p.Name()))}
			if cfg.Emitter != nil {
				opts = append(opts,
					agent.WithProgress(progressForwarder(cfg.Emitter, tc.ID)),
					agent.WithErrorHandler(errorForwarder(cfg.Emitter, tc.ID)),
				)
			}
			return agent.New(p, opts...)
		}

		var supOpts []agent.SupervisorOption
		if cfg.PassScore > 0 {
			supOpts = append(supOpts, agent.WithPassScore(cfg.PassScore))
		}

		req := RequiredConfig{
			Supervisor: wrap(agent.NewSupervisor(acfg, supOpts...)),
			Agents: Agents{
				Analyzer: wrap(agent.NewAnalyzer(acfg)),
				Designer: wrap(agent.NewDesigner(acfg)),
				Writer:   wrap(agent.NewWriter(acfg)),
				Reviewer: wrap(agent.NewReviewer(acfg)),
			},
		}

		opts := []Option{WithRecorder(cfg.Recorder), WithEmitter(cfg.Emitter)}
		if cfg.MaxSteps > 0 {
			opts = append(opts, WithMaxSteps(cfg.MaxSteps))
		}
		if cfg.LogDir != "" {
			logger, err := NewDebugLogger(TaskLogPath(cfg.LogDir, tc.ID))
			if err != nil {
				return nil, fmt.Errorf("task %s: %w", tc.ID, err)
			}
			opts = append(opts, WithLogger(logger))
		}
		return New(req, opts...)
	}
}

func progressForwarder(e *EventEmitter, taskID string) agent.ProgressFunc {
	return func(agentName, message string, percent float64) {
		e.Emit(Event{Type: EventAgentProgress, TaskID: taskID, Agent: agentName, Message: message, Percent: percent})
	}
}

func errorForwarder(e *EventEmitter, taskID string) agent.ErrorFunc {
	return func(agentName, message string, err error) {
		e.Emit(Event{Type: EventAgentError, TaskID: taskID, Agent: agentName, Message: message, Error: err})
	}
}

// ResumeTask builds an orchestrator for an existing task state and continues it.
func ResumeTask(ctx context.Context, factory Factory, st *models.State) (*Result, error) {
	tc := TaskConfig{
		ID:            st.ID,
		Requirement:   st.Requirement,
		TaskType:      st.TaskType,
		MaxIterations: st.MaxIterations,
	}.Normalize()
	o, err := factory(tc)
	if err != nil {
		return nil, err
	}
	defer o.Close()
	return o.Resume(ctx, st), nil
}

// BatchResult is the outcome of one task of a batch.
type BatchResult struct {
	Config TaskConfig
	Result *Result
	Err    error
}

// RunBatch runs independent tasks concurrently, at most concurrency at a
// time. Each task gets its own orchestrator and agents from factory.
//
// Task failures are reported per task. A factory error is systemic: it
// cancels the tasks still running and is returned.
func RunBatch(ctx context.Context, factory Factory, tasks []TaskConfig, concurrency int) ([]BatchResult, error) {
	if concurrency < 1 {
		concurrency = 1
	}

	results := make([]BatchResult, len(tasks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, tc := range tasks {
		tc = tc.Normalize()
		results[i].Config = tc
		if strings.TrimSpace(tc.Requirement) == "" {
			results[i].Err = ErrEmptyRequirement
			continue
		}

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			o, err := factory(tc)
			if err != nil {
				results[i].Err = err
				return fmt.Errorf("task %d (%s): %w", i, tc.ID, err)
			}
			defer o.Close()

			res, err := o.RunTask(gctx, tc)
			results[i].Result = res
			results[i].Err = err
			return nil
		})
	}

	err := g.Wait()
	if err != nil {
		log.Printf("[pipeline] batch aborted: %v", err)
	}
	return results, err
}
