package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ChuDiRen/casegen/internal/agent"
	"github.com/ChuDiRen/casegen/pkg/models"
)

// DefaultMaxIterations is the writer/reviewer cycle cap used when a task
// does not set one.
const DefaultMaxIterations = 3

// DefaultTaskType is the prompt task type used when a task does not set one.
const DefaultTaskType = "functional"

var (
	// ErrNoSupervisor is returned by New without a supervisor agent.
	ErrNoSupervisor = errors.New("supervisor agent is required")
	// ErrMissingAgent is returned by New when a specialist stage has no agent.
	ErrMissingAgent = errors.New("specialist agent is required")
	// ErrEmptyRequirement is returned by RunTask for a blank requirement.
	ErrEmptyRequirement = errors.New("requirement is empty")
)

// TaskConfig describes a task to run.
type TaskConfig struct {
	// ID is assigned when empty.
	ID            string `yaml:"id,omitempty"`
	Requirement   string `yaml:"requirement"`
	TaskType      string `yaml:"task_type,omitempty"`
	MaxIterations int    `yaml:"max_iterations,omitempty"`
}

// Normalize returns a copy with the ID, task type and iteration cap filled in.
func (tc TaskConfig) Normalize() TaskConfig {
	if tc.ID == "" {
		tc.ID = uuid.NewString()
	}
	if tc.TaskType == "" {
		tc.TaskType = DefaultTaskType
	}
	if tc.MaxIterations <= 0 {
		tc.MaxIterations = DefaultMaxIterations
	}
	return tc
}

// Result is the outcome of one task run.
type Result struct {
	// State is the final task state.
	State *models.State
	// TokensUsed is the total across every agent that ran.
	TokensUsed int64
	// Steps lists every agent invocation in order.
	Steps []models.StageRun
	// Duration is the wall time of the run.
	Duration time.Duration
}

// Orchestrator drives one task at a time through the supervisor loop.
//
// An Orchestrator owns its agents; run concurrent tasks on separate
// orchestrators (see Factory).
type Orchestrator struct {
	supervisor *agent.Agent
	agents     Agents
	recorder   Recorder
	emitter    *EventEmitter
	logger     *DebugLogger
	maxSteps   int
}

// New creates an Orchestrator.
func New(req RequiredConfig, opts ...Option) (*Orchestrator, error) {
	if req.Supervisor == nil {
		return nil, ErrNoSupervisor
	}
	for _, stage := range models.Specialists() {
		if req.Agents.For(stage) == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingAgent, stage)
		}
	}

	o := &orchestratorOptions{maxSteps: DefaultMaxSteps}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = NopLogger()
	}

	return &Orchestrator{
		supervisor: req.Supervisor,
		agents:     req.Agents,
		recorder:   o.recorder,
		emitter:    o.emitter,
		logger:     o.logger,
		maxSteps:   o.maxSteps,
	}, nil
}

// Close releases the debug logger.
func (o *Orchestrator) Close() error {
	return o.logger.Close()
}

// RunTask creates a fresh task state and drives it to a terminal state.
// The returned error is only for invalid configuration; task failures are
// reported in Result.State.Error.
func (o *Orchestrator) RunTask(ctx context.Context, tc TaskConfig) (*Result, error) {
	if strings.TrimSpace(tc.Requirement) == "" {
		return nil, ErrEmptyRequirement
	}
	tc = tc.Normalize()

	st := models.NewState(tc.ID, tc.Requirement, tc.TaskType, tc.MaxIterations)
	log.Printf("[pipeline] task %s: started (type=%s, max_iterations=%d)", st.ID, st.TaskType, st.MaxIterations)
	o.save(ctx, st)

	return o.Resume(ctx, st), nil
}

// Resume continues a task from st until the supervisor finishes it, a stage
// fails or the step limit is reached. st is updated in place. Resuming a
// terminal state is a no-op apart from one supervisor decision.
func (o *Orchestrator) Resume(ctx context.Context, st *models.State) *Result {
	start := time.Now()
	res := &Result{State: st}
	o.logger.Log("task %s: resume at iteration %d (analysis=%t points=%t cases=%t reviewed=%t)",
		st.ID, st.Iteration, st.Analysis != "", st.TestPoints != "", st.TestCases != "", st.Reviewed)

	limit := stepLimit(o.maxSteps, st.MaxIterations)
	for step := 0; ; step++ {
		if limit > 0 && step >= limit {
			o.fail(st, "pipeline", fmt.Sprintf("step limit (%d) reached", limit))
			break
		}

		resp := o.invoke(ctx, res, o.supervisor, st)
		if !resp.Success {
			o.fail(st, o.supervisor.Name(), resp.Error)
			break
		}
		d, ok := resp.Decision()
		if !ok {
			o.fail(st, o.supervisor.Name(), "supervisor returned no decision")
			break
		}
		o.logger.Log("task %s: decision %s", st.ID, d)
		o.emit(res, EventDecision, o.supervisor.Name(), d.String(), nil)

		if d.IsFinish() {
			if !st.Terminal() {
				st.Completed = true
			}
			break
		}

		a := o.agents.For(d.Next)
		if a == nil {
			o.fail(st, o.supervisor.Name(), fmt.Sprintf("no agent for stage %s", d.Next))
			break
		}

		o.emit(res, EventStageStarted, a.Name(), d.Reason, nil)
		out := o.invoke(ctx, res, a, st)
		if !out.Success {
			o.emit(res, EventStageFailed, a.Name(), out.Error, errors.New(out.Error))
			o.fail(st, a.Name(), out.Error)
			break
		}
		if err := Merge(st, d.Next, out); err != nil {
			o.emit(res, EventStageFailed, a.Name(), err.Error(), err)
			o.fail(st, a.Name(), err.Error())
			break
		}
		st.UpdatedAt = time.Now()
		o.save(ctx, st)
		o.emit(res, EventStageCompleted, a.Name(), summarize(d.Next, st), nil)
	}

	st.UpdatedAt = time.Now()
	o.save(ctx, st)
	res.Duration = time.Since(start)

	var doneErr error
	if st.Error != nil {
		doneErr = st.Error
	}
	o.emit(res, EventTaskDone, "", string(st.Status()), doneErr)
	log.Printf("[pipeline] task %s: %s after %d step(s), iteration %d, score %.0f, %d tokens",
		st.ID, st.Status(), len(res.Steps), st.Iteration, st.QualityScore, res.TokensUsed)
	o.logger.Log("task %s: done status=%s tokens=%d duration=%s", st.ID, st.Status(), res.TokensUsed, res.Duration)
	return res
}

// stepLimit returns the decision cap for a task with the given iteration
// budget. A full run takes one decision each for analyzer, designer, the
// first writer and reviewer, two per revision and one to finish, so the
// configured cap is raised to 2*maxIterations+5 when it is lower.
func stepLimit(maxSteps, maxIterations int) int {
	if maxSteps <= 0 {
		return 0
	}
	return max(maxSteps, 2*max(maxIterations, 0)+5)
}

// Merge applies a successful stage response to the state.
//
// The writer re-running on reviewed test cases is a revision: it advances
// Iteration and clears the previous review so the new draft gets scored.
func Merge(st *models.State, stage models.Stage, resp *agent.Response) error {
	switch stage {
	case models.StageAnalyzer:
		st.Analysis = resp.Content
	case models.StageDesigner:
		st.TestPoints = resp.Content
	case models.StageWriter:
		if st.TestCases != "" && st.Reviewed {
			st.Iteration++
		}
		st.TestCases = resp.Content
		st.Reviewed = false
		st.QualityScore = 0
	case models.StageReviewer:
		score, ok := resp.QualityScore()
		if !ok {
			return errors.New("reviewer returned no quality score")
		}
		st.QualityScore = score
		st.Reviewed = true
		st.ReviewFeedback = resp.Content
	default:
		return fmt.Errorf("cannot merge output of stage %s", stage)
	}
	return nil
}

// invoke runs an agent on a snapshot of st and records the step.
func (o *Orchestrator) invoke(ctx context.Context, res *Result, a *agent.Agent, st *models.State) *agent.Response {
	started := time.Now()
	resp := a.Run(ctx, st.Clone())

	run := models.StageRun{
		ID:         uuid.NewString(),
		TaskID:     st.ID,
		Seq:        len(res.Steps) + 1,
		Agent:      a.Name(),
		Success:    resp.Success,
		Output:     resp.Content,
		Error:      resp.Error,
		Attempts:   resp.Attempts(),
		TokensUsed: resp.TokensUsed,
		Iteration:  st.Iteration,
		StartedAt:  started,
		Duration:   time.Since(started),
	}
	res.Steps = append(res.Steps, run)
	res.TokensUsed += resp.TokensUsed

	o.logger.Log("task %s: %s success=%t attempts=%d tokens=%d duration=%s",
		st.ID, run.Agent, run.Success, run.Attempts, run.TokensUsed, run.Duration)
	if o.recorder != nil {
		if err := o.recorder.RecordStage(context.WithoutCancel(ctx), &run); err != nil {
			log.Printf("[pipeline] task %s: record %s run: %v", st.ID, run.Agent, err)
		}
	}
	return resp
}

func (o *Orchestrator) fail(st *models.State, stage, message string) {
	log.Printf("[pipeline] task %s: %s failed: %s", st.ID, stage, message)
	o.logger.Log("task %s: FAILED at %s: %s", st.ID, stage, message)
	st.Error = &models.TaskError{Stage: stage, Message: message}
}

func (o *Orchestrator) save(ctx context.Context, st *models.State) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.SaveTask(context.WithoutCancel(ctx), st); err != nil {
		log.Printf("[pipeline] task %s: save: %v", st.ID, err)
	}
}

func (o *Orchestrator) emit(res *Result, typ EventType, agentName, message string, err error) {
	if o.emitter == nil {
		return
	}
	st := res.State
	o.emitter.Emit(Event{
		Type:         typ,
		TaskID:       st.ID,
		Agent:        agentName,
		Message:      message,
		Error:        err,
		Iteration:    st.Iteration,
		QualityScore: st.QualityScore,
		TokensUsed:   res.TokensUsed,
	})
}

func summarize(stage models.Stage, st *models.State) string {
	switch stage {
	case models.StageReviewer:
		return fmt.Sprintf("quality score %.0f", st.QualityScore)
	case models.StageWriter:
		return fmt.Sprintf("test cases written (iteration %d)", st.Iteration)
	default:
		return stage.String() + " done"
	}
}
