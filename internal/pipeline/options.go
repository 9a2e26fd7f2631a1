package pipeline

import (
	"context"

	"github.com/ChuDiRen/casegen/internal/agent"
	"github.com/ChuDiRen/casegen/pkg/models"
)

// DefaultMaxSteps caps the number of supervisor decisions per task run.
// A task's iteration budget can raise the cap, see stepLimit.
const DefaultMaxSteps = 20

// Recorder persists task progress. Errors are logged, never fatal.
type Recorder interface {
	SaveTask(ctx context.Context, st *models.State) error
	RecordStage(ctx context.Context, run *models.StageRun) error
}

// Agents holds one agent per specialist stage.
type Agents struct {
	Analyzer *agent.Agent
	Designer *agent.Agent
	Writer   *agent.Agent
	Reviewer *agent.Agent
}

// For returns the agent that executes stage. Finish and unknown stages have
// no agent.
func (a Agents) For(stage models.Stage) *agent.Agent {
	switch stage {
	case models.StageAnalyzer:
		return a.Analyzer
	case models.StageDesigner:
		return a.Designer
	case models.StageWriter:
		return a.Writer
	case models.StageReviewer:
		return a.Reviewer
	default:
		return nil
	}
}

// RequiredConfig contains the collaborators an Orchestrator cannot run without.
type RequiredConfig struct {
	// Supervisor decides the next stage.
	Supervisor *agent.Agent
	// Agents executes the specialist stages.
	Agents Agents
}

// Option configures an Orchestrator. Use With* functions to create Options.
type Option func(*orchestratorOptions)

type orchestratorOptions struct {
	recorder Recorder
	emitter  *EventEmitter
	logger   *DebugLogger
	maxSteps int
}

// WithRecorder persists the task after every step.
func WithRecorder(r Recorder) Option {
	return func(o *orchestratorOptions) { o.recorder = r }
}

// WithEmitter sets the event emitter.
func WithEmitter(e *EventEmitter) Option {
	return func(o *orchestratorOptions) { o.emitter = e }
}

// WithLogger sets the debug logger. The orchestrator closes it on Close.
func WithLogger(l *DebugLogger) Option {
	return func(o *orchestratorOptions) { o.logger = l }
}

// WithMaxSteps sets the cap on supervisor decisions per run. Zero or less
// disables the cap. The cap never drops below what the task's iteration
// budget needs.
func WithMaxSteps(n int) Option {
	return func(o *orchestratorOptions) { o.maxSteps = n }
}
