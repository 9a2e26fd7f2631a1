package models

import "time"

// StageRun records one agent invocation within a task: a supervisor decision
// or a specialist stage.
type StageRun struct {
	// ID is the unique identifier for this run.
	ID string `json:"id"`
	// TaskID is the task the run belongs to.
	TaskID string `json:"task_id"`
	// Seq orders runs within a task, starting at 1.
	Seq int `json:"seq"`
	// Agent is the name of the agent that ran.
	Agent string `json:"agent"`
	// Success is false when every attempt failed.
	Success bool `json:"success"`
	// Output is the response content (the decision text for the supervisor).
	Output string `json:"output,omitempty"`
	// Error is the final failure message.
	Error string `json:"error,omitempty"`
	// Attempts is the number of attempts the agent needed.
	Attempts int `json:"attempts"`
	// TokensUsed is the number of tokens consumed by the run.
	TokensUsed int64 `json:"tokens_used"`
	// Iteration is the task iteration at the time of the run.
	Iteration int `json:"iteration"`

	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}
