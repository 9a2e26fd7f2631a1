package models

import "time"

// TaskStatus represents the lifecycle state of a generation task.
type TaskStatus string

const (
	// TaskStatusRunning indicates the pipeline has not reached a terminal state.
	TaskStatusRunning TaskStatus = "running"
	// TaskStatusCompleted indicates the supervisor ended the pipeline.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates a stage exhausted its retries.
	TaskStatusFailed TaskStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusRunning, TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// TaskError records the failure that made a task terminal.
type TaskError struct {
	// Stage is the name of the agent that failed.
	Stage string `json:"stage"`
	// Message is the final error text of that agent.
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *TaskError) Error() string {
	if e.Stage == "" {
		return e.Message
	}
	return e.Stage + ": " + e.Message
}

// State is the shared record of one generation task.
//
// A State is owned by exactly one orchestrator for the lifetime of the task.
// Agents receive copies and report results; only the orchestrator writes.
type State struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// Requirement is the input text test cases are generated for.
	Requirement string `json:"requirement"`
	// TaskType tags the kind of testing requested (e.g. "functional", "api").
	// It selects stored prompts.
	TaskType string `json:"task_type"`

	// Analysis is the output of the analyzer stage.
	Analysis string `json:"analysis,omitempty"`
	// TestPoints is the output of the designer stage.
	TestPoints string `json:"test_points,omitempty"`
	// TestCases is the output of the writer stage.
	TestCases string `json:"test_cases,omitempty"`
	// ReviewFeedback is the reviewer's last critique, used by the writer on revision.
	ReviewFeedback string `json:"review_feedback,omitempty"`

	// QualityScore is the last review score (0-100). Only meaningful when Reviewed.
	QualityScore float64 `json:"quality_score"`
	// Reviewed is true once the current TestCases have been scored.
	Reviewed bool `json:"reviewed"`

	// Iteration counts writer re-runs after a rejected review. Never decreases.
	Iteration int `json:"iteration"`
	// MaxIterations caps Iteration.
	MaxIterations int `json:"max_iterations"`

	// Completed is set when the supervisor decided to finish.
	Completed bool `json:"completed"`
	// Error is set when a stage failed; the task is then terminal.
	Error *TaskError `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewState returns a fresh task state with all outputs empty.
func NewState(id, requirement, taskType string, maxIterations int) *State {
	now := time.Now()
	return &State{
		ID:            id,
		Requirement:   requirement,
		TaskType:      taskType,
		MaxIterations: maxIterations,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Terminal returns true once the task is completed or failed.
func (s *State) Terminal() bool {
	return s.Completed || s.Error != nil
}

// Status derives the persisted task status from the state fields.
func (s *State) Status() TaskStatus {
	switch {
	case s.Error != nil:
		return TaskStatusFailed
	case s.Completed:
		return TaskStatusCompleted
	default:
		return TaskStatusRunning
	}
}

// Clone returns a deep copy of the state.
func (s *State) Clone() State {
	c := *s
	if s.Error != nil {
		e := *s.Error
		c.Error = &e
	}
	return c
}
