// Package pipeline drives generation tasks through the supervisor and the
// specialist agents.
package pipeline

import (
	"time"
)

// EventType represents the type of pipeline event.
type EventType string

const (
	// EventStageStarted indicates a specialist stage has started.
	EventStageStarted EventType = "stage_started"
	// EventStageCompleted indicates a specialist stage succeeded and its
	// output was merged into the task state.
	EventStageCompleted EventType = "stage_completed"
	// EventStageFailed indicates a stage exhausted its retries.
	EventStageFailed EventType = "stage_failed"
	// EventDecision indicates the supervisor picked the next stage.
	EventDecision EventType = "decision"
	// EventAgentProgress forwards an agent progress callback.
	EventAgentProgress EventType = "agent_progress"
	// EventAgentError forwards an agent error callback (one per failed attempt).
	EventAgentError EventType = "agent_error"
	// EventTaskDone indicates the task reached a terminal state.
	EventTaskDone EventType = "task_done"
)

// Event represents an event emitted while a task runs.
// These events are used to update the TUI and the CLI.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// TaskID is the ID of the related task.
	TaskID string
	// Agent is the name of the related agent, if applicable.
	Agent string
	// Message provides additional context about the event.
	Message string
	// Error contains error details for failure events.
	Error error
	// Percent is the agent progress (0-100) for progress events.
	Percent float64
	// Iteration is the task iteration when the event was emitted.
	Iteration int
	// QualityScore is the last review score, if the task has been reviewed.
	QualityScore float64
	// TokensUsed is the task's running token total.
	TokensUsed int64
	// Timestamp is when the event occurred.
	Timestamp time.Time
}
