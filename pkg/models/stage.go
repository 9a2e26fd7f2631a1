package models

import (
	"fmt"
	"strings"
)

// Stage identifies a step of the test-case generation pipeline.
// The set is closed: the supervisor can only ever pick one of these values.
type Stage int

const (
	// StageFinish is the terminal decision; no further agent runs.
	StageFinish Stage = iota
	// StageAnalyzer turns the requirement into an analysis.
	StageAnalyzer
	// StageDesigner derives test points from the analysis.
	StageDesigner
	// StageWriter writes test cases from the test points.
	StageWriter
	// StageReviewer scores the written test cases.
	StageReviewer
)

// String returns the canonical lower-case stage name.
func (s Stage) String() string {
	switch s {
	case StageFinish:
		return "FINISH"
	case StageAnalyzer:
		return "analyzer"
	case StageDesigner:
		return "designer"
	case StageWriter:
		return "writer"
	case StageReviewer:
		return "reviewer"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Valid returns true if the stage is a known value.
func (s Stage) Valid() bool {
	switch s {
	case StageFinish, StageAnalyzer, StageDesigner, StageWriter, StageReviewer:
		return true
	default:
		return false
	}
}

// IsSpecialist returns true for stages that are executed by a specialist agent.
func (s Stage) IsSpecialist() bool {
	return s.Valid() && s != StageFinish
}

// Specialists returns the specialist stages in pipeline order.
func Specialists() []Stage {
	return []Stage{StageAnalyzer, StageDesigner, StageWriter, StageReviewer}
}

// ParseStage converts a stage name to a Stage. Matching is case-insensitive
// and accepts "finish", "end" and "done" as the terminal sentinel.
func ParseStage(s string) (Stage, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "analyzer":
		return StageAnalyzer, true
	case "designer":
		return StageDesigner, true
	case "writer":
		return StageWriter, true
	case "reviewer":
		return StageReviewer, true
	case "finish", "end", "done":
		return StageFinish, true
	default:
		return StageFinish, false
	}
}

// Decision is the supervisor's choice of the next pipeline step.
type Decision struct {
	// Next is the stage to run next, or StageFinish.
	Next Stage `json:"next"`
	// Reason is a human-readable explanation of the choice.
	Reason string `json:"reason"`
}

// IsFinish returns true if the decision ends the pipeline.
func (d Decision) IsFinish() bool {
	return d.Next == StageFinish
}

// String formats the decision for logs.
func (d Decision) String() string {
	if d.Reason == "" {
		return d.Next.String()
	}
	return d.Next.String() + " (" + d.Reason + ")"
}
