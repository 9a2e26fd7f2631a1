package agent

import (
	"fmt"
	"strings"

	"github.com/ChuDiRen/casegen/pkg/models"
)

// section renders a titled Markdown block, or nothing for empty bodies.
func section(b *strings.Builder, title, body string) {
	body = strings.TrimSpace(body)
	if body == "" {
		return
	}
	fmt.Fprintf(b, "## %s\n\n%s\n\n", title, body)
}

func taskTypeLine(b *strings.Builder, st models.State) {
	if st.TaskType != "" {
		fmt.Fprintf(b, "Task type: %s\n\n", st.TaskType)
	}
}

// analyzerMessage asks for an analysis of the requirement.
func analyzerMessage(st models.State) string {
	var b strings.Builder
	taskTypeLine(&b, st)
	section(&b, "Requirement", st.Requirement)
	b.WriteString("Analyze this requirement for test design.")
	return b.String()
}

// designerMessage asks for test points derived from the analysis.
func designerMessage(st models.State) string {
	var b strings.Builder
	taskTypeLine(&b, st)
	section(&b, "Requirement", st.Requirement)
	section(&b, "Requirement Analysis", st.Analysis)
	b.WriteString("Design the test points that cover this analysis.")
	return b.String()
}

// writerMessage asks for test cases. When the current test cases were
// rejected by review it asks for a revision instead.
func writerMessage(st models.State, revision bool) string {
	var b strings.Builder
	taskTypeLine(&b, st)
	section(&b, "Requirement", st.Requirement)
	section(&b, "Requirement Analysis", st.Analysis)
	section(&b, "Test Points", st.TestPoints)
	if revision {
		section(&b, "Previous Test Cases", st.TestCases)
		section(&b, "Review Feedback", st.ReviewFeedback)
		fmt.Fprintf(&b, "The previous test cases scored %.0f/100. Revise them to address every point of the review feedback.", st.QualityScore)
		return b.String()
	}
	b.WriteString("Write the test cases for these test points.")
	return b.String()
}

// reviewerMessage asks for a scored review of the current test cases.
func reviewerMessage(st models.State) string {
	var b strings.Builder
	taskTypeLine(&b, st)
	section(&b, "Requirement", st.Requirement)
	section(&b, "Requirement Analysis", st.Analysis)
	section(&b, "Test Points", st.TestPoints)
	section(&b, "Test Cases", st.TestCases)
	b.WriteString(`Review these test cases. End with {"quality_score": <0-100>, "summary": "..."}.`)
	return b.String()
}

// supervisorMessage summarizes the state for a model-made routing decision.
func supervisorMessage(st models.State) string {
	var b strings.Builder
	b.WriteString("## Task State\n\n")
	fmt.Fprintf(&b, "- requirement: %s\n", presence(st.Requirement))
	fmt.Fprintf(&b, "- analysis: %s\n", presence(st.Analysis))
	fmt.Fprintf(&b, "- test_points: %s\n", presence(st.TestPoints))
	fmt.Fprintf(&b, "- test_cases: %s\n", presence(st.TestCases))
	if st.Reviewed {
		fmt.Fprintf(&b, "- quality_score: %.0f\n", st.QualityScore)
	} else {
		b.WriteString("- quality_score: not reviewed\n")
	}
	fmt.Fprintf(&b, "- iteration: %d of %d\n", st.Iteration, st.MaxIterations)
	b.WriteString("\nChoose the next stage: analyzer, designer, writer, reviewer or FINISH.")
	return b.String()
}

func presence(s string) string {
	if strings.TrimSpace(s) == "" {
		return "empty"
	}
	return fmt.Sprintf("present (%d chars)", len(s))
}
