package agent

import (
	"strings"
	"testing"

	"github.com/ChuDiRen/casegen/pkg/models"
)

func TestMessages_SkipEmptySections(t *testing.T) {
	st := models.State{Requirement: "req", TaskType: "api"}

	msg := designerMessage(st)
	if strings.Contains(msg, "## Requirement Analysis") {
		t.Errorf("empty analysis rendered as a section: %q", msg)
	}
	if !strings.Contains(msg, "Task type: api") {
		t.Errorf("message missing task type: %q", msg)
	}
}

func TestWriterMessage(t *testing.T) {
	st := models.State{
		Requirement:    "req",
		Analysis:       "ana",
		TestPoints:     "pts",
		TestCases:      "old cases",
		ReviewFeedback: "add boundaries",
		QualityScore:   45,
	}

	first := writerMessage(st, false)
	if strings.Contains(first, "old cases") {
		t.Error("first draft message includes previous test cases")
	}
	if !strings.Contains(first, "pts") {
		t.Error("first draft message missing test points")
	}

	rev := writerMessage(st, true)
	for _, want := range []string{"## Previous Test Cases", "old cases", "add boundaries", "45/100"} {
		if !strings.Contains(rev, want) {
			t.Errorf("revision message missing %q", want)
		}
	}
}

func TestReviewerMessage(t *testing.T) {
	msg := reviewerMessage(models.State{TestCases: "cases"})
	if !strings.Contains(msg, "quality_score") {
		t.Error("reviewer message does not ask for a quality score")
	}
}

func TestSupervisorMessage(t *testing.T) {
	st := models.State{Requirement: "req", Analysis: "ana", Iteration: 1, MaxIterations: 3}
	msg := supervisorMessage(st)

	for _, want := range []string{"analysis: present (3 chars)", "test_points: empty", "quality_score: not reviewed", "iteration: 1 of 3"} {
		if !strings.Contains(msg, want) {
			t.Errorf("supervisor message missing %q:\n%s", want, msg)
		}
	}

	st.Reviewed = true
	st.QualityScore = 70
	if msg := supervisorMessage(st); !strings.Contains(msg, "quality_score: 70") {
		t.Errorf("supervisor message missing score:\n%s", msg)
	}
}
