package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ChuDiRen/casegen/internal/llm/llmtest"
	"github.com/ChuDiRen/casegen/internal/prompt"
	"github.com/ChuDiRen/casegen/pkg/models"
)

func TestSpecialists_MissingInput(t *testing.T) {
	cfg := Config{Gateway: llmtest.New()}
	tests := []struct {
		name string
		proc Processor
	}{
		{name: "analyzer", proc: NewAnalyzer(cfg)},
		{name: "designer", proc: NewDesigner(cfg)},
		{name: "writer", proc: NewWriter(cfg)},
		{name: "reviewer", proc: NewReviewer(cfg)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.proc.Name() != tt.name {
				t.Errorf("Name() = %q, want %q", tt.proc.Name(), tt.name)
			}
			_, err := tt.proc.Process(context.Background(), models.State{})
			if !errors.Is(err, ErrMissingInput) {
				t.Errorf("Process() error = %v, want ErrMissingInput", err)
			}
		})
	}
}

func TestSpecialists_EmptyOutput(t *testing.T) {
	a := NewAnalyzer(Config{Gateway: llmtest.New(llmtest.Text("  \n ", 3))})
	_, err := a.Process(context.Background(), models.State{Requirement: "r"})
	if !errors.Is(err, ErrEmptyOutput) {
		t.Errorf("Process() error = %v, want ErrEmptyOutput", err)
	}
	if a.TokenUsage() != 3 {
		t.Errorf("TokenUsage() = %d, want 3", a.TokenUsage())
	}
}

func TestAnalyzer_Process(t *testing.T) {
	gw := llmtest.New(llmtest.Text("  the analysis  ", 42))
	a := NewAnalyzer(Config{Gateway: gw, Prompts: prompt.Defaults(), TaskType: "functional"})

	resp, err := a.Process(context.Background(), models.State{Requirement: "Users can reset passwords", TaskType: "functional"})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if resp.Content != "the analysis" {
		t.Errorf("Content = %q, want trimmed output", resp.Content)
	}
	call := gw.Calls()[0]
	if call.SystemPrompt == "" {
		t.Error("analyzer sent no system prompt")
	}
	if !strings.Contains(call.UserMessage, "Users can reset passwords") {
		t.Errorf("user message missing requirement: %q", call.UserMessage)
	}
}

func TestDesigner_Process(t *testing.T) {
	gw := llmtest.New(llmtest.Text("points", 1))
	d := NewDesigner(Config{Gateway: gw})

	resp, err := d.Process(context.Background(), models.State{Requirement: "r", Analysis: "the analysis"})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if resp.Content != "points" {
		t.Errorf("Content = %q, want %q", resp.Content, "points")
	}
	if !strings.Contains(gw.Calls()[0].UserMessage, "the analysis") {
		t.Error("designer message missing analysis")
	}
}

func TestWriter_FirstDraftAndRevision(t *testing.T) {
	gw := llmtest.New(llmtest.Text("draft", 1), llmtest.Text("revised", 1))
	w := NewWriter(Config{Gateway: gw})
	ctx := context.Background()

	st := models.State{Requirement: "r", Analysis: "a", TestPoints: "p"}
	resp, err := w.Process(ctx, st)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if rev, _ := resp.Metadata[MetaRevision].(bool); rev {
		t.Error("first draft marked as revision")
	}

	st.TestCases = "draft"
	st.Reviewed = true
	st.QualityScore = 60
	st.ReviewFeedback = "missing negative cases"
	resp, err = w.Process(ctx, st)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if rev, _ := resp.Metadata[MetaRevision].(bool); !rev {
		t.Error("revision not marked")
	}
	msg := gw.Calls()[1].UserMessage
	for _, want := range []string{"missing negative cases", "draft", "60/100"} {
		if !strings.Contains(msg, want) {
			t.Errorf("revision message missing %q", want)
		}
	}
}

func TestReviewer_Process(t *testing.T) {
	gw := llmtest.New(llmtest.Text(`Good coverage. {"quality_score": 88, "summary": "ok"}`, 5))
	r := NewReviewer(Config{Gateway: gw})

	resp, err := r.Process(context.Background(), models.State{TestCases: "cases"})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	score, ok := resp.QualityScore()
	if !ok || score != 88 {
		t.Errorf("QualityScore() = %v, %v; want 88, true", score, ok)
	}
	if !strings.HasPrefix(resp.Content, "Good coverage.") {
		t.Errorf("Content = %q, want the review text", resp.Content)
	}
}

func TestReviewer_UnscoredReviewFails(t *testing.T) {
	gw := llmtest.New(llmtest.Text("Nice work overall.", 5))
	r := NewReviewer(Config{Gateway: gw})

	_, err := r.Process(context.Background(), models.State{TestCases: "cases"})
	if !errors.Is(err, ErrMalformedScore) {
		t.Errorf("Process() error = %v, want ErrMalformedScore", err)
	}
}

func TestWriter_TaskSpecificPrompt(t *testing.T) {
	gw := llmtest.New(llmtest.Text("x", 1), llmtest.Text("y", 1))
	store := prompt.Defaults()

	api := NewWriter(Config{Gateway: gw, Prompts: store, TaskType: "api"})
	fn := NewWriter(Config{Gateway: gw, Prompts: store, TaskType: "functional"})

	if api.SystemPrompt() == fn.SystemPrompt() {
		t.Error("api writer should use its task-specific prompt")
	}
}
