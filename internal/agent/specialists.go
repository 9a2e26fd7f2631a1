package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ChuDiRen/casegen/pkg/models"
)

// Agent names. They double as prompt-store keys.
const (
	NameAnalyzer   = "analyzer"
	NameDesigner   = "designer"
	NameWriter     = "writer"
	NameReviewer   = "reviewer"
	NameSupervisor = "supervisor"
)

var (
	// ErrMissingInput is returned when a stage runs before its input exists.
	ErrMissingInput = errors.New("required input is empty")
	// ErrEmptyOutput is returned when the model produced only whitespace.
	ErrEmptyOutput = errors.New("model returned empty output")
)

func requireField(agent, field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s: %s: %w", agent, field, ErrMissingInput)
	}
	return nil
}

func generate(ctx context.Context, b *Base, message string) (string, error) {
	out, err := b.InvokeModel(ctx, message)
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("%s: %w", b.Name(), ErrEmptyOutput)
	}
	return out, nil
}

// Analyzer turns the requirement into a structured analysis.
type Analyzer struct {
	Base
}

// NewAnalyzer creates an analyzer agent.
func NewAnalyzer(cfg Config) *Analyzer {
	return &Analyzer{Base: NewBase(NameAnalyzer, cfg)}
}

// Process analyzes st.Requirement.
func (a *Analyzer) Process(ctx context.Context, st models.State) (*Response, error) {
	if err := requireField(a.Name(), "requirement", st.Requirement); err != nil {
		return nil, err
	}
	out, err := generate(ctx, &a.Base, analyzerMessage(st))
	if err != nil {
		return nil, err
	}
	return &Response{Agent: a.Name(), Content: out}, nil
}

// Designer derives test points from the analysis.
type Designer struct {
	Base
}

// NewDesigner creates a designer agent.
func NewDesigner(cfg Config) *Designer {
	return &Designer{Base: NewBase(NameDesigner, cfg)}
}

// Process designs test points for st.Analysis.
func (d *Designer) Process(ctx context.Context, st models.State) (*Response, error) {
	if err := requireField(d.Name(), "analysis", st.Analysis); err != nil {
		return nil, err
	}
	out, err := generate(ctx, &d.Base, designerMessage(st))
	if err != nil {
		return nil, err
	}
	return &Response{Agent: d.Name(), Content: out}, nil
}

// Writer writes test cases from the test points, or revises reviewed test
// cases using the review feedback.
type Writer struct {
	Base
}

// NewWriter creates a writer agent.
func NewWriter(cfg Config) *Writer {
	return &Writer{Base: NewBase(NameWriter, cfg)}
}

// Process writes or revises test cases.
func (w *Writer) Process(ctx context.Context, st models.State) (*Response, error) {
	if err := requireField(w.Name(), "test points", st.TestPoints); err != nil {
		return nil, err
	}
	revision := st.TestCases != "" && st.Reviewed
	out, err := generate(ctx, &w.Base, writerMessage(st, revision))
	if err != nil {
		return nil, err
	}
	resp := &Response{Agent: w.Name(), Content: out}
	resp.setMeta(MetaRevision, revision)
	return resp, nil
}

// Reviewer scores the current test cases. The review text is the content;
// the score is carried in metadata.
type Reviewer struct {
	Base
}

// NewReviewer creates a reviewer agent.
func NewReviewer(cfg Config) *Reviewer {
	return &Reviewer{Base: NewBase(NameReviewer, cfg)}
}

// Process reviews st.TestCases. A review without a parsable score is a
// failed attempt.
func (r *Reviewer) Process(ctx context.Context, st models.State) (*Response, error) {
	if err := requireField(r.Name(), "test cases", st.TestCases); err != nil {
		return nil, err
	}
	out, err := generate(ctx, &r.Base, reviewerMessage(st))
	if err != nil {
		return nil, err
	}
	score, err := ParseQualityScore(out)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", r.Name(), err)
	}
	resp := &Response{Agent: r.Name(), Content: out}
	resp.setMeta(MetaQualityScore, score)
	return resp, nil
}
