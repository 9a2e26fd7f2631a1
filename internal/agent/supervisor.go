package agent

import (
	"context"
	"log"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/ChuDiRen/casegen/pkg/models"
)

// DefaultPassScore is the review score at which test cases are accepted.
const DefaultPassScore = 80.0

// Decision reasons produced by the default rules.
const (
	ReasonTerminal     = "task already terminal"
	ReasonNoAnalysis   = "requirement not analyzed"
	ReasonNoTestPoints = "test points not designed"
	ReasonNoTestCases  = "test cases not written"
	ReasonUnreviewed   = "test cases not reviewed"
	ReasonPassed       = "review passed"
	ReasonExhausted    = "iteration budget exhausted"
	ReasonRevise       = "revise and re-review"
	ReasonUnparsable   = "unable to parse decision"
)

// Rule inspects the state and returns a decision when it applies.
// Rules must be pure functions of the state.
type Rule func(st models.State) (models.Decision, bool)

// DefaultRules returns the ordered routing table of the pipeline.
func DefaultRules(passScore float64) []Rule {
	return []Rule{
		func(st models.State) (models.Decision, bool) {
			return decide(models.StageAnalyzer, ReasonNoAnalysis), isBlank(st.Analysis)
		},
		func(st models.State) (models.Decision, bool) {
			return decide(models.StageDesigner, ReasonNoTestPoints), isBlank(st.TestPoints)
		},
		func(st models.State) (models.Decision, bool) {
			return decide(models.StageWriter, ReasonNoTestCases), isBlank(st.TestCases)
		},
		func(st models.State) (models.Decision, bool) {
			return decide(models.StageReviewer, ReasonUnreviewed), !st.Reviewed
		},
		func(st models.State) (models.Decision, bool) {
			return decide(models.StageFinish, ReasonPassed), Passes(st.QualityScore, passScore)
		},
		func(st models.State) (models.Decision, bool) {
			return decide(models.StageFinish, ReasonExhausted), st.Iteration >= st.MaxIterations
		},
		func(st models.State) (models.Decision, bool) {
			return decide(models.StageWriter, ReasonRevise), true
		},
	}
}

func decide(next models.Stage, reason string) models.Decision {
	return models.Decision{Next: next, Reason: reason}
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// Supervisor picks the next pipeline stage. The common path is an ordered
// rule table; the model is only asked when no rule matches.
type Supervisor struct {
	Base
	rules     []Rule
	passScore float64
}

// SupervisorOption configures a Supervisor.
type SupervisorOption func(*Supervisor)

// WithPassScore sets the acceptance threshold used by the default rules.
func WithPassScore(score float64) SupervisorOption {
	return func(s *Supervisor) {
		s.passScore = score
	}
}

// WithRules replaces the routing table. The terminal-state check always
// runs before the table. An empty table sends every decision to the model.
func WithRules(rules ...Rule) SupervisorOption {
	return func(s *Supervisor) {
		s.rules = append([]Rule{}, rules...)
	}
}

// NewSupervisor creates a supervisor with the default routing table.
func NewSupervisor(cfg Config, opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		Base:      NewBase(NameSupervisor, cfg),
		passScore: DefaultPassScore,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rules == nil {
		s.rules = DefaultRules(s.passScore)
	}
	return s
}

// PassScore returns the acceptance threshold.
func (s *Supervisor) PassScore() float64 {
	return s.passScore
}

// Decide applies the routing table. It returns false when no rule matched.
func (s *Supervisor) Decide(st models.State) (models.Decision, bool) {
	if st.Terminal() {
		return decide(models.StageFinish, ReasonTerminal), true
	}
	for _, rule := range s.rules {
		if d, ok := rule(st); ok {
			return d, true
		}
	}
	return models.Decision{}, false
}

// Process decides the next stage. The decision travels in the response
// metadata; the content is its human-readable form.
func (s *Supervisor) Process(ctx context.Context, st models.State) (*Response, error) {
	d, ok := s.Decide(st)
	fallback := false
	if !ok {
		fallback = true
		reply, err := s.InvokeModel(ctx, supervisorMessage(st))
		if err != nil {
			return nil, err
		}
		d, ok = ParseDecision(reply)
		if !ok {
			log.Printf("[supervisor] could not parse model decision, finishing: %.200q", reply)
			d = decide(models.StageFinish, ReasonUnparsable)
		}
	}

	resp := &Response{Agent: s.Name(), Content: d.String()}
	resp.setMeta(MetaDecision, d)
	resp.setMeta(MetaFallback, fallback)
	return resp, nil
}

var (
	stageWordPattern = regexp.MustCompile(`(?i)\b(analyzer|designer|writer|reviewer|finish)\b`)
	nextKeys         = []string{"next", "next_agent", "next_stage", "stage"}
)

// ParseDecision extracts a decision from a model reply. It accepts a JSON
// object (fenced or bare) with a "next" field, or a reply whose first line
// is a stage name.
func ParseDecision(reply string) (models.Decision, bool) {
	var candidates []string
	for _, m := range fencedPattern.FindAllStringSubmatch(reply, -1) {
		candidates = append(candidates, m[1])
	}
	candidates = append(candidates, objectPattern.FindAllString(reply, -1)...)

	for _, raw := range candidates {
		raw = strings.TrimSpace(raw)
		if !gjson.Valid(raw) {
			continue
		}
		for _, key := range nextKeys {
			r := gjson.Get(raw, key)
			if r.Type != gjson.String {
				continue
			}
			if stage, ok := models.ParseStage(r.Str); ok {
				return models.Decision{Next: stage, Reason: gjson.Get(raw, "reason").String()}, true
			}
		}
	}

	first := strings.TrimSpace(reply)
	if i := strings.IndexByte(first, '\n'); i >= 0 {
		first = strings.TrimSpace(first[:i])
	}
	first = strings.Trim(first, "`*\"'. ")
	if stage, ok := models.ParseStage(first); ok {
		return models.Decision{Next: stage, Reason: "model decision"}, true
	}
	if m := stageWordPattern.FindString(first); m != "" && len(first) <= 40 {
		stage, _ := models.ParseStage(m)
		return models.Decision{Next: stage, Reason: "model decision"}, true
	}
	return models.Decision{}, false
}
