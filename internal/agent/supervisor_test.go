package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuDiRen/casegen/internal/llm"
	"github.com/ChuDiRen/casegen/internal/llm/llmtest"
	"github.com/ChuDiRen/casegen/pkg/models"
)

func stateWith(mut func(*models.State)) models.State {
	st := models.NewState("t1", "users can log in", "functional", 3)
	if mut != nil {
		mut(st)
	}
	return *st
}

func reviewed(score float64, iteration int) func(*models.State) {
	return func(st *models.State) {
		st.Analysis = "analysis"
		st.TestPoints = "points"
		st.TestCases = "cases"
		st.Reviewed = true
		st.QualityScore = score
		st.Iteration = iteration
	}
}

func TestSupervisor_Decide(t *testing.T) {
	sup := NewSupervisor(Config{})

	tests := []struct {
		name   string
		state  models.State
		next   models.Stage
		reason string
	}{
		{
			name:   "empty state",
			state:  stateWith(nil),
			next:   models.StageAnalyzer,
			reason: ReasonNoAnalysis,
		},
		{
			name:   "whitespace analysis counts as empty",
			state:  stateWith(func(st *models.State) { st.Analysis = "  \n" }),
			next:   models.StageAnalyzer,
			reason: ReasonNoAnalysis,
		},
		{
			name:   "analysis only",
			state:  stateWith(func(st *models.State) { st.Analysis = "a" }),
			next:   models.StageDesigner,
			reason: ReasonNoTestPoints,
		},
		{
			name: "test points present",
			state: stateWith(func(st *models.State) {
				st.Analysis = "a"
				st.TestPoints = "p"
			}),
			next:   models.StageWriter,
			reason: ReasonNoTestCases,
		},
		{
			name: "test cases unreviewed",
			state: stateWith(func(st *models.State) {
				st.Analysis = "a"
				st.TestPoints = "p"
				st.TestCases = "c"
			}),
			next:   models.StageReviewer,
			reason: ReasonUnreviewed,
		},
		{
			name:   "reviewed with zero score is a rejection",
			state:  stateWith(reviewed(0, 0)),
			next:   models.StageWriter,
			reason: ReasonRevise,
		},
		{
			name:   "passed",
			state:  stateWith(reviewed(80, 0)),
			next:   models.StageFinish,
			reason: ReasonPassed,
		},
		{
			name:   "passed at budget",
			state:  stateWith(reviewed(95, 3)),
			next:   models.StageFinish,
			reason: ReasonPassed,
		},
		{
			name:   "rejected within budget",
			state:  stateWith(reviewed(60, 2)),
			next:   models.StageWriter,
			reason: ReasonRevise,
		},
		{
			name:   "rejected at budget",
			state:  stateWith(reviewed(60, 3)),
			next:   models.StageFinish,
			reason: ReasonExhausted,
		},
		{
			name:   "rejected past budget",
			state:  stateWith(reviewed(10, 7)),
			next:   models.StageFinish,
			reason: ReasonExhausted,
		},
		{
			name:   "completed state",
			state:  stateWith(func(st *models.State) { st.Completed = true }),
			next:   models.StageFinish,
			reason: ReasonTerminal,
		},
		{
			name: "failed state",
			state: stateWith(func(st *models.State) {
				st.Error = &models.TaskError{Stage: "analyzer", Message: "down"}
			}),
			next:   models.StageFinish,
			reason: ReasonTerminal,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, ok := sup.Decide(tt.state)
			require.True(t, ok)
			assert.Equal(t, tt.next, d.Next)
			assert.Equal(t, tt.reason, d.Reason)

			again, _ := sup.Decide(tt.state)
			assert.Equal(t, d, again, "decision must be a pure function of the state")
		})
	}
}

func TestSupervisor_DecideAlwaysValidStage(t *testing.T) {
	sup := NewSupervisor(Config{})
	for _, analysis := range []string{"", "a"} {
		for _, points := range []string{"", "p"} {
			for _, cases := range []string{"", "c"} {
				for _, rev := range []bool{false, true} {
					for _, score := range []float64{0, 50, 80, 100} {
						for it := 0; it <= 4; it++ {
							st := stateWith(func(st *models.State) {
								st.Analysis, st.TestPoints, st.TestCases = analysis, points, cases
								st.Reviewed, st.QualityScore, st.Iteration = rev, score, it
							})
							d, ok := sup.Decide(st)
							require.True(t, ok)
							assert.True(t, d.Next.Valid(), "invalid stage %v", d.Next)
							if rev && cases != "" && points != "" && analysis != "" && score >= 80 {
								assert.True(t, d.IsFinish())
							}
						}
					}
				}
			}
		}
	}
}

func TestSupervisor_PassScoreOption(t *testing.T) {
	sup := NewSupervisor(Config{}, WithPassScore(90))
	assert.Equal(t, 90.0, sup.PassScore())

	d, _ := sup.Decide(stateWith(reviewed(85, 0)))
	assert.Equal(t, models.StageWriter, d.Next)

	d, _ = sup.Decide(stateWith(reviewed(90, 0)))
	assert.Equal(t, models.StageFinish, d.Next)
}

func TestSupervisor_ProcessRuleDecision(t *testing.T) {
	gw := llmtest.New()
	sup := NewSupervisor(Config{Gateway: gw})

	resp, err := sup.Process(context.Background(), stateWith(nil))
	require.NoError(t, err)

	d, ok := resp.Decision()
	require.True(t, ok)
	assert.Equal(t, models.StageAnalyzer, d.Next)
	assert.Equal(t, false, resp.Metadata[MetaFallback])
	assert.Equal(t, 0, gw.CallCount(), "rule path must not call the model")
	assert.Equal(t, "analyzer (requirement not analyzed)", resp.Content)
}

func TestSupervisor_TerminalBypassesCustomRules(t *testing.T) {
	called := false
	sup := NewSupervisor(Config{}, WithRules(func(models.State) (models.Decision, bool) {
		called = true
		return models.Decision{Next: models.StageWriter}, true
	}))

	d, ok := sup.Decide(stateWith(func(st *models.State) { st.Completed = true }))
	require.True(t, ok)
	assert.True(t, d.IsFinish())
	assert.False(t, called)
}

func TestSupervisor_ModelFallback(t *testing.T) {
	noRules := WithRules()

	tests := []struct {
		name   string
		reply  string
		next   models.Stage
		reason string
	}{
		{
			name:   "json decision",
			reply:  `{"next": "designer", "reason": "needs points"}`,
			next:   models.StageDesigner,
			reason: "needs points",
		},
		{
			name:   "unparsable reply",
			reply:  "I am not sure what to do.",
			next:   models.StageFinish,
			reason: ReasonUnparsable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := llmtest.New(llmtest.Text(tt.reply, 12))
			sup := NewSupervisor(Config{Gateway: gw}, noRules)

			resp, err := sup.Process(context.Background(), stateWith(nil))
			require.NoError(t, err)

			d, ok := resp.Decision()
			require.True(t, ok)
			assert.Equal(t, tt.next, d.Next)
			assert.Equal(t, tt.reason, d.Reason)
			assert.Equal(t, true, resp.Metadata[MetaFallback])
			assert.Equal(t, int64(12), sup.TokenUsage())

			calls := gw.Calls()
			require.Len(t, calls, 1)
			assert.Contains(t, calls[0].UserMessage, "analysis: empty")
		})
	}
}

func TestSupervisor_ModelFallbackFailureIsRetried(t *testing.T) {
	gw := llmtest.New(
		llmtest.Fail(&llm.InvocationError{Err: errors.New("overloaded")}),
		llmtest.Text("reviewer", 5),
	)
	sup := NewSupervisor(Config{Gateway: gw}, WithRules())
	a := New(sup, WithRetryPolicy(RetryPolicy{MaxRetries: 3}))
	recordSleeps(a)

	resp := a.Run(context.Background(), stateWith(nil))
	require.True(t, resp.Success, resp.Error)

	d, ok := resp.Decision()
	require.True(t, ok)
	assert.Equal(t, models.StageReviewer, d.Next)
	assert.Equal(t, 2, resp.Attempts())
	assert.Equal(t, int64(5), resp.TokensUsed)
}

func TestParseDecision(t *testing.T) {
	tests := []struct {
		name   string
		reply  string
		next   models.Stage
		reason string
		ok     bool
	}{
		{
			name:   "fenced json",
			reply:  "Decision:\n```json\n{\"next\": \"writer\", \"reason\": \"revise\"}\n```",
			next:   models.StageWriter,
			reason: "revise",
			ok:     true,
		},
		{
			name:   "next_agent key",
			reply:  `{"next_agent": "reviewer"}`,
			next:   models.StageReviewer,
			ok:     true,
		},
		{
			name:   "finish sentinel",
			reply:  `{"next": "FINISH", "reason": "done"}`,
			next:   models.StageFinish,
			reason: "done",
			ok:     true,
		},
		{
			name:   "bare stage name",
			reply:  "Designer\nbecause the analysis is complete",
			next:   models.StageDesigner,
			reason: "model decision",
			ok:     true,
		},
		{
			name:   "short phrase",
			reply:  "Next: analyzer.",
			next:   models.StageAnalyzer,
			reason: "model decision",
			ok:     true,
		},
		{
			name:  "unknown stage in json",
			reply: `{"next": "deployer"}`,
			ok:    false,
		},
		{
			name:  "prose",
			reply: "It depends on many factors that I cannot evaluate from here.",
			ok:    false,
		},
		{
			name:  "empty",
			reply: "",
			ok:    false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, ok := ParseDecision(tt.reply)
			require.Equal(t, tt.ok, ok)
			if !tt.ok {
				return
			}
			assert.Equal(t, tt.next, d.Next)
			assert.Equal(t, tt.reason, d.Reason)
		})
	}
}
