package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ChuDiRen/casegen/internal/pipeline"
	"github.com/ChuDiRen/casegen/pkg/models"
)

// maxLogEntries is how many activity lines the view keeps.
const maxLogEntries = 8

// StageStatus is the display state of one specialist stage.
type StageStatus int

const (
	StagePending StageStatus = iota
	StageRunning
	StageDone
	StageFailed
)

// StageLine is the view state of one specialist stage.
type StageLine struct {
	Stage   models.Stage
	Status  StageStatus
	Runs    int
	Percent float64
	Message string
}

// LogEntry is one line of the activity log.
type LogEntry struct {
	Timestamp time.Time
	Agent     string
	Message   string
}

// EventMsg carries one pipeline event into the model.
type EventMsg struct {
	Event pipeline.Event
}

// StreamClosedMsg is sent when the event channel is closed.
type StreamClosedMsg struct{}

// WaitForEvent returns a command that reads the next event from events.
func WaitForEvent(events <-chan pipeline.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return StreamClosedMsg{}
		}
		return EventMsg{Event: ev}
	}
}

// ProgressModel shows the live progress of one task.
type ProgressModel struct {
	taskID      string
	requirement string
	events      <-chan pipeline.Event

	spinner  spinner.Model
	stages   []*StageLine
	logs     []LogEntry
	decision string

	iteration int
	score     float64
	reviewed  bool
	tokens    int64
	attempts  int

	done      bool
	status    string
	err       error
	cancelled bool
	width     int

	styles styles
}

// NewProgressModel creates a model that follows taskID on events. An empty
// taskID follows whatever task emits first.
func NewProgressModel(taskID, requirement string, events <-chan pipeline.Event) *ProgressModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	m := &ProgressModel{
		taskID:      taskID,
		requirement: requirement,
		events:      events,
		spinner:     sp,
		styles:      newStyles(),
		width:       80,
	}
	for _, s := range models.Specialists() {
		m.stages = append(m.stages, &StageLine{Stage: s})
	}
	return m
}

// Init implements tea.Model.
func (m *ProgressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, WaitForEvent(m.events))
}

// Update implements tea.Model.
func (m *ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if !m.done {
				m.cancelled = true
			}
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case EventMsg:
		if m.Apply(msg.Event) {
			return m, tea.Quit
		}
		return m, WaitForEvent(m.events)

	case StreamClosedMsg:
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

// Apply folds an event into the view state. It reports whether the followed
// task is done.
func (m *ProgressModel) Apply(ev pipeline.Event) bool {
	if m.taskID == "" {
		m.taskID = ev.TaskID
	}
	if ev.TaskID != m.taskID {
		return false
	}

	m.iteration = ev.Iteration
	m.tokens = ev.TokensUsed
	if ev.QualityScore > 0 {
		m.score = ev.QualityScore
	}

	switch ev.Type {
	case pipeline.EventDecision:
		m.decision = ev.Message

	case pipeline.EventStageStarted:
		if line := m.line(ev.Agent); line != nil {
			line.Status = StageRunning
			line.Runs++
			line.Percent = 0
			line.Message = ev.Message
		}
		m.log(ev.Agent, "started: "+ev.Message, ev.Timestamp)

	case pipeline.EventAgentProgress:
		if line := m.line(ev.Agent); line != nil && line.Status == StageRunning {
			line.Percent = ev.Percent
		}

	case pipeline.EventAgentError:
		m.attempts++
		m.log(ev.Agent, ev.Message, ev.Timestamp)

	case pipeline.EventStageCompleted:
		if line := m.line(ev.Agent); line != nil {
			line.Status = StageDone
			line.Percent = 100
			line.Message = ev.Message
		}
		if ev.Agent == models.StageReviewer.String() {
			m.reviewed = true
			m.score = ev.QualityScore
		}
		m.log(ev.Agent, ev.Message, ev.Timestamp)

	case pipeline.EventStageFailed:
		if line := m.line(ev.Agent); line != nil {
			line.Status = StageFailed
			line.Message = ev.Message
		}
		m.log(ev.Agent, "failed: "+ev.Message, ev.Timestamp)

	case pipeline.EventTaskDone:
		m.done = true
		m.status = ev.Message
		m.err = ev.Error
		m.log("pipeline", "task "+ev.Message, ev.Timestamp)
		return true
	}
	return false
}

func (m *ProgressModel) line(agentName string) *StageLine {
	stage, ok := models.ParseStage(agentName)
	if !ok || !stage.IsSpecialist() {
		return nil
	}
	for _, l := range m.stages {
		if l.Stage == stage {
			return l
		}
	}
	return nil
}

func (m *ProgressModel) log(agentName, message string, ts time.Time) {
	m.logs = append(m.logs, LogEntry{Timestamp: ts, Agent: agentName, Message: message})
	if len(m.logs) > maxLogEntries {
		m.logs = m.logs[len(m.logs)-maxLogEntries:]
	}
}

// Done reports whether the task reached a terminal state.
func (m *ProgressModel) Done() bool {
	return m.done
}

// Cancelled reports whether the user quit before the task finished.
func (m *ProgressModel) Cancelled() bool {
	return m.cancelled
}

// Status returns the final task status, or "" while running.
func (m *ProgressModel) Status() string {
	return m.status
}

// Stages returns the per-stage view state in pipeline order.
func (m *ProgressModel) Stages() []StageLine {
	out := make([]StageLine, len(m.stages))
	for i, l := range m.stages {
		out[i] = *l
	}
	return out
}

// Logs returns the recent activity log.
func (m *ProgressModel) Logs() []LogEntry {
	return append([]LogEntry(nil), m.logs...)
}

// View implements tea.Model.
func (m *ProgressModel) View() string {
	s := m.styles
	var b strings.Builder

	b.WriteString(s.header.Render("casegen"))
	b.WriteString(" ")
	b.WriteString(s.dim.Render(shortID(m.taskID)))
	b.WriteString("\n")
	if m.requirement != "" {
		b.WriteString(s.dim.Render(truncate(firstLine(m.requirement), m.width-4)))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	for _, l := range m.stages {
		b.WriteString(m.renderStage(l))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	score := "-"
	if m.reviewed {
		score = fmt.Sprintf("%.0f", m.score)
	}
	b.WriteString(s.label.Render("Iteration:"))
	b.WriteString(s.value.Render(fmt.Sprintf("%d", m.iteration)))
	b.WriteString("  ")
	b.WriteString(s.label.Render("Score:"))
	b.WriteString(s.value.Render(score))
	b.WriteString("  ")
	b.WriteString(s.label.Render("Tokens:"))
	b.WriteString(s.value.Render(fmt.Sprintf("%d", m.tokens)))
	if m.attempts > 0 {
		b.WriteString("  ")
		b.WriteString(s.warning.Render(fmt.Sprintf("%d failed attempt(s)", m.attempts)))
	}
	b.WriteString("\n")
	if m.decision != "" {
		b.WriteString(s.label.Render("Decision:"))
		b.WriteString(s.phase.Render(m.decision))
		b.WriteString("\n")
	}

	if len(m.logs) > 0 {
		b.WriteString("\n")
		for _, e := range m.logs {
			b.WriteString(fmt.Sprintf("  %s %s %s\n",
				s.dim.Render(e.Timestamp.Format("15:04:05")),
				s.agent.Render(e.Agent),
				s.log.Render(truncate(e.Message, m.width-24))))
		}
	}

	b.WriteString("\n")
	switch {
	case m.done && m.err != nil:
		b.WriteString(s.failed.Render(fmt.Sprintf("Task %s: %v", m.status, m.err)))
	case m.done:
		b.WriteString(s.done.Render(fmt.Sprintf("Task %s.", m.status)))
	default:
		b.WriteString(s.dim.Render("Press q to cancel"))
	}
	b.WriteString("\n")
	return b.String()
}

func (m *ProgressModel) renderStage(l *StageLine) string {
	s := m.styles
	var icon string
	switch l.Status {
	case StageRunning:
		icon = m.spinner.View()
	case StageDone:
		icon = s.done.Render("✓")
	case StageFailed:
		icon = s.failed.Render("✗")
	default:
		icon = s.dim.Render("·")
	}

	name := s.stage.Render(l.Stage.String())
	detail := l.Message
	if l.Runs > 1 {
		detail = fmt.Sprintf("%s (run %d)", detail, l.Runs)
	}
	return fmt.Sprintf(" %s %s %s", icon, name, s.log.Render(truncate(detail, m.width-20)))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func truncate(s string, n int) string {
	if n < 4 || len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// NewProgressProgram creates a bubbletea program for the progress view.
func NewProgressProgram(m *ProgressModel) *tea.Program {
	return tea.NewProgram(m)
}
