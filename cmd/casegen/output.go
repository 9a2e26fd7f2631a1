package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/ChuDiRen/casegen/internal/pipeline"
	"github.com/ChuDiRen/casegen/pkg/models"
)

// followEvents prints pipeline events to w until the emitter is closed.
// The returned channel is closed once every event has been printed.
func followEvents(emitter *pipeline.EventEmitter, w io.Writer, prefixTask bool) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range emitter.Events() {
			if line := formatEvent(ev); line != "" {
				if prefixTask {
					line = color.HiBlackString("[%s] ", shortID(ev.TaskID)) + line
				}
				fmt.Fprintln(w, line)
			}
		}
	}()
	return done
}

// formatEvent renders one event as a status line, or "" for events that
// are not worth a line of their own.
func formatEvent(ev pipeline.Event) string {
	switch ev.Type {
	case pipeline.EventStageStarted:
		return fmt.Sprintf("%s %-9s %s", color.CyanString("→"), ev.Agent, ev.Message)
	case pipeline.EventStageCompleted:
		return fmt.Sprintf("%s %-9s %s", color.GreenString("✓"), ev.Agent, ev.Message)
	case pipeline.EventStageFailed:
		return fmt.Sprintf("%s %-9s %s", color.RedString("✗"), ev.Agent, ev.Message)
	case pipeline.EventAgentError:
		return fmt.Sprintf("%s %-9s %s", color.YellowString("⚠"), ev.Agent, ev.Message)
	case pipeline.EventTaskDone:
		return fmt.Sprintf("%s task %s (%d tokens)", statusSymbol(models.TaskStatus(ev.Message)), ev.Message, ev.TokensUsed)
	default:
		return ""
	}
}

func statusSymbol(s models.TaskStatus) string {
	switch s {
	case models.TaskStatusCompleted:
		return color.GreenString("✓")
	case models.TaskStatusFailed:
		return color.RedString("✗")
	default:
		return color.YellowString("…")
	}
}

func statusColor(s models.TaskStatus) string {
	switch s {
	case models.TaskStatusCompleted:
		return color.GreenString(string(s))
	case models.TaskStatusFailed:
		return color.RedString(string(s))
	default:
		return color.YellowString(string(s))
	}
}

// printResult prints the summary of a finished run.
func printResult(w io.Writer, res *pipeline.Result) {
	st := res.State
	fmt.Fprintf(w, "\n%s %s\n", color.New(color.Bold).Sprint("Task"), st.ID)
	fmt.Fprintf(w, "  Status:     %s\n", statusColor(st.Status()))
	fmt.Fprintf(w, "  Iteration:  %d/%d\n", st.Iteration, st.MaxIterations)
	if st.Reviewed {
		fmt.Fprintf(w, "  Score:      %.0f\n", st.QualityScore)
	}
	fmt.Fprintf(w, "  Tokens:     %d\n", res.TokensUsed)
	fmt.Fprintf(w, "  Agent runs: %d\n", len(res.Steps))
	fmt.Fprintf(w, "  Duration:   %s\n", res.Duration.Round(time.Millisecond))
	if st.Error != nil {
		fmt.Fprintf(w, "  Error:      %s\n", color.RedString(st.Error.Error()))
	}
}

// writeTestCases writes the test cases of st to path. A directory path gets
// one file per task.
func writeTestCases(path string, st *models.State) (string, error) {
	if st.TestCases == "" {
		return "", fmt.Errorf("task %s has no test cases", st.ID)
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, st.ID+".md")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	content := strings.TrimRight(st.TestCases, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("write test cases: %w", err)
	}
	return path, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func firstLine(s string, n int) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > n {
		s = s[:n-3] + "..."
	}
	return s
}
