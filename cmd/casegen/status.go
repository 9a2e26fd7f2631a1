package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ChuDiRen/casegen/internal/state"
	"github.com/ChuDiRen/casegen/pkg/models"
)

// interruptedAfter is how long a running task may sit untouched before
// status reports it as interrupted.
const interruptedAfter = 10 * time.Minute

var (
	statusLimit  int
	statusFilter string
	statusCases  bool
)

var statusCmd = &cobra.Command{
	Use:   "status [task-id]",
	Short: "Show stored tasks",
	Long: `Without arguments, list the most recent tasks.
With a task id, show the task's outputs and every agent run.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().IntVarP(&statusLimit, "limit", "n", 20, "Number of tasks to list")
	statusCmd.Flags().StringVar(&statusFilter, "status", "", "Only list tasks with this status (running, completed, failed)")
	statusCmd.Flags().BoolVar(&statusCases, "cases", false, "Print the task's test cases")
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()

	if len(args) == 1 {
		return showTask(ctx, out, a.db, args[0])
	}
	return listTasks(ctx, out, a.db)
}

func listTasks(ctx context.Context, out io.Writer, db *state.DB) error {
	var (
		tasks []models.State
		err   error
	)
	if statusFilter != "" {
		s := models.TaskStatus(statusFilter)
		if !s.Valid() {
			return fmt.Errorf("unknown status %q", statusFilter)
		}
		tasks, err = db.ListTasksByStatus(ctx, s)
		if len(tasks) > statusLimit && statusLimit > 0 {
			tasks = tasks[:statusLimit]
		}
	} else {
		tasks, err = db.ListTasks(ctx, statusLimit)
	}
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}

	if len(tasks) == 0 {
		fmt.Fprintln(out, "No tasks yet. Run 'casegen run <requirement>' to start.")
		return nil
	}

	fmt.Fprintf(out, "%-8s  %-9s  %-5s  %-4s  %-12s  %-16s  %s\n", "ID", "STATUS", "SCORE", "ITER", "TYPE", "UPDATED", "REQUIREMENT")
	for _, st := range tasks {
		score := "-"
		if st.Reviewed {
			score = fmt.Sprintf("%.0f", st.QualityScore)
		}
		fmt.Fprintf(out, "%-8s  %-9s  %-5s  %-4d  %-12s  %-16s  %s\n",
			shortID(st.ID), st.Status(), score, st.Iteration, st.TaskType,
			st.UpdatedAt.Local().Format("2006-01-02 15:04"), firstLine(st.Requirement, 50))
	}

	interrupted, err := db.Interrupted(ctx, interruptedAfter)
	if err != nil {
		return fmt.Errorf("find interrupted tasks: %w", err)
	}
	if len(interrupted) > 0 {
		fmt.Fprintf(out, "\n%s %d task(s) stopped while running. Continue with 'casegen resume <task-id>':\n",
			color.YellowString("⚠"), len(interrupted))
		for _, st := range interrupted {
			fmt.Fprintf(out, "  %s\n", st.ID)
		}
	}
	return nil
}

func showTask(ctx context.Context, out io.Writer, db *state.DB, id string) error {
	st, err := db.GetTask(ctx, id)
	if errors.Is(err, state.ErrNotFound) {
		return fmt.Errorf("no task with id %s", id)
	}
	if err != nil {
		return err
	}
	runs, err := db.ListStages(ctx, st.ID)
	if err != nil {
		return fmt.Errorf("list agent runs: %w", err)
	}
	tokens, err := db.TaskTokens(ctx, st.ID)
	if err != nil {
		return fmt.Errorf("sum tokens: %w", err)
	}

	bold := color.New(color.Bold)
	fmt.Fprintf(out, "%s %s\n", bold.Sprint("Task"), st.ID)
	fmt.Fprintf(out, "  Status:      %s\n", statusColor(st.Status()))
	fmt.Fprintf(out, "  Task type:   %s\n", st.TaskType)
	fmt.Fprintf(out, "  Iteration:   %d/%d\n", st.Iteration, st.MaxIterations)
	if st.Reviewed {
		fmt.Fprintf(out, "  Score:       %.0f\n", st.QualityScore)
	}
	fmt.Fprintf(out, "  Tokens:      %d\n", tokens)
	fmt.Fprintf(out, "  Created:     %s\n", st.CreatedAt.Local().Format(time.RFC3339))
	fmt.Fprintf(out, "  Updated:     %s\n", st.UpdatedAt.Local().Format(time.RFC3339))
	if st.Error != nil {
		fmt.Fprintf(out, "  Error:       %s\n", color.RedString(st.Error.Error()))
	}
	fmt.Fprintf(out, "  Requirement: %s\n", firstLine(st.Requirement, 70))
	fmt.Fprintf(out, "  Outputs:     analysis=%t test_points=%t test_cases=%t\n",
		st.Analysis != "", st.TestPoints != "", st.TestCases != "")

	if len(runs) > 0 {
		fmt.Fprintf(out, "\n%s\n", bold.Sprint("Agent runs"))
		for _, r := range runs {
			mark := color.GreenString("✓")
			if !r.Success {
				mark = color.RedString("✗")
			}
			fmt.Fprintf(out, "  %3d %s %-10s iter %d  attempts %d  tokens %-6d %s\n",
				r.Seq, mark, r.Agent, r.Iteration, r.Attempts, r.TokensUsed, r.Duration.Round(time.Millisecond))
			if r.Error != "" {
				fmt.Fprintf(out, "        %s\n", color.RedString(firstLine(r.Error, 90)))
			}
		}
	}

	if statusCases && st.TestCases != "" {
		fmt.Fprintf(out, "\n%s\n%s\n", bold.Sprint("Test cases"), st.TestCases)
	}
	return nil
}
