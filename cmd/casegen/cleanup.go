package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ChuDiRen/casegen/internal/state"
)

var cleanupOlderThan time.Duration

var cleanupCmd = &cobra.Command{
	Use:   "cleanup [task-id...]",
	Short: "Delete stored tasks",
	Long: `Delete the given tasks, or every finished task older than --older-than.
Running tasks are only deleted when named explicitly.`,
	RunE: runCleanup,
}

func init() {
	cleanupCmd.Flags().DurationVar(&cleanupOlderThan, "older-than", 30*24*time.Hour, "Age of finished tasks to delete")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()
	out := cmd.OutOrStdout()

	if len(args) > 0 {
		for _, id := range args {
			err := a.db.DeleteTask(ctx, id)
			if errors.Is(err, state.ErrNotFound) {
				fmt.Fprintf(out, "No task with id %s\n", id)
				continue
			}
			if err != nil {
				return fmt.Errorf("delete %s: %w", id, err)
			}
			fmt.Fprintf(out, "Deleted %s\n", id)
		}
		return nil
	}

	n, err := a.db.PurgeTasks(ctx, cleanupOlderThan)
	if err != nil {
		return fmt.Errorf("purge tasks: %w", err)
	}
	fmt.Fprintf(out, "Deleted %d finished task(s) older than %s\n", n, cleanupOlderThan)
	return nil
}
