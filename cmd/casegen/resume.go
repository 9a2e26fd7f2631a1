package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ChuDiRen/casegen/internal/pipeline"
	"github.com/ChuDiRen/casegen/internal/state"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <task-id>",
	Short: "Continue a stored task",
	Long: `Continue a stored task from its last saved state.

Stages whose output is already stored are not run again. A task that
failed is retried from the failed stage; a task that already finished is
left as it is.`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func init() {
	resumeCmd.Flags().StringVarP(&runOutput, "output", "o", "", "Write the test cases to this file or directory")
}

func runResume(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()

	st, err := a.db.GetTask(ctx, args[0])
	if errors.Is(err, state.ErrNotFound) {
		return fmt.Errorf("no task with id %s (see 'casegen status')", args[0])
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if st.Completed {
		fmt.Fprintf(out, "Task %s is already %s.\n", st.ID, statusColor(st.Status()))
		return nil
	}
	// A failed task is retried from the stage that failed.
	if st.Error != nil {
		fmt.Fprintf(out, "Retrying task %s after: %s\n", st.ID, st.Error)
		st.Error = nil
	}

	gw, err := newGateway(a.cfg)
	if err != nil {
		return err
	}

	emitter := pipeline.NewEventEmitter(256)
	printed := followEvents(emitter, out, false)
	res, err := pipeline.ResumeTask(ctx, a.factory(gw, emitter), st)
	emitter.Close()
	<-printed
	if err != nil {
		return err
	}

	printResult(out, res)
	return finishTask(out, res)
}
