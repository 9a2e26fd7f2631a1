package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ChuDiRen/casegen/internal/llm"
	"github.com/ChuDiRen/casegen/internal/pipeline"
	"github.com/ChuDiRen/casegen/internal/tui"
)

var (
	runFile          string
	runTaskType      string
	runMaxIterations int
	runTUI           bool
	runOutput        string
)

var runCmd = &cobra.Command{
	Use:   "run [requirement]",
	Short: "Generate test cases for a requirement",
	Long: `Generate test cases for a requirement.

The requirement is taken from the argument, from --file, or from stdin
when neither is given (or --file is "-").

The task runs until the reviewer accepts the test cases, the iteration
budget is spent, or an agent fails after its retries. The task and every
agent run are stored; failed or interrupted tasks can be continued with
'casegen resume <task-id>'.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runFile, "file", "f", "", "Read the requirement from a file (\"-\" for stdin)")
	runCmd.Flags().StringVar(&runTaskType, "task-type", "", "Task type used to select prompts (default from config)")
	runCmd.Flags().IntVar(&runMaxIterations, "max-iterations", 0, "Writer/reviewer cycle cap (default from config)")
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "Show a live progress view")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "Write the test cases to this file or directory")
}

func runRun(cmd *cobra.Command, args []string) error {
	requirement, err := readRequirement(args, runFile, cmd.InOrStdin())
	if err != nil {
		return err
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	gw, err := newGateway(a.cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	tc := a.taskConfig(pipeline.TaskConfig{
		Requirement:   requirement,
		TaskType:      runTaskType,
		MaxIterations: runMaxIterations,
	})

	var res *pipeline.Result
	if runTUI {
		res, err = runWithTUI(ctx, cancel, a, gw, tc)
	} else {
		res, err = runHeadless(ctx, a, gw, tc, cmd.OutOrStdout())
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printResult(out, res)
	return finishTask(out, res)
}

// finishTask writes the output file and turns a failed task into an error.
func finishTask(out io.Writer, res *pipeline.Result) error {
	st := res.State
	if runOutput != "" && st.TestCases != "" {
		path, err := writeTestCases(runOutput, st)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "  Output:     %s\n", path)
	} else if runOutput == "" && st.TestCases != "" {
		fmt.Fprintf(out, "\n%s\n", st.TestCases)
	}

	if st.Error != nil {
		return fmt.Errorf("task %s failed: %w (resume with 'casegen resume %s')", st.ID, st.Error, st.ID)
	}
	return nil
}

func runHeadless(ctx context.Context, a *app, gw llm.Gateway, tc pipeline.TaskConfig, out io.Writer) (*pipeline.Result, error) {
	emitter := pipeline.NewEventEmitter(256)
	printed := followEvents(emitter, out, false)

	o, err := a.factory(gw, emitter)(tc)
	if err != nil {
		emitter.Close()
		<-printed
		return nil, err
	}
	defer o.Close()

	fmt.Fprintf(out, "Task %s: %s\n", tc.ID, firstLine(tc.Requirement, 70))
	res, err := o.RunTask(ctx, tc)
	emitter.Close()
	<-printed
	return res, err
}

func runWithTUI(ctx context.Context, cancel context.CancelFunc, a *app, gw llm.Gateway, tc pipeline.TaskConfig) (*pipeline.Result, error) {
	restore := redirectLog()
	defer restore()

	emitter := pipeline.NewEventEmitter(256)
	o, err := a.factory(gw, emitter)(tc)
	if err != nil {
		return nil, err
	}
	defer o.Close()

	type outcome struct {
		res *pipeline.Result
		err error
	}
	finished := make(chan outcome, 1)
	go func() {
		res, err := o.RunTask(ctx, tc)
		finished <- outcome{res, err}
	}()

	model := tui.NewProgressModel(tc.ID, tc.Requirement, emitter.Events())
	if _, err := tui.NewProgressProgram(model).Run(); err != nil {
		cancel()
		<-finished
		emitter.Close()
		return nil, fmt.Errorf("progress view: %w", err)
	}
	if model.Cancelled() {
		cancel()
	}

	r := <-finished
	emitter.Close()
	return r.res, r.err
}

// readRequirement returns the requirement from the argument, the file
// flag or stdin.
func readRequirement(args []string, file string, stdin io.Reader) (string, error) {
	var (
		raw []byte
		err error
	)
	switch {
	case len(args) > 0 && file != "":
		return "", errors.New("give the requirement as an argument or with --file, not both")
	case len(args) > 0:
		raw = []byte(args[0])
	case file != "" && file != "-":
		raw, err = os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read requirement: %w", err)
		}
	default:
		raw, err = io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read requirement from stdin: %w", err)
		}
	}

	requirement := strings.TrimSpace(string(raw))
	if requirement == "" {
		return "", pipeline.ErrEmptyRequirement
	}
	return requirement, nil
}
