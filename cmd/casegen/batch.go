package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/ChuDiRen/casegen/internal/pipeline"
)

var (
	batchConcurrency int
	batchOutputDir   string
)

var batchCmd = &cobra.Command{
	Use:   "batch <file.yaml>",
	Short: "Generate test cases for many requirements",
	Long: `Run the tasks listed in a YAML file concurrently.

File format:

  task_type: functional      # default for every task
  max_iterations: 3          # default for every task
  tasks:
    - requirement: |
        Users can reset their password by email.
    - id: checkout-api
      task_type: api
      requirement: POST /checkout charges the cart.

Each task runs with its own agents. A failing task does not stop the
others.`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().IntVarP(&batchConcurrency, "concurrency", "c", 0, "Tasks run at the same time (default from config)")
	batchCmd.Flags().StringVarP(&batchOutputDir, "output-dir", "o", "", "Write each task's test cases to <dir>/<task-id>.md")
}

// batchFile is the on-disk layout of a batch file.
type batchFile struct {
	TaskType      string                `yaml:"task_type"`
	MaxIterations int                   `yaml:"max_iterations"`
	Tasks         []pipeline.TaskConfig `yaml:"tasks"`
}

// parseBatchFile reads a batch file and applies its defaults to each task.
func parseBatchFile(r io.Reader) ([]pipeline.TaskConfig, error) {
	var bf batchFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&bf); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("batch file is empty")
		}
		return nil, fmt.Errorf("parse batch file: %w", err)
	}
	if len(bf.Tasks) == 0 {
		return nil, errors.New("batch file lists no tasks")
	}

	seen := make(map[string]bool)
	tasks := make([]pipeline.TaskConfig, len(bf.Tasks))
	for i, tc := range bf.Tasks {
		if tc.TaskType == "" {
			tc.TaskType = bf.TaskType
		}
		if tc.MaxIterations <= 0 {
			tc.MaxIterations = bf.MaxIterations
		}
		if tc.ID != "" {
			if seen[tc.ID] {
				return nil, fmt.Errorf("task %d: duplicate id %q", i+1, tc.ID)
			}
			seen[tc.ID] = true
		}
		tasks[i] = tc
	}
	return tasks, nil
}

func runBatch(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open batch file: %w", err)
	}
	tasks, err := parseBatchFile(f)
	f.Close()
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

	for i := range tasks {
		tasks[i] = a.taskConfig(tasks[i])
	}
	concurrency := batchConcurrency
	if concurrency <= 0 {
		concurrency = a.cfg.Batch.Concurrency
	}

	ctx, cancel := signalContext()
	defer cancel()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Running %d task(s), %d at a time\n", len(tasks), concurrency)

	emitter := pipeline.NewEventEmitter(1024)
	printed := followEvents(emitter, out, true)
	results, err := pipeline.RunBatch(ctx, a.factory(gw, emitter), tasks, concurrency)
	emitter.Close()
	<-printed
	if err != nil {
		return err
	}

	return summarizeBatch(out, results)
}

// summarizeBatch prints one line per task and writes the outputs.
func summarizeBatch(out io.Writer, results []pipeline.BatchResult) error {
	var failed int
	var tokens int64
	fmt.Fprintln(out)
	for _, r := range results {
		req := firstLine(r.Config.Requirement, 50)
		if r.Err != nil {
			failed++
			fmt.Fprintf(out, "%s %-8s %s: %v\n", color.RedString("✗"), shortID(r.Config.ID), req, r.Err)
			continue
		}
		st := r.Result.State
		tokens += r.Result.TokensUsed
		if st.Error != nil {
			failed++
		}
		score := "-"
		if st.Reviewed {
			score = fmt.Sprintf("%.0f", st.QualityScore)
		}
		fmt.Fprintf(out, "%s %-8s %-9s score %-3s iter %d  %s\n",
			statusSymbol(st.Status()), shortID(st.ID), st.Status(), score, st.Iteration, req)

		if batchOutputDir != "" && st.TestCases != "" {
			if err := os.MkdirAll(batchOutputDir, 0755); err != nil {
				return fmt.Errorf("create output directory: %w", err)
			}
			if _, err := writeTestCases(batchOutputDir, st); err != nil {
				return err
			}
		}
	}
	fmt.Fprintf(out, "\n%d task(s), %d failed, %d tokens\n", len(results), failed, tokens)

	if failed > 0 {
		return fmt.Errorf("%d of %d task(s) failed", failed, len(results))
	}
	return nil
}
