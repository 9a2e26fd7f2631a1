package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ChuDiRen/casegen/internal/prompt"
	"github.com/ChuDiRen/casegen/internal/state"
)

var (
	promptFile string
	promptText string
)

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "Manage agent system prompts",
	Long: `Manage the system prompts of the agents.

Prompts are looked up per agent and task type. A prompt stored for the
exact task type wins over the agent's default prompt (empty task type).
Stored prompts win over the prompts file (prompts.file), which wins over
the built-in templates.

Agents read their prompt once per task; changes apply to the next task.`,
}

var promptsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List prompts from every source",
	Args:  cobra.NoArgs,
	RunE:  runPromptsList,
}

var promptsShowCmd = &cobra.Command{
	Use:   "show <agent> [task-type]",
	Short: "Print the prompt an agent would use",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runPromptsShow,
}

var promptsSetCmd = &cobra.Command{
	Use:   "set <agent> [task-type]",
	Short: "Store a prompt (from --text, --file or stdin)",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runPromptsSet,
}

var promptsDeleteCmd = &cobra.Command{
	Use:   "delete <agent> [task-type]",
	Short: "Delete a stored prompt",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runPromptsDelete,
}

func init() {
	promptsSetCmd.Flags().StringVarP(&promptFile, "file", "f", "", "Read the prompt from a file")
	promptsSetCmd.Flags().StringVar(&promptText, "text", "", "Prompt text")

	promptsCmd.AddCommand(promptsListCmd)
	promptsCmd.AddCommand(promptsShowCmd)
	promptsCmd.AddCommand(promptsSetCmd)
	promptsCmd.AddCommand(promptsDeleteCmd)
}

func promptKey(args []string) (agentName, taskType string) {
	agentName = args[0]
	if len(args) > 1 {
		taskType = args[1]
	}
	return agentName, taskType
}

func runPromptsList(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	stored, err := a.db.ListPrompts(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printEntries(out, "stored", stored)
	if a.file != nil {
		printEntries(out, a.file.Path(), a.file.Entries())
	}
	printEntries(out, "built-in", prompt.ListDefaults())
	return nil
}

func printEntries(out io.Writer, source string, entries []prompt.Entry) {
	fmt.Fprintf(out, "%s\n", color.New(color.Bold).Sprint(source))
	if len(entries) == 0 {
		fmt.Fprintln(out, "  (none)")
	}
	for _, e := range entries {
		taskType := e.TaskType
		if taskType == "" {
			taskType = "*"
		}
		fmt.Fprintf(out, "  %-10s %-12s %s\n", e.Agent, taskType, firstLine(e.Prompt, 60))
	}
	fmt.Fprintln(out)
}

func runPromptsShow(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	agentName, taskType := promptKey(args)
	if taskType == "" {
		taskType = a.cfg.Pipeline.TaskType
	}
	p := a.prompts.Lookup(agentName, taskType)
	if p == "" {
		return fmt.Errorf("no prompt for agent %q", agentName)
	}
	fmt.Fprintln(cmd.OutOrStdout(), p)
	return nil
}

func runPromptsSet(cmd *cobra.Command, args []string) error {
	text, err := readPromptText(cmd.InOrStdin())
	if err != nil {
		return err
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	agentName, taskType := promptKey(args)
	if err := a.db.SetPrompt(cmd.Context(), prompt.Entry{Agent: agentName, TaskType: taskType, Prompt: text}); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Stored prompt for %s\n", describeKey(agentName, taskType))
	return nil
}

func runPromptsDelete(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	agentName, taskType := promptKey(args)
	err = a.db.DeletePrompt(cmd.Context(), agentName, taskType)
	if errors.Is(err, state.ErrNotFound) {
		return fmt.Errorf("no stored prompt for %s", describeKey(agentName, taskType))
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted prompt for %s\n", describeKey(agentName, taskType))
	return nil
}

func readPromptText(stdin io.Reader) (string, error) {
	var raw []byte
	var err error
	switch {
	case promptText != "" && promptFile != "":
		return "", errors.New("use either --text or --file")
	case promptText != "":
		raw = []byte(promptText)
	case promptFile != "":
		raw, err = os.ReadFile(promptFile)
	default:
		raw, err = io.ReadAll(stdin)
	}
	if err != nil {
		return "", fmt.Errorf("read prompt: %w", err)
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return "", errors.New("prompt is empty")
	}
	return text, nil
}

func describeKey(agentName, taskType string) string {
	if taskType == "" {
		return agentName + " (all task types)"
	}
	return agentName + "/" + taskType
}
