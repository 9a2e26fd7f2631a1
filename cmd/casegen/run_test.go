package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuDiRen/casegen/internal/config"
	"github.com/ChuDiRen/casegen/internal/llm"
	"github.com/ChuDiRen/casegen/internal/llm/llmtest"
	"github.com/ChuDiRen/casegen/internal/pipeline"
	"github.com/ChuDiRen/casegen/internal/state"
	"github.com/ChuDiRen/casegen/pkg/models"
)

func TestReadRequirement(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "req.txt")
	require.NoError(t, os.WriteFile(file, []byte("  from file\n"), 0644))

	tests := []struct {
		name    string
		args    []string
		file    string
		stdin   string
		want    string
		wantErr error
	}{
		{name: "argument", args: []string{"from arg"}, want: "from arg"},
		{name: "file", file: file, want: "from file"},
		{name: "stdin", stdin: "from stdin\n", want: "from stdin"},
		{name: "dash reads stdin", file: "-", stdin: "piped", want: "piped"},
		{name: "blank", args: []string{"   "}, wantErr: pipeline.ErrEmptyRequirement},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readRequirement(tt.args, tt.file, strings.NewReader(tt.stdin))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := readRequirement([]string{"a"}, file, nil)
	assert.Error(t, err, "argument and file together")

	_, err = readRequirement(nil, filepath.Join(dir, "missing.txt"), nil)
	assert.Error(t, err)
}

func TestParseBatchFile(t *testing.T) {
	tasks, err := parseBatchFile(strings.NewReader(`
task_type: api
max_iterations: 2
tasks:
  - requirement: first
  - id: second
    requirement: second
    task_type: ui
    max_iterations: 5
`))
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	assert.Equal(t, "api", tasks[0].TaskType)
	assert.Equal(t, 2, tasks[0].MaxIterations)
	assert.Empty(t, tasks[0].ID, "ids are assigned later")

	assert.Equal(t, "second", tasks[1].ID)
	assert.Equal(t, "ui", tasks[1].TaskType)
	assert.Equal(t, 5, tasks[1].MaxIterations)
}

func TestParseBatchFile_Errors(t *testing.T) {
	tests := map[string]string{
		"empty":        "",
		"no tasks":     "task_type: api\n",
		"unknown key":  "tasks:\n  - requirement: a\n    priority: high\n",
		"duplicate id": "tasks:\n  - id: x\n    requirement: a\n  - id: x\n    requirement: b\n",
		"not yaml":     "tasks: [",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := parseBatchFile(strings.NewReader(content))
			assert.Error(t, err)
		})
	}
}

func TestConfigValues(t *testing.T) {
	cfg := config.Default()

	require.NoError(t, setConfigValue(cfg, "pipeline.pass_score", "72.5"))
	require.NoError(t, setConfigValue(cfg, "anthropic.timeout", "45s"))
	require.NoError(t, setConfigValue(cfg, "agents.reviewer.max_retries", "5"))
	require.NoError(t, setConfigValue(cfg, "Storage.Driver", "SQLITE3"))

	for key, want := range map[string]string{
		"pipeline.pass_score":         "72.5",
		"anthropic.timeout":           "45s",
		"agents.reviewer.max_retries": "5",
		"agents.reviewer.retry_delay": "1s",
		"agents.writer.max_retries":   "3",
		"storage.driver":              "sqlite3",
	} {
		got, err := getConfigValue(cfg, key)
		require.NoError(t, err, key)
		assert.Equal(t, want, got, key)
	}

	assert.Error(t, setConfigValue(cfg, "pipeline.max_iterations", "many"))
	assert.Error(t, setConfigValue(cfg, "agents.writer.color", "blue"))
	_, err := getConfigValue(cfg, "nope")
	assert.Error(t, err)
}

func TestConfigValues_MasksAPIKey(t *testing.T) {
	cfg := config.Default()
	cfg.Anthropic.APIKey = "sk-ant-REDACTED"

	got, err := getConfigValue(cfg, "anthropic.api_key")
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-...wxyz", got)
}

func TestAgentKey(t *testing.T) {
	name, field, ok := agentKey("agents.Writer.retry_delay")
	assert.True(t, ok)
	assert.Equal(t, "writer", name)
	assert.Equal(t, "retry_delay", field)

	for _, key := range []string{"agents.writer", "agents..max_retries", "pipeline.writer.max_retries"} {
		_, _, ok := agentKey(key)
		assert.False(t, ok, key)
	}
}

func TestFormatEvent(t *testing.T) {
	line := formatEvent(pipeline.Event{Type: pipeline.EventStageCompleted, Agent: "reviewer", Message: "quality score 85"})
	assert.Contains(t, line, "reviewer")
	assert.Contains(t, line, "quality score 85")

	assert.Empty(t, formatEvent(pipeline.Event{Type: pipeline.EventAgentProgress, Agent: "writer"}))

	done := formatEvent(pipeline.Event{Type: pipeline.EventTaskDone, Message: "completed", TokensUsed: 60})
	assert.Contains(t, done, "task completed (60 tokens)")
}

func TestWriteTestCases(t *testing.T) {
	dir := t.TempDir()
	task := models.NewState("task-1", "login", "functional", 3)
	task.TestCases = "TC-1 login"

	path, err := writeTestCases(filepath.Join(dir, "out", "cases.md"), task)
	require.NoError(t, err)
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "TC-1 login\n", string(content))

	path, err = writeTestCases(dir, task)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "task-1.md"), path)

	task.TestCases = ""
	_, err = writeTestCases(dir, task)
	assert.Error(t, err)
}

// setupCLI isolates config, data and cwd, and routes model calls by the
// "role:<agent>" system prompts the test stores.
func setupCLI(t *testing.T, reviewScore int) *llmtest.Gateway {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Chdir(t.TempDir())

	gw := llmtest.New()
	gw.Handler = func(system, _ string) llmtest.Reply {
		name := strings.TrimPrefix(system, "role:")
		if name == "reviewer" {
			return llmtest.Text(fmt.Sprintf("Looks fine.\n{\"quality_score\": %d}", reviewScore), 10)
		}
		return llmtest.Text(name+" output", 10)
	}

	orig := newGateway
	newGateway = func(*config.Config) (llm.Gateway, error) { return gw, nil }
	t.Cleanup(func() { newGateway = orig })
	return gw
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func storeRolePrompts(t *testing.T) {
	t.Helper()
	for _, name := range []string{"analyzer", "designer", "writer", "reviewer"} {
		_, err := execute(t, "prompts", "set", name, "--file", "", "--text", "role:"+name)
		require.NoError(t, err)
	}
}

func TestCLI_RunAndStatus(t *testing.T) {
	gw := setupCLI(t, 90)
	storeRolePrompts(t)

	outFile := filepath.Join(t.TempDir(), "cases.md")
	out, err := execute(t, "run", "--file", "", "--tui=false", "--task-type", "", "--max-iterations", "0",
		"--output", outFile, "Users can log in with email and password")
	require.NoError(t, err, out)

	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "Score:      90")
	assert.Equal(t, 4, gw.CallCount(), "one call per specialist")

	content, err := os.ReadFile(outFile)
	require.NoError(t, err)
	assert.Equal(t, "writer output\n", string(content))

	out, err = execute(t, "status", "--status", "", "--limit", "20")
	require.NoError(t, err)
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "Users can log in")
}

func TestCLI_Batch(t *testing.T) {
	setupCLI(t, 50)
	storeRolePrompts(t)

	dir := t.TempDir()
	batch := filepath.Join(dir, "batch.yaml")
	require.NoError(t, os.WriteFile(batch, []byte(`
max_iterations: 1
tasks:
  - id: one
    requirement: first requirement
  - id: two
    requirement: second requirement
`), 0644))

	outDir := filepath.Join(dir, "out")
	out, err := execute(t, "batch", "--concurrency", "2", "--output-dir", outDir, batch)
	require.NoError(t, err, out)
	assert.Contains(t, out, "2 task(s), 0 failed")

	for _, id := range []string{"one", "two"} {
		content, err := os.ReadFile(filepath.Join(outDir, id+".md"))
		require.NoError(t, err)
		assert.Equal(t, "writer output\n", string(content))
	}

	out, err = execute(t, "status", "--cases", "one")
	require.NoError(t, err)
	assert.Contains(t, out, "Score:       50")
	assert.Contains(t, out, "Iteration:   1/1")
	assert.Contains(t, out, "writer output")

	out, err = execute(t, "cleanup", "one", "missing")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted one")
	assert.Contains(t, out, "No task with id missing")

	out, err = execute(t, "cleanup", "--older-than", "0s")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted 1 finished task(s)")
}

func TestCLI_ResumeFailedTask(t *testing.T) {
	gw := setupCLI(t, 95)
	storeRolePrompts(t)

	cfg, err := loadConfig()
	require.NoError(t, err)
	db, err := state.Open(cfg.Storage.Driver, cfg.Storage.Path)
	require.NoError(t, err)

	st := models.NewState("failed-task", "Orders can be cancelled", "functional", 3)
	st.Analysis = "done before"
	st.Error = &models.TaskError{Stage: "designer", Message: "boom"}
	require.NoError(t, db.SaveTask(t.Context(), st))
	require.NoError(t, db.Close())

	out, err := execute(t, "resume", "--output", "", "failed-task")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Retrying task failed-task")
	assert.Contains(t, out, "completed")
	assert.Equal(t, 3, gw.CallCount(), "designer, writer and reviewer only")

	out, err = execute(t, "resume", "--output", "", "failed-task")
	require.NoError(t, err)
	assert.Contains(t, out, "already")
	assert.Equal(t, 3, gw.CallCount())

	_, err = execute(t, "resume", "--output", "", "missing")
	assert.Error(t, err)
}

func TestCLI_Prompts(t *testing.T) {
	setupCLI(t, 90)

	_, err := execute(t, "prompts", "set", "writer", "api", "--file", "", "--text", "api writer prompt")
	require.NoError(t, err)

	out, err := execute(t, "prompts", "show", "writer", "api")
	require.NoError(t, err)
	assert.Equal(t, "api writer prompt\n", out)

	out, err = execute(t, "prompts", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "stored")
	assert.Contains(t, out, "built-in")

	_, err = execute(t, "prompts", "delete", "writer", "api")
	require.NoError(t, err)
	_, err = execute(t, "prompts", "delete", "writer", "api")
	assert.Error(t, err)
}

func TestCLI_RunNeedsGateway(t *testing.T) {
	setupCLI(t, 90)
	newGateway = func(*config.Config) (llm.Gateway, error) { return nil, config.ErrNoAPIKey }

	_, err := execute(t, "run", "--file", "", "--output", "", "a requirement")
	assert.True(t, errors.Is(err, config.ErrNoAPIKey))
}

func TestCLI_Version(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "casegen version "))
}
