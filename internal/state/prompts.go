package state

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ChuDiRen/casegen/internal/prompt"
)

// SetPrompt stores the prompt of an agent for a task type. An empty task
// type stores the agent's default prompt.
func (db *DB) SetPrompt(ctx context.Context, e prompt.Entry) error {
	agent := normalizeKey(e.Agent)
	if agent == "" {
		return fmt.Errorf("set prompt: agent name is empty")
	}
	if strings.TrimSpace(e.Prompt) == "" {
		return fmt.Errorf("set prompt: prompt for %s is empty", agent)
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO prompts (agent, task_type, prompt, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(agent, task_type) DO UPDATE SET
			prompt = excluded.prompt,
			updated_at = excluded.updated_at
	`, agent, normalizeKey(e.TaskType), e.Prompt, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("set prompt: %w", err)
	}
	return nil
}

// DeletePrompt removes a stored prompt.
func (db *DB) DeletePrompt(ctx context.Context, agent, taskType string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM prompts WHERE agent = ? AND task_type = ?`,
		normalizeKey(agent), normalizeKey(taskType))
	if err != nil {
		return fmt.Errorf("delete prompt: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("prompt %s/%s: %w", agent, taskType, ErrNotFound)
	}
	return nil
}

// ListPrompts returns every stored prompt ordered by agent and task type.
func (db *DB) ListPrompts(ctx context.Context) ([]prompt.Entry, error) {
	rows, err := db.QueryContext(ctx, `SELECT agent, task_type, prompt FROM prompts ORDER BY agent, task_type`)
	if err != nil {
		return nil, fmt.Errorf("list prompts: %w", err)
	}
	defer rows.Close()

	var entries []prompt.Entry
	for rows.Next() {
		var e prompt.Entry
		if err := rows.Scan(&e.Agent, &e.TaskType, &e.Prompt); err != nil {
			return nil, fmt.Errorf("scan prompt: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Lookup implements prompt.Store: an exact (agent, task type) entry wins
// over the agent's default entry. Database errors are logged and reported
// as no match.
func (db *DB) Lookup(agentName, taskType string) string {
	agent, tt := normalizeKey(agentName), normalizeKey(taskType)
	var p string
	err := db.QueryRowContext(context.Background(), `
		SELECT prompt FROM prompts
		WHERE agent = ? AND task_type IN (?, '')
		ORDER BY task_type = '' LIMIT 1
	`, agent, tt).Scan(&p)
	if err != nil {
		if !isNoRows(err) {
			log.Printf("[state] prompt lookup %s/%s: %v", agent, tt, err)
		}
		return ""
	}
	return p
}

func normalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
