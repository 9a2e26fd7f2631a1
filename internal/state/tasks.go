package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ChuDiRen/casegen/pkg/models"
)

const taskColumns = `id, requirement, task_type, analysis, test_points, test_cases, review_feedback,
	quality_score, reviewed, iteration, max_iterations, completed, error_stage, error_message,
	created_at, updated_at`

// CreateTask inserts a new task. It fails if the ID already exists.
func (db *DB) CreateTask(ctx context.Context, st *models.State) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, taskArgs(st)...)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// SaveTask inserts or replaces the stored copy of a task.
func (db *DB) SaveTask(ctx context.Context, st *models.State) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			requirement = excluded.requirement,
			task_type = excluded.task_type,
			analysis = excluded.analysis,
			test_points = excluded.test_points,
			test_cases = excluded.test_cases,
			review_feedback = excluded.review_feedback,
			quality_score = excluded.quality_score,
			reviewed = excluded.reviewed,
			iteration = excluded.iteration,
			max_iterations = excluded.max_iterations,
			completed = excluded.completed,
			error_stage = excluded.error_stage,
			error_message = excluded.error_message,
			updated_at = excluded.updated_at,
			status = excluded.status
	`, taskArgs(st)...)
	if err != nil {
		return fmt.Errorf("save task %s: %w", st.ID, err)
	}
	return nil
}

func taskArgs(st *models.State) []any {
	var errStage, errMsg sql.NullString
	if st.Error != nil {
		errStage = sql.NullString{String: st.Error.Stage, Valid: true}
		errMsg = sql.NullString{String: st.Error.Message, Valid: true}
	}
	created, updated := st.CreatedAt, st.UpdatedAt
	if created.IsZero() {
		created = time.Now()
	}
	if updated.IsZero() {
		updated = created
	}
	return []any{
		st.ID, st.Requirement, st.TaskType, st.Analysis, st.TestPoints, st.TestCases, st.ReviewFeedback,
		st.QualityScore, boolInt(st.Reviewed), st.Iteration, st.MaxIterations, boolInt(st.Completed),
		errStage, errMsg, formatTime(created), formatTime(updated),
		string(st.Status()),
	}
}

// GetTask retrieves a task by ID. It returns ErrNotFound if it doesn't exist.
func (db *DB) GetTask(ctx context.Context, id string) (*models.State, error) {
	row := db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	st, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return st, nil
}

// ListTasks returns the most recently updated tasks first. A limit of 0 or
// less returns every task.
func (db *DB) ListTasks(ctx context.Context, limit int) ([]models.State, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks ORDER BY updated_at DESC, id`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return db.queryTasks(ctx, query, args...)
}

// ListTasksByStatus returns tasks with the given status, most recent first.
func (db *DB) ListTasksByStatus(ctx context.Context, status models.TaskStatus) ([]models.State, error) {
	return db.queryTasks(ctx, `SELECT `+taskColumns+` FROM tasks WHERE status = ? ORDER BY updated_at DESC, id`, string(status))
}

// Interrupted returns running tasks not updated for at least idle. These are
// left over from a process that stopped mid-task and can be resumed.
func (db *DB) Interrupted(ctx context.Context, idle time.Duration) ([]models.State, error) {
	cutoff := formatTime(time.Now().Add(-idle))
	return db.queryTasks(ctx, `SELECT `+taskColumns+` FROM tasks WHERE status = ? AND updated_at <= ? ORDER BY updated_at DESC, id`,
		string(models.TaskStatusRunning), cutoff)
}

// DeleteTask deletes a task and its stage history.
func (db *DB) DeleteTask(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return nil
}

// PurgeTasks deletes finished tasks last updated before olderThan ago.
// Returns the number of tasks deleted.
func (db *DB) PurgeTasks(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := formatTime(time.Now().Add(-olderThan))
	res, err := db.ExecContext(ctx, `DELETE FROM tasks WHERE status != ? AND updated_at < ?`,
		string(models.TaskStatusRunning), cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge tasks: %w", err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return count, nil
}

func (db *DB) queryTasks(ctx context.Context, query string, args ...any) ([]models.State, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.State
	for rows.Next() {
		st, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *st)
	}
	return tasks, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (*models.State, error) {
	var (
		st                 models.State
		reviewed, complete int
		errStage, errMsg   sql.NullString
		created, updated   string
	)
	err := s.Scan(&st.ID, &st.Requirement, &st.TaskType, &st.Analysis, &st.TestPoints, &st.TestCases,
		&st.ReviewFeedback, &st.QualityScore, &reviewed, &st.Iteration, &st.MaxIterations, &complete,
		&errStage, &errMsg, &created, &updated)
	if err != nil {
		return nil, err
	}
	st.Reviewed = reviewed != 0
	st.Completed = complete != 0
	if errStage.Valid || errMsg.Valid {
		st.Error = &models.TaskError{Stage: errStage.String, Message: errMsg.String}
	}
	st.CreatedAt, _ = parseTime(created)
	st.UpdatedAt, _ = parseTime(updated)
	return &st, nil
}

// RecordStage appends one agent invocation to a task's history.
func (db *DB) RecordStage(ctx context.Context, run *models.StageRun) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO stage_runs (id, task_id, seq, agent, success, output, error, attempts,
			tokens_used, iteration, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.TaskID, run.Seq, run.Agent, boolInt(run.Success), run.Output, run.Error, run.Attempts,
		run.TokensUsed, run.Iteration, formatTime(run.StartedAt), run.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("record stage %s: %w", run.Agent, err)
	}
	return nil
}

// ListStages returns a task's history in execution order.
func (db *DB) ListStages(ctx context.Context, taskID string) ([]models.StageRun, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, task_id, seq, agent, success, output, error, attempts, tokens_used,
			iteration, started_at, duration_ms
		FROM stage_runs WHERE task_id = ? ORDER BY started_at, seq
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list stages: %w", err)
	}
	defer rows.Close()

	var runs []models.StageRun
	for rows.Next() {
		var (
			r          models.StageRun
			success    int
			started    string
			durationMS int64
		)
		if err := rows.Scan(&r.ID, &r.TaskID, &r.Seq, &r.Agent, &success, &r.Output, &r.Error, &r.Attempts,
			&r.TokensUsed, &r.Iteration, &started, &durationMS); err != nil {
			return nil, fmt.Errorf("scan stage: %w", err)
		}
		r.Success = success != 0
		r.StartedAt, _ = parseTime(started)
		r.Duration = time.Duration(durationMS) * time.Millisecond
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// TaskTokens returns the total tokens recorded for a task.
func (db *DB) TaskTokens(ctx context.Context, taskID string) (int64, error) {
	var total int64
	err := db.QueryRowContext(ctx, `SELECT COALESCE(SUM(tokens_used), 0) FROM stage_runs WHERE task_id = ?`, taskID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum task tokens: %w", err)
	}
	return total, nil
}
