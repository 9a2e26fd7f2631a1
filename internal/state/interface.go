package state

import (
	"context"
	"io"

	"github.com/ChuDiRen/casegen/internal/prompt"
	"github.com/ChuDiRen/casegen/pkg/models"
)

// TaskStore handles task persistence.
type TaskStore interface {
	CreateTask(ctx context.Context, st *models.State) error
	SaveTask(ctx context.Context, st *models.State) error
	GetTask(ctx context.Context, id string) (*models.State, error)
	ListTasks(ctx context.Context, limit int) ([]models.State, error)
}

// StageStore handles the per-task stage history.
type StageStore interface {
	RecordStage(ctx context.Context, run *models.StageRun) error
	ListStages(ctx context.Context, taskID string) ([]models.StageRun, error)
}

// PromptStore handles stored prompts. It is also a prompt.Store.
type PromptStore interface {
	prompt.Store
	SetPrompt(ctx context.Context, e prompt.Entry) error
	DeletePrompt(ctx context.Context, agent, taskType string) error
	ListPrompts(ctx context.Context) ([]prompt.Entry, error)
}

// Migrator handles database schema migrations.
type Migrator interface {
	Migrate() error
}

// Store composes every persistence concern of casegen.
type Store interface {
	io.Closer
	Migrator
	TaskStore
	StageStore
	PromptStore
}

// Compile-time verification that DB implements all interfaces.
var (
	_ Store        = (*DB)(nil)
	_ TaskStore    = (*DB)(nil)
	_ StageStore   = (*DB)(nil)
	_ PromptStore  = (*DB)(nil)
	_ prompt.Store = (*DB)(nil)
)
