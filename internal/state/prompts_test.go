package state

import (
	"context"
	"errors"
	"testing"

	"github.com/ChuDiRen/casegen/internal/prompt"
)

func TestPrompts(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if got := db.Lookup("writer", "api"); got != "" {
		t.Errorf("Lookup on empty db = %q, want empty", got)
	}

	entries := []prompt.Entry{
		{Agent: "writer", Prompt: "generic writer"},
		{Agent: "Writer", TaskType: "API", Prompt: "api writer"},
		{Agent: "reviewer", Prompt: "reviewer"},
	}
	for _, e := range entries {
		if err := db.SetPrompt(ctx, e); err != nil {
			t.Fatalf("SetPrompt(%+v) failed: %v", e, err)
		}
	}

	tests := []struct {
		agent, taskType, want string
	}{
		{"writer", "api", "api writer"},
		{"writer", "functional", "generic writer"},
		{"writer", "", "generic writer"},
		{"reviewer", "api", "reviewer"},
		{"analyzer", "api", ""},
	}
	for _, tt := range tests {
		if got := db.Lookup(tt.agent, tt.taskType); got != tt.want {
			t.Errorf("Lookup(%q, %q) = %q, want %q", tt.agent, tt.taskType, got, tt.want)
		}
	}

	if err := db.SetPrompt(ctx, prompt.Entry{Agent: "writer", Prompt: "generic v2"}); err != nil {
		t.Fatalf("SetPrompt update failed: %v", err)
	}
	if got := db.Lookup("writer", "ui"); got != "generic v2" {
		t.Errorf("Lookup after update = %q, want %q", got, "generic v2")
	}

	list, err := db.ListPrompts(ctx)
	if err != nil {
		t.Fatalf("ListPrompts failed: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("ListPrompts returned %d entries, want 3", len(list))
	}
	if list[0].Agent != "reviewer" || list[1].TaskType != "" || list[2].TaskType != "api" {
		t.Errorf("ListPrompts order = %+v", list)
	}

	if err := db.DeletePrompt(ctx, "writer", "api"); err != nil {
		t.Fatalf("DeletePrompt failed: %v", err)
	}
	if got := db.Lookup("writer", "api"); got != "generic v2" {
		t.Errorf("Lookup after delete = %q, want fallback %q", got, "generic v2")
	}
	if err := db.DeletePrompt(ctx, "writer", "api"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeletePrompt error = %v, want ErrNotFound", err)
	}
}

func TestSetPrompt_Validation(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.SetPrompt(ctx, prompt.Entry{Prompt: "x"}); err == nil {
		t.Error("SetPrompt without agent succeeded")
	}
	if err := db.SetPrompt(ctx, prompt.Entry{Agent: "writer", Prompt: "  "}); err == nil {
		t.Error("SetPrompt with blank prompt succeeded")
	}
}

func TestLookup_ChainedWithDefaults(t *testing.T) {
	db := setupTestDB(t)
	if err := db.SetPrompt(context.Background(), prompt.Entry{Agent: "analyzer", Prompt: "custom analyzer"}); err != nil {
		t.Fatalf("SetPrompt failed: %v", err)
	}

	store := prompt.Chain(db, prompt.Defaults())
	if got := store.Lookup("analyzer", "functional"); got != "custom analyzer" {
		t.Errorf("stored prompt not preferred: %q", got)
	}
	if got := store.Lookup("designer", "functional"); got == "" {
		t.Error("defaults not consulted for designer")
	}
}
