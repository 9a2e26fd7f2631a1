// Package prompt provides system prompt lookup for casegen agents.
//
// A Store answers "which prompt should agent X use for task type Y". The most
// specific entry wins: an exact (agent, task type) match beats the agent's
// default entry (empty task type). Stores never cache on behalf of agents.
package prompt

import (
	"embed"
	"sort"
	"strings"
)

//go:embed templates/*.md
var embeddedTemplates embed.FS

// Store looks up system prompts. It returns an empty string when nothing matches.
type Store interface {
	Lookup(agentName, taskType string) string
}

// StoreFunc adapts an ordinary function to the Store interface.
type StoreFunc func(agentName, taskType string) string

// Lookup calls f.
func (f StoreFunc) Lookup(agentName, taskType string) string {
	return f(agentName, taskType)
}

// Entry is one stored prompt.
type Entry struct {
	Agent    string `yaml:"agent"`
	TaskType string `yaml:"task_type,omitempty"`
	Prompt   string `yaml:"prompt"`
}

// chain queries stores in order and returns the first non-empty prompt.
type chain []Store

// Chain returns a Store that consults each store in order.
// Nil stores are skipped.
func Chain(stores ...Store) Store {
	c := make(chain, 0, len(stores))
	for _, s := range stores {
		if s != nil {
			c = append(c, s)
		}
	}
	return c
}

func (c chain) Lookup(agentName, taskType string) string {
	for _, s := range c {
		if p := s.Lookup(agentName, taskType); p != "" {
			return p
		}
	}
	return ""
}

// defaults serves the embedded templates.
type defaults struct{}

// Defaults returns the built-in prompts. Task-specific templates are named
// <agent>.<task type>.md and take precedence over <agent>.md.
func Defaults() Store {
	return defaults{}
}

func (defaults) Lookup(agentName, taskType string) string {
	agentName = normalize(agentName)
	taskType = normalize(taskType)
	if agentName == "" {
		return ""
	}
	if taskType != "" {
		if b, err := embeddedTemplates.ReadFile("templates/" + agentName + "." + taskType + ".md"); err == nil {
			return string(b)
		}
	}
	b, err := embeddedTemplates.ReadFile("templates/" + agentName + ".md")
	if err != nil {
		return ""
	}
	return string(b)
}

// ListDefaults returns the built-in entries, sorted by agent and task type.
func ListDefaults() []Entry {
	dir, err := embeddedTemplates.ReadDir("templates")
	if err != nil {
		return nil
	}
	var entries []Entry
	for _, f := range dir {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".md") {
			continue
		}
		name := strings.TrimSuffix(f.Name(), ".md")
		agent, taskType, _ := strings.Cut(name, ".")
		b, err := embeddedTemplates.ReadFile("templates/" + f.Name())
		if err != nil {
			continue
		}
		entries = append(entries, Entry{Agent: agent, TaskType: taskType, Prompt: string(b)})
	}
	sortEntries(entries)
	return entries
}

// match picks the most specific prompt for (agent, taskType) from entries.
func match(entries []Entry, agentName, taskType string) string {
	agentName = normalize(agentName)
	taskType = normalize(taskType)

	var fallback string
	for _, e := range entries {
		if normalize(e.Agent) != agentName {
			continue
		}
		et := normalize(e.TaskType)
		if et == taskType && taskType != "" {
			return e.Prompt
		}
		if et == "" && fallback == "" {
			fallback = e.Prompt
		}
	}
	return fallback
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Agent != entries[j].Agent {
			return entries[i].Agent < entries[j].Agent
		}
		return entries[i].TaskType < entries[j].TaskType
	})
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
