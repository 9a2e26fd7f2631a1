package prompt

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.yaml.in/yaml/v3"
)

// fileFormat is the on-disk layout of a prompt file.
//
//	prompts:
//	  - agent: writer
//	    task_type: api
//	    prompt: |
//	      ...
type fileFormat struct {
	Prompts []Entry `yaml:"prompts"`
}

// FileStore serves prompts from a YAML file and optionally reloads it when
// the file changes on disk.
type FileStore struct {
	path string

	mu      sync.RWMutex
	entries []Entry

	watcher *fsnotify.Watcher
	done    chan struct{}
	// reloaded is signalled (non-blocking) after every reload attempt.
	reloaded chan struct{}
}

// LoadFile reads a prompt file once.
func LoadFile(path string) (*FileStore, error) {
	fs := &FileStore{
		path:     path,
		done:     make(chan struct{}),
		reloaded: make(chan struct{}, 1),
	}
	if err := fs.reload(); err != nil {
		return nil, err
	}
	return fs, nil
}

// WatchFile reads a prompt file and keeps it up to date.
// If the watcher cannot be started the store still works, without reloads.
func WatchFile(path string) (*FileStore, error) {
	fs, err := LoadFile(path)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("[prompt] file watcher unavailable, %s will not reload: %v", path, err)
		return fs, nil
	}
	// Watch the directory: editors often replace the file instead of writing it.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		log.Printf("[prompt] cannot watch %s: %v", filepath.Dir(path), err)
		return fs, nil
	}
	fs.watcher = watcher

	go fs.watch()

	return fs, nil
}

func (fs *FileStore) watch() {
	base := filepath.Base(fs.path)
	for {
		select {
		case <-fs.done:
			return
		case event, ok := <-fs.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if err := fs.reload(); err != nil {
				// Keep serving the last good content.
				log.Printf("[prompt] reload %s failed: %v", fs.path, err)
			}
			select {
			case fs.reloaded <- struct{}{}:
			default:
			}
		case err, ok := <-fs.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[prompt] watcher error: %v", err)
		}
	}
}

func (fs *FileStore) reload() error {
	data, err := os.ReadFile(fs.path)
	if err != nil {
		return fmt.Errorf("read prompt file: %w", err)
	}
	// A truncated file is usually an editor mid-write.
	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("prompt file %s is empty", fs.path)
	}

	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse prompt file %s: %w", fs.path, err)
	}
	for i, e := range f.Prompts {
		if e.Agent == "" {
			return fmt.Errorf("parse prompt file %s: entry %d has no agent", fs.path, i)
		}
	}

	fs.mu.Lock()
	fs.entries = f.Prompts
	fs.mu.Unlock()
	return nil
}

// Lookup returns the most specific prompt for the agent and task type.
func (fs *FileStore) Lookup(agentName, taskType string) string {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return match(fs.entries, agentName, taskType)
}

// Entries returns a sorted copy of the loaded entries.
func (fs *FileStore) Entries() []Entry {
	fs.mu.RLock()
	out := make([]Entry, len(fs.entries))
	copy(out, fs.entries)
	fs.mu.RUnlock()
	sortEntries(out)
	return out
}

// Path returns the prompt file path.
func (fs *FileStore) Path() string {
	return fs.path
}

// Close stops watching the file.
func (fs *FileStore) Close() error {
	select {
	case <-fs.done:
		return nil
	default:
		close(fs.done)
	}
	if fs.watcher != nil {
		return fs.watcher.Close()
	}
	return nil
}
