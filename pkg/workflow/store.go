// Copyright 2025 The Sah Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package workflow

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/wballard/swissarmyhammer-sub003/internal/log"
	"github.com/wballard/swissarmyhammer-sub003/pkg/errors"
)

// MemoryStore is an in-memory WorkflowStore, useful for tests and for
// programmatically registered sub-workflows.
type MemoryStore struct {
	mu        sync.RWMutex
	workflows map[string]*Workflow
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{workflows: make(map[string]*Workflow)}
}

// Register adds or replaces a workflow under its own Name.
func (s *MemoryStore) Register(w *Workflow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workflows[w.Name] = w
}

// Get implements WorkflowStore.
func (s *MemoryStore) Get(name string) (*Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workflows[name]
	if !ok {
		return nil, &errors.NotFoundError{Resource: "workflow", ID: name}
	}
	return w, nil
}

// FileStore resolves workflows from *.md definition files in a directory,
// caching each parsed workflow. An fsnotify watcher evicts a file's cache
// entry when the file is written, created, removed or renamed, so no stat
// is needed on every Get.
type FileStore struct {
	dir    string
	logger *slog.Logger

	mu      sync.RWMutex
	cache   map[string]*Workflow
	watcher *fsnotify.Watcher
}

// NewFileStore creates a FileStore rooted at dir. If fsnotify fails to
// start a watcher (e.g. inotify limits reached), Get still works; it just
// falls back to reparsing from disk on every lookup.
func NewFileStore(dir string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = log.New(log.FromEnv())
	}
	fs := &FileStore{
		dir:    dir,
		logger: logger,
		cache:  make(map[string]*Workflow),
	}
	if w, err := fsnotify.NewWatcher(); err == nil {
		fs.watcher = w
		_ = w.Add(dir)
		go fs.watchLoop()
	} else {
		logger.Warn("workflow file store: fsnotify unavailable, disabling cache invalidation", "error", err)
	}
	return fs
}

func (s *FileStore) watchLoop() {
	for event := range s.watcher.Events {
		if event.Op&(fsnotify.Write|fsnotify.Remove|fsnotify.Rename|fsnotify.Create) != 0 {
			name := strings.TrimSuffix(filepath.Base(event.Name), filepath.Ext(event.Name))
			s.mu.Lock()
			delete(s.cache, name)
			s.mu.Unlock()
		}
	}
}

// Close releases the underlying filesystem watcher, if any.
func (s *FileStore) Close() error {
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

// Get implements WorkflowStore, resolving "name" to "<dir>/<name>.md".
func (s *FileStore) Get(name string) (*Workflow, error) {
	s.mu.RLock()
	if w, ok := s.cache[name]; ok {
		s.mu.RUnlock()
		return w, nil
	}
	s.mu.RUnlock()

	path := filepath.Join(s.dir, name+".md")
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, &errors.NotFoundError{Resource: "workflow", ID: name}
	}

	wf, err := ParseDefinitionFile(path, content)
	if err != nil {
		return nil, err
	}

	if s.watcher != nil {
		s.mu.Lock()
		s.cache[name] = wf
		s.mu.Unlock()
	}
	return wf, nil
}
