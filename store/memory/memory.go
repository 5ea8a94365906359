// Package memory is an in-process TaskStore backed by a map.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/feitianbubu/vidgate/model"
	"github.com/feitianbubu/vidgate/store"
)

// Store keeps tasks in memory. Tasks are cloned on the way in and out.
type Store struct {
	mu    sync.RWMutex
	tasks map[string]*model.Task
}

var _ store.TaskStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{tasks: make(map[string]*model.Task)}
}

// NewTaskID returns a random UUID.
func (s *Store) NewTaskID(context.Context) (string, error) {
	return uuid.NewString(), nil
}

// Create stores a new task.
func (s *Store) Create(_ context.Context, task *model.Task) error {
	if task == nil || task.LocalTaskID == "" {
		return model.NewStorageError("create task", errors.New("task has no local id"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[task.LocalTaskID]; ok {
		return model.NewStorageError("create task", errors.Errorf("task %s already exists", task.LocalTaskID))
	}
	s.tasks[task.LocalTaskID] = task.Clone()
	return nil
}

// Get returns a copy of the stored task.
func (s *Store) Get(_ context.Context, localTaskID string) (*model.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[localTaskID]
	if !ok {
		return nil, model.NewNotFoundError(localTaskID)
	}
	return t.Clone(), nil
}

// Update replaces an existing task.
func (s *Store) Update(_ context.Context, task *model.Task) error {
	if task == nil {
		return model.NewStorageError("update task", errors.New("nil task"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[task.LocalTaskID]; !ok {
		return model.NewNotFoundError(task.LocalTaskID)
	}
	s.tasks[task.LocalTaskID] = task.Clone()
	return nil
}

// Len returns the number of stored tasks.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}
