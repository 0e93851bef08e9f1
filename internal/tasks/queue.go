// Package tasks holds the configured task list, expands it into per-wallet
// schedules and persists it as YAML.
package tasks

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"aptoswarm/internal/models"
)

// Queue is an ordered list of validated task templates
type Queue struct {
	mu    sync.RWMutex
	tasks []*models.Task
}

// NewQueue creates an empty queue
func NewQueue() *Queue {
	return &Queue{}
}

// Add validates and appends tasks. Nothing is added if any task is invalid.
func (q *Queue) Add(tasks ...*models.Task) error {
	for _, t := range tasks {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("invalid %s task: %w", t.Kind, err)
		}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	seen := make(map[uuid.UUID]struct{}, len(q.tasks)+len(tasks))
	for _, existing := range q.tasks {
		seen[existing.TaskID] = struct{}{}
	}
	for _, t := range tasks {
		if _, ok := seen[t.TaskID]; ok {
			return fmt.Errorf("task %s already queued", t.TaskID)
		}
		seen[t.TaskID] = struct{}{}
	}
	q.tasks = append(q.tasks, tasks...)
	return nil
}

// Remove deletes a task by id, reporting whether it was present
func (q *Queue) Remove(id uuid.UUID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, t := range q.tasks {
		if t.TaskID == id {
			q.tasks = append(q.tasks[:i], q.tasks[i+1:]...)
			return true
		}
	}
	return false
}

// Get returns a task by id
func (q *Queue) Get(id uuid.UUID) (*models.Task, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	for _, t := range q.tasks {
		if t.TaskID == id {
			return t, true
		}
	}
	return nil, false
}

// List returns the tasks in order
func (q *Queue) List() []*models.Task {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return append([]*models.Task(nil), q.tasks...)
}

// Clear removes every task
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = nil
}

// Len returns the number of tasks
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.tasks)
}
