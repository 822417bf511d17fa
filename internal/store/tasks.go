package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dvloznov/costpilot/internal/domain"
)

type taskCollection struct {
	mu    sync.RWMutex
	byID  map[string]domain.OptimizationTask
	order []string
}

func newTaskCollection() taskCollection {
	return taskCollection{byID: make(map[string]domain.OptimizationTask)}
}

func (c *taskCollection) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID = make(map[string]domain.OptimizationTask)
	c.order = nil
}

// AddTask appends an optimization task. Tasks are never deleted by the core.
func (s *Store) AddTask(t domain.OptimizationTask) error {
	if t.ID == "" {
		return ErrMissingID
	}

	c := &s.tasks
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.byID[t.ID]; exists {
		return fmt.Errorf("task %s: %w", t.ID, ErrDuplicateID)
	}
	c.byID[t.ID] = t
	c.order = append(c.order, t.ID)
	return nil
}

// GetTask retrieves a task by ID.
func (s *Store) GetTask(id string) (domain.OptimizationTask, error) {
	c := &s.tasks
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, ok := c.byID[id]
	if !ok {
		return domain.OptimizationTask{}, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return t, nil
}

// ListTasks returns all tasks, most recently created first.
func (s *Store) ListTasks() []domain.OptimizationTask {
	c := &s.tasks
	c.mu.RLock()
	result := make([]domain.OptimizationTask, 0, len(c.order))
	for i := len(c.order) - 1; i >= 0; i-- {
		result = append(result, c.byID[c.order[i]])
	}
	c.mu.RUnlock()

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result
}

// TransitionTask moves a task to a new status, enforcing the lifecycle.
// errMsg is recorded on the task when non-empty.
func (s *Store) TransitionTask(id string, to domain.TaskStatus, errMsg string) (domain.OptimizationTask, error) {
	c := &s.tasks
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.byID[id]
	if !ok {
		return domain.OptimizationTask{}, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if err := domain.ValidateTransition(t.Status, to); err != nil {
		return t, fmt.Errorf("task %s: %w", id, err)
	}

	t.Status = to
	if errMsg != "" {
		t.Error = errMsg
	}
	if to.Terminal() {
		now := time.Now()
		t.CompletedAt = &now
	}
	c.byID[id] = t
	return t, nil
}
