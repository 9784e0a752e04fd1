// Package state keeps the façade's in-memory snapshot of every task it has
// observed on the event streams. Purely per-process — a restart discards it,
// matching the queue's own lifetime.
package state

import (
	"sync"

	"github.com/moven0831/proofqueue/internal/domain"
)

// TaskStore records task snapshots and results for read paths (HTTP API,
// workflow bookkeeping). Writers are the façade's event loop only.
type TaskStore interface {
	Put(task domain.Task)
	Get(id string) (domain.Task, error)
	SetResult(result domain.Result)
	GetResult(id string) (domain.Result, error)
	List(limit int) []domain.Task
}

type memoryStore struct {
	mu      sync.RWMutex
	tasks   map[string]domain.Task
	results map[string]domain.Result
	order   []string // insertion order, oldest first
}

// NewMemoryStore creates an empty TaskStore.
func NewMemoryStore() TaskStore {
	return &memoryStore{
		tasks:   make(map[string]domain.Task),
		results: make(map[string]domain.Result),
	}
}

func (s *memoryStore) Put(task domain.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.tasks[task.ID]; !seen {
		s.order = append(s.order, task.ID)
	}
	s.tasks[task.ID] = task
}

func (s *memoryStore) Get(id string) (domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[id]
	if !ok {
		return domain.Task{}, &domain.TaskNotFoundError{TaskID: id}
	}
	return task, nil
}

func (s *memoryStore) SetResult(result domain.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[result.TaskID] = result
}

func (s *memoryStore) GetResult(id string) (domain.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result, ok := s.results[id]
	if !ok {
		return domain.Result{}, &domain.TaskNotFoundError{TaskID: id}
	}
	return result, nil
}

// List returns up to limit snapshots, newest submission first.
// limit <= 0 means all.
func (s *memoryStore) List(limit int) []domain.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.order)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]domain.Task, 0, limit)
	for i := n - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.tasks[s.order[i]])
	}
	return out
}
