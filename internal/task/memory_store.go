package task

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/mrz1836/taskreview/internal/ctxutil"
	"github.com/mrz1836/taskreview/internal/domain"
	reviewerrors "github.com/mrz1836/taskreview/internal/errors"
)

// MemoryStore is an in-process Store for tests and ephemeral servers.
// Values are cloned on the way in and out.
type MemoryStore struct {
	mu      sync.RWMutex
	tasks   map[string]*domain.Task
	history map[string][]domain.HistoryEntry
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:   make(map[string]*domain.Task),
		history: make(map[string][]domain.HistoryEntry),
	}
}

// Create implements Store.
func (s *MemoryStore) Create(ctx context.Context, task *domain.Task, entry domain.HistoryEntry) error {
	if err := ctxutil.Canceled(ctx); err != nil {
		return err
	}
	if task == nil {
		return fmt.Errorf("failed to create task: task %w", reviewerrors.ErrEmptyValue)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[task.ID]; ok {
		return fmt.Errorf("failed to create task '%s': %w", task.ID, reviewerrors.ErrTaskExists)
	}
	s.tasks[task.ID] = task.Clone()
	s.history[task.ID] = []domain.HistoryEntry{cloneEntry(entry)}
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, taskID string) (*domain.Task, error) {
	t, _, err := s.Load(ctx, taskID)
	return t, err
}

// History implements Store.
func (s *MemoryStore) History(ctx context.Context, taskID string) ([]domain.HistoryEntry, error) {
	_, h, err := s.Load(ctx, taskID)
	return h, err
}

// Load implements Store.
func (s *MemoryStore) Load(ctx context.Context, taskID string) (*domain.Task, []domain.HistoryEntry, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[taskID]
	if !ok {
		return nil, nil, fmt.Errorf("failed to get task '%s': %w", taskID, reviewerrors.ErrTaskNotFound)
	}
	h := s.history[taskID]
	out := make([]domain.HistoryEntry, 0, len(h))
	for _, e := range h {
		out = append(out, cloneEntry(e))
	}
	return t.Clone(), chronological(out), nil
}

// Apply implements Store.
func (s *MemoryStore) Apply(ctx context.Context, m Mutation) error {
	if err := ctxutil.Canceled(ctx); err != nil {
		return err
	}
	if m.Task == nil {
		return fmt.Errorf("failed to apply mutation: task %w", reviewerrors.ErrEmptyValue)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	persisted, ok := s.tasks[m.Task.ID]
	if !ok {
		return fmt.Errorf("failed to update task '%s': %w", m.Task.ID, reviewerrors.ErrTaskNotFound)
	}
	if err := checkExpected(persisted, m); err != nil {
		return err
	}
	if err := checkAppend(m.Task.ID, s.history[m.Task.ID], m.Entry); err != nil {
		return err
	}

	s.tasks[m.Task.ID] = m.Task.Clone()
	if m.Entry != nil {
		s.history[m.Task.ID] = append(s.history[m.Task.ID], cloneEntry(*m.Entry))
	}
	return nil
}

// List implements Store.
func (s *MemoryStore) List(ctx context.Context, filter ListFilter) ([]*domain.Task, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	out := make([]*domain.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if filter.Matches(t) {
			out = append(out, t.Clone())
		}
	}
	s.mu.RUnlock()

	sortNewestFirst(out)
	return out, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }

func cloneEntry(e domain.HistoryEntry) domain.HistoryEntry {
	e.Metadata = maps.Clone(e.Metadata)
	return e
}
