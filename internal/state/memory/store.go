package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eleven-am/perimeter/internal/domain"
	"github.com/eleven-am/perimeter/internal/state"
)

// Store is an in-memory state.Store for simulate mode and tests.
type Store struct {
	mu sync.RWMutex

	locks     map[string]state.Lock
	snapshots map[string][]*state.Snapshot
}

var _ state.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		locks:     make(map[string]state.Lock),
		snapshots: make(map[string][]*state.Snapshot),
	}
}

func (s *Store) Close() error { return nil }

func (s *Store) Lock(ctx context.Context, project, holder string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.locks[project]; ok {
		if current.Holder != holder {
			return current.Held("lock")
		}
		return nil
	}
	s.locks[project] = state.Lock{Project: project, Holder: holder, AcquiredAt: time.Now().UTC()}
	return nil
}

func (s *Store) Unlock(ctx context.Context, project, holder string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.locks[project]
	if !ok {
		return nil
	}
	if current.Holder != holder {
		return current.Held("unlock")
	}
	delete(s.locks, project)
	return nil
}

func (s *Store) ForceUnlock(ctx context.Context, project, holder string) (*state.Lock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.locks[project]
	if !ok {
		return nil, fmt.Errorf("lock %s: %w", project, domain.ErrNotFound)
	}
	if holder != "" && current.Holder != holder {
		return nil, current.Held("force unlock")
	}
	delete(s.locks, project)
	return &current, nil
}

func (s *Store) Latest(ctx context.Context, project string) (*state.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.snapshots[project]
	if len(history) == 0 {
		return nil, domain.ErrNotFound
	}
	return history[len(history)-1].Clone(), nil
}

func (s *Store) Save(ctx context.Context, snap *state.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current := len(s.snapshots[snap.Project])
	if snap.Version != current+1 {
		return fmt.Errorf("save %s version %d over %d: %w", snap.Project, snap.Version, current, domain.ErrConflict)
	}
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}
	s.snapshots[snap.Project] = append(s.snapshots[snap.Project], snap.Clone())
	return nil
}

func (s *Store) History(ctx context.Context, project string, limit int) ([]*state.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.snapshots[project]
	if limit <= 0 {
		limit = 20
	}
	var out []*state.Snapshot
	for i := len(history) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, history[i].Clone())
	}
	return out, nil
}
