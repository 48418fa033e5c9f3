// Package state defines the versioned snapshot store that records what a
// project's reconciler has created.
package state

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/eleven-am/perimeter/internal/domain"
)

type Status string

const (
	StatusPartial   Status = "partial"
	StatusApplied   Status = "applied"
	StatusFailed    Status = "failed"
	StatusDestroyed Status = "destroyed"
)

// Record is what the reconciler knows about one logical resource.
type Record struct {
	Kind       domain.ResourceKind `json:"kind"`
	PhysicalID string              `json:"physical_id"`
	Attributes map[string]string   `json:"attributes,omitempty"`
}

func (r Record) Attr(key string) string {
	return r.Attributes[key]
}

// Snapshot is one saved version of a project's records. Versions of a
// project are dense and start at 1.
type Snapshot struct {
	ID        string            `json:"id"`
	Project   string            `json:"project"`
	Version   int               `json:"version"`
	RunID     string            `json:"run_id"`
	Status    Status            `json:"status"`
	Error     string            `json:"error,omitempty"`
	Resources map[string]Record `json:"resources"`
	Outputs   domain.Outputs    `json:"outputs"`
	CreatedAt time.Time         `json:"created_at"`
}

// Next starts the snapshot that follows prev. A nil prev starts version 1.
func Next(project, runID string, prev *Snapshot) *Snapshot {
	s := &Snapshot{
		Project:   project,
		Version:   1,
		RunID:     runID,
		Status:    StatusPartial,
		Resources: make(map[string]Record),
	}
	if prev != nil {
		s.Version = prev.Version + 1
		s.Outputs = prev.Outputs
		for name, rec := range prev.Resources {
			rec.Attributes = maps.Clone(rec.Attributes)
			s.Resources[name] = rec
		}
	}
	return s
}

// Clone copies the snapshot so a saved value can be advanced safely.
func (s *Snapshot) Clone() *Snapshot {
	out := *s
	out.Resources = make(map[string]Record, len(s.Resources))
	for name, rec := range s.Resources {
		rec.Attributes = maps.Clone(rec.Attributes)
		out.Resources[name] = rec
	}
	return &out
}

// Lock describes who holds a project's run lock.
type Lock struct {
	Project    string    `json:"project" db:"project"`
	Holder     string    `json:"holder" db:"holder"`
	AcquiredAt time.Time `json:"acquired_at" db:"acquired_at"`
}

// Held wraps domain.ErrLocked with the holder and the time it took the lock,
// which is what an operator needs to decide on a forced unlock.
func (l *Lock) Held(op string) error {
	return fmt.Errorf("%s %s held by %s since %s: %w",
		op, l.Project, l.Holder, l.AcquiredAt.UTC().Format(time.RFC3339), domain.ErrLocked)
}

// Store keeps snapshots and the per-project run lock. Implementations must be
// safe for concurrent use.
type Store interface {
	// Lock fails with domain.ErrLocked while another holder has the project.
	Lock(ctx context.Context, project, holder string) error
	Unlock(ctx context.Context, project, holder string) error
	// ForceUnlock releases a lock left behind by a run that died. An empty
	// holder releases whoever holds it; otherwise the holder must match or
	// domain.ErrLocked is returned. With no lock it returns domain.ErrNotFound.
	ForceUnlock(ctx context.Context, project, holder string) (*Lock, error)

	// Latest returns domain.ErrNotFound when the project has no snapshots.
	Latest(ctx context.Context, project string) (*Snapshot, error)
	// Save fails with domain.ErrConflict unless snap.Version is exactly one
	// past the latest saved version.
	Save(ctx context.Context, snap *Snapshot) error
	History(ctx context.Context, project string, limit int) ([]*Snapshot, error)

	Close() error
}
