// Package storetest holds the behaviour every state.Store must share.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eleven-am/perimeter/internal/domain"
	"github.com/eleven-am/perimeter/internal/state"
)

// Run exercises a fresh store. newStore is called once per subtest.
func Run(t *testing.T, newStore func(t *testing.T) state.Store) {
	t.Run("LatestEmpty", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Latest(context.Background(), "emit")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("SaveAndLatest", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		first := state.Next("emit", "run-1", nil)
		first.Resources["vpc"] = state.Record{Kind: domain.KindVPC, PhysicalID: "vpc-1", Attributes: map[string]string{"cidr": "10.0.0.0/16"}}
		require.NoError(t, s.Save(ctx, first))
		assert.NotEmpty(t, first.ID)
		assert.False(t, first.CreatedAt.IsZero())

		second := state.Next("emit", "run-1", first)
		second.Status = state.StatusApplied
		second.Outputs = domain.Outputs{LoadBalancerDNS: "emit-alb.elb.amazonaws.com", InstanceID: "i-1", DatabaseEndpoint: "db.example"}
		require.NoError(t, s.Save(ctx, second))

		latest, err := s.Latest(ctx, "emit")
		require.NoError(t, err)
		assert.Equal(t, 2, latest.Version)
		assert.Equal(t, state.StatusApplied, latest.Status)
		assert.Equal(t, "vpc-1", latest.Resources["vpc"].PhysicalID)
		assert.Equal(t, "10.0.0.0/16", latest.Resources["vpc"].Attr("cidr"))
		assert.Equal(t, "i-1", latest.Outputs.InstanceID)

		_, err = s.Latest(ctx, "other")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("SaveConflict", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		base := state.Next("emit", "run-1", nil)
		require.NoError(t, s.Save(ctx, base))

		a := state.Next("emit", "run-2", base)
		b := state.Next("emit", "run-3", base)
		require.NoError(t, s.Save(ctx, a))
		assert.ErrorIs(t, s.Save(ctx, b), domain.ErrConflict)

		skip := state.Next("emit", "run-4", a)
		skip.Version += 3
		assert.ErrorIs(t, s.Save(ctx, skip), domain.ErrConflict)
	})

	t.Run("LatestIsACopy", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		snap := state.Next("emit", "run-1", nil)
		snap.Resources["vpc"] = state.Record{Kind: domain.KindVPC, PhysicalID: "vpc-1"}
		require.NoError(t, s.Save(ctx, snap))
		snap.Resources["vpc"] = state.Record{Kind: domain.KindVPC, PhysicalID: "mutated"}

		latest, err := s.Latest(ctx, "emit")
		require.NoError(t, err)
		assert.Equal(t, "vpc-1", latest.Resources["vpc"].PhysicalID)
	})

	t.Run("Lock", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		require.NoError(t, s.Lock(ctx, "emit", "holder-a"))
		require.NoError(t, s.Lock(ctx, "emit", "holder-a"), "re-entrant for the same holder")
		assert.ErrorIs(t, s.Lock(ctx, "emit", "holder-b"), domain.ErrLocked)
		require.NoError(t, s.Lock(ctx, "other", "holder-b"), "locks are per project")

		assert.ErrorIs(t, s.Unlock(ctx, "emit", "holder-b"), domain.ErrLocked)
		require.NoError(t, s.Unlock(ctx, "emit", "holder-a"))
		require.NoError(t, s.Lock(ctx, "emit", "holder-b"))
		require.NoError(t, s.Unlock(ctx, "emit", "holder-b"))
		require.NoError(t, s.Unlock(ctx, "emit", "holder-b"), "unlocking a free project is a no-op")
	})

	t.Run("ForceUnlock", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		_, err := s.ForceUnlock(ctx, "emit", "")
		assert.ErrorIs(t, err, domain.ErrNotFound)

		before := time.Now().UTC().Add(-time.Second)
		require.NoError(t, s.Lock(ctx, "emit", "dead-run"))
		err = s.Lock(ctx, "emit", "next-run")
		require.ErrorIs(t, err, domain.ErrLocked)
		assert.Contains(t, err.Error(), "held by dead-run since ")

		_, err = s.ForceUnlock(ctx, "emit", "someone-else")
		assert.ErrorIs(t, err, domain.ErrLocked, "a named holder must match")

		released, err := s.ForceUnlock(ctx, "emit", "dead-run")
		require.NoError(t, err)
		assert.Equal(t, "emit", released.Project)
		assert.Equal(t, "dead-run", released.Holder)
		assert.WithinDuration(t, before, released.AcquiredAt, time.Minute)

		require.NoError(t, s.Lock(ctx, "emit", "next-run"))
		released, err = s.ForceUnlock(ctx, "emit", "")
		require.NoError(t, err)
		assert.Equal(t, "next-run", released.Holder)
		require.NoError(t, s.Lock(ctx, "emit", "third-run"))
	})

	t.Run("History", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		var prev *state.Snapshot
		for i := 0; i < 5; i++ {
			snap := state.Next("emit", "run", prev)
			require.NoError(t, s.Save(ctx, snap))
			prev = snap
		}

		history, err := s.History(ctx, "emit", 3)
		require.NoError(t, err)
		require.Len(t, history, 3)
		assert.Equal(t, 5, history[0].Version)
		assert.Equal(t, 3, history[2].Version)

		history, err = s.History(ctx, "none", 3)
		require.NoError(t, err)
		assert.Empty(t, history)
	})
}
