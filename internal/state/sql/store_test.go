package sql

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eleven-am/perimeter/internal/state"
	"github.com/eleven-am/perimeter/internal/state/storetest"
)

func newSQLiteStore(t *testing.T) state.Store {
	t.Helper()
	s, err := New("sqlite3", filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore(t *testing.T) {
	storetest.Run(t, newSQLiteStore)
}

func TestNew_UnknownDriver(t *testing.T) {
	_, err := New("oracle", "x")
	require.Error(t, err)
}

func TestNew_ReopenKeepsState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	s, err := New("sqlite3", path)
	require.NoError(t, err)
	snap := state.Next("emit", "run-1", nil)
	require.NoError(t, s.Save(t.Context(), snap))
	require.NoError(t, s.Close())

	s, err = New("sqlite3", path)
	require.NoError(t, err)
	defer s.Close()
	latest, err := s.Latest(t.Context(), "emit")
	require.NoError(t, err)
	require.Equal(t, snap.ID, latest.ID)
}
