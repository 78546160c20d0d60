package testutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/roach88/catalogmigrate/internal/store"
)

// NewStore opens a catalog in a temp directory with a deterministic clock,
// sequential ids and a test logger. The store is closed on cleanup.
func NewStore(t testing.TB) *store.Store {
	t.Helper()
	return OpenStore(t, filepath.Join(t.TempDir(), "catalog.db"))
}

// OpenStore opens (or reopens) the catalog at path with test options.
func OpenStore(t testing.TB, path string) *store.Store {
	t.Helper()
	s, err := store.Open(path,
		store.WithLogger(zaptest.NewLogger(t)),
		store.WithClock(NewDeterministicClock().Now),
		store.WithIDGenerator(&store.SequenceGenerator{}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}
