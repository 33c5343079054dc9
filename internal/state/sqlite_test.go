//go:build sqlite
// +build sqlite

package state

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openSQLiteStore(t *testing.T, path string) *Store {
	t.Helper()
	st, err := Open(context.Background(), Config{Driver: "sqlite", Path: path, BusyTimeout: time.Second}, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestSQLiteRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "state.db")
	st := openSQLiteStore(t, path)
	require.Equal(t, 0, st.Len())

	require.NoError(t, st.Set("a/b", "v1"))
	require.NoError(t, st.Set("c/d", "2024.01.02"))
	wrote, err := st.Persist(context.Background())
	require.NoError(t, err)
	require.True(t, wrote)

	require.NoError(t, st.Set("a/b", "v2"))
	_, err = st.Persist(context.Background())
	require.NoError(t, err)
	require.NoError(t, st.Close())

	reopened := openSQLiteStore(t, path)
	require.Equal(t, map[string]string{"a/b": "v2", "c/d": "2024.01.02"}, reopened.Snapshot())
	require.False(t, reopened.Dirty())
}

func TestSQLiteSaveReplacesContents(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b, err := openSQLite(Config{Path: filepath.Join(t.TempDir(), "state.db")}, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	require.NoError(t, b.Save(ctx, map[string]string{"a/b": "v1", "c/d": "v1"}))
	require.NoError(t, b.Save(ctx, map[string]string{"a/b": "v2"}))

	got, err := b.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, map[string]string{"a/b": "v2"}, got, "keys missing from the last save stay gone")
}

func TestSQLiteSaveHonoursCancelledContext(t *testing.T) {
	t.Parallel()
	b, err := openSQLite(Config{Path: filepath.Join(t.TempDir(), "state.db")}, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	require.NoError(t, b.Save(context.Background(), map[string]string{"a/b": "v1"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, b.Save(ctx, map[string]string{}))

	got, err := b.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, map[string]string{"a/b": "v1"}, got)
}

func TestSQLiteNotADatabaseIsCorrupt(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "state.db")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("this is not a sqlite database\n", 64)), 0o600))

	_, err := Open(context.Background(), Config{Driver: "sqlite", Path: path}, testLogger())
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestGuardRequiresFileDriver(t *testing.T) {
	t.Parallel()
	st := openSQLiteStore(t, filepath.Join(t.TempDir(), "state.db"))
	_, err := NewGuard(st, testLogger(), nil)
	require.Error(t, err)
}
