package state

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, path string) *Store {
	t.Helper()
	st, err := Open(context.Background(), Config{Driver: "file", Path: path}, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestOpenMissingFileIsEmpty(t *testing.T) {
	t.Parallel()
	st := openTestStore(t, filepath.Join(t.TempDir(), "nested", "state.json"))
	require.Equal(t, 0, st.Len())
	require.False(t, st.Dirty())
	_, ok := st.Get("o/r")
	require.False(t, ok)
}

func TestPersistRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "state.json")
	st := openTestStore(t, path)

	require.NoError(t, st.Set("a/b", "v1"))
	require.NoError(t, st.Set("c/d", "2024.01.02"))
	require.True(t, st.Dirty())

	wrote, err := st.Persist(context.Background())
	require.NoError(t, err)
	require.True(t, wrote)
	require.False(t, st.Dirty())

	wrote, err = st.Persist(context.Background())
	require.NoError(t, err)
	require.False(t, wrote, "clean store must not rewrite the file")

	reopened := openTestStore(t, path)
	require.Equal(t, st.Snapshot(), reopened.Snapshot())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.JSONEq(t, `{"a/b":"v1","c/d":"2024.01.02"}`, string(raw))
}

func TestSetIsIdempotentAndRejectsEmpty(t *testing.T) {
	t.Parallel()
	st := openTestStore(t, filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, st.Set("a/b", "v1"))
	_, err := st.Persist(context.Background())
	require.NoError(t, err)

	require.NoError(t, st.Set("a/b", "v1"))
	require.False(t, st.Dirty())

	err = st.Set("a/b", "")
	require.ErrorIs(t, err, ErrEmptyIdentifier)
	v, _ := st.Get("a/b")
	require.Equal(t, "v1", v)
}

func TestOpenCorruptFile(t *testing.T) {
	t.Parallel()
	for name, body := range map[string]string{
		"not json":     "{oops",
		"array":        `["a"]`,
		"number value": `{"a/b": 3}`,
		"trailing":     `{"a/b":"v1"} {}`,
	} {
		body := body
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "state.json")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
			_, err := Open(context.Background(), Config{Path: path}, testLogger())
			require.ErrorIs(t, err, ErrCorrupt)
		})
	}
}

func TestLegacyLayoutIsMigrated(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"last_seen":{"a/b":"v1"}}`), 0o600))

	st := openTestStore(t, path)
	v, ok := st.Get("a/b")
	require.True(t, ok)
	require.Equal(t, "v1", v)
	require.True(t, st.Dirty())

	_, err := st.Persist(context.Background())
	require.NoError(t, err)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.JSONEq(t, `{"a/b":"v1"}`, string(raw))
}

func TestCrashBeforeRenameKeepsPreviousFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	st := openTestStore(t, path)
	require.NoError(t, st.Set("a/b", "v1"))
	_, err := st.Persist(context.Background())
	require.NoError(t, err)

	crash := errors.New("simulated crash")
	st.backend.(*fileStore).beforeRename = func(string) error { return crash }
	require.NoError(t, st.Set("a/b", "v2"))
	_, err = st.Persist(context.Background())
	require.ErrorIs(t, err, crash)
	require.True(t, st.Dirty(), "failed persist must stay dirty")

	tmps, _ := filepath.Glob(filepath.Join(dir, "state.json.*.tmp"))
	require.Len(t, tmps, 1, "half-written temp file is left behind")

	reopened := openTestStore(t, path)
	v, _ := reopened.Get("a/b")
	require.Equal(t, "v1", v, "previous record must survive")

	tmps, _ = filepath.Glob(filepath.Join(dir, "state.json.*.tmp"))
	require.Empty(t, tmps, "open removes stale temp files")
}

func TestPersistRetriesAfterFailure(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "state.json")
	st := openTestStore(t, path)

	var fail atomic.Bool
	fail.Store(true)
	st.backend.(*fileStore).beforeRename = func(tmp string) error {
		if fail.Load() {
			_ = os.Remove(tmp)
			return errors.New("disk full")
		}
		return nil
	}
	require.NoError(t, st.Set("a/b", "v1"))
	_, err := st.Persist(context.Background())
	require.Error(t, err)

	fail.Store(false)
	wrote, err := st.Persist(context.Background())
	require.NoError(t, err)
	require.True(t, wrote)

	reopened := openTestStore(t, path)
	v, _ := reopened.Get("a/b")
	require.Equal(t, "v1", v)
}

func TestPersistHonoursCancelledContext(t *testing.T) {
	t.Parallel()
	st := openTestStore(t, filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, st.Set("a/b", "v1"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := st.Persist(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.True(t, st.Dirty())
}

func TestUnknownDriver(t *testing.T) {
	t.Parallel()
	_, err := Open(context.Background(), Config{Driver: "redis", Path: "x"}, testLogger())
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "redis"))
}

func TestGuardReportsForeignWrites(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "state.json")
	st := openTestStore(t, path)

	foreign := make(chan struct{}, 8)
	g, err := NewGuard(st, testLogger(), func() { foreign <- struct{}{} })
	require.NoError(t, err)
	g.Debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- g.Run(ctx) }()
	// Give the watcher time to register.
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, st.Set("a/b", "v1"))
	_, err = st.Persist(context.Background())
	require.NoError(t, err)
	require.Never(t, func() bool { return len(foreign) > 0 }, 300*time.Millisecond, 20*time.Millisecond,
		"own writes are not foreign")

	require.NoError(t, os.WriteFile(path, []byte(`{"a/b":"hand-edited"}`), 0o600))
	require.Eventually(t, func() bool { return len(foreign) > 0 }, 3*time.Second, 20*time.Millisecond)

	// The next persist puts the in-memory record back even without a new Set.
	require.True(t, st.Dirty())
	wrote, err := st.Persist(context.Background())
	require.NoError(t, err)
	require.True(t, wrote)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.JSONEq(t, `{"a/b":"v1"}`, string(raw))

	cancel()
	require.NoError(t, <-done)
}
