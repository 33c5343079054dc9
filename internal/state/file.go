package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/zeebo/xxh3"

	logx "tagwatch/pkg/logx"
)

// legacyKey is the wrapper object written by the first generation of the tool:
// {"last_seen": {"owner/repo": "tag"}}. It can never be an entity key.
const legacyKey = "last_seen"

// fileStore keeps the record as one JSON object in a single file.
//
// Save writes a temp file next to the target, fsyncs it, renames it over the
// target and fsyncs the directory. A crash at any point leaves either the old or
// the new file in place.
type fileStore struct {
	log  logx.Logger
	path string

	mu       sync.Mutex
	migrated bool

	// fingerprint is the xxh3 hash of the bytes last loaded or written.
	fingerprint atomic.Uint64

	// beforeRename runs after the temp file is synced; tests use it to stop
	// a save half-way.
	beforeRename func(tmp string) error
}

func openFile(cfg Config, log logx.Logger) (*fileStore, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("state.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	st := &fileStore{log: log, path: path}
	st.removeStaleTemps()
	return st, nil
}

func (f *fileStore) tempPattern() string { return filepath.Base(f.path) + ".*.tmp" }

// removeStaleTemps deletes temp files left by a save that never reached rename.
func (f *fileStore) removeStaleTemps() {
	dir := filepath.Dir(f.path)
	matches, _ := filepath.Glob(filepath.Join(dir, filepath.Base(f.path)+".*.tmp"))
	// The original tool used a fixed "<path>.tmp" name.
	matches = append(matches, f.path+".tmp")
	for _, m := range matches {
		if err := os.Remove(m); err == nil {
			f.log.Info("removed stale state temp file", logx.String("path", m))
		}
	}
}

func (f *fileStore) Load(ctx context.Context) (map[string]string, error) {
	_ = ctx
	b, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	rec, legacy, err := decodeRecord(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, f.path, err)
	}
	f.fingerprint.Store(xxh3.Hash(b))
	f.mu.Lock()
	f.migrated = legacy
	f.mu.Unlock()
	if legacy {
		f.log.Info("state file uses the legacy last_seen layout; it will be rewritten", logx.String("path", f.path))
	}
	return rec, nil
}

// NeedsRewrite reports whether the loaded file used an older layout.
func (f *fileStore) NeedsRewrite() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.migrated
}

func (f *fileStore) Fingerprint() uint64 { return f.fingerprint.Load() }

func (f *fileStore) Path() string { return f.path }

func (f *fileStore) Save(ctx context.Context, record map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := encodeRecord(record)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, f.tempPattern())
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		cleanup()
		return err
	}
	if f.beforeRename != nil {
		if err := f.beforeRename(tmpName); err != nil {
			return err
		}
	}

	prev := f.fingerprint.Swap(xxh3.Hash(b))
	if err := os.Rename(tmpName, f.path); err != nil {
		f.fingerprint.Store(prev)
		cleanup()
		return err
	}
	if err := syncDir(dir); err != nil {
		f.log.Warn("state dir fsync failed", logx.String("dir", dir), logx.Err(err))
	}
	f.migrated = false
	return nil
}

func (f *fileStore) Close() error { return nil }

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

// decodeRecord accepts the flat layout and the legacy {"last_seen": {...}} layout.
func decodeRecord(b []byte) (map[string]string, bool, error) {
	if len(strings.TrimSpace(string(b))) == 0 {
		return map[string]string{}, false, nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, false, err
	}
	if raw == nil {
		return nil, false, errors.New("top-level value must be an object")
	}
	if inner, ok := raw[legacyKey]; ok && len(raw) == 1 {
		var legacy map[string]string
		if err := json.Unmarshal(inner, &legacy); err != nil {
			return nil, false, fmt.Errorf("%s: %w", legacyKey, err)
		}
		if legacy == nil {
			legacy = map[string]string{}
		}
		return legacy, true, nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return nil, false, fmt.Errorf("value for %q must be a string", k)
		}
		out[k] = s
	}
	return out, false, nil
}

func encodeRecord(record map[string]string) ([]byte, error) {
	if record == nil {
		record = map[string]string{}
	}
	b, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}
