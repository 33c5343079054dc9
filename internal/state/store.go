package state

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"sync"

	logx "tagwatch/pkg/logx"
)

// Store keeps the last-seen record in memory. Set only touches memory;
// Persist writes the whole record through the backend.
//
// The in-memory record is authoritative: a failed Persist leaves it dirty and
// the next Persist retries.
type Store struct {
	log     logx.Logger
	backend Backend

	mu      sync.Mutex
	record  map[string]string
	gen     uint64 // bumped by every effective Set
	savedAt uint64 // gen covered by the last successful Persist
	closed  bool

	persistMu sync.Mutex
}

// Open initializes the configured backend and loads the stored record.
// A missing record yields an empty store; an unreadable one yields ErrCorrupt.
func Open(ctx context.Context, cfg Config, log logx.Logger) (*Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "state"))

	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	var (
		b   Backend
		err error
	)
	switch driver {
	case "", "file", "json":
		b, err = openFile(cfg, log)
	case "sqlite", "sqlite3":
		b, err = openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown state driver: " + driver)
	}
	if err != nil {
		return nil, err
	}
	return New(ctx, b, log)
}

// New wraps an already opened backend and loads its record.
func New(ctx context.Context, b Backend, log logx.Logger) (*Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	rec, err := b.Load(ctx)
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	if rec == nil {
		rec = map[string]string{}
	}
	for k, v := range rec {
		if v == "" {
			delete(rec, k)
		}
	}
	st := &Store{log: log, backend: b, record: rec}
	if r, ok := b.(interface{ NeedsRewrite() bool }); ok && r.NeedsRewrite() {
		// Loaded from an older layout; the next Persist writes the current one.
		st.gen = 1
	}
	log.Debug("state loaded", logx.Int("entries", len(rec)), logx.Bool("dirty", st.gen != 0))
	return st, nil
}

// Get returns the last-seen identifier for key. ok is false when absent.
func (s *Store) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.record[key]
	return v, ok
}

// Set records id for key. Setting the current value again is a no-op.
func (s *Store) Set(key, id string) error {
	if key == "" {
		return errors.New("empty state key")
	}
	if id == "" {
		return fmt.Errorf("%w for %s", ErrEmptyIdentifier, key)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if cur, ok := s.record[key]; ok && cur == id {
		return nil
	}
	s.record[key] = id
	s.gen++
	return nil
}

// markDirty forces the next Persist to write even though memory is unchanged.
func (s *Store) markDirty() {
	s.mu.Lock()
	s.gen++
	s.mu.Unlock()
}

// Snapshot returns a copy of the whole record.
func (s *Store) Snapshot() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.record)
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.record)
}

// Dirty reports whether memory holds changes that were not persisted yet.
func (s *Store) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen != s.savedAt
}

// Persist writes the record if it changed since the last successful Persist.
// It returns (false, nil) when there was nothing to write.
func (s *Store) Persist(ctx context.Context) (bool, error) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false, ErrClosed
	}
	if s.gen == s.savedAt {
		s.mu.Unlock()
		return false, nil
	}
	gen := s.gen
	snap := maps.Clone(s.record)
	s.mu.Unlock()

	if err := s.backend.Save(ctx, snap); err != nil {
		return false, err
	}

	s.mu.Lock()
	s.savedAt = gen
	s.mu.Unlock()
	s.log.Debug("state persisted", logx.Int("entries", len(snap)))
	return true, nil
}

// Fingerprint returns the content hash of the last record the backend wrote or
// loaded, when the backend tracks one (file driver).
func (s *Store) Fingerprint() (uint64, bool) {
	fp, ok := s.backend.(interface{ Fingerprint() uint64 })
	if !ok {
		return 0, false
	}
	return fp.Fingerprint(), true
}

// Close releases the backend. It does not persist.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.backend.Close()
}
