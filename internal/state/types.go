package state

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrCorrupt is returned by Open when the stored record cannot be parsed.
	ErrCorrupt = errors.New("state record is corrupt")
	// ErrEmptyIdentifier rejects Set with an empty identifier; empty means "absent".
	ErrEmptyIdentifier = errors.New("empty identifier")
	ErrClosed          = errors.New("state store closed")
)

// Config configures the store.
//
// Driver values:
//   - "file" (default)
//   - "sqlite": SQLite database file (optional build tag)
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Backend loads and saves a whole record. Save replaces what was stored before.
type Backend interface {
	Load(ctx context.Context) (map[string]string, error)
	Save(ctx context.Context, record map[string]string) error
	Close() error
}
