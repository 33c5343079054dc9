package state

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/zeebo/xxh3"

	logx "tagwatch/pkg/logx"
)

// Guard watches the state file and reports content this process did not write,
// e.g. a second instance pointed at the same path or a hand edit. Reporting one
// marks the store dirty, so the next Persist restores the in-memory record.
type Guard struct {
	st        *Store
	path      string
	expected  func() uint64
	onForeign func()
	log       logx.Logger

	// Debounce coalesces the burst of events a single write produces.
	Debounce time.Duration

	mu       sync.Mutex
	reported uint64
}

// NewGuard returns a guard for the store's file. It fails for stores that are
// not file-backed.
func NewGuard(st *Store, log logx.Logger, onForeign func()) (*Guard, error) {
	fb, ok := st.backend.(*fileStore)
	if !ok {
		return nil, errors.New("state guard requires the file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Guard{
		st:        st,
		path:      fb.Path(),
		expected:  fb.Fingerprint,
		onForeign: onForeign,
		log:       log.With(logx.String("comp", "state.guard")),
		Debounce:  250 * time.Millisecond,
	}, nil
}

// Run watches until ctx is done. The parent directory is watched because saves
// replace the file by rename.
func (g *Guard) Run(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	dir := filepath.Dir(g.path)
	if err := w.Add(dir); err != nil {
		return err
	}
	target := filepath.Clean(g.path)

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	schedule := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(g.Debounce, g.check)
	}
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	g.log.Debug("state guard started", logx.String("path", g.path))
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return errors.New("state guard: watcher closed")
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				schedule()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return errors.New("state guard: watcher closed")
			}
			if err != nil {
				g.log.Warn("state guard watch error", logx.Err(err))
			}
		}
	}
}

func (g *Guard) check() {
	b, err := os.ReadFile(g.path)
	if err != nil {
		return
	}
	h := xxh3.Hash(b)
	if h == g.expected() {
		return
	}
	g.mu.Lock()
	if h == g.reported {
		g.mu.Unlock()
		return
	}
	g.reported = h
	g.mu.Unlock()

	g.st.markDirty()
	g.log.Warn("state file changed by another writer; it will be overwritten on the next persist",
		logx.String("path", g.path))
	if g.onForeign != nil {
		g.onForeign()
	}
}
