package poller

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"tagwatch/internal/detect"
	"tagwatch/internal/notifier"
	"tagwatch/internal/resolver"
	"tagwatch/internal/watch"
	logx "tagwatch/pkg/logx"
)

// Store is the subset of *state.Store the poller needs.
type Store interface {
	Get(key string) (string, bool)
	Set(key, id string) error
	Persist(ctx context.Context) (bool, error)
	Len() int
}

// Config controls the loop.
type Config struct {
	Entities []watch.Entity
	Schedule Schedule
	// Concurrency bounds in-flight entities per cycle; <= 0 means 4.
	Concurrency    int
	ResolveTimeout time.Duration
	NotifyTimeout  time.Duration
	PersistTimeout time.Duration
}

// CycleReport summarizes one cycle.
type CycleReport struct {
	ID         string
	Started    time.Time
	Took       time.Duration
	Entities   int
	Skipped    int // not started because the context was cancelled
	Errors     int
	Panics     int
	Notified   int
	Committed  int
	Persisted  bool
	PersistErr error
}

type Option func(*Service)

func WithDetector(d detect.Detector) Option { return func(s *Service) { s.detector = d } }
func WithRecorder(r Recorder) Option        { return func(s *Service) { s.rec = r } }
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithCycleHook is called after every cycle, from the loop goroutine.
func WithCycleHook(fn func(CycleReport)) Option { return func(s *Service) { s.onCycle = fn } }

// Service is the watch loop. Run it from a single goroutine.
type Service struct {
	cfg      Config
	resolver resolver.Resolver
	notifier notifier.Notifier
	store    Store
	detector detect.Detector
	rec      Recorder
	status   *StatusTable
	log      logx.Logger
	now      func() time.Time
	onCycle  func(CycleReport)

	cycles atomic.Uint64
	last   atomic.Pointer[CycleReport]
}

func New(cfg Config, r resolver.Resolver, n notifier.Notifier, st Store, log logx.Logger, opts ...Option) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.ResolveTimeout <= 0 {
		cfg.ResolveTimeout = 20 * time.Second
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 15 * time.Second
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 10 * time.Second
	}
	s := &Service{
		cfg:      cfg,
		resolver: r,
		notifier: n,
		store:    st,
		rec:      NopRecorder{},
		status:   NewStatusTable(),
		log:      log.With(logx.String("comp", "poller")),
		now:      time.Now,
	}
	for _, o := range opts {
		if o != nil {
			o(s)
		}
	}
	return s
}

func (s *Service) Status() *StatusTable { return s.status }

// Cycles is the number of completed cycles.
func (s *Service) Cycles() uint64 { return s.cycles.Load() }

// LastCycle returns the report of the most recent cycle.
func (s *Service) LastCycle() (CycleReport, bool) {
	p := s.last.Load()
	if p == nil {
		return CycleReport{}, false
	}
	return *p, true
}

// Run executes a cycle immediately and then on every schedule activation
// until ctx is cancelled. Cycles never overlap: the next wake time is computed
// after the previous cycle returns.
func (s *Service) Run(ctx context.Context) error {
	s.log.Info("poller started",
		logx.Int("entities", len(s.cfg.Entities)),
		logx.String("schedule", s.cfg.Schedule.String()),
		logx.Int("concurrency", s.cfg.Concurrency),
	)
	for {
		s.RunCycle(ctx)
		if ctx.Err() != nil {
			return nil
		}

		next := s.cfg.Schedule.Next(s.now())
		if next.IsZero() {
			return errors.New("schedule has no further activations")
		}
		wait := time.Until(next)
		if wait < 0 {
			wait = 0
		}
		s.log.Debug("next cycle", logx.Time("at", next), logx.Duration("in", wait))

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			s.log.Info("poller stopped")
			return nil
		case <-t.C:
		}
	}
}

type entityResult struct {
	err       error
	panicked  bool
	notified  bool
	committed bool
}

// RunCycle evaluates every entity once and persists the store. Entities not
// yet started when ctx is cancelled are skipped; the persist step still runs on
// a context detached from ctx so commits made so far reach disk.
func (s *Service) RunCycle(ctx context.Context) CycleReport {
	rep := CycleReport{
		ID:       uuid.NewString(),
		Started:  s.now(),
		Entities: len(s.cfg.Entities),
	}
	log := s.log.With(logx.String("cycle", rep.ID))
	log.Debug("cycle started")

	results := make([]entityResult, len(s.cfg.Entities))
	sem := make(chan struct{}, s.cfg.Concurrency)
	var wg sync.WaitGroup

launch:
	for i, e := range s.cfg.Entities {
		if ctx.Err() != nil {
			rep.Skipped = len(s.cfg.Entities) - i
			break
		}
		select {
		case <-ctx.Done():
			rep.Skipped = len(s.cfg.Entities) - i
			break launch
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(i int, e watch.Entity) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = s.guard(ctx, log, e)
		}(i, e)
	}
	wg.Wait()

	for _, r := range results {
		if r.err != nil {
			rep.Errors++
		}
		if r.panicked {
			rep.Panics++
		}
		if r.notified {
			rep.Notified++
		}
		if r.committed {
			rep.Committed++
		}
	}

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.PersistTimeout)
	wrote, err := s.store.Persist(pctx)
	cancel()
	rep.Persisted = wrote
	if err != nil {
		rep.PersistErr = err
		s.rec.PersistError()
		log.Error("state persist failed; will retry next cycle", logx.Err(err))
	}
	s.rec.StateEntries(s.store.Len())

	rep.Took = s.now().Sub(rep.Started)
	s.rec.CycleDone(rep.Took, s.now())
	s.cycles.Add(1)
	s.last.Store(&rep)

	log.Info("cycle finished",
		logx.Duration("took", rep.Took),
		logx.Int("entities", rep.Entities),
		logx.Int("errors", rep.Errors),
		logx.Int("notified", rep.Notified),
		logx.Int("committed", rep.Committed),
		logx.Bool("persisted", rep.Persisted),
	)
	if s.onCycle != nil {
		s.onCycle(rep)
	}
	return rep
}

// guard runs one entity and turns a panic into an error for that entity only.
func (s *Service) guard(ctx context.Context, log logx.Logger, e watch.Entity) (res entityResult) {
	defer func() {
		if p := recover(); p != nil {
			res = entityResult{err: fmt.Errorf("panic: %v", p), panicked: true}
			log.Error("entity panicked",
				logx.String("repo", e.Key()),
				logx.Any("panic", p),
				logx.String("stack", string(debug.Stack())),
			)
			s.markError(e, res.err)
		}
	}()
	return s.processEntity(ctx, log, e)
}

func (s *Service) processEntity(ctx context.Context, log logx.Logger, e watch.Entity) entityResult {
	key := e.Key()
	log = log.With(logx.String("repo", key))

	rctx, cancel := context.WithTimeout(ctx, s.cfg.ResolveTimeout)
	obs, err := s.resolver.Resolve(rctx, e)
	cancel()
	if err != nil {
		s.rec.ResolveError(resolver.KindName(err))
		log.Warn("resolve failed", logx.Err(err))
		s.markError(e, err)
		return entityResult{err: err}
	}

	last, _ := s.store.Get(key)
	plan := s.detector.Plan(e, last, obs)
	s.rec.Decision(plan.Decision.Kind.String())

	res := entityResult{}
	if plan.Notify {
		nctx, cancel := context.WithTimeout(ctx, s.cfg.NotifyTimeout)
		err := s.notifier.Notify(nctx, plan.Event)
		cancel()
		if err != nil {
			s.rec.Notification("failed")
			log.Warn("notify failed; will retry next cycle",
				logx.String("identifier", plan.Event.Identifier),
				logx.Err(err),
			)
			s.markError(e, fmt.Errorf("notify: %w", err))
			return entityResult{err: err}
		}
		s.rec.Notification("sent")
		res.notified = true
		log.Info("announced",
			logx.String("identifier", plan.Event.Identifier),
			logx.String("previous", plan.Event.Previous),
		)
	}

	if plan.Commit != "" {
		if err := s.store.Set(key, plan.Commit); err != nil {
			log.Error("state update failed", logx.Err(err))
			s.markError(e, err)
			return entityResult{err: err, notified: res.notified}
		}
		res.committed = true
		if !plan.Notify {
			log.Info("baseline recorded", logx.String("identifier", plan.Commit))
		}
	}

	now := s.now()
	s.status.update(key, func(st *EntityStatus) {
		st.LastCheck = now
		st.LastDecision = plan.Decision.Kind.String()
		if plan.Decision.Current != "" {
			st.LastSeen = plan.Decision.Current
		}
		if res.notified {
			st.LastNotified = now
		}
		st.LastError = ""
		st.ConsecutiveErrors = 0
	})
	return res
}

func (s *Service) markError(e watch.Entity, err error) {
	now := s.now()
	s.status.update(e.Key(), func(st *EntityStatus) {
		st.LastCheck = now
		st.LastError = err.Error()
		st.LastErrorAt = now
		st.ConsecutiveErrors++
	})
}
