package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"tagwatch/internal/config"
	"tagwatch/internal/detect"
	"tagwatch/internal/notifier"
	"tagwatch/internal/observability"
	"tagwatch/internal/poller"
	"tagwatch/internal/resolver"
	"tagwatch/internal/runtime/sdnotify"
	"tagwatch/internal/runtime/supervisor"
	"tagwatch/internal/state"
	logx "tagwatch/pkg/logx"
)

// Options are the process-level inputs that do not come from the config file.
type Options struct {
	ConfigPath string
	// Lookup reads environment variables; os.LookupEnv when nil.
	Lookup config.LookupFunc
}

type App struct {
	cfg *config.Config
	rt  *config.Runtime

	log  logx.Logger
	logs *logx.Service

	registry *prometheus.Registry
	metrics  *observability.Metrics

	store  *state.Store
	guard  *state.Guard
	notif  *notifier.Limited
	poller *poller.Service
	http   *observability.Server
	sd     *sdnotify.Notifier

	sup *supervisor.Supervisor
}

// New loads configuration and builds every component. Configuration problems
// are returned as *config.Error; anything else is a startup failure.
func New(ctx context.Context, opts Options) (*App, error) {
	cfg, rt, err := LoadConfig(opts.ConfigPath, opts.Lookup)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	a := &App{
		cfg:  cfg,
		rt:   rt,
		log:  log.With(logx.String("comp", "app")),
		logs: logSvc,
		sd:   sdnotify.New(log),
	}
	a.log.Info("config loaded", config.Summary(cfg)...)

	// Undo whatever was opened so far on a later failure.
	ok := false
	defer func() {
		if !ok {
			a.closeResources()
		}
	}()

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = observability.NewMetrics(a.registry)

	sc := mapStateConfig(cfg, rt)
	a.store, err = state.Open(ctx, sc, log)
	if errors.Is(err, state.ErrCorrupt) {
		// An unreadable state file needs an operator, same as bad config.
		return nil, &config.Error{Err: fmt.Errorf("state.path %s: %w", sc.Path, err)}
	}
	if err != nil {
		return nil, fmt.Errorf("open state: %w", err)
	}
	if guardEnabled(sc, rt) {
		a.guard, err = state.NewGuard(a.store, log, a.onForeignWrite)
		if err != nil {
			return nil, fmt.Errorf("state guard: %w", err)
		}
	}

	res, err := resolver.NewGitHub(mapGitHubConfig(cfg, rt), log)
	if err != nil {
		return nil, fmt.Errorf("github resolver: %w", err)
	}

	a.notif, err = notifier.Open(ctx, mapNotifierConfig(cfg, rt), log)
	if err != nil {
		return nil, fmt.Errorf("notifier: %w", err)
	}

	a.poller = poller.New(mapPollerConfig(cfg, rt), res, a.notif, a.store, log,
		poller.WithDetector(detect.Detector{NotifyOnFirstSeen: cfg.Watch.NotifyOnFirstSeen}),
		poller.WithRecorder(a.metrics),
		poller.WithCycleHook(a.onCycle),
	)

	if cfg.HTTP.Enabled {
		a.http = observability.NewServer(mapServerConfig(cfg, rt), a.registry, a.poller, log)
	}

	ok = true
	return a, nil
}

// Poller exposes the poll loop (status, last cycle) to callers and tests.
func (a *App) Poller() *poller.Service { return a.poller }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start launches the poll loop and its companions in the background.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	a.sup.Go("poller", a.poller.Run)
	if a.guard != nil {
		// The guard only warns; it must never take the poller down.
		a.sup.GoRestart("state.guard", a.guard.Run,
			supervisor.WithRestartBackoff(time.Second, time.Minute),
		)
	}
	if a.http != nil {
		a.sup.Go("http", a.http.Run)
	}
	a.sup.Go("watchdog", func(ctx context.Context) error {
		return a.sd.Watchdog(ctx, func() bool { return a.sup.Err() == nil })
	})

	a.sd.Ready()
	a.log.Info("started",
		logx.Int("entities", len(a.rt.Entities)),
		logx.String("schedule", a.rt.Schedule.String()),
		logx.String("notifier", a.cfg.Notifier.Driver),
	)
	return nil
}

// RunOnce runs a single poll cycle and persists. It fails when the state could
// not be written, so cron-driven deployments notice.
func (a *App) RunOnce(ctx context.Context) error {
	rep := a.poller.RunCycle(ctx)
	if rep.PersistErr != nil {
		return fmt.Errorf("persist state: %w", rep.PersistErr)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}

func (a *App) onCycle(rep poller.CycleReport) {
	id := rep.ID
	if len(id) > 8 {
		id = id[:8]
	}
	a.sd.Status(fmt.Sprintf("%d repos, cycle %s: %d notified, %d errors, took %s",
		rep.Entities, id, rep.Notified, rep.Errors+rep.Panics, rep.Took.Round(time.Millisecond)))
}

func (a *App) onForeignWrite() {
	a.metrics.ForeignWrite()
}

// Stop cancels background work and releases resources. Each step is bounded
// so one stuck component cannot stall shutdown.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sd.Stopping()

	if a.sup != nil {
		a.sup.Cancel()
		// The poller's last persist runs detached from cancellation, bounded by
		// the persist timeout.
		a.step(ctx, "supervisor", a.rt.PersistTimeout+2*time.Second, func(c context.Context) error {
			err := a.sup.Wait(c)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	a.closeResourcesWith(ctx)

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

func (a *App) closeResourcesWith(ctx context.Context) {
	if a.notif != nil {
		a.step(ctx, "notifier", 2*time.Second, func(context.Context) error { return a.notif.Close() })
	}
	if a.store != nil {
		a.step(ctx, "state", time.Second, func(context.Context) error { return a.store.Close() })
	}
}

func (a *App) closeResources() {
	a.closeResourcesWith(context.Background())
	if a.logs != nil {
		_ = a.logs.Close()
	}
}

// step runs one shutdown step with an upper bound.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

	stepCtx := ctx
	if max > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, max)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		if took := time.Since(start); took >= 500*time.Millisecond {
			a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
		}
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Duration("elapsed", time.Since(start)),
		)
	}
}
