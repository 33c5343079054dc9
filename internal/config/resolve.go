package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"tagwatch/internal/poller"
	"tagwatch/internal/resolver"
	"tagwatch/internal/watch"
	logx "tagwatch/pkg/logx"
)

// Runtime is a validated Config with every string parsed into its typed form.
type Runtime struct {
	Entities []watch.Entity
	Schedule poller.Schedule
	Location *time.Location
	Filter   *resolver.Filter

	ResolveTimeout  time.Duration
	NotifyTimeout   time.Duration
	PersistTimeout  time.Duration
	BusyTimeout     time.Duration
	TelegramTimeout time.Duration
	DedupWindow     time.Duration

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration

	DetectForeignWrites bool
}

// Resolve validates c and returns its parsed form. It reports every problem at
// once, joined inside a single *Error.
func (c *Config) Resolve() (*Runtime, error) {
	var (
		rt   Runtime
		errs []error
	)
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	dur := func(dst *time.Duration, path, raw string, def time.Duration) {
		d, err := parsePositive(path, raw, def)
		add(err)
		*dst = d
	}

	// watch
	if len(c.Watch.Repos) == 0 {
		add(errors.New("watch.repos: at least one owner/repo is required (REPOS)"))
	} else {
		ents, err := watch.ParseList(c.Watch.Repos)
		if err != nil {
			add(fmt.Errorf("watch.repos: %w", err))
		}
		rt.Entities = ents
		if err == nil && len(ents) == 0 {
			add(errors.New("watch.repos: at least one owner/repo is required (REPOS)"))
		}
	}
	rt.Location = time.Local
	if tz := strings.TrimSpace(c.Watch.Timezone); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			add(fmt.Errorf("watch.timezone: unknown zone %q", tz))
		} else {
			rt.Location = loc
		}
	}
	sched, err := poller.ParseSchedule(c.Watch.Schedule, rt.Location)
	if err != nil {
		add(fmt.Errorf("watch.schedule: %w", err))
	}
	rt.Schedule = sched
	if c.Watch.Concurrency < 0 {
		add(errors.New("watch.concurrency: must be >= 0"))
	}
	dur(&rt.ResolveTimeout, "watch.resolve_timeout", c.Watch.ResolveTimeout, 20*time.Second)
	dur(&rt.NotifyTimeout, "watch.notify_timeout", c.Watch.NotifyTimeout, 15*time.Second)
	f, err := resolver.CompileFilter(c.Watch.Filter)
	if err != nil {
		add(fmt.Errorf("watch.filter: %w", err))
	}
	rt.Filter = f

	// github
	if strings.TrimSpace(c.GitHub.Token) == "" {
		add(errors.New("github.token: required (GITHUB_TOKEN)"))
	}
	if c.GitHub.RatePerSec < 0 {
		add(errors.New("github.rate_per_sec: must be >= 0"))
	}

	// notifier
	if c.Notifier.RatePerSec < 0 {
		add(errors.New("notifier.rate_per_sec: must be >= 0"))
	}
	switch strings.ToLower(strings.TrimSpace(c.Notifier.Driver)) {
	case "", "telegram":
		if strings.TrimSpace(c.Telegram.Token) == "" {
			add(errors.New("telegram.token: required by the telegram notifier (TG_BOT_TOKEN)"))
		}
		if c.Telegram.ChatID == 0 {
			add(errors.New("telegram.chat_id: required by the telegram notifier (TG_CHAT_ID)"))
		}
	case "nats":
		if strings.TrimSpace(c.NATS.URL) == "" {
			add(errors.New("nats.url: required by the nats notifier (NATS_URL)"))
		}
		if strings.TrimSpace(c.NATS.Token) != "" && strings.TrimSpace(c.NATS.Creds) != "" {
			add(errors.New("nats: token and creds are mutually exclusive"))
		}
	case "log":
	default:
		add(fmt.Errorf("notifier.driver: unknown driver %q (want telegram, nats or log)", c.Notifier.Driver))
	}
	dur(&rt.TelegramTimeout, "telegram.timeout", c.Telegram.Timeout, 15*time.Second)
	dur(&rt.DedupWindow, "nats.dedup_window", c.NATS.DedupWindow, 2*time.Minute)

	// state
	switch strings.ToLower(strings.TrimSpace(c.State.Driver)) {
	case "", "file", "json", "sqlite", "sqlite3":
	default:
		add(fmt.Errorf("state.driver: unknown driver %q (want file or sqlite)", c.State.Driver))
	}
	if strings.TrimSpace(c.State.Path) == "" {
		add(errors.New("state.path: required (STATE_PATH)"))
	}
	dur(&rt.PersistTimeout, "state.persist_timeout", c.State.PersistTimeout, 10*time.Second)
	dur(&rt.BusyTimeout, "state.busy_timeout", c.State.BusyTimeout, time.Second)
	rt.DetectForeignWrites = c.State.DetectForeignWrites == nil || *c.State.DetectForeignWrites

	// logging
	if _, ok := logx.ParseLevel(c.Logging.Level); !ok && strings.TrimSpace(c.Logging.Level) != "" {
		add(fmt.Errorf("logging.level: unknown level %q", c.Logging.Level))
	}
	if c.Logging.File.Enabled && strings.TrimSpace(c.Logging.File.Path) == "" {
		add(errors.New("logging.file.path: required when logging.file.enabled"))
	}

	// http; WriteTimeout stays 0 unless set so a 30s pprof profile still completes.
	d, err := ParseDurationField("http.write_timeout", c.HTTP.WriteTimeout)
	add(err)
	rt.HTTPWriteTimeout = d
	dur(&rt.HTTPReadTimeout, "http.read_timeout", c.HTTP.ReadTimeout, 10*time.Second)
	dur(&rt.HTTPIdleTimeout, "http.idle_timeout", c.HTTP.IdleTimeout, 60*time.Second)

	if len(errs) > 0 {
		return nil, &Error{Err: errors.Join(errs...)}
	}
	return &rt, nil
}
