package config

import (
	"strings"

	logx "tagwatch/pkg/logx"
)

// Summary returns structured attrs describing cfg for the startup log. Secrets
// are reduced to a *_set flag and never included.
func Summary(cfg *Config) []logx.Field {
	if cfg == nil {
		cfg = &Config{}
	}
	set := func(s string) bool { return strings.TrimSpace(s) != "" }
	attrs := []logx.Field{
		logx.Int("watch.repo_count", len(cfg.Watch.Repos)),
		logx.String("watch.schedule", strings.TrimSpace(cfg.Watch.Schedule)),
		logx.Bool("watch.notify_on_first_seen", cfg.Watch.NotifyOnFirstSeen),
		logx.Int("watch.concurrency", cfg.Watch.Concurrency),
		logx.Bool("watch.filter_set", set(cfg.Watch.Filter)),
		logx.Bool("github.token_set", set(cfg.GitHub.Token)),
		logx.String("github.base_url", strings.TrimSpace(cfg.GitHub.BaseURL)),
		logx.String("notifier.driver", strings.TrimSpace(cfg.Notifier.Driver)),
		logx.String("state.driver", strings.TrimSpace(cfg.State.Driver)),
		logx.String("state.path", strings.TrimSpace(cfg.State.Path)),
		logx.String("logging.level", cfg.Logging.Level),
		logx.Bool("http.enabled", cfg.HTTP.Enabled),
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Notifier.Driver)) {
	case "", "telegram":
		attrs = append(attrs,
			logx.Bool("telegram.token_set", set(cfg.Telegram.Token)),
			logx.Int64("telegram.chat_id", cfg.Telegram.ChatID),
			logx.Int("telegram.thread_id", cfg.Telegram.ThreadID),
		)
	case "nats":
		attrs = append(attrs,
			logx.String("nats.subject", cfg.NATS.Subject),
			logx.String("nats.stream", cfg.NATS.Stream),
			logx.Bool("nats.auth_set", set(cfg.NATS.Token) || set(cfg.NATS.Creds)),
		)
	}
	if cfg.HTTP.Enabled {
		attrs = append(attrs,
			logx.String("http.addr", strings.TrimSpace(cfg.HTTP.Addr)),
			logx.Bool("http.pprof", cfg.HTTP.Pprof),
			logx.Bool("http.token_set", set(cfg.HTTP.Token)),
		)
	}
	return attrs
}
