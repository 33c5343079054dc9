package app

import (
	"strings"

	"tagwatch/internal/config"
	"tagwatch/internal/notifier"
	"tagwatch/internal/observability"
	"tagwatch/internal/poller"
	"tagwatch/internal/resolver"
	logx "tagwatch/pkg/logx"
)

// LoadConfig reads and validates configuration. Failures are *config.Error.
func LoadConfig(path string, lookup config.LookupFunc) (*config.Config, *config.Runtime, error) {
	cfg, err := config.Load(path, lookup)
	if err != nil {
		return nil, nil, err
	}
	rt, err := cfg.Resolve()
	if err != nil {
		return nil, nil, err
	}
	return cfg, rt, nil
}

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		JSON:    cfg.Logging.JSON,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapGitHubConfig(cfg *config.Config, rt *config.Runtime) resolver.GitHubConfig {
	return resolver.GitHubConfig{
		Token:      strings.TrimSpace(cfg.GitHub.Token),
		BaseURL:    strings.TrimSpace(cfg.GitHub.BaseURL),
		RatePerSec: cfg.GitHub.RatePerSec,
		Filter:     rt.Filter,
		UserAgent:  "tagwatch",
	}
}

func mapNotifierConfig(cfg *config.Config, rt *config.Runtime) notifier.Config {
	return notifier.Config{
		Driver:     strings.ToLower(strings.TrimSpace(cfg.Notifier.Driver)),
		RatePerSec: cfg.Notifier.RatePerSec,
		Telegram: notifier.TelegramConfig{
			Token:          strings.TrimSpace(cfg.Telegram.Token),
			ChatID:         cfg.Telegram.ChatID,
			ThreadID:       cfg.Telegram.ThreadID,
			DisablePreview: cfg.Telegram.DisablePreview,
			APIURL:         strings.TrimSpace(cfg.Telegram.APIURL),
			Timeout:        rt.TelegramTimeout,
		},
		NATS: notifier.NATSConfig{
			URL:         strings.TrimSpace(cfg.NATS.URL),
			Subject:     strings.TrimSpace(cfg.NATS.Subject),
			Stream:      strings.TrimSpace(cfg.NATS.Stream),
			Token:       strings.TrimSpace(cfg.NATS.Token),
			Creds:       strings.TrimSpace(cfg.NATS.Creds),
			DedupWindow: rt.DedupWindow,
		},
	}
}

func mapPollerConfig(cfg *config.Config, rt *config.Runtime) poller.Config {
	return poller.Config{
		Entities:       rt.Entities,
		Schedule:       rt.Schedule,
		Concurrency:    cfg.Watch.Concurrency,
		ResolveTimeout: rt.ResolveTimeout,
		NotifyTimeout:  rt.NotifyTimeout,
		PersistTimeout: rt.PersistTimeout,
	}
}

func mapServerConfig(cfg *config.Config, rt *config.Runtime) observability.ServerConfig {
	return observability.ServerConfig{
		Enabled:       cfg.HTTP.Enabled,
		Addr:          strings.TrimSpace(cfg.HTTP.Addr),
		Token:         strings.TrimSpace(cfg.HTTP.Token),
		AllowInsecure: cfg.HTTP.AllowInsecure,
		Pprof:         cfg.HTTP.Pprof,
		PprofPrefix:   cfg.HTTP.PprofPrefix,
		ReadTimeout:   rt.HTTPReadTimeout,
		WriteTimeout:  rt.HTTPWriteTimeout,
		IdleTimeout:   rt.HTTPIdleTimeout,
	}
}
