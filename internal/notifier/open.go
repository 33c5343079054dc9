package notifier

import (
	"context"
	"errors"
	"strings"

	logx "tagwatch/pkg/logx"
)

// Open builds the configured sink wrapped in a rate limiter.
func Open(ctx context.Context, cfg Config, log logx.Logger) (*Limited, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "notifier"))

	var (
		sink Notifier
		err  error
	)
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "telegram":
		driver = "telegram"
		sink, err = NewTelegram(cfg.Telegram, log)
	case "nats":
		sink, err = NewNATS(ctx, cfg.NATS, log)
	case "log":
		sink = NewLog(log)
	default:
		return nil, errors.New("unknown notifier driver: " + driver)
	}
	if err != nil {
		return nil, err
	}
	log.Info("notifier ready", logx.String("driver", driver))
	return NewLimited(sink, cfg.RatePerSec), nil
}
