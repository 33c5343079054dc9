package notifier

import (
	"context"

	"tagwatch/internal/watch"
	logx "tagwatch/pkg/logx"
)

// Log is a dry-run sink: events are logged and considered delivered.
type Log struct {
	log logx.Logger
}

func NewLog(log logx.Logger) *Log {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Log{log: log.With(logx.String("sink", "log"))}
}

func (l *Log) Notify(ctx context.Context, ev watch.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.log.Info("new identifier",
		logx.String("repo", ev.Entity.Key()),
		logx.String("identifier", ev.Identifier),
		logx.String("previous", ev.Previous),
		logx.String("source", string(ev.Source)),
		logx.String("url", ev.URL),
	)
	return nil
}
