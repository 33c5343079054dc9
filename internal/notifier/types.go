package notifier

import (
	"context"
	"errors"
	"time"

	"tagwatch/internal/watch"
)

var ErrStopped = errors.New("notifier stopped")

// Notifier delivers one event. Implementations must be safe for concurrent use.
type Notifier interface {
	Notify(ctx context.Context, ev watch.Event) error
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, ev watch.Event) error

func (f Func) Notify(ctx context.Context, ev watch.Event) error { return f(ctx, ev) }

// Closer is implemented by sinks that hold connections.
type Closer interface {
	Close() error
}

// Config selects and tunes the sink.
type Config struct {
	Driver     string // telegram | nats | log
	RatePerSec float64

	Telegram TelegramConfig
	NATS     NATSConfig
}

type TelegramConfig struct {
	Token          string
	ChatID         int64
	ThreadID       int
	DisablePreview bool
	// APIURL overrides https://api.telegram.org (tests, local Bot API servers).
	APIURL  string
	Timeout time.Duration
}

type NATSConfig struct {
	URL     string
	Subject string
	// Stream, when set, is created or updated to capture Subject.
	Stream      string
	Token       string
	Creds       string
	DedupWindow time.Duration
}
