package notifier

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"tagwatch/internal/watch"
)

// Limited throttles an inner Notifier with a token bucket. Waiting for a token
// respects ctx, so a caller's notify timeout also covers time spent queued here.
type Limited struct {
	inner   Notifier
	limiter *rate.Limiter

	mu     sync.Mutex
	closed bool
}

// NewLimited wraps n. ratePerSec <= 0 defaults to 1 message per second.
func NewLimited(n Notifier, ratePerSec float64) *Limited {
	if ratePerSec <= 0 {
		ratePerSec = 1
	}
	// Token bucket: burst = rate per sec, so short spikes don't block too hard.
	burst := int(ratePerSec)
	if burst < 1 {
		burst = 1
	}
	return &Limited{inner: n, limiter: rate.NewLimiter(rate.Limit(ratePerSec), burst)}
}

func (l *Limited) Notify(ctx context.Context, ev watch.Event) error {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return ErrStopped
	}
	if err := l.limiter.Wait(ctx); err != nil {
		return err
	}
	return l.inner.Notify(ctx, ev)
}

// Inner returns the wrapped sink.
func (l *Limited) Inner() Notifier { return l.inner }

// Close rejects further events and closes the sink if it holds resources.
func (l *Limited) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()
	if c, ok := l.inner.(Closer); ok {
		return c.Close()
	}
	return nil
}
