package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/google/go-github/v66/github"

	"tagwatch/internal/watch"
)

// Error kinds. Use errors.Is against an *Error.
var (
	ErrNotFound    = errors.New("not found")
	ErrRateLimited = errors.New("rate limited")
	ErrTimeout     = errors.New("timeout")
	ErrMalformed   = errors.New("malformed response")
	ErrTransport   = errors.New("transport error")
	ErrFilter      = errors.New("filter error")
)

// Error is a failed resolution of one entity. It is never fatal: the entity is
// skipped for the current cycle and retried on the next one.
type Error struct {
	Entity watch.Entity
	Op     string
	Kind   error
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("resolve %s: %s: %v: %v", e.Entity.Key(), e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error { return []error{e.Kind, e.Err} }

// KindName is a short label for err's kind, suitable for metrics.
func KindName(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrMalformed):
		return "malformed"
	case errors.Is(err, ErrFilter):
		return "filter"
	case errors.Is(err, ErrTransport):
		return "transport"
	default:
		return "other"
	}
}

func classify(e watch.Entity, op string, err error) error {
	return &Error{Entity: e, Op: op, Kind: kindOf(err), Err: err}
}

func kindOf(err error) error {
	var (
		rle  *github.RateLimitError
		arle *github.AbuseRateLimitError
		er   *github.ErrorResponse
		se   *json.SyntaxError
		ute  *json.UnmarshalTypeError
		ne   net.Error
	)
	switch {
	case errors.As(err, &rle), errors.As(err, &arle):
		return ErrRateLimited
	case errors.As(err, &er) && er.Response != nil:
		switch er.Response.StatusCode {
		case http.StatusNotFound:
			return ErrNotFound
		case http.StatusTooManyRequests:
			return ErrRateLimited
		}
		return ErrTransport
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout
	case errors.As(err, &ne) && ne.Timeout():
		return ErrTimeout
	case errors.As(err, &se), errors.As(err, &ute):
		return ErrMalformed
	default:
		return ErrTransport
	}
}
