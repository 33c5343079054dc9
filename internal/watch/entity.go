// Package watch holds the domain values shared by the resolver, detector,
// notifier and poller: what is watched, what was observed, and what is announced.
package watch

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidEntity = errors.New("invalid watched entity")

// Entity identifies one watched repository. Immutable for the process lifetime.
type Entity struct {
	Owner string
	Name  string
}

// Key is the "owner/name" form used as the state-file key.
func (e Entity) Key() string { return e.Owner + "/" + e.Name }

func (e Entity) String() string { return e.Key() }

// Parse parses "owner/name". Surrounding whitespace is ignored.
func Parse(raw string) (Entity, error) {
	s := strings.TrimSpace(raw)
	owner, name, ok := strings.Cut(s, "/")
	owner = strings.TrimSpace(owner)
	name = strings.TrimSpace(name)
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return Entity{}, fmt.Errorf("%w: %q (want owner/repo)", ErrInvalidEntity, raw)
	}
	if strings.ContainsAny(owner+name, " \t\r\n") {
		return Entity{}, fmt.Errorf("%w: %q contains whitespace", ErrInvalidEntity, raw)
	}
	return Entity{Owner: owner, Name: name}, nil
}

// ParseList parses a list of entities, preserving order.
// Empty items are skipped; duplicates (case-insensitive, as GitHub treats them) are rejected.
func ParseList(items []string) ([]Entity, error) {
	out := make([]Entity, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	var errs []error
	for _, it := range items {
		if strings.TrimSpace(it) == "" {
			continue
		}
		e, err := Parse(it)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		k := strings.ToLower(e.Key())
		if _, dup := seen[k]; dup {
			errs = append(errs, fmt.Errorf("%w: %q listed more than once", ErrInvalidEntity, e.Key()))
			continue
		}
		seen[k] = struct{}{}
		out = append(out, e)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

// SplitCSV splits the REPOS-style "a/b, c/d" form.
func SplitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
