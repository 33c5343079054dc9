package resolver

import (
	"fmt"
	"strings"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"

	"tagwatch/internal/watch"
)

// Candidate is what a filter expression sees.
type Candidate struct {
	Tag        string
	Entity     watch.Entity
	Source     watch.Source
	Prerelease bool
}

func (c Candidate) env() map[string]any {
	return map[string]any{
		"tag":        c.Tag,
		"repo":       c.Entity.Key(),
		"owner":      c.Entity.Owner,
		"name":       c.Entity.Name,
		"source":     string(c.Source),
		"prerelease": c.Prerelease,
	}
}

// Filter is a compiled boolean expression over a Candidate, e.g.
// `!prerelease && !(tag contains "nightly")`.
type Filter struct {
	src     string
	program *exprvm.Program
}

// CompileFilter compiles src. An empty src yields a nil filter that accepts everything.
func CompileFilter(src string) (*Filter, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, nil
	}
	program, err := exprlang.Compile(src,
		exprlang.Env(Candidate{}.env()),
		exprlang.AsBool(),
	)
	if err != nil {
		return nil, fmt.Errorf("compile filter %q: %w", src, err)
	}
	return &Filter{src: src, program: program}, nil
}

func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.src
}

// Accept evaluates the filter. A nil filter accepts every candidate.
func (f *Filter) Accept(c Candidate) (bool, error) {
	if f == nil {
		return true, nil
	}
	out, err := exprlang.Run(f.program, c.env())
	if err != nil {
		return false, fmt.Errorf("%w: %q: %v", ErrFilter, f.src, err)
	}
	ok, _ := out.(bool)
	return ok, nil
}
