// Package hooks runs ordered pre- and post-commit callbacks around entity
// writes. A before hook may replace the value; the first error aborts the
// pipeline.
package hooks

import (
	"context"
	"fmt"
)

// Hook transforms or validates a value
type Hook[T any] func(ctx context.Context, v T) (T, error)

// Named pairs a hook with a name used in error messages
type Named[T any] struct {
	Name string
	Fn   Hook[T]
}

// Pipeline holds the hooks for one entity operation
type Pipeline[T any] struct {
	before []Named[T]
	after  []Named[T]
}

// Before appends a pre-commit hook
func (p *Pipeline[T]) Before(name string, fn Hook[T]) *Pipeline[T] {
	p.before = append(p.before, Named[T]{Name: name, Fn: fn})
	return p
}

// After appends a post-commit hook
func (p *Pipeline[T]) After(name string, fn Hook[T]) *Pipeline[T] {
	p.after = append(p.after, Named[T]{Name: name, Fn: fn})
	return p
}

// RunBefore applies pre-commit hooks in order
func (p *Pipeline[T]) RunBefore(ctx context.Context, v T) (T, error) {
	return run(ctx, p.before, v)
}

// RunAfter applies post-commit hooks in order
func (p *Pipeline[T]) RunAfter(ctx context.Context, v T) (T, error) {
	return run(ctx, p.after, v)
}

// Len returns the number of registered hooks
func (p *Pipeline[T]) Len() int {
	return len(p.before) + len(p.after)
}

func run[T any](ctx context.Context, hooks []Named[T], v T) (T, error) {
	for _, h := range hooks {
		if err := ctx.Err(); err != nil {
			return v, err
		}
		next, err := h.Fn(ctx, v)
		if err != nil {
			return v, &Error{Hook: h.Name, Err: err}
		}
		v = next
	}
	return v, nil
}

// Error identifies the hook that failed
type Error struct {
	Hook string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("hook %s: %v", e.Hook, e.Err)
}

// Unwrap exposes the hook's error so typed errors survive the pipeline
func (e *Error) Unwrap() error {
	return e.Err
}
