// Package shutdown runs registered teardown hooks in priority order.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrAlreadyRan is returned by Add once Run has started.
var ErrAlreadyRan = errors.New("shutdown already ran")

// Func tears one component down.
type Func func(ctx context.Context) error

type hook struct {
	name     string
	priority int
	seq      int
	fn       Func
}

// Registry collects hooks. Lower priorities run first; equal priorities run
// in registration order.
type Registry struct {
	mu    sync.Mutex
	hooks []hook
	ran   bool
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{}
}

// Add registers fn under name at priority.
func (r *Registry) Add(name string, priority int, fn Func) error {
	if fn == nil {
		return fmt.Errorf("shutdown hook %q: nil func", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ran {
		return ErrAlreadyRan
	}
	r.hooks = append(r.hooks, hook{name: name, priority: priority, seq: len(r.hooks), fn: fn})
	return nil
}

// Run calls every hook once, in order, even when earlier hooks fail or ctx
// expires. Errors are joined and prefixed with the hook name. Later calls
// return nil.
func (r *Registry) Run(ctx context.Context) error {
	r.mu.Lock()
	if r.ran {
		r.mu.Unlock()
		return nil
	}
	r.ran = true
	hooks := append([]hook(nil), r.hooks...)
	r.mu.Unlock()

	sort.SliceStable(hooks, func(i, j int) bool {
		if hooks[i].priority != hooks[j].priority {
			return hooks[i].priority < hooks[j].priority
		}
		return hooks[i].seq < hooks[j].seq
	})

	var errs []error
	for _, h := range hooks {
		if err := h.fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
		}
	}
	return errors.Join(errs...)
}
