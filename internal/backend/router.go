// SPDX-License-Identifier: MPL-2.0

package backend

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Router dispatches each request to the backend registered for its
// component, or to the fallback.
type Router struct {
	mu       sync.RWMutex
	routes   map[string]Backend
	fallback Backend
	// owners remembers which backend started each execution.
	owners map[string]Backend
}

var _ Backend = (*Router)(nil)

// NewRouter creates a router. fallback may be nil.
func NewRouter(fallback Backend) *Router {
	return &Router{
		routes:   make(map[string]Backend),
		fallback: fallback,
		owners:   make(map[string]Backend),
	}
}

// Handle registers b for component. Component names are case-insensitive.
func (r *Router) Handle(component string, b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[strings.ToLower(component)] = b
}

// Components returns the number of explicitly routed components.
func (r *Router) Components() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.routes)
}

func (r *Router) lookup(component string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if b, ok := r.routes[strings.ToLower(component)]; ok {
		return b, nil
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrNoBackend, component)
}

// Start forwards to the component's backend.
func (r *Router) Start(ctx context.Context, req Request) (Execution, error) {
	b, err := r.lookup(req.Component)
	if err != nil {
		return nil, err
	}
	exec, err := b.Start(ctx, req)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.owners[exec.ID()] = b
	r.mu.Unlock()
	return exec, nil
}

// Wait forwards to the owning backend.
func (r *Router) Wait(exec Execution) ExitStatus {
	b, ok := r.owner(exec)
	if !ok {
		return waitHandle(nil)
	}
	status := b.Wait(exec)
	r.mu.Lock()
	delete(r.owners, exec.ID())
	r.mu.Unlock()
	return status
}

// Cancel forwards to the owning backend. Executions that already finished
// (or were never started here) are ignored.
func (r *Router) Cancel(exec Execution) error {
	b, ok := r.owner(exec)
	if !ok {
		return nil
	}
	return b.Cancel(exec)
}

func (r *Router) owner(exec Execution) (Backend, bool) {
	if exec == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.owners[exec.ID()]
	return b, ok
}
