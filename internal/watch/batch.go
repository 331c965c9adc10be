// SPDX-License-Identifier: MPL-2.0

package watch

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"
)

// batch collects changed paths and flushes them once no new path has
// arrived for the debounce period.
type batch struct {
	debounce time.Duration
	flush    func(ctx context.Context, changed []string)

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
	busy    bool
}

func newBatch(debounce time.Duration, flush func(context.Context, []string)) *batch {
	return &batch{debounce: debounce, flush: flush, pending: make(map[string]struct{})}
}

// add records path and restarts the quiet period.
func (b *batch) add(ctx context.Context, path string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pending[path] = struct{}{}
	if b.timer == nil {
		b.timer = time.AfterFunc(b.debounce, func() { b.fire(ctx) })
		return
	}
	b.timer.Reset(b.debounce)
}

func (b *batch) fire(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	b.mu.Lock()
	if b.busy {
		// Retry after the running flush; the pending set stays intact.
		b.timer.Reset(b.debounce)
		b.mu.Unlock()
		return
	}
	if len(b.pending) == 0 {
		b.mu.Unlock()
		return
	}
	changed := slices.Sorted(maps.Keys(b.pending))
	clear(b.pending)
	b.busy = true
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.busy = false
		b.mu.Unlock()
	}()
	b.flush(ctx, changed)
}

// stop cancels a scheduled flush. A flush already running is not waited for.
func (b *batch) stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timer != nil {
		b.timer.Stop()
	}
}
