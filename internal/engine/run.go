// SPDX-License-Identifier: MPL-2.0

package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/devtask/devtask/internal/backend"
	"github.com/devtask/devtask/internal/catalog"
	"github.com/devtask/devtask/internal/progress"
	"github.com/devtask/devtask/pkg/types"
)

type (
	// Run is the handle of one top-level invocation. Its progress lines and
	// terminal status are delivered on Messages(), which callers must drain.
	Run struct {
		id      string
		command catalog.CommandID
		stream  *progress.Stream
		adapter *backend.Adapter
		logger  *log.Logger

		state     atomic.Int32
		cancelled atomic.Bool
		cancelMu  sync.Mutex
		active    activeSet

		mu     sync.Mutex
		errs   []error
		visits []NodeVisit

		done chan struct{}
		code types.ExitCode
	}

	// activeSet holds the executions currently in flight for a run. After
	// cancelAll, add refuses new handles so the caller cancels them itself.
	activeSet struct {
		mu        sync.Mutex
		items     map[string]backend.Execution
		cancelled bool
	}
)

func newRun(command catalog.CommandID, adapter *backend.Adapter, logger *log.Logger, buffer int) *Run {
	id := uuid.NewString()
	r := &Run{
		id:      id,
		command: command,
		stream:  progress.NewStream(buffer),
		adapter: adapter,
		logger:  logger.With("run", id[:8], "command", string(command)),
		done:    make(chan struct{}),
		active:  activeSet{items: make(map[string]backend.Execution)},
	}
	r.state.Store(int32(RunIdle))
	return r
}

// ID returns the run's unique id.
func (r *Run) ID() string { return r.id }

// Command returns the requested command id.
func (r *Run) Command() catalog.CommandID { return r.command }

// Messages returns the ordered progress stream. The last message carries the
// terminal status.
func (r *Run) Messages() <-chan progress.Message { return r.stream.Messages() }

// State returns the current run state.
func (r *Run) State() RunState { return RunState(r.state.Load()) }

// Done is closed once the terminal status has been emitted.
func (r *Run) Done() <-chan struct{} { return r.done }

// Wait blocks until the run completes and returns its terminal status. It
// does not drain Messages().
func (r *Run) Wait() types.ExitCode {
	<-r.done
	return r.code
}

// Err returns every node failure of a finished run joined together, or nil.
// Use errors.Is with the package sentinels to classify them.
func (r *Run) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return errors.Join(r.errs...)
}

// Visits returns the node visits recorded so far, in completion order.
func (r *Run) Visits() []NodeVisit {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]NodeVisit, len(r.visits))
	copy(out, r.visits)
	return out
}

// Cancel requests termination of every active leaf execution. No further
// leaves are dispatched and the run completes with a failure status.
// Calling Cancel more than once, or after completion, has no effect.
func (r *Run) Cancel() {
	r.cancelMu.Lock()
	defer r.cancelMu.Unlock()

	if r.cancelled.Load() || r.State().IsTerminal() {
		return
	}
	r.cancelled.Store(true)
	r.stream.Emit(progress.Event{Kind: progress.Cancelled, CommandID: r.command})
	r.recordErr(ErrCancelled)

	for _, exec := range r.active.cancelAll() {
		r.terminate(exec)
	}
}

// isCancelled is checked at every composite boundary and before each leaf.
func (r *Run) isCancelled() bool { return r.cancelled.Load() }

func (r *Run) terminate(exec backend.Execution) {
	if err := r.adapter.Cancel(exec); err != nil {
		r.logger.Debug("terminate request failed", "execution", exec.ID(), "error", err)
	}
}

func (r *Run) emit(e progress.Event) {
	r.stream.Emit(e)
}

func (r *Run) recordErr(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

func (r *Run) recordVisit(id catalog.CommandID, depth int, state NodeState) {
	r.mu.Lock()
	r.visits = append(r.visits, NodeVisit{ID: id, Depth: depth, State: state})
	r.mu.Unlock()
}

// add registers exec. It returns false when the run was already cancelled.
func (s *activeSet) add(exec backend.Execution) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled {
		return false
	}
	s.items[exec.ID()] = exec
	return true
}

func (s *activeSet) remove(exec backend.Execution) {
	s.mu.Lock()
	delete(s.items, exec.ID())
	s.mu.Unlock()
}

func (s *activeSet) cancelAll() []backend.Execution {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = true
	out := make([]backend.Execution, 0, len(s.items))
	for _, exec := range s.items {
		out = append(out, exec)
	}
	return out
}

func (s *activeSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// watchContext cancels the run when ctx ends before the run does.
func (r *Run) watchContext(ctx context.Context) (stop func() bool) {
	return context.AfterFunc(ctx, r.Cancel)
}
