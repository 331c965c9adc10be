// SPDX-License-Identifier: MPL-2.0

package agent

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

const (
	// StateCreated indicates the server instance was created but Start() not called.
	StateCreated State = iota
	// StateStarting indicates Start() was called and the server is initializing.
	StateStarting
	// StateRunning indicates the server is accepting connections.
	StateRunning
	// StateStopping indicates Stop() was called and graceful shutdown is in progress.
	StateStopping
	// StateStopped is terminal: the server has stopped.
	StateStopped
	// StateFailed is terminal: the server failed to start or encountered a fatal error.
	StateFailed
)

type (
	// State represents the lifecycle state of the agent server.
	State int32

	// lifecycle carries the state machine shared by Start, Stop and the
	// background goroutines. A server is single-use: once stopped or failed,
	// create a new instance.
	lifecycle struct {
		state   atomic.Int32
		stateMu sync.Mutex

		ctx       context.Context
		cancel    context.CancelFunc
		wg        sync.WaitGroup
		startedCh chan struct{}
		errCh     chan error
		lastErr   error
	}
)

// String returns a human-readable representation of the server state.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal returns true for Stopped and Failed.
func (s State) IsTerminal() bool {
	return s == StateStopped || s == StateFailed
}

func newLifecycle() lifecycle {
	return lifecycle{
		startedCh: make(chan struct{}),
		errCh:     make(chan error, 1),
	}
}

func (l *lifecycle) current() State {
	return State(l.state.Load())
}

func (l *lifecycle) lastError() error {
	l.stateMu.Lock()
	defer l.stateMu.Unlock()
	return l.lastErr
}

// toStarting moves Created -> Starting. A cancelled ctx fails the server
// before any setup happens.
func (l *lifecycle) toStarting(ctx context.Context) error {
	select {
	case <-ctx.Done():
		l.toFailed(fmt.Errorf("context cancelled before start: %w", ctx.Err()))
		return l.lastError()
	default:
	}

	if !l.state.CompareAndSwap(int32(StateCreated), int32(StateStarting)) {
		return fmt.Errorf("cannot start server in state %s", l.current())
	}
	l.ctx, l.cancel = context.WithCancel(context.Background())
	return nil
}

func (l *lifecycle) toRunning() {
	if l.state.CompareAndSwap(int32(StateStarting), int32(StateRunning)) {
		close(l.startedCh)
	}
}

func (l *lifecycle) toFailed(err error) {
	l.stateMu.Lock()
	l.lastErr = err
	l.stateMu.Unlock()

	l.state.Store(int32(StateFailed))
	if l.cancel != nil {
		l.cancel()
	}
	l.sendError(err)
}

// toStopping reports whether the caller owns the shutdown.
func (l *lifecycle) toStopping() bool {
	for {
		cur := l.current()
		switch cur {
		case StateCreated:
			if l.state.CompareAndSwap(int32(StateCreated), int32(StateStopped)) {
				return false
			}
		case StateStarting, StateRunning:
			if l.state.CompareAndSwap(int32(cur), int32(StateStopping)) {
				if l.cancel != nil {
					l.cancel()
				}
				return true
			}
		default:
			return false
		}
	}
}

func (l *lifecycle) sendError(err error) {
	select {
	case l.errCh <- err:
	default:
	}
}
