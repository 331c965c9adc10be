// SPDX-License-Identifier: MPL-2.0

package backend

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/devtask/devtask/pkg/types"
)

var (
	// ErrUnknownExecution is returned when a Backend is handed an Execution
	// it did not create.
	ErrUnknownExecution = errors.New("unknown execution")
	// ErrNoBackend is returned by Router for a component without a backend.
	ErrNoBackend = errors.New("no backend registered for component")
)

type (
	// ExitStatus is the resolved outcome of one execution.
	ExitStatus = types.ExitStatus

	// Request describes one leaf invocation.
	Request struct {
		Component string
		ShellLine string
		WorkDir   string
		// Output overrides the backend's OutputFunc for this request.
		Output OutputFunc
	}

	// Execution is a handle to an in-flight invocation.
	Execution interface {
		ID() string
	}

	// Backend starts shell lines on components.
	//
	// Wait must block until the execution terminates and may be called once
	// per handle. Cancel is best-effort and safe to call more than once or
	// after completion.
	Backend interface {
		Start(ctx context.Context, req Request) (Execution, error)
		Wait(exec Execution) ExitStatus
		Cancel(exec Execution) error
	}

	// OutputFunc receives each line a leaf prints, without the newline.
	OutputFunc func(component, line string)

	// handle is the Execution shared by the built-in backends.
	handle struct {
		id     string
		req    Request
		done   chan struct{}
		status ExitStatus
		once   sync.Once

		cancelMu sync.Mutex
		cancel   func() error
	}
)

func newHandle(req Request) *handle {
	return &handle{
		id:   uuid.NewString(),
		req:  req,
		done: make(chan struct{}),
	}
}

func (h *handle) ID() string { return h.id }

// outputFor picks the request's output callback over the backend default.
func outputFor(req Request, fallback OutputFunc) OutputFunc {
	if req.Output != nil {
		return req.Output
	}
	return fallback
}

func (h *handle) setCancel(fn func() error) {
	h.cancelMu.Lock()
	h.cancel = fn
	h.cancelMu.Unlock()
}

func (h *handle) finish(status ExitStatus) {
	h.once.Do(func() {
		h.status = status
		close(h.done)
	})
}

func (h *handle) wait() ExitStatus {
	<-h.done
	return h.status
}

func (h *handle) terminate() error {
	select {
	case <-h.done:
		return nil
	default:
	}
	h.cancelMu.Lock()
	fn := h.cancel
	h.cancelMu.Unlock()
	if fn == nil {
		return nil
	}
	return fn()
}

// waitHandle implements Backend.Wait for the built-in backends.
func waitHandle(exec Execution) ExitStatus {
	h, ok := exec.(*handle)
	if !ok || h == nil {
		return types.UnknownExit()
	}
	return h.wait()
}

// cancelHandle implements Backend.Cancel for the built-in backends.
func cancelHandle(exec Execution) error {
	h, ok := exec.(*handle)
	if !ok || h == nil {
		return ErrUnknownExecution
	}
	return h.terminate()
}
