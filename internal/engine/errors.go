// SPDX-License-Identifier: MPL-2.0

package engine

import (
	"errors"
	"fmt"

	"github.com/devtask/devtask/internal/catalog"
	"github.com/devtask/devtask/internal/progress"
	"github.com/devtask/devtask/pkg/types"
)

var (
	// ErrCycleDetected is the sentinel error wrapped by CycleError.
	ErrCycleDetected = errors.New("cycle detected")
	// ErrDependencyNotFound is the sentinel error wrapped by DependencyNotFoundError.
	ErrDependencyNotFound = errors.New("dependency not found")
	// ErrLeafFailed is the sentinel error wrapped by LeafFailedError.
	ErrLeafFailed = errors.New("leaf failed")
	// ErrBackend is the sentinel error wrapped by BackendError.
	ErrBackend = errors.New("backend error")
	// ErrCancelled is reported for runs terminated by the caller.
	ErrCancelled = errors.New("run cancelled")
)

type (
	// CycleError reports a composite reached again along its own expansion path.
	CycleError struct {
		// Chain starts at the top-level command and ends with the repeated id.
		Chain []catalog.CommandID
	}

	// DependencyNotFoundError reports a child id absent from the catalog.
	DependencyNotFoundError struct {
		ID catalog.CommandID
	}

	// LeafFailedError reports a leaf that exited with a known non-zero code.
	LeafFailedError struct {
		ID     catalog.CommandID
		Status types.ExitStatus
	}

	// BackendError reports a leaf the backend could not start.
	BackendError struct {
		ID  catalog.CommandID
		Err error
	}
)

func (e *CycleError) Error() string {
	return "cycle detected: " + progress.JoinChain(e.Chain)
}

func (e *CycleError) Unwrap() error { return ErrCycleDetected }

func (e *DependencyNotFoundError) Error() string {
	return "dependency not found: " + string(e.ID)
}

func (e *DependencyNotFoundError) Unwrap() error { return ErrDependencyNotFound }

func (e *LeafFailedError) Error() string {
	return fmt.Sprintf("command %s failed (exit code %s)", e.ID, e.Status)
}

func (e *LeafFailedError) Unwrap() error { return ErrLeafFailed }

func (e *BackendError) Error() string {
	return fmt.Sprintf("failed to start %s: %v", e.ID, e.Err)
}

// Unwrap exposes both the sentinel and the backend's own error.
func (e *BackendError) Unwrap() []error { return []error{ErrBackend, e.Err} }
