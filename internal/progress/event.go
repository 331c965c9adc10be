// SPDX-License-Identifier: MPL-2.0

package progress

import (
	"fmt"
	"strings"

	"github.com/devtask/devtask/internal/catalog"
	"github.com/devtask/devtask/pkg/types"
)

const (
	// RunStarted opens every run.
	RunStarted Kind = iota + 1
	// LeafStarted is emitted right before a leaf is dispatched.
	LeafStarted
	// LeafCompleted carries the leaf's resolved exit status.
	LeafCompleted
	// CycleDetected names the offending chain.
	CycleDetected
	// DependencyNotFound names the missing id.
	DependencyNotFound
	// BackendError reports a leaf that could not be started.
	BackendError
	// RunFailed reports an unexpected failure of the executor itself.
	RunFailed
	// Cancelled is emitted once when the caller terminates the run.
	Cancelled
	// RunFinished closes every run.
	RunFinished
	// Output relays one line printed by a leaf.
	Output
)

type (
	// Kind identifies an event type.
	Kind int

	// Event is one lifecycle notification from the engine.
	Event struct {
		Kind      Kind
		CommandID catalog.CommandID
		// Name is the display name of the command, when known.
		Name   string
		Status types.ExitStatus
		// Chain is the cycle path for CycleDetected.
		Chain []catalog.CommandID
		Err   error
		// Text is the relayed line for Output.
		Text string
	}

	// Sink receives events for one run, then exactly one Close.
	Sink interface {
		Emit(Event)
		Close(types.ExitCode)
	}
)

var kindNames = map[Kind]string{
	RunStarted:         "run-started",
	LeafStarted:        "leaf-started",
	LeafCompleted:      "leaf-completed",
	CycleDetected:      "cycle-detected",
	DependencyNotFound: "dependency-not-found",
	BackendError:       "backend-error",
	RunFailed:          "run-failed",
	Cancelled:          "cancelled",
	RunFinished:        "run-finished",
	Output:             "output",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// IsDiagnostic reports whether the event describes a failure.
func (k Kind) IsDiagnostic() bool {
	switch k {
	case CycleDetected, DependencyNotFound, BackendError, RunFailed:
		return true
	default:
		return false
	}
}

// Line renders the event as one human-readable line, without a trailing newline.
func (e Event) Line() string {
	switch e.Kind {
	case RunStarted:
		return "Task started: " + string(e.CommandID)
	case LeafStarted:
		return "Starting " + e.name()
	case LeafCompleted:
		return fmt.Sprintf("Completed %s (exit code %s)", e.name(), e.Status)
	case CycleDetected:
		return "cycle detected: " + JoinChain(e.Chain)
	case DependencyNotFound:
		return "dependency not found: " + string(e.CommandID)
	case BackendError:
		return fmt.Sprintf("failed to start %s: %v", e.name(), e.Err)
	case RunFailed:
		return fmt.Sprintf("Task failed: %v", e.Err)
	case Cancelled:
		return "Task terminated by user."
	case RunFinished:
		return "Task finished: " + string(e.CommandID)
	case Output:
		return e.Text
	default:
		return e.Kind.String()
	}
}

func (e Event) name() string {
	if e.Name != "" {
		return e.Name
	}
	return string(e.CommandID)
}

// JoinChain renders a cycle path as "A -> B -> A".
func JoinChain(chain []catalog.CommandID) string {
	parts := make([]string, len(chain))
	for i, id := range chain {
		parts[i] = string(id)
	}
	return strings.Join(parts, " -> ")
}
