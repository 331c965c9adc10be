// SPDX-License-Identifier: MPL-2.0

package engine

import "github.com/devtask/devtask/internal/catalog"

const (
	// RunIdle is the state of a run that has not started traversal.
	RunIdle RunState = iota
	RunRunning
	RunSucceeded
	RunFailed
	// RunCancelled is terminal and reported with a failure status.
	RunCancelled
)

const (
	NodePending NodeState = iota
	NodeRunning
	NodeSucceeded
	NodeFailed
	NodeCycleRejected
	NodeNotFound
)

type (
	// RunState is the lifecycle of one top-level invocation.
	RunState int32

	// NodeState is the outcome of one visit of a command during a run.
	NodeState int

	// NodeVisit records one visit. A command reached along several paths is
	// visited once per path.
	NodeVisit struct {
		ID    catalog.CommandID
		Depth int
		State NodeState
	}

	// Result is what every step of the traversal returns.
	Result struct {
		Failed bool
	}
)

func (s RunState) String() string {
	switch s {
	case RunIdle:
		return "idle"
	case RunRunning:
		return "running"
	case RunSucceeded:
		return "succeeded"
	case RunFailed:
		return "failed"
	case RunCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether the run has finished.
func (s RunState) IsTerminal() bool {
	return s == RunSucceeded || s == RunFailed || s == RunCancelled
}

func (s NodeState) String() string {
	switch s {
	case NodePending:
		return "pending"
	case NodeRunning:
		return "running"
	case NodeSucceeded:
		return "succeeded"
	case NodeFailed:
		return "failed"
	case NodeCycleRejected:
		return "cycle-rejected"
	case NodeNotFound:
		return "not-found"
	default:
		return "unknown"
	}
}

func resultOf(state NodeState) Result {
	return Result{Failed: state != NodeSucceeded}
}

func stateOf(failed bool) NodeState {
	if failed {
		return NodeFailed
	}
	return NodeSucceeded
}
