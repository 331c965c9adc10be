// SPDX-License-Identifier: MPL-2.0

package engine

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/devtask/devtask/internal/backend"
	"github.com/devtask/devtask/internal/catalog"
	"github.com/devtask/devtask/internal/progress"
	"github.com/devtask/devtask/pkg/types"
)

// executor walks one plan for one run against one catalog snapshot.
type executor struct {
	run     *Run
	cat     *catalog.Catalog
	adapter *backend.Adapter
	relay   bool
}

// execute drives the run from Idle to a terminal state. It always emits
// exactly one RunFinished event and closes the stream once.
func (x *executor) execute(ctx context.Context, plan Plan) {
	r := x.run
	failed := true

	defer func() {
		if rec := recover(); rec != nil {
			failed = true
			err := fmt.Errorf("unexpected panic: %v", rec)
			r.recordErr(err)
			r.emit(progress.Event{Kind: progress.RunFailed, CommandID: r.command, Err: err})
			r.logger.Error("run panicked", "panic", rec)
		}

		state := RunSucceeded
		switch {
		case r.isCancelled():
			failed = true
			state = RunCancelled
		case failed:
			state = RunFailed
		}

		r.emit(progress.Event{Kind: progress.RunFinished, CommandID: r.command})
		r.code = types.FromFailed(failed)
		r.state.Store(int32(state))
		r.stream.Close(r.code)
		r.logger.Info("run finished", "state", state, "exit", r.code)
		close(r.done)
	}()

	r.state.Store(int32(RunRunning))
	r.logger.Info("run started", "kind", plan.Kind)
	r.emit(progress.Event{Kind: progress.RunStarted, CommandID: r.command, Name: plan.DisplayName()})

	failed = x.runPlan(ctx, plan, NewStack()).Failed
}

// runNode resolves id and runs it, unless id is already being expanded.
func (x *executor) runNode(ctx context.Context, id catalog.CommandID, stack Stack) Result {
	if stack.Contains(id) {
		err := &CycleError{Chain: stack.Chain(id)}
		x.run.recordErr(err)
		x.run.recordVisit(id, stack.Len(), NodeCycleRejected)
		x.run.emit(progress.Event{Kind: progress.CycleDetected, CommandID: id, Chain: err.Chain, Err: err})
		return resultOf(NodeCycleRejected)
	}
	return x.runPlan(ctx, Resolve(x.cat, id), stack)
}

func (x *executor) runPlan(ctx context.Context, plan Plan, stack Stack) Result {
	switch plan.Kind {
	case PlanLeaf:
		return x.runLeaf(ctx, plan.Leaf, stack.Len())
	case PlanComposite:
		res := x.runComposite(ctx, plan.Composite, stack.Push(plan.ID))
		x.run.recordVisit(plan.ID, stack.Len(), stateOf(res.Failed))
		return res
	default:
		err := &DependencyNotFoundError{ID: plan.ID}
		x.run.recordErr(err)
		x.run.recordVisit(plan.ID, stack.Len(), NodeNotFound)
		x.run.emit(progress.Event{Kind: progress.DependencyNotFound, CommandID: plan.ID, Err: err})
		return resultOf(NodeNotFound)
	}
}

// runComposite expands comp with stack already holding comp's id.
func (x *executor) runComposite(ctx context.Context, comp *catalog.CompositeSpec, stack Stack) Result {
	if comp.Parallel {
		return x.runParallel(ctx, comp.Children, stack)
	}
	return x.runSequential(ctx, comp.Children, stack)
}

// runSequential runs every child in order. A failed child marks the parent
// failed but does not stop its siblings; cancellation does.
func (x *executor) runSequential(ctx context.Context, children []catalog.CommandID, stack Stack) Result {
	failed := false
	for _, child := range children {
		if x.run.isCancelled() {
			return Result{Failed: true}
		}
		if x.runNode(ctx, child, stack).Failed {
			failed = true
		}
	}
	return Result{Failed: failed}
}

// runParallel forks every child and joins them all. No child's failure
// cancels its siblings.
func (x *executor) runParallel(ctx context.Context, children []catalog.CommandID, stack Stack) Result {
	if x.run.isCancelled() {
		return Result{Failed: true}
	}

	results := make([]Result, len(children))
	var g errgroup.Group
	for i, child := range children {
		g.Go(func() error {
			results[i] = x.guard(func() Result { return x.runNode(ctx, child, stack) })
			return nil
		})
	}
	_ = g.Wait() // children report failure through results

	for _, res := range results {
		if res.Failed {
			return Result{Failed: true}
		}
	}
	return Result{Failed: false}
}

// guard runs fn on a forked goroutine, turning a panic into a failed branch
// so it cannot escape the run.
func (x *executor) guard(fn func() Result) (res Result) {
	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("unexpected panic: %v", rec)
			x.run.recordErr(err)
			x.run.emit(progress.Event{Kind: progress.RunFailed, CommandID: x.run.command, Err: err})
			x.run.logger.Error("branch panicked", "panic", rec)
			res = Result{Failed: true}
		}
	}()
	return fn()
}

// runLeaf dispatches spec and waits for it.
func (x *executor) runLeaf(ctx context.Context, spec *catalog.LeafSpec, depth int) Result {
	r := x.run
	if r.isCancelled() {
		return Result{Failed: true}
	}

	r.emit(progress.Event{Kind: progress.LeafStarted, CommandID: spec.ID, Name: spec.DisplayName})

	var out backend.OutputFunc
	if x.relay {
		out = func(_ string, line string) {
			r.emit(progress.Event{Kind: progress.Output, CommandID: spec.ID, Text: line})
		}
	}

	exec, err := x.adapter.StartWithOutput(ctx, spec, out)
	if err != nil {
		berr := &BackendError{ID: spec.ID, Err: err}
		r.recordErr(berr)
		r.recordVisit(spec.ID, depth, NodeFailed)
		r.emit(progress.Event{Kind: progress.BackendError, CommandID: spec.ID, Name: spec.DisplayName, Err: err})
		return Result{Failed: true}
	}

	if !r.active.add(exec) {
		// Cancelled between the check above and registration.
		r.terminate(exec)
	}
	status := x.adapter.Await(exec)
	r.active.remove(exec)

	r.emit(progress.Event{Kind: progress.LeafCompleted, CommandID: spec.ID, Name: spec.DisplayName, Status: status})

	state := stateOf(status.Failed())
	if status.Failed() {
		r.recordErr(&LeafFailedError{ID: spec.ID, Status: status})
	}
	r.recordVisit(spec.ID, depth, state)
	return resultOf(state)
}
