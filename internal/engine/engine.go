// SPDX-License-Identifier: MPL-2.0

package engine

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/devtask/devtask/internal/backend"
	"github.com/devtask/devtask/internal/catalog"
	"github.com/devtask/devtask/internal/logging"
	"github.com/devtask/devtask/internal/progress"
	"github.com/devtask/devtask/pkg/types"
)

type (
	// Engine plans and executes commands from a catalog source.
	Engine struct {
		source  catalog.Source
		adapter *backend.Adapter
		logger  *log.Logger
		buffer  int
		relay   bool
	}

	// Option configures an Engine.
	Option func(*Engine)

	// PlannedRun is a resolved top-level command bound to the catalog
	// snapshot it was resolved against.
	PlannedRun struct {
		Plan    Plan
		Catalog *catalog.Catalog
	}
)

// WithLogger sets the engine logger. Defaults to the logger carried by the
// context of each call, or a discarding logger.
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithBuffer sets the delivery buffer of each run's message channel.
func WithBuffer(n int) Option {
	return func(e *Engine) { e.buffer = n }
}

// WithOutputRelay forwards every line printed by a leaf to the run's
// progress stream.
func WithOutputRelay(enabled bool) Option {
	return func(e *Engine) { e.relay = enabled }
}

// New creates an Engine.
func New(source catalog.Source, adapter *backend.Adapter, opts ...Option) *Engine {
	e := &Engine{source: source, adapter: adapter, buffer: 64}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) loggerFor(ctx context.Context) *log.Logger {
	if e.logger != nil {
		return e.logger
	}
	return logging.FromContext(ctx)
}

// Catalog fetches and builds a fresh catalog snapshot.
func (e *Engine) Catalog(ctx context.Context) (*catalog.Catalog, error) {
	raw, err := e.source.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return catalog.Build(raw), nil
}

// ListRunnableCommands returns every runnable command, leaves first.
func (e *Engine) ListRunnableCommands(ctx context.Context) ([]catalog.Summary, error) {
	cat, err := e.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	return cat.Summaries(), nil
}

// Plan fetches the catalog once and resolves ref, which is a bare id or a
// "composite:<id>" reference. An unknown id is not an error: it yields a
// PlanNotFound plan that fails when executed.
func (e *Engine) Plan(ctx context.Context, ref string) (*PlannedRun, error) {
	cat, err := e.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	return &PlannedRun{Plan: ResolveReference(cat, ref), Catalog: cat}, nil
}

// Execute starts planned in the background and returns its handle.
// Cancelling ctx cancels the run.
func (e *Engine) Execute(ctx context.Context, planned *PlannedRun) *Run {
	r := newRun(planned.Plan.ID, e.adapter, e.loggerFor(ctx), e.buffer)
	x := &executor{run: r, cat: planned.Catalog, adapter: e.adapter, relay: e.relay}

	stop := r.watchContext(ctx)
	go func() {
		defer stop()
		x.execute(ctx, planned.Plan)
	}()
	return r
}

// Run plans and executes ref. It never fails: a catalog that cannot be
// fetched produces a run that reports the error and ends with failure.
func (e *Engine) Run(ctx context.Context, ref string) *Run {
	planned, err := e.Plan(ctx, ref)
	if err != nil {
		id, _ := catalog.ParseReference(ref)
		return e.failedRun(ctx, id, fmt.Errorf("failed to load command catalog: %w", err))
	}
	return e.Execute(ctx, planned)
}

func (e *Engine) failedRun(ctx context.Context, id catalog.CommandID, err error) *Run {
	r := newRun(id, e.adapter, e.loggerFor(ctx), e.buffer)
	go func() {
		r.state.Store(int32(RunRunning))
		r.emit(progress.Event{Kind: progress.RunStarted, CommandID: id})
		r.recordErr(err)
		r.emit(progress.Event{Kind: progress.RunFailed, CommandID: id, Err: err})
		r.emit(progress.Event{Kind: progress.RunFinished, CommandID: id})
		r.code = types.ExitFailure
		r.state.Store(int32(RunFailed))
		r.stream.Close(r.code)
		close(r.done)
	}()
	return r
}
