// SPDX-License-Identifier: MPL-2.0

package engine

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/devtask/devtask/internal/backend"
	"github.com/devtask/devtask/internal/catalog"
	"github.com/devtask/devtask/internal/progress"
	"github.com/devtask/devtask/pkg/types"
)

type (
	// script tells fakeBackend how the execution of one shell line behaves.
	script struct {
		status types.ExitStatus
		// block keeps the execution running until it is cancelled.
		block bool
		// after delays completion until the execution of that line finished.
		after    string
		startErr error
		panics   bool
		output   []string
	}

	fakeBackend struct {
		mu        sync.Mutex
		scripts   map[string]script
		started   []string
		cancelled []string
		finished  map[string]chan struct{}
		seq       int
	}

	fakeExecution struct {
		id     string
		line   string
		cancel chan struct{}
		once   sync.Once
		done   chan struct{}
		status types.ExitStatus
	}
)

func newFakeBackend(scripts map[string]script) *fakeBackend {
	return &fakeBackend{scripts: scripts, finished: make(map[string]chan struct{})}
}

func (e *fakeExecution) ID() string { return e.id }

func (f *fakeBackend) finishedCh(line string) chan struct{} {
	ch, ok := f.finished[line]
	if !ok {
		ch = make(chan struct{})
		f.finished[line] = ch
	}
	return ch
}

func (f *fakeBackend) Start(_ context.Context, req backend.Request) (backend.Execution, error) {
	f.mu.Lock()
	sc := f.scripts[req.ShellLine]
	if sc.panics {
		f.mu.Unlock()
		panic("backend exploded")
	}
	if sc.startErr != nil {
		f.mu.Unlock()
		return nil, sc.startErr
	}
	f.seq++
	exec := &fakeExecution{
		id:     fmt.Sprintf("exec-%d", f.seq),
		line:   req.ShellLine,
		cancel: make(chan struct{}),
		done:   make(chan struct{}),
	}
	f.started = append(f.started, req.ShellLine)
	mine := f.finishedCh(req.ShellLine)
	var after chan struct{}
	if sc.after != "" {
		after = f.finishedCh(sc.after)
	}
	f.mu.Unlock()

	go func() {
		for _, line := range sc.output {
			if req.Output != nil {
				req.Output(req.Component, line)
			}
		}
		status := sc.status
		switch {
		case sc.block:
			<-exec.cancel
			status = types.UnknownExit()
		case after != nil:
			select {
			case <-after:
			case <-exec.cancel:
				status = types.UnknownExit()
			}
		}
		exec.status = status
		close(exec.done)
		close(mine)
	}()
	return exec, nil
}

func (f *fakeBackend) Wait(exec backend.Execution) backend.ExitStatus {
	fe := exec.(*fakeExecution)
	<-fe.done
	return fe.status
}

func (f *fakeBackend) Cancel(exec backend.Execution) error {
	fe := exec.(*fakeExecution)
	fe.once.Do(func() {
		f.mu.Lock()
		f.cancelled = append(f.cancelled, fe.line)
		f.mu.Unlock()
		close(fe.cancel)
	})
	return nil
}

func (f *fakeBackend) startedLines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.started)
}

func (f *fakeBackend) cancelledLines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := slices.Clone(f.cancelled)
	slices.Sort(out)
	return out
}

// leaf declares a leaf whose shell line equals its id.
func leaf(id string) catalog.RawCommand {
	return catalog.RawCommand{ID: id, Exec: &catalog.ExecBlock{CommandLine: id, Component: "tools", WorkingDir: "/w"}}
}

func seq(id string, children ...string) catalog.RawCommand {
	return catalog.RawCommand{ID: id, Composite: &catalog.CompositeBlock{Commands: children}}
}

func par(id string, children ...string) catalog.RawCommand {
	return catalog.RawCommand{ID: id, Composite: &catalog.CompositeBlock{Commands: children, Parallel: true}}
}

func newTestEngine(fake *fakeBackend, raw ...catalog.RawCommand) *Engine {
	return New(catalog.StaticSource(raw), backend.NewAdapter(fake), WithBuffer(0))
}

// runAndCollect runs ref to completion and returns its lines and status.
func runAndCollect(t *testing.T, e *Engine, ref string) (*Run, []string, types.ExitCode) {
	t.Helper()

	r := e.Run(context.Background(), ref)
	type result struct {
		lines []string
		code  types.ExitCode
	}
	ch := make(chan result, 1)
	go func() {
		lines, code := progress.Collect(r.Messages())
		ch <- result{lines, code}
	}()

	select {
	case res := <-ch:
		if got := r.Wait(); got != res.code {
			t.Errorf("Wait() = %d, stream terminal = %d", got, res.code)
		}
		return r, res.lines, res.code
	case <-time.After(10 * time.Second):
		t.Fatalf("run %q did not finish", ref)
		return nil, nil, 0
	}
}

func count(lines []string, want string) int {
	n := 0
	for _, l := range lines {
		if l == want {
			n++
		}
	}
	return n
}
