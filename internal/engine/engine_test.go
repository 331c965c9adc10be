// SPDX-License-Identifier: MPL-2.0

package engine

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/devtask/devtask/internal/backend"
	"github.com/devtask/devtask/internal/catalog"
	"github.com/devtask/devtask/internal/progress"
	"github.com/devtask/devtask/pkg/types"
)

func TestRun_LeafExitStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		status   types.ExitStatus
		wantLine string
		wantCode types.ExitCode
	}{
		{"exit zero", types.KnownExit(0), "Completed build (exit code 0)", types.ExitSuccess},
		{"exit two", types.KnownExit(2), "Completed build (exit code 2)", types.ExitFailure},
		{"unknown", types.UnknownExit(), "Completed build (exit code unknown)", types.ExitSuccess},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fake := newFakeBackend(map[string]script{"build": {status: tt.status}})
			e := newTestEngine(fake, leaf("build"))

			r, lines, code := runAndCollect(t, e, "build")
			want := []string{"Task started: build", "Starting build", tt.wantLine, "Task finished: build"}
			if !slices.Equal(lines, want) {
				t.Errorf("lines = %q, want %q", lines, want)
			}
			if code != tt.wantCode {
				t.Errorf("code = %d, want %d", code, tt.wantCode)
			}
			if tt.wantCode == types.ExitFailure && !errors.Is(r.Err(), ErrLeafFailed) {
				t.Errorf("Err() = %v, want ErrLeafFailed", r.Err())
			}
		})
	}
}

func TestRun_SequentialContinuesAfterFailure(t *testing.T) {
	t.Parallel()

	fake := newFakeBackend(map[string]script{
		"l1": {status: types.KnownExit(1)},
		"l2": {status: types.KnownExit(0)},
	})
	e := newTestEngine(fake, leaf("l1"), leaf("l2"), seq("all", "l1", "l2"))

	r, lines, code := runAndCollect(t, e, "all")
	want := []string{
		"Task started: all",
		"Starting l1",
		"Completed l1 (exit code 1)",
		"Starting l2",
		"Completed l2 (exit code 0)",
		"Task finished: all",
	}
	if !slices.Equal(lines, want) {
		t.Errorf("lines = %q, want %q", lines, want)
	}
	if code != types.ExitFailure {
		t.Errorf("code = %d, want 1", code)
	}
	if r.State() != RunFailed {
		t.Errorf("State() = %s, want failed", r.State())
	}
}

func TestRun_ParallelCompletionOrder(t *testing.T) {
	t.Parallel()

	fake := newFakeBackend(map[string]script{
		// slow finishes only after fast has finished.
		"slow": {status: types.KnownExit(0), after: "fast"},
		"fast": {status: types.KnownExit(1)},
	})
	e := newTestEngine(fake, leaf("slow"), leaf("fast"), par("both", "slow", "fast"))

	_, lines, code := runAndCollect(t, e, "both")
	if code != types.ExitFailure {
		t.Errorf("code = %d, want 1", code)
	}

	fastDone := slices.Index(lines, "Completed fast (exit code 1)")
	slowDone := slices.Index(lines, "Completed slow (exit code 0)")
	if fastDone < 0 || slowDone < 0 {
		t.Fatalf("missing completion lines: %q", lines)
	}
	if fastDone > slowDone {
		t.Errorf("completion lines not in completion order: %q", lines)
	}
	if lines[len(lines)-1] != "Task finished: both" {
		t.Errorf("last line = %q", lines[len(lines)-1])
	}
}

func TestRun_CycleDetected(t *testing.T) {
	t.Parallel()

	fake := newFakeBackend(map[string]script{
		"x": {status: types.KnownExit(0)},
		"y": {status: types.KnownExit(0)},
	})
	e := newTestEngine(fake, leaf("x"), leaf("y"), seq("A", "B", "x"), seq("B", "A", "y"))

	r, lines, code := runAndCollect(t, e, "A")
	if code != types.ExitFailure {
		t.Errorf("code = %d, want 1", code)
	}
	if n := count(lines, "cycle detected: A -> B -> A"); n != 1 {
		t.Errorf("cycle line count = %d, lines = %q", n, lines)
	}
	if got := fake.startedLines(); !slices.Equal(got, []string{"y", "x"}) {
		t.Errorf("started = %q, want each leaf once", got)
	}
	if !errors.Is(r.Err(), ErrCycleDetected) {
		t.Errorf("Err() = %v, want ErrCycleDetected", r.Err())
	}
	var cycleErr *CycleError
	if !errors.As(r.Err(), &cycleErr) || progress.JoinChain(cycleErr.Chain) != "A -> B -> A" {
		t.Errorf("CycleError chain = %v", cycleErr)
	}
}

func TestRun_SelfReference(t *testing.T) {
	t.Parallel()

	e := newTestEngine(newFakeBackend(nil), par("loop", "loop"))
	_, lines, code := runAndCollect(t, e, "loop")
	if code != types.ExitFailure || count(lines, "cycle detected: loop -> loop") != 1 {
		t.Errorf("code = %d, lines = %q", code, lines)
	}
}

func TestRun_DependencyNotFound(t *testing.T) {
	t.Parallel()

	fake := newFakeBackend(map[string]script{"ok": {status: types.KnownExit(0)}})
	e := newTestEngine(fake, leaf("ok"), par("all", "ghost", "ok"))

	r, lines, code := runAndCollect(t, e, "all")
	if code != types.ExitFailure {
		t.Errorf("code = %d, want 1", code)
	}
	if count(lines, "dependency not found: ghost") != 1 {
		t.Errorf("missing diagnostic in %q", lines)
	}
	if count(lines, "Completed ok (exit code 0)") != 1 {
		t.Errorf("sibling did not run: %q", lines)
	}
	if !errors.Is(r.Err(), ErrDependencyNotFound) {
		t.Errorf("Err() = %v", r.Err())
	}
}

func TestRun_TopLevelNotFound(t *testing.T) {
	t.Parallel()

	fake := newFakeBackend(nil)
	e := newTestEngine(fake, leaf("build"))

	for _, ref := range []string{"nope", "composite:build"} {
		_, lines, code := runAndCollect(t, e, ref)
		if code != types.ExitFailure {
			t.Errorf("%s: code = %d", ref, code)
		}
		if !slices.ContainsFunc(lines, func(l string) bool { return strings.HasPrefix(l, "dependency not found: ") }) {
			t.Errorf("%s: lines = %q", ref, lines)
		}
	}
	if len(fake.startedLines()) != 0 {
		t.Errorf("nothing should have started: %q", fake.startedLines())
	}
}

func TestRun_CompositeReference(t *testing.T) {
	t.Parallel()

	fake := newFakeBackend(map[string]script{"l": {status: types.KnownExit(0)}})
	e := newTestEngine(fake, leaf("l"), seq("ci", "l"))

	_, lines, code := runAndCollect(t, e, "composite:ci")
	if code != types.ExitSuccess || lines[0] != "Task started: ci" {
		t.Errorf("code = %d, lines = %q", code, lines)
	}
}

func TestRun_BackendStartError(t *testing.T) {
	t.Parallel()

	fake := newFakeBackend(map[string]script{
		"broken": {startErr: errors.New("dial tcp: connection refused")},
		"fine":   {status: types.KnownExit(0)},
	})
	e := newTestEngine(fake, leaf("broken"), leaf("fine"), seq("all", "broken", "fine"))

	r, lines, code := runAndCollect(t, e, "all")
	if code != types.ExitFailure {
		t.Errorf("code = %d", code)
	}
	if count(lines, "failed to start broken: dial tcp: connection refused") != 1 {
		t.Errorf("lines = %q", lines)
	}
	if count(lines, "Completed fine (exit code 0)") != 1 {
		t.Errorf("sibling should still run: %q", lines)
	}
	if !errors.Is(r.Err(), ErrBackend) {
		t.Errorf("Err() = %v, want ErrBackend", r.Err())
	}
}

func TestRun_PanicIsContained(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  []catalog.RawCommand
	}{
		{"sequential", []catalog.RawCommand{leaf("boom"), seq("all", "boom")}},
		{"parallel", []catalog.RawCommand{leaf("boom"), par("all", "boom")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fake := newFakeBackend(map[string]script{"boom": {panics: true}})
			e := newTestEngine(fake, tt.raw...)

			_, lines, code := runAndCollect(t, e, "all")
			if code != types.ExitFailure {
				t.Errorf("code = %d", code)
			}
			if count(lines, "Task failed: unexpected panic: backend exploded") != 1 {
				t.Errorf("lines = %q", lines)
			}
			if count(lines, "Task finished: all") != 1 {
				t.Errorf("finished marker missing: %q", lines)
			}
		})
	}
}

func TestRun_Cancel(t *testing.T) {
	t.Parallel()

	fake := newFakeBackend(map[string]script{
		"a":     {block: true},
		"b":     {block: true},
		"later": {status: types.KnownExit(0)},
	})
	e := newTestEngine(fake, leaf("a"), leaf("b"), leaf("later"), par("pair", "a", "b"), seq("all", "pair", "later"))

	r := e.Run(context.Background(), "all")
	collected := make(chan []progress.Message, 1)
	go func() {
		var msgs []progress.Message
		for m := range r.Messages() {
			msgs = append(msgs, m)
		}
		collected <- msgs
	}()

	deadline := time.Now().Add(5 * time.Second)
	for r.active.len() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("leaves never became active")
		}
		time.Sleep(5 * time.Millisecond)
	}

	r.Cancel()
	r.Cancel()

	select {
	case <-r.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish after Cancel()")
	}
	msgs := <-collected

	if r.Wait() != types.ExitFailure {
		t.Errorf("Wait() = %d, want 1", r.Wait())
	}
	if r.State() != RunCancelled {
		t.Errorf("State() = %s, want cancelled", r.State())
	}
	if got := fake.cancelledLines(); !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("cancelled = %q, want [a b]", got)
	}
	if slices.Contains(fake.startedLines(), "later") {
		t.Error("no leaf may start after cancellation")
	}

	terminal := 0
	var lines []string
	for _, m := range msgs {
		if m.Done {
			terminal++
			continue
		}
		lines = append(lines, strings.TrimSuffix(m.Line, "\n"))
	}
	if terminal != 1 || !msgs[len(msgs)-1].Done {
		t.Errorf("want exactly one terminal message at the end, got %d", terminal)
	}
	if count(lines, "Task terminated by user.") != 1 || count(lines, "Task finished: all") != 1 {
		t.Errorf("lines = %q", lines)
	}
	if !errors.Is(r.Err(), ErrCancelled) {
		t.Errorf("Err() = %v, want ErrCancelled", r.Err())
	}
}

func TestRun_ContextCancellation(t *testing.T) {
	t.Parallel()

	fake := newFakeBackend(map[string]script{"wait": {block: true}})
	e := newTestEngine(fake, leaf("wait"))

	ctx, cancel := context.WithCancel(context.Background())
	r := e.Run(ctx, "wait")
	go progress.Collect(r.Messages())

	deadline := time.Now().Add(5 * time.Second)
	for r.active.len() < 1 {
		if time.Now().After(deadline) {
			t.Fatal("leaf never became active")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case <-r.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish after context cancellation")
	}
	if r.Wait() != types.ExitFailure || r.State() != RunCancelled {
		t.Errorf("Wait() = %d, State() = %s", r.Wait(), r.State())
	}
}

func TestRun_OutputRelay(t *testing.T) {
	t.Parallel()

	fake := newFakeBackend(map[string]script{"say": {status: types.KnownExit(0), output: []string{"hello", "world"}}})
	e := New(catalog.StaticSource{leaf("say")}, backend.NewAdapter(fake), WithOutputRelay(true))

	_, lines, _ := runAndCollect(t, e, "say")
	want := []string{"Task started: say", "Starting say", "hello", "world", "Completed say (exit code 0)", "Task finished: say"}
	if !slices.Equal(lines, want) {
		t.Errorf("lines = %q, want %q", lines, want)
	}
}

func TestRun_CatalogFetchError(t *testing.T) {
	t.Parallel()

	src := catalog.SourceFunc(func(context.Context) ([]catalog.RawCommand, error) {
		return nil, errors.New("disk on fire")
	})
	e := New(src, nil)

	r, lines, code := runAndCollect(t, e, "build")
	if code != types.ExitFailure || r.State() != RunFailed {
		t.Errorf("code = %d, state = %s", code, r.State())
	}
	want := []string{
		"Task started: build",
		"Task failed: failed to load command catalog: disk on fire",
		"Task finished: build",
	}
	if !slices.Equal(lines, want) {
		t.Errorf("lines = %q, want %q", lines, want)
	}
}

func TestRun_Visits(t *testing.T) {
	t.Parallel()

	fake := newFakeBackend(map[string]script{"l": {status: types.KnownExit(0)}})
	e := newTestEngine(fake, leaf("l"), seq("inner", "l", "gone"), seq("outer", "inner"))

	r, _, _ := runAndCollect(t, e, "outer")
	want := []NodeVisit{
		{ID: "l", Depth: 2, State: NodeSucceeded},
		{ID: "gone", Depth: 2, State: NodeNotFound},
		{ID: "inner", Depth: 1, State: NodeFailed},
		{ID: "outer", Depth: 0, State: NodeFailed},
	}
	if got := r.Visits(); !slices.Equal(got, want) {
		t.Errorf("Visits() = %+v, want %+v", got, want)
	}
}

func TestListRunnableCommands(t *testing.T) {
	t.Parallel()

	e := newTestEngine(newFakeBackend(nil))
	got, err := e.ListRunnableCommands(context.Background())
	if err != nil || len(got) != 0 {
		t.Errorf("empty catalog listing = %v, %v", got, err)
	}

	e = newTestEngine(newFakeBackend(nil),
		seq("all", "a"),
		leaf("a"),
		leaf("init-ssh-agent-command-0"),
		catalog.RawCommand{ID: "imported", Attributes: map[string]any{catalog.ImportedByAttribute: "lib"}, Exec: &catalog.ExecBlock{CommandLine: "x"}},
	)
	got, err = e.ListRunnableCommands(context.Background())
	if err != nil {
		t.Fatalf("ListRunnableCommands() error: %v", err)
	}
	want := []catalog.Summary{
		{ID: "a", DisplayName: "a", Kind: catalog.KindLeaf},
		{ID: "all", DisplayName: "all", Kind: catalog.KindComposite},
	}
	if !slices.Equal(got, want) {
		t.Errorf("ListRunnableCommands() = %+v, want %+v", got, want)
	}
}

func TestPlanThenExecute(t *testing.T) {
	t.Parallel()

	fetches := 0
	src := catalog.SourceFunc(func(context.Context) ([]catalog.RawCommand, error) {
		fetches++
		return []catalog.RawCommand{leaf("l"), seq("ci", "l")}, nil
	})
	fake := newFakeBackend(map[string]script{"l": {status: types.KnownExit(0)}})
	e := newTestEngine(fake)
	e.source = src

	planned, err := e.Plan(context.Background(), "ci")
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	if planned.Plan.Kind != PlanComposite {
		t.Fatalf("Plan kind = %s", planned.Plan.Kind)
	}

	r := e.Execute(context.Background(), planned)
	_, code := progress.Collect(r.Messages())
	if code != types.ExitSuccess {
		t.Errorf("code = %d", code)
	}
	if fetches != 1 {
		t.Errorf("catalog fetched %d times, want 1", fetches)
	}
}
