// SPDX-License-Identifier: MPL-2.0

package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func startWatcher(t *testing.T, cfg Config) (*Watcher, <-chan []string) {
	t.Helper()

	changes := make(chan []string, 8)
	cfg.Debounce = 50 * time.Millisecond
	cfg.OnChange = func(_ context.Context, changed []string) error {
		changes <- changed
		return nil
	}
	w, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-errCh; err != nil {
			t.Errorf("Run() error = %v", err)
		}
	})
	return w, changes
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func waitChange(t *testing.T, changes <-chan []string) []string {
	t.Helper()
	select {
	case changed := <-changes:
		return changed
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a change callback")
		return nil
	}
}

func TestWatcherReportsChanges(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, changes := startWatcher(t, Config{BaseDir: dir})

	writeFile(t, filepath.Join(dir, "a.txt"))
	writeFile(t, filepath.Join(dir, "b.txt"))

	var seen []string
	for !slices.Contains(seen, "a.txt") || !slices.Contains(seen, "b.txt") {
		seen = append(seen, waitChange(t, changes)...)
	}
}

func TestWatcherPatternsAndIgnores(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, changes := startWatcher(t, Config{
		BaseDir:  dir,
		Patterns: []string{"**/*.yaml"},
		Ignore:   []string{"**/skip.yaml"},
	})

	writeFile(t, filepath.Join(dir, "notes.txt"))
	writeFile(t, filepath.Join(dir, "skip.yaml"))
	writeFile(t, filepath.Join(dir, "devfile.yaml"))

	changed := waitChange(t, changes)
	if !slices.Equal(changed, []string{"devfile.yaml"}) {
		t.Errorf("changed = %v, want [devfile.yaml]", changed)
	}
}

func TestWatcherFollowsNewDirectories(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, changes := startWatcher(t, Config{BaseDir: dir, Patterns: []string{"sub/**"}})

	sub := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	// Give the watcher a moment to register the new directory.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, filepath.Join(sub, "inner.txt"))

	var seen []string
	for !slices.Contains(seen, "sub/inner.txt") {
		seen = append(seen, waitChange(t, changes)...)
	}
}

func TestWatcherSkipsIgnoredTrees(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	git := filepath.Join(dir, ".git")
	if err := os.Mkdir(git, 0o755); err != nil {
		t.Fatal(err)
	}
	_, changes := startWatcher(t, Config{BaseDir: dir})

	writeFile(t, filepath.Join(git, "index"))
	select {
	case changed := <-changes:
		t.Errorf("ignored change reported: %v", changed)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcherRunTwice(t *testing.T) {
	t.Parallel()

	w, err := New(Config{BaseDir: t.TempDir()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for !w.started.Load() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if err := w.Run(ctx); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Run() = %v, want ErrAlreadyRunning", err)
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run() = %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "zero value", cfg: Config{}},
		{name: "valid globs", cfg: Config{Patterns: []string{"**/*.go"}, Ignore: []string{"vendor/**"}}},
		{name: "bad pattern", cfg: Config{Patterns: []string{"[abc"}}, wantErr: true},
		{name: "bad ignore", cfg: Config{Ignore: []string{"{a,b"}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			var pe *InvalidPatternError
			if tt.wantErr && !errors.As(err, &pe) {
				t.Errorf("error %v is not an InvalidPatternError", err)
			}
		})
	}
}

func TestNewRejectsInvalidPattern(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{BaseDir: t.TempDir(), Patterns: []string{"[x"}}); err == nil {
		t.Fatal("New() should reject an invalid pattern")
	}
}
