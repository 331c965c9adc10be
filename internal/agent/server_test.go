// SPDX-License-Identifier: MPL-2.0

package agent

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/devtask/devtask/internal/backend"
	"github.com/devtask/devtask/internal/testutil"
)

const testToken = "test-token"

func startTestServer(t *testing.T) *Server {
	t.Helper()
	srv := newTestServer(t, func(c *Config) { c.StaticToken = testToken })
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(testutil.DeferStop(t, srv))
	return srv
}

func TestServerStartStop(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, nil)
	if srv.State() != StateCreated {
		t.Errorf("State() = %s, want created", srv.State())
	}
	if srv.Address() != "" {
		t.Error("Address() should be empty before Start")
	}

	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !srv.IsRunning() {
		t.Errorf("State() = %s, want running", srv.State())
	}
	if srv.Port() == 0 {
		t.Error("Port() should be assigned")
	}

	if err := srv.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if srv.State() != StateStopped {
		t.Errorf("State() = %s, want stopped", srv.State())
	}
	if err := srv.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
	if err := srv.Wait(); err != nil {
		t.Errorf("Wait() error = %v", err)
	}
}

func TestServerDoubleStart(t *testing.T) {
	t.Parallel()

	srv := startTestServer(t)
	if err := srv.Start(context.Background()); err == nil {
		t.Error("second Start() should fail")
	}
}

func TestServerStopBeforeStart(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, nil)
	if err := srv.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if srv.State() != StateStopped {
		t.Errorf("State() = %s, want stopped", srv.State())
	}
	if err := srv.Start(context.Background()); err == nil {
		t.Error("Start() after Stop() should fail")
	}
}

func TestServerStartCancelledContext(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := srv.Start(ctx); err == nil {
		t.Fatal("Start() with cancelled context should fail")
	}
	if srv.State() != StateFailed {
		t.Errorf("State() = %s, want failed", srv.State())
	}
	if err := srv.Wait(); err == nil {
		t.Error("Wait() should report the failure")
	}
}

func TestConnectionInfo(t *testing.T) {
	t.Parallel()

	stopped := newTestServer(t, nil)
	if _, err := stopped.ConnectionInfo("x"); err == nil {
		t.Error("ConnectionInfo() on a stopped agent should fail")
	}

	srv := startTestServer(t)
	info, err := srv.ConnectionInfo("cli")
	if err != nil {
		t.Fatalf("ConnectionInfo() error = %v", err)
	}
	if info.Address != srv.Address() {
		t.Errorf("Address = %q, want %q", info.Address, srv.Address())
	}
	if info.User != backend.DefaultSSHUser {
		t.Errorf("User = %q", info.User)
	}
	if _, ok := srv.ValidateToken(info.Token); !ok {
		t.Error("issued token should validate")
	}
}

type collected struct {
	mu    sync.Mutex
	lines []string
}

func (c *collected) add(_, line string) {
	c.mu.Lock()
	c.lines = append(c.lines, line)
	c.mu.Unlock()
}

func (c *collected) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

func sshBackendFor(srv *Server, token string) *backend.SSHBackend {
	return &backend.SSHBackend{
		Endpoints: map[string]backend.Endpoint{
			"api": {Address: srv.Address(), Token: token},
		},
		DialTimeout: 5 * time.Second,
	}
}

func TestAgentRunsCommandsOverSSH(t *testing.T) {
	t.Parallel()

	srv := startTestServer(t)
	workDir := t.TempDir()

	tests := []struct {
		name     string
		line     string
		dir      string
		wantCode int
		wantOut  []string
	}{
		{name: "success", line: "echo hello", wantCode: 0, wantOut: []string{"hello"}},
		{name: "exit code", line: "exit 3", wantCode: 3},
		{name: "working directory", line: "pwd", dir: workDir, wantCode: 0, wantOut: []string{workDir}},
		{name: "stderr is relayed", line: "echo oops >&2; exit 1", wantCode: 1, wantOut: []string{"oops"}},
		{name: "missing directory", line: "true", dir: "/nonexistent/devtask", wantCode: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			out := &collected{}
			b := sshBackendFor(srv, testToken)
			exec, err := b.Start(context.Background(), backend.Request{
				Component: "api",
				ShellLine: tt.line,
				WorkDir:   tt.dir,
				Output:    out.add,
			})
			if err != nil {
				t.Fatalf("Start() error = %v", err)
			}
			status := b.Wait(exec)
			if !status.Known {
				t.Fatalf("status = %s, want a known code", status)
			}
			if int(status.Code) != tt.wantCode {
				t.Errorf("exit code = %d, want %d", status.Code, tt.wantCode)
			}
			if tt.wantOut != nil {
				if got := out.snapshot(); strings.Join(got, "\n") != strings.Join(tt.wantOut, "\n") {
					t.Errorf("output = %q, want %q", got, tt.wantOut)
				}
			}
		})
	}
}

func TestAgentRejectsBadToken(t *testing.T) {
	t.Parallel()

	srv := startTestServer(t)
	b := sshBackendFor(srv, "wrong")
	if _, err := b.Start(context.Background(), backend.Request{Component: "api", ShellLine: "true"}); err == nil {
		t.Fatal("Start() with a bad token should fail")
	}
}

func TestAgentCancel(t *testing.T) {
	t.Parallel()

	srv := startTestServer(t)
	b := sshBackendFor(srv, testToken)
	exec, err := b.Start(context.Background(), backend.Request{Component: "api", ShellLine: "sleep 30"})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if err := b.Cancel(exec); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}

	done := make(chan backend.ExitStatus, 1)
	go func() { done <- b.Wait(exec) }()
	select {
	case status := <-done:
		if status.Known && status.Code == 0 {
			t.Errorf("cancelled command reported success")
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Wait() did not return after Cancel()")
	}
}
