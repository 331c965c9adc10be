// SPDX-License-Identifier: MPL-2.0

package backend

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// checkTestcontainersAvailable safely checks if testcontainers can be used.
func checkTestcontainersAvailable() (available bool) {
	defer func() {
		if r := recover(); r != nil {
			available = false
		}
	}()

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		return false
	}
	defer provider.Close()
	return true
}

// TestSSHBackend_OpenSSH runs leaves against a stock OpenSSH server, the
// same way components without a devtask agent are reached.
func TestSSHBackend_OpenSSH(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if !checkTestcontainersAvailable() {
		t.Skip("skipping SSH integration test: testcontainers provider not available")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "lscr.io/linuxserver/openssh-server:latest",
			ExposedPorts: []string{"2222/tcp"},
			Env: map[string]string{
				"PASSWORD_ACCESS": "true",
				"USER_NAME":       "devtask",
				"USER_PASSWORD":   "s3cret",
			},
			WaitingFor: wait.ForListeningPort("2222/tcp").WithStartupTimeout(2 * time.Minute),
		},
		Started: true,
	})
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Fatalf("failed to start OpenSSH container: %v", err)
	}

	endpoint, err := ctr.PortEndpoint(ctx, "2222/tcp", "")
	if err != nil {
		t.Fatalf("PortEndpoint: %v", err)
	}

	rec := &lineRecorder{}
	b := &SSHBackend{
		Endpoints: map[string]Endpoint{"tools": {Address: endpoint, User: "devtask", Token: "s3cret"}},
		Output:    rec.record,
	}

	tests := []struct {
		name     string
		req      Request
		wantCode int
	}{
		{"success in workdir", Request{Component: "tools", ShellLine: `export A="1"; echo "a=$A"; pwd`, WorkDir: "/tmp"}, 0},
		{"non-zero exit", Request{Component: "tools", ShellLine: "exit 3", WorkDir: "/tmp"}, 3},
		// cd's exit code differs between shells; only the failure matters.
		{"missing workdir", Request{Component: "tools", ShellLine: "true", WorkDir: "/does/not/exist"}, -1},
	}
	// Subtests share one container and run in order.
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec, err := b.Start(ctx, tt.req)
			if err != nil {
				t.Fatalf("Start() error: %v", err)
			}
			st := b.Wait(exec)
			if tt.wantCode < 0 {
				if !st.Failed() {
					t.Errorf("Wait() = %+v, want a known failure", st)
				}
				return
			}
			if !st.Known || int(st.Code) != tt.wantCode {
				t.Errorf("Wait() = %+v, want known %d", st, tt.wantCode)
			}
		})
	}

	lines := rec.get()
	if len(lines) < 2 || lines[0] != "a=1" || lines[1] != "/tmp" {
		t.Errorf("remote output = %q", lines)
	}
}
