// SPDX-License-Identifier: MPL-2.0

package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/crypto/ssh"
	"mvdan.cc/sh/v3/syntax"

	"github.com/devtask/devtask/internal/logging"
	"github.com/devtask/devtask/pkg/types"
)

// DefaultSSHUser is used for endpoints that do not name a user.
const DefaultSSHUser = "devtask"

// ErrUnknownComponent is returned for a component without an endpoint.
var ErrUnknownComponent = errors.New("unknown component")

type (
	// Endpoint is how to reach one component's agent.
	Endpoint struct {
		Address string
		User    string
		Token   string
	}

	// SSHBackend runs lines on remote components over SSH, one connection
	// per execution.
	SSHBackend struct {
		Endpoints map[string]Endpoint
		Output    OutputFunc
		// HostKeyCallback defaults to accepting any host key; component
		// agents use ephemeral keys.
		HostKeyCallback ssh.HostKeyCallback
		// DialTimeout defaults to 10s.
		DialTimeout time.Duration
		Logger      *log.Logger
	}
)

var _ Backend = (*SSHBackend)(nil)

// RemoteCommand renders the line the remote shell runs: a cd into the
// quoted working directory followed by the line itself.
func RemoteCommand(req Request) (string, error) {
	if req.WorkDir == "" {
		return req.ShellLine, nil
	}
	dir, err := syntax.Quote(req.WorkDir, syntax.LangPOSIX)
	if err != nil {
		return "", fmt.Errorf("failed to quote working directory: %w", err)
	}
	return "cd -- " + dir + " && " + req.ShellLine, nil
}

// Start connects to the component's endpoint and starts the command.
func (b *SSHBackend) Start(ctx context.Context, req Request) (Execution, error) {
	ep, ok := b.Endpoints[req.Component]
	if !ok {
		ep, ok = b.Endpoints[strings.ToLower(req.Component)]
	}
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownComponent, req.Component)
	}
	remote, err := RemoteCommand(req)
	if err != nil {
		return nil, err
	}

	client, err := b.dial(ctx, ep)
	if err != nil {
		return nil, err
	}
	sess, err := client.NewSession()
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to open session on %s: %w", ep.Address, err)
	}

	out := newLineWriter(req.Component, outputFor(req, b.Output))
	sess.Stdout = out
	sess.Stderr = out
	if err := sess.Start(remote); err != nil {
		_ = sess.Close()
		_ = client.Close()
		return nil, fmt.Errorf("failed to start remote command on %s: %w", ep.Address, err)
	}

	logger := b.logger()
	h := newHandle(req)
	h.setCancel(func() error {
		// Not every server honours signals; closing the session is what
		// actually ends the wait.
		_ = sess.Signal(ssh.SIGTERM)
		err := sess.Close()
		if errors.Is(err, net.ErrClosed) {
			return nil
		}
		return err
	})

	go func() {
		status := statusFromWait(sess.Wait())
		out.Flush()
		_ = client.Close()
		logger.Debug("remote execution finished", "execution", h.id, "component", req.Component, "status", status)
		h.finish(status)
	}()

	return h, nil
}

// Wait blocks until the remote command exits.
func (b *SSHBackend) Wait(exec Execution) ExitStatus {
	return waitHandle(exec)
}

// Cancel signals the remote command and closes its session.
func (b *SSHBackend) Cancel(exec Execution) error {
	return cancelHandle(exec)
}

func (b *SSHBackend) dial(ctx context.Context, ep Endpoint) (*ssh.Client, error) {
	timeout := b.DialTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	hostKey := b.HostKeyCallback
	if hostKey == nil {
		hostKey = ssh.InsecureIgnoreHostKey() //nolint:gosec // agents generate a fresh host key per start
	}
	user := ep.User
	if user == "" {
		user = DefaultSSHUser
	}

	cfg := &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.Password(ep.Token)},
		HostKeyCallback: hostKey,
		Timeout:         timeout,
	}

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", ep.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", ep.Address, err)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, ep.Address, cfg)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", ep.Address, err)
	}
	return ssh.NewClient(c, chans, reqs), nil
}

func (b *SSHBackend) logger() *log.Logger {
	if b.Logger == nil {
		return logging.Discard()
	}
	return b.Logger
}

// statusFromWait maps the result of ssh.Session.Wait to an exit status.
func statusFromWait(err error) ExitStatus {
	if err == nil {
		return types.KnownExit(types.ExitSuccess)
	}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return types.KnownExit(types.ExitCode(exitErr.ExitStatus()))
	}
	// *ssh.ExitMissingError and transport failures carry no code.
	return types.UnknownExit()
}
