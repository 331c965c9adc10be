// SPDX-License-Identifier: MPL-2.0

package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"

	"github.com/devtask/devtask/internal/backend"
	"github.com/devtask/devtask/pkg/types"
)

// commandMiddleware dispatches exec requests to runCommand and bare sessions
// to an interactive shell.
func (s *Server) commandMiddleware() wish.Middleware {
	return func(ssh.Handler) ssh.Handler {
		return func(sess ssh.Session) {
			if sess.RawCommand() == "" {
				s.runInteractiveShell(sess)
				return
			}
			s.runCommand(sess)
		}
	}
}

// runCommand runs the exec request line and reports its exit code. Any
// signal from the client interrupts the command.
func (s *Server) runCommand(sess ssh.Session) {
	line := sess.RawCommand()
	label, _ := sess.Context().Value(ctxKeyTokenLabel).(string)
	logger := s.logger.With("user", sess.User(), "token", label)

	ctx, cancel := context.WithCancel(sess.Context())
	defer cancel()

	signals := make(chan ssh.Signal, 1)
	sess.Signals(signals)
	defer sess.Signals(nil)
	go func() {
		select {
		case sig := <-signals:
			logger.Debug("Interrupting command", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	env := append(os.Environ(), sess.Environ()...)
	var (
		status types.ExitStatus
		err    error
	)
	if s.cfg.Shell == "" {
		status, err = s.interpret(ctx, sess, line, env)
	} else {
		status, err = s.spawn(ctx, sess, line, env)
	}
	if err != nil {
		logger.Debug("Command error", "error", err)
		_, _ = fmt.Fprintf(sess.Stderr(), "Error: %v\n", err)
	}

	code := types.ExitFailure
	if status.Known {
		code = status.Code
	}
	logger.Debug("Command finished", "status", status)
	_ = sess.Exit(int(code))
}

func (s *Server) interpret(ctx context.Context, sess ssh.Session, line string, env []string) (types.ExitStatus, error) {
	prog, err := backend.ParseLine(line, "ssh")
	if err != nil {
		return types.KnownExit(2), err
	}
	return backend.RunShell(ctx, prog, s.cfg.WorkDir, env, backend.ShellIO{
		Stdin:  sess,
		Stdout: sess,
		Stderr: sess.Stderr(),
	})
}

func (s *Server) spawn(ctx context.Context, sess ssh.Session, line string, env []string) (types.ExitStatus, error) {
	cmd := exec.CommandContext(ctx, s.cfg.Shell, "-c", line)
	cmd.Dir = s.cfg.WorkDir
	cmd.Env = env
	cmd.Stdin = sess
	cmd.Stdout = sess
	cmd.Stderr = sess.Stderr()

	err := cmd.Run()
	if ctx.Err() != nil {
		return types.UnknownExit(), nil
	}
	if err == nil {
		return types.KnownExit(types.ExitSuccess), nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return types.KnownExit(types.ExitCode(exitErr.ExitCode())), nil
	}
	return types.UnknownExit(), err
}

// runInteractiveShell starts InteractiveShell on a pseudo-terminal.
func (s *Server) runInteractiveShell(sess ssh.Session) {
	cmd := exec.CommandContext(sess.Context(), s.cfg.InteractiveShell)
	cmd.Dir = s.cfg.WorkDir
	cmd.Env = append(os.Environ(), sess.Environ()...)

	ptyReq, winCh, isPty := sess.Pty()
	if isPty {
		cmd.Env = append(cmd.Env, "TERM="+ptyReq.Term)
	}

	f, err := startPty(cmd)
	if err != nil {
		_, _ = fmt.Fprintf(sess.Stderr(), "Error starting shell: %v\n", err)
		_ = sess.Exit(1)
		return
	}
	defer func() { _ = f.Close() }()

	if isPty {
		setWinsize(f, ptyReq.Window.Width, ptyReq.Window.Height)
	}
	go func() {
		for win := range winCh {
			setWinsize(f, win.Width, win.Height)
		}
	}()

	go func() { _, _ = copyBuffer(f, sess) }()
	_, _ = copyBuffer(sess, f)

	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			_ = sess.Exit(exitErr.ExitCode())
			return
		}
	}
	_ = sess.Exit(0)
}
