// SPDX-License-Identifier: MPL-2.0

package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"github.com/devtask/devtask/internal/logging"
	"github.com/devtask/devtask/pkg/types"
)

type (
	// ShellBackend runs lines in-process with the mvdan.cc/sh interpreter.
	// The component name is ignored: every leaf runs on the local machine.
	ShellBackend struct {
		// Output receives each printed line; nil discards output.
		Output OutputFunc
		// Env defaults to os.Environ().
		Env    []string
		Logger *log.Logger
	}

	// ShellIO wires an interpreted line to streams.
	ShellIO struct {
		Stdin  io.Reader
		Stdout io.Writer
		Stderr io.Writer
	}
)

var _ Backend = (*ShellBackend)(nil)

// ParseLine parses a shell line, reporting syntax errors before anything runs.
func ParseLine(line, name string) (*syntax.File, error) {
	prog, err := syntax.NewParser().Parse(strings.NewReader(line), name)
	if err != nil {
		return nil, fmt.Errorf("failed to parse shell line: %w", err)
	}
	return prog, nil
}

// RunShell interprets prog in dir. A normal exit, including a non-zero one,
// yields a known status and a nil error. An interrupted run yields an unknown
// status.
func RunShell(ctx context.Context, prog *syntax.File, dir string, env []string, stdio ShellIO) (ExitStatus, error) {
	runner, err := interp.New(
		interp.Dir(dir),
		interp.Env(expand.ListEnviron(env...)),
		interp.StdIO(stdio.Stdin, stdio.Stdout, stdio.Stderr),
	)
	if err != nil {
		return types.UnknownExit(), fmt.Errorf("failed to create interpreter: %w", err)
	}

	err = runner.Run(ctx, prog)
	if ctx.Err() != nil {
		return types.UnknownExit(), nil
	}
	if err == nil {
		return types.KnownExit(types.ExitSuccess), nil
	}
	var exitStatus interp.ExitStatus
	if errors.As(err, &exitStatus) {
		return types.KnownExit(types.ExitCode(exitStatus)), nil
	}
	return types.UnknownExit(), err
}

// Start parses the line, checks the working directory and runs it in the
// background.
func (b *ShellBackend) Start(ctx context.Context, req Request) (Execution, error) {
	prog, err := ParseLine(req.ShellLine, req.Component)
	if err != nil {
		return nil, err
	}
	if info, err := os.Stat(req.WorkDir); err != nil {
		return nil, fmt.Errorf("working directory: %w", err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("working directory %s is not a directory", req.WorkDir)
	}

	env := b.Env
	if env == nil {
		env = os.Environ()
	}
	logger := b.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	h := newHandle(req)
	runCtx, cancel := context.WithCancel(ctx)
	h.setCancel(func() error {
		cancel()
		return nil
	})

	out := newLineWriter(req.Component, outputFor(req, b.Output))
	go func() {
		defer cancel()
		status, err := RunShell(runCtx, prog, req.WorkDir, env, ShellIO{Stdout: out, Stderr: out})
		out.Flush()
		if err != nil {
			logger.Debug("shell execution error", "execution", h.id, "error", err)
		}
		h.finish(status)
	}()

	return h, nil
}

// Wait blocks until exec finishes.
func (b *ShellBackend) Wait(exec Execution) ExitStatus {
	return waitHandle(exec)
}

// Cancel interrupts the interpreter.
func (b *ShellBackend) Cancel(exec Execution) error {
	return cancelHandle(exec)
}
