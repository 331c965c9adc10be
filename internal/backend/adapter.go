// SPDX-License-Identifier: MPL-2.0

package backend

import (
	"context"
	"os"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/devtask/devtask/internal/catalog"
	"github.com/devtask/devtask/internal/logging"
)

// envToken matches ${NAME} references in a working directory.
var envToken = regexp.MustCompile(`\$\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

type (
	// LookupFunc resolves an environment variable, like os.LookupEnv.
	LookupFunc func(name string) (string, bool)

	// Adapter turns leaf specs into backend requests.
	Adapter struct {
		backend Backend
		lookup  LookupFunc
		logger  *log.Logger
	}

	// AdapterOption configures an Adapter.
	AdapterOption func(*Adapter)
)

// WithLookup overrides the environment used for working directory expansion.
func WithLookup(fn LookupFunc) AdapterOption {
	return func(a *Adapter) { a.lookup = fn }
}

// WithLogger sets the adapter's logger.
func WithLogger(l *log.Logger) AdapterOption {
	return func(a *Adapter) { a.logger = l }
}

// NewAdapter wraps b. Working directories are expanded from the process
// environment unless WithLookup is given.
func NewAdapter(b Backend, opts ...AdapterOption) *Adapter {
	a := &Adapter{backend: b, lookup: os.LookupEnv}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = logging.Discard()
	}
	return a
}

// ExpandWorkDir replaces ${NAME} tokens with their values. Tokens whose
// variable is unset or empty stay as written.
func ExpandWorkDir(dir string, lookup LookupFunc) string {
	if lookup == nil {
		return dir
	}
	return envToken.ReplaceAllStringFunc(dir, func(token string) string {
		name := envToken.FindStringSubmatch(token)[1]
		if value, ok := lookup(name); ok && value != "" {
			return value
		}
		return token
	})
}

// ShellLine prefixes the leaf's command line with one export per env entry,
// in declaration order. Double quotes in values are backslash-escaped.
func ShellLine(spec *catalog.LeafSpec) string {
	var sb strings.Builder
	for _, env := range spec.Env {
		sb.WriteString("export ")
		sb.WriteString(env.Name)
		sb.WriteString(`="`)
		sb.WriteString(strings.ReplaceAll(env.Value, `"`, `\"`))
		sb.WriteString(`"; `)
	}
	sb.WriteString(spec.ShellLine)
	return sb.String()
}

// Request builds the backend request for spec.
func (a *Adapter) Request(spec *catalog.LeafSpec) Request {
	return Request{
		Component: spec.Component,
		ShellLine: ShellLine(spec),
		WorkDir:   ExpandWorkDir(spec.WorkDir, a.lookup),
	}
}

// Start dispatches spec to the backend.
func (a *Adapter) Start(ctx context.Context, spec *catalog.LeafSpec) (Execution, error) {
	return a.StartWithOutput(ctx, spec, nil)
}

// StartWithOutput dispatches spec and routes its printed lines to out.
func (a *Adapter) StartWithOutput(ctx context.Context, spec *catalog.LeafSpec, out OutputFunc) (Execution, error) {
	req := a.Request(spec)
	req.Output = out
	a.logger.Debug("dispatching leaf", "command", spec.ID, "component", req.Component, "dir", req.WorkDir)
	return a.backend.Start(ctx, req)
}

// Await blocks until exec terminates.
func (a *Adapter) Await(exec Execution) ExitStatus {
	return a.backend.Wait(exec)
}

// Cancel requests termination of exec.
func (a *Adapter) Cancel(exec Execution) error {
	return a.backend.Cancel(exec)
}
