// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/devtask/devtask/internal/backend"
	"github.com/devtask/devtask/internal/catalog"
	"github.com/devtask/devtask/internal/config"
	"github.com/devtask/devtask/internal/engine"
	"github.com/devtask/devtask/internal/logging"
)

// projectSourceVar is the variable leaf working directories default to.
const projectSourceVar = "PROJECT_SOURCE"

type (
	// ConfigProvider loads configuration using explicit options.
	ConfigProvider interface {
		Load(ctx context.Context, opts config.LoadOptions) (*config.Config, error)
	}

	// App wires CLI services and shared dependencies. It is the composition
	// root for the CLI layer: every cobra handler receives an App.
	App struct {
		Config ConfigProvider
		stdout io.Writer
		stderr io.Writer

		flags globalFlags

		// Set by the root PersistentPreRunE.
		cfg    *config.Config
		logger *log.Logger
	}

	// Dependencies defines the injection points for building an App. Nil
	// fields are replaced with production defaults by NewApp.
	Dependencies struct {
		Config ConfigProvider
		Stdout io.Writer
		Stderr io.Writer
	}

	globalFlags struct {
		configPath  string
		catalogPath string
		logLevel    string
		verbose     bool
	}
)

// NewApp creates an App with defaults for omitted dependencies.
func NewApp(deps Dependencies) *App {
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}
	if deps.Config == nil {
		deps.Config = config.NewProvider()
	}
	return &App{Config: deps.Config, stdout: deps.Stdout, stderr: deps.Stderr}
}

// setup loads configuration and applies global flag overrides. Flags win
// over the config file.
func (a *App) setup(ctx context.Context) error {
	cfg, err := a.Config.Load(ctx, config.LoadOptions{ConfigFilePath: a.flags.configPath})
	if err != nil {
		return err
	}
	if a.flags.catalogPath != "" {
		cfg.Catalog.Path = a.flags.catalogPath
	}
	level := cfg.Log.Level
	if a.flags.logLevel != "" {
		level = a.flags.logLevel
	} else if a.flags.verbose {
		level = "debug"
	}

	a.cfg = cfg
	a.logger = logging.New(logging.Options{Level: level, JSON: cfg.Log.JSON, Output: a.stderr})
	a.logger.Debug("Configuration loaded", "source", cfg.Source(), "catalog", cfg.Catalog.Path)
	return nil
}

func (a *App) context(ctx context.Context) context.Context {
	return logging.WithLogger(ctx, a.logger)
}

func (a *App) source() catalog.Source {
	return &catalog.FileSource{Path: a.cfg.Catalog.Path, Logger: a.logger}
}

// newBackend routes configured components over SSH and everything else to
// the default backend.
func (a *App) newBackend() backend.Backend {
	shell := &backend.ShellBackend{Logger: a.logger.WithPrefix("shell")}
	if len(a.cfg.Components) == 0 {
		return backend.NewRouter(shell)
	}

	endpoints := make(map[string]backend.Endpoint, len(a.cfg.Components))
	for name, c := range a.cfg.Components {
		endpoints[name] = backend.Endpoint{Address: c.Address, User: c.User, Token: c.Token}
	}
	remote := &backend.SSHBackend{Endpoints: endpoints, Logger: a.logger.WithPrefix("ssh")}

	var fallback backend.Backend = shell
	if a.cfg.Backend.Default == config.BackendSSH {
		fallback = remote
	}
	router := backend.NewRouter(fallback)
	for _, name := range a.cfg.ComponentNames() {
		router.Handle(name, remote)
	}
	return router
}

func (a *App) newEngine() *engine.Engine {
	adapter := backend.NewAdapter(a.newBackend(),
		backend.WithLookup(projectLookup(a.cfg.Catalog.Path)),
		backend.WithLogger(a.logger),
	)
	return engine.New(a.source(), adapter,
		engine.WithLogger(a.logger.WithPrefix("engine")),
		engine.WithBuffer(a.cfg.Output.Buffer),
		engine.WithOutputRelay(true),
	)
}

// projectLookup resolves variables from the environment, falling back to
// the catalog's directory for PROJECT_SOURCE.
func projectLookup(catalogPath string) backend.LookupFunc {
	return func(name string) (string, bool) {
		if v, ok := os.LookupEnv(name); ok {
			return v, true
		}
		if name != projectSourceVar {
			return "", false
		}
		abs, err := filepath.Abs(catalogPath)
		if err != nil {
			return "", false
		}
		return filepath.Dir(abs), true
	}
}

func (a *App) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(a.stdout, format, args...)
}

func (a *App) errorf(format string, args ...any) {
	_, _ = fmt.Fprintf(a.stderr, format, args...)
}
