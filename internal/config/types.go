// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/devtask/devtask/pkg/types"
)

const (
	// BackendShell runs leaves in-process with the shell interpreter.
	BackendShell BackendKind = "shell"
	// BackendSSH runs leaves on component agents over SSH.
	BackendSSH BackendKind = "ssh"
)

var (
	// ErrInvalidBackendKind is returned when a BackendKind value is not recognized.
	ErrInvalidBackendKind = errors.New("invalid backend kind")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// BackendKind selects how leaves without a dedicated component run.
	BackendKind string

	// InvalidBackendKindError is returned when a BackendKind value is not recognized.
	InvalidBackendKindError struct {
		Value BackendKind
	}

	// InvalidConfigError collects field-level validation errors.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// Config holds the application configuration.
	Config struct {
		Catalog CatalogConfig `json:"catalog" mapstructure:"catalog"`
		Backend BackendConfig `json:"backend" mapstructure:"backend"`
		// Components maps component names to their agents. Viper folds keys
		// to lower case, so component names are case-insensitive.
		Components map[string]ComponentConfig `json:"components" mapstructure:"components"`
		Agent      AgentConfig                `json:"agent" mapstructure:"agent"`
		Log        LogConfig                  `json:"log" mapstructure:"log"`
		Output     OutputConfig               `json:"output" mapstructure:"output"`

		source string
	}

	// CatalogConfig locates the command catalog.
	CatalogConfig struct {
		// Path is the devfile to load (default: devfile.yaml).
		Path string `json:"path" mapstructure:"path"`
	}

	// BackendConfig selects the execution backend.
	BackendConfig struct {
		// Default handles components with no entry under Components.
		Default BackendKind `json:"default" mapstructure:"default"`
	}

	// ComponentConfig is how to reach one component's agent.
	ComponentConfig struct {
		Address string `json:"address" mapstructure:"address"`
		User    string `json:"user,omitempty" mapstructure:"user"`
		Token   string `json:"token,omitempty" mapstructure:"token"`
	}

	// AgentConfig configures `devtask agent serve`.
	AgentConfig struct {
		Host     string           `json:"host" mapstructure:"host"`
		Port     types.ListenPort `json:"port" mapstructure:"port"`
		Shell    string           `json:"shell,omitempty" mapstructure:"shell"`
		Token    string           `json:"token,omitempty" mapstructure:"token"`
		TokenTTL time.Duration    `json:"token_ttl" mapstructure:"token_ttl"`
	}

	// LogConfig configures the process logger.
	LogConfig struct {
		Level string `json:"level" mapstructure:"level"`
		JSON  bool   `json:"json" mapstructure:"json"`
	}

	// OutputConfig tunes progress streaming.
	OutputConfig struct {
		// Buffer is the capacity of each run's message channel.
		Buffer int `json:"buffer" mapstructure:"buffer"`
	}
)

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Catalog: CatalogConfig{Path: "devfile.yaml"},
		Backend: BackendConfig{Default: BackendShell},
		Agent: AgentConfig{
			Host:     "127.0.0.1",
			Port:     2222,
			TokenTTL: time.Hour,
		},
		Log:    LogConfig{Level: "info"},
		Output: OutputConfig{Buffer: 64},
	}
}

// Source returns the file the configuration was loaded from, or "" when only
// defaults applied.
func (c *Config) Source() string { return c.source }

// ComponentNames returns the configured component names in sorted order.
func (c *Config) ComponentNames() []string {
	names := make([]string, 0, len(c.Components))
	for name := range c.Components {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks constraints the CUE schema does not cover, such as values
// arriving through environment overrides.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Backend.Default.Validate(); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(c.Catalog.Path) == "" {
		errs = append(errs, errors.New("catalog.path must be non-empty"))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	if c.Output.Buffer < 1 {
		errs = append(errs, fmt.Errorf("output.buffer must be at least 1, got %d", c.Output.Buffer))
	}
	if err := c.Agent.Port.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("agent.port: %w", err))
	}
	if c.Agent.TokenTTL < 0 {
		errs = append(errs, fmt.Errorf("agent.token_ttl must not be negative, got %s", c.Agent.TokenTTL))
	}
	for _, name := range c.ComponentNames() {
		if strings.TrimSpace(c.Components[name].Address) == "" {
			errs = append(errs, fmt.Errorf("components.%s.address must be non-empty", name))
		}
	}
	if c.Backend.Default == BackendSSH && len(c.Components) == 0 {
		errs = append(errs, errors.New("backend.default is ssh but no components are configured"))
	}
	if len(errs) > 0 {
		return &InvalidConfigError{FieldErrors: errs}
	}
	return nil
}

// String returns the backend kind name.
func (k BackendKind) String() string { return string(k) }

// Validate returns an error for anything but shell or ssh.
func (k BackendKind) Validate() error {
	switch k {
	case BackendShell, BackendSSH:
		return nil
	default:
		return &InvalidBackendKindError{Value: k}
	}
}

func (e *InvalidBackendKindError) Error() string {
	return fmt.Sprintf("invalid backend kind %q (valid: shell, ssh)", e.Value)
}

func (e *InvalidBackendKindError) Unwrap() error { return ErrInvalidBackendKind }

func (e *InvalidConfigError) Error() string {
	msgs := make([]string, len(e.FieldErrors))
	for i, err := range e.FieldErrors {
		msgs[i] = err.Error()
	}
	return "invalid config: " + strings.Join(msgs, "; ")
}

func (e *InvalidConfigError) Unwrap() error { return ErrInvalidConfig }
