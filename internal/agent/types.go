// SPDX-License-Identifier: MPL-2.0

package agent

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/devtask/devtask/internal/backend"
	"github.com/devtask/devtask/pkg/types"
)

var (
	// ErrInvalidTokenValue is the sentinel error wrapped by InvalidTokenValueError.
	ErrInvalidTokenValue = errors.New("invalid token value")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid agent config")
)

type (
	// TokenValue is a password accepted by the agent.
	TokenValue string

	// Token is one accepted credential. A zero ExpiresAt never expires.
	Token struct {
		Value     TokenValue
		Label     string
		CreatedAt time.Time
		ExpiresAt time.Time
	}

	// Clock is the time source for token expiry.
	Clock interface {
		Now() time.Time
	}

	realClock struct{}

	// Config holds immutable configuration for the agent server.
	Config struct {
		// Host is the address to bind to (default: 127.0.0.1).
		Host string
		// Port is the port to listen on (0 = auto-select).
		Port types.ListenPort
		// Shell runs exec requests with "<Shell> -c <line>". Empty means the
		// built-in interpreter.
		Shell string
		// InteractiveShell is started for sessions without a command
		// (default: Shell, or /bin/sh).
		InteractiveShell string
		// WorkDir is where commands start before their own cd (default: the
		// agent's working directory).
		WorkDir string
		// User is advertised in ConnectionInfo (default: devtask). Any user
		// name is accepted at login.
		User string
		// StaticToken, when set, is always accepted.
		StaticToken TokenValue
		// TokenTTL is how long generated tokens are valid (default: 1 hour).
		TokenTTL time.Duration
		// ShutdownTimeout bounds graceful shutdown (default: 10s).
		ShutdownTimeout time.Duration
		// StartupTimeout bounds Start (default: 5s).
		StartupTimeout time.Duration

		Clock  Clock
		Logger *log.Logger
	}

	// ConnectionInfo is what a client needs to reach a running agent.
	ConnectionInfo struct {
		Address  string
		User     string
		Token    TokenValue
		ExpireAt time.Time
	}

	// InvalidTokenValueError is returned for an empty or whitespace-only token.
	InvalidTokenValueError struct {
		Value TokenValue
	}

	// InvalidConfigError collects field-level validation errors.
	InvalidConfigError struct {
		FieldErrors []error
	}
)

func (realClock) Now() time.Time { return time.Now() }

// String returns the token value.
func (t TokenValue) String() string { return string(t) }

// Validate returns an error wrapping ErrInvalidTokenValue for blank tokens.
func (t TokenValue) Validate() error {
	if strings.TrimSpace(string(t)) == "" {
		return &InvalidTokenValueError{Value: t}
	}
	return nil
}

func (e *InvalidTokenValueError) Error() string {
	return "invalid token value: must be non-empty"
}

func (e *InvalidTokenValueError) Unwrap() error { return ErrInvalidTokenValue }

func (e *InvalidConfigError) Error() string {
	msgs := make([]string, len(e.FieldErrors))
	for i, err := range e.FieldErrors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("invalid agent config: %s", strings.Join(msgs, "; "))
}

func (e *InvalidConfigError) Unwrap() error { return ErrInvalidConfig }

// Expired reports whether the token is no longer valid at now.
func (t *Token) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && now.After(t.ExpiresAt)
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		Host:            "127.0.0.1",
		TokenTTL:        time.Hour,
		ShutdownTimeout: 10 * time.Second,
		StartupTimeout:  5 * time.Second,
	}
}

// Validate checks field values without applying defaults.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Host) == "" {
		errs = append(errs, errors.New("host must be non-empty"))
	}
	if err := c.Port.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.StaticToken != "" {
		if err := c.StaticToken.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.TokenTTL < 0 {
		errs = append(errs, fmt.Errorf("token ttl %s must not be negative", c.TokenTTL))
	}
	if len(errs) > 0 {
		return &InvalidConfigError{FieldErrors: errs}
	}
	return nil
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Host == "" {
		c.Host = def.Host
	}
	if c.TokenTTL == 0 {
		c.TokenTTL = def.TokenTTL
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = def.ShutdownTimeout
	}
	if c.StartupTimeout == 0 {
		c.StartupTimeout = def.StartupTimeout
	}
	if c.User == "" {
		c.User = backend.DefaultSSHUser
	}
	if c.InteractiveShell == "" {
		c.InteractiveShell = c.Shell
	}
	if c.InteractiveShell == "" {
		c.InteractiveShell = "/bin/sh"
	}
	if c.Clock == nil {
		c.Clock = realClock{}
	}
	return c
}
