// SPDX-License-Identifier: MPL-2.0

package agent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"github.com/charmbracelet/wish/logging"

	internallog "github.com/devtask/devtask/internal/logging"
)

// Server is a component agent. A Server instance is single-use: once
// stopped or failed, create a new instance.
type Server struct {
	lifecycle

	cfg    Config
	tokens *tokenStore
	logger *log.Logger

	srvMu    sync.Mutex
	srv      *ssh.Server
	listener net.Listener
	addr     string
}

// New creates an agent. The server is not started; call Start() to begin
// accepting connections.
func New(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	logger := cfg.Logger
	if logger == nil {
		logger = internallog.Discard()
	}
	logger = logger.WithPrefix("agent")

	if cfg.WorkDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve working directory: %w", err)
		}
		cfg.WorkDir = wd
	}

	s := &Server{
		lifecycle: newLifecycle(),
		cfg:       cfg,
		tokens:    newTokenStore(cfg.Clock, cfg.TokenTTL),
		logger:    logger,
	}
	if cfg.StaticToken != "" {
		s.tokens.addStatic(cfg.StaticToken, "static")
	}
	s.state.Store(int32(StateCreated))
	return s, nil
}

// Start starts the agent and blocks until either:
//   - the server is ready to accept connections (returns nil)
//   - the server fails to start
//   - ctx is cancelled or the startup timeout is exceeded
//
// After Start returns nil, use Err() to monitor for runtime errors.
func (s *Server) Start(ctx context.Context) error {
	if err := s.toStarting(ctx); err != nil {
		return err
	}

	startupCtx, startupCancel := context.WithTimeout(ctx, s.cfg.StartupTimeout)
	defer startupCancel()

	addr := s.cfg.Port.Address(s.cfg.Host)
	var lc net.ListenConfig
	listener, err := lc.Listen(startupCtx, "tcp", addr)
	if err != nil {
		s.toFailed(fmt.Errorf("failed to listen on %s: %w", addr, err))
		return s.lastError()
	}

	srv, err := wish.NewServer(
		wish.WithAddress(listener.Addr().String()),
		wish.WithPublicKeyAuth(s.publicKeyHandler),
		wish.WithPasswordAuth(s.passwordHandler),
		wish.WithMiddleware(
			s.commandMiddleware(),
			logging.MiddlewareWithLogger(s.logger),
		),
	)
	if err != nil {
		_ = listener.Close()
		s.toFailed(fmt.Errorf("failed to create SSH server: %w", err))
		return s.lastError()
	}

	s.srvMu.Lock()
	s.listener = listener
	s.addr = listener.Addr().String()
	s.srv = srv
	s.srvMu.Unlock()

	s.wg.Add(2)
	go s.serve()
	go s.cleanupExpiredTokens()

	select {
	case <-s.startedCh:
		s.logger.Info("Agent started", "address", s.addr)
		return nil
	case err := <-s.errCh:
		s.toFailed(err)
		return err
	case <-startupCtx.Done():
		s.toFailed(fmt.Errorf("startup timeout: %w", startupCtx.Err()))
		s.closeServer()
		return s.lastError()
	}
}

// Stop gracefully stops the agent. It blocks until all connections are
// closed or the shutdown timeout is reached. Safe to call multiple times.
func (s *Server) Stop() error {
	if !s.toStopping() {
		s.wg.Wait()
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	var shutdownErr error
	s.srvMu.Lock()
	if s.srv != nil {
		if err := s.srv.Shutdown(shutdownCtx); err != nil && !isClosedConnError(err) {
			s.logger.Error("shutdown error", "error", err)
			shutdownErr = err
		}
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.srvMu.Unlock()

	s.wg.Wait()
	s.state.Store(int32(StateStopped))
	close(s.errCh)
	s.logger.Info("Agent stopped")
	return shutdownErr
}

// Err returns a channel that receives fatal server errors. It is closed when
// the server stops.
func (s *Server) Err() <-chan error { return s.errCh }

// State returns the current server state.
func (s *Server) State() State { return s.current() }

// IsRunning reports whether the server accepts connections.
func (s *Server) IsRunning() bool { return s.current() == StateRunning }

// Address returns the bound host:port, or "" if the server never started.
func (s *Server) Address() string {
	select {
	case <-s.startedCh:
		s.srvMu.Lock()
		defer s.srvMu.Unlock()
		return s.addr
	default:
		return ""
	}
}

// Port returns the bound port, or 0 if the server never started.
func (s *Server) Port() int {
	_, portStr, err := net.SplitHostPort(s.Address())
	if err != nil {
		return 0
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0
	}
	return port
}

// Wait blocks until the server stops. It returns the failure cause, if any.
func (s *Server) Wait() error {
	s.wg.Wait()
	if s.State() == StateFailed {
		return s.lastError()
	}
	return nil
}

func (s *Server) serve() {
	defer s.wg.Done()

	s.srvMu.Lock()
	srv, listener := s.srv, s.listener
	s.srvMu.Unlock()

	s.toRunning()
	if err := srv.Serve(listener); err != nil {
		if errors.Is(err, ssh.ErrServerClosed) || errors.Is(err, net.ErrClosed) {
			return
		}
		s.sendError(fmt.Errorf("serve error: %w", err))
	}
}

func (s *Server) closeServer() {
	s.srvMu.Lock()
	defer s.srvMu.Unlock()
	if s.srv != nil {
		_ = s.srv.Close()
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
}

func isClosedConnError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return errors.Is(opErr.Err, net.ErrClosed)
	}
	return false
}
