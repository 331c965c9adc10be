// SPDX-License-Identifier: MPL-2.0

package agent

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/ssh"
)

const (
	tokenCleanupInterval = 5 * time.Minute

	ctxKeyTokenLabel = "devtask.token.label"
)

// tokenStore holds the credentials an agent accepts.
type tokenStore struct {
	mu     sync.RWMutex
	tokens map[TokenValue]*Token
	clock  Clock
	ttl    time.Duration
}

func newTokenStore(clock Clock, ttl time.Duration) *tokenStore {
	return &tokenStore{
		tokens: make(map[TokenValue]*Token),
		clock:  clock,
		ttl:    ttl,
	}
}

// addStatic registers a token that never expires.
func (ts *tokenStore) addStatic(value TokenValue, label string) {
	ts.mu.Lock()
	ts.tokens[value] = &Token{Value: value, Label: label, CreatedAt: ts.clock.Now()}
	ts.mu.Unlock()
}

func (ts *tokenStore) generate(label string) (*Token, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	now := ts.clock.Now()
	token := &Token{
		Value:     TokenValue(hex.EncodeToString(buf)),
		Label:     label,
		CreatedAt: now,
		ExpiresAt: now.Add(ts.ttl),
	}

	ts.mu.Lock()
	ts.tokens[token.Value] = token
	ts.mu.Unlock()
	return token, nil
}

func (ts *tokenStore) validate(value TokenValue) (*Token, bool) {
	ts.mu.RLock()
	token, ok := ts.tokens[value]
	ts.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if token.Expired(ts.clock.Now()) {
		ts.revoke(value)
		return nil, false
	}
	return token, true
}

func (ts *tokenStore) revoke(value TokenValue) {
	ts.mu.Lock()
	delete(ts.tokens, value)
	ts.mu.Unlock()
}

func (ts *tokenStore) revokeLabel(label string) int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	n := 0
	for value, token := range ts.tokens {
		if token.Label == label {
			delete(ts.tokens, value)
			n++
		}
	}
	return n
}

// sweep drops expired tokens and returns how many were removed.
func (ts *tokenStore) sweep() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	now := ts.clock.Now()
	n := 0
	for value, token := range ts.tokens {
		if token.Expired(now) {
			delete(ts.tokens, value)
			n++
		}
	}
	return n
}

// GenerateToken creates a new token valid for the configured TTL. The label
// is informational and shows up in logs.
func (s *Server) GenerateToken(label string) (*Token, error) {
	token, err := s.tokens.generate(label)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("Generated token", "label", label, "expires", token.ExpiresAt)
	return token, nil
}

// ValidateToken checks if a token is valid. Expired tokens are revoked.
func (s *Server) ValidateToken(value TokenValue) (*Token, bool) {
	return s.tokens.validate(value)
}

// RevokeToken invalidates a token.
func (s *Server) RevokeToken(value TokenValue) {
	s.tokens.revoke(value)
}

// RevokeTokensForLabel revokes all tokens generated with label.
func (s *Server) RevokeTokensForLabel(label string) {
	if n := s.tokens.revokeLabel(label); n > 0 {
		s.logger.Debug("Revoked tokens", "label", label, "count", n)
	}
}

// ConnectionInfo returns what a client needs to reach this agent, with a
// freshly generated token.
func (s *Server) ConnectionInfo(label string) (*ConnectionInfo, error) {
	if !s.IsRunning() {
		return nil, fmt.Errorf("agent is not running (state: %s)", s.State())
	}
	token, err := s.GenerateToken(label)
	if err != nil {
		return nil, err
	}
	return &ConnectionInfo{
		Address:  s.Address(),
		User:     s.cfg.User,
		Token:    token.Value,
		ExpireAt: token.ExpiresAt,
	}, nil
}

func (s *Server) cleanupExpiredTokens() {
	defer s.wg.Done()

	ticker := time.NewTicker(tokenCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if n := s.tokens.sweep(); n > 0 {
				s.logger.Debug("Dropped expired tokens", "count", n)
			}
		}
	}
}

// passwordHandler accepts any user whose password is a valid token.
func (s *Server) passwordHandler(ctx ssh.Context, password string) bool {
	token, ok := s.ValidateToken(TokenValue(password))
	if !ok {
		s.logger.Warn("Invalid token authentication attempt", "user", ctx.User(), "remote", ctx.RemoteAddr())
		return false
	}
	ctx.SetValue(ctxKeyTokenLabel, token.Label)
	return true
}

// publicKeyHandler rejects all public key authentication.
func (s *Server) publicKeyHandler(ssh.Context, ssh.PublicKey) bool {
	return false
}
