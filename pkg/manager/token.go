package manager

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// TokenManager issues and validates the join tokens a new orchestrator
// replica or per-target runner presents when first dialing the cluster's
// gRPC API, before it holds a signed certificate of its own.
type TokenManager struct {
	tokens map[string]*JoinToken
	mu     sync.RWMutex
}

// JoinToken authorizes one node to join the cluster with the given role.
type JoinToken struct {
	Token     string
	Role      string // "manager" (orchestrator replica) or "runner"
	CreatedAt time.Time
	ExpiresAt time.Time
}

func NewTokenManager() *TokenManager {
	return &TokenManager{
		tokens: make(map[string]*JoinToken),
	}
}

// GenerateToken mints a random token for role, valid until duration elapses.
func (tm *TokenManager) GenerateToken(role string, duration time.Duration) (*JoinToken, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return nil, fmt.Errorf("generate join token: %w", err)
	}

	token := hex.EncodeToString(bytes)

	jt := &JoinToken{
		Token:     token,
		Role:      role,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(duration),
	}

	tm.mu.Lock()
	tm.tokens[token] = jt
	tm.mu.Unlock()

	return jt, nil
}

// ValidateToken reports the role a token was issued for, or an error if it
// is unknown or expired. A runner or replica presents it at bootstrap to
// obtain a signed certificate. Validation does not consume the token: it
// stays valid until it expires or RevokeToken removes it.
func (tm *TokenManager) ValidateToken(token string) (string, error) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	jt, exists := tm.tokens[token]
	if !exists {
		return "", fmt.Errorf("invalid join token")
	}

	if time.Now().After(jt.ExpiresAt) {
		return "", fmt.Errorf("join token expired")
	}

	return jt.Role, nil
}

// RevokeToken invalidates a token immediately, e.g. after it's been consumed
// or a join is aborted.
func (tm *TokenManager) RevokeToken(token string) {
	tm.mu.Lock()
	delete(tm.tokens, token)
	tm.mu.Unlock()
}

// CleanupExpiredTokens sweeps out tokens past their ExpiresAt. Nothing in
// this module calls it on a timer; until it runs, expired tokens stay in
// the table, where ValidateToken already rejects them.
func (tm *TokenManager) CleanupExpiredTokens() {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	now := time.Now()
	for token, jt := range tm.tokens {
		if now.After(jt.ExpiresAt) {
			delete(tm.tokens, token)
		}
	}
}

// ListTokens returns all tokens still outstanding, expired or not.
func (tm *TokenManager) ListTokens() []*JoinToken {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	tokens := make([]*JoinToken, 0, len(tm.tokens))
	for _, jt := range tm.tokens {
		tokens = append(tokens, jt)
	}

	return tokens
}
