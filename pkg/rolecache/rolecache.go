// Package rolecache caches cross-account role-assumption sessions so a
// runner evaluating many registered instances in the same target account
// doesn't re-assume the same role once per instance.
package rolecache

import (
	"fmt"
	"sync"
	"time"
)

// Session holds the temporary credentials obtained by assuming a role in a
// target account, plus the deadline after which they must be refreshed.
type Session struct {
	Account         string
	RoleARN         string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	ExpiresAt       time.Time
}

// Expired reports whether the session's credentials are no longer usable,
// with a minute of slack subtracted so callers don't race the real expiry.
func (s *Session) Expired() bool {
	return time.Now().After(s.ExpiresAt.Add(-time.Minute))
}

// AssumeFunc performs the actual STS role assumption. Supplied by the caller
// so this package stays independent of any particular cloud SDK.
type AssumeFunc func(account, roleARN string) (*Session, error)

// Cache holds one live Session per account, re-assuming on demand when a
// session is missing or close to expiry.
type Cache struct {
	mu       sync.Mutex
	sessions map[string]*Session
	assume   AssumeFunc
}

// New creates a Cache that calls assume to populate missing or expired entries.
func New(assume AssumeFunc) *Cache {
	return &Cache{
		sessions: make(map[string]*Session),
		assume:   assume,
	}
}

// Get returns a live session for account/roleARN, assuming the role if the
// cache has no entry or the cached one is about to expire.
func (c *Cache) Get(account, roleARN string) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.sessions[account]; ok && !s.Expired() && s.RoleARN == roleARN {
		return s, nil
	}

	s, err := c.assume(account, roleARN)
	if err != nil {
		return nil, fmt.Errorf("assume role %s in account %s: %w", roleARN, account, err)
	}
	c.sessions[account] = s
	return s, nil
}

// Invalidate drops any cached session for account, forcing the next Get to
// re-assume. Used after a call fails with an authorization error that might
// be due to a stale session.
func (c *Cache) Invalidate(account string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, account)
}

// Len reports how many accounts currently have a cached session.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}
