package rolecache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetAssumesOnceAndCaches(t *testing.T) {
	calls := 0
	c := New(func(account, roleARN string) (*Session, error) {
		calls++
		return &Session{Account: account, RoleARN: roleARN, ExpiresAt: time.Now().Add(time.Hour)}, nil
	})

	_, err := c.Get("111", "arn:aws:iam::111:role/scheduler")
	require.NoError(t, err)
	_, err = c.Get("111", "arn:aws:iam::111:role/scheduler")
	require.NoError(t, err)

	assert.Equal(t, 1, calls, "second Get for the same account should hit the cache")
}

func TestGetReassumesAfterExpiry(t *testing.T) {
	calls := 0
	c := New(func(account, roleARN string) (*Session, error) {
		calls++
		return &Session{Account: account, RoleARN: roleARN, ExpiresAt: time.Now().Add(-time.Second)}, nil
	})

	_, err := c.Get("111", "arn:...")
	require.NoError(t, err)
	_, err = c.Get("111", "arn:...")
	require.NoError(t, err)

	assert.Equal(t, 2, calls, "an already-expired session must be re-assumed")
}

func TestGetPropagatesAssumeError(t *testing.T) {
	c := New(func(account, roleARN string) (*Session, error) {
		return nil, fmt.Errorf("access denied")
	})

	_, err := c.Get("111", "arn:...")
	assert.Error(t, err)
}

func TestInvalidateForcesReassumption(t *testing.T) {
	calls := 0
	c := New(func(account, roleARN string) (*Session, error) {
		calls++
		return &Session{Account: account, RoleARN: roleARN, ExpiresAt: time.Now().Add(time.Hour)}, nil
	})

	_, _ = c.Get("111", "arn:...")
	c.Invalidate("111")
	_, _ = c.Get("111", "arn:...")

	assert.Equal(t, 2, calls)
}
