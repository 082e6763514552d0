package schedulerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapAndIs(t *testing.T) {
	base := errors.New("boom")
	err := Wrap(KindUnknownSchedule, base)

	assert.True(t, Is(err, KindUnknownSchedule))
	assert.False(t, Is(err, KindUnknownPeriod))
	assert.True(t, errors.Is(err, base), "unwrap chain must reach the original error")
}

func TestWrapNilIsNil(t *testing.T) {
	assert.NoError(t, Wrap(KindParse, nil))
}

func TestKindOf(t *testing.T) {
	err := Wrap(KindStoreConflict, errors.New("conflict"))
	kind, ok := KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, KindStoreConflict, kind)

	_, ok = KindOf(errors.New("plain"))
	assert.False(t, ok)
}

func TestTargetFatalAndRetryable(t *testing.T) {
	assert.True(t, TargetFatal(KindRoleAssumption))
	assert.True(t, TargetFatal(KindStoreConflict))
	assert.False(t, TargetFatal(KindParse))

	assert.True(t, Retryable(KindInsufficientCapacity))
	assert.True(t, Retryable(KindTransientProvider))
	assert.False(t, Retryable(KindValidation))
}
