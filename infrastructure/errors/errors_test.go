package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatsWithAndWithoutCause(t *testing.T) {
	bare := New(KindLoader, CodeNotFound, "application IR not found")
	assert.Contains(t, bare.Error(), "loader/LOADER_NOT_FOUND")

	wrapped := Wrap(KindEngine, CodeTransient, "boom", fmt.Errorf("connection reset"))
	assert.Contains(t, wrapped.Error(), "connection reset")
}

func TestWithDetailsAccumulates(t *testing.T) {
	err := New(KindContract, CodeCardinality, "violated").
		WithDetails("label", "Entity").
		WithDetails("lower", 1)
	assert.Equal(t, "Entity", err.Details["label"])
	assert.Equal(t, 1, err.Details["lower"])
}

func TestIsAndAs(t *testing.T) {
	err := NotFound("app-1")
	assert.True(t, IsIRError(err))
	assert.True(t, Is(err, CodeNotFound))
	assert.False(t, Is(err, CodeLockBusy))

	wrapped := fmt.Errorf("loading: %w", err)
	found := As(wrapped)
	assert.NotNil(t, found)
	assert.Equal(t, "app-1", found.Details["app_id"])
}

func TestSeedCycleDetails(t *testing.T) {
	err := SeedCycle([]string{"a", "b", "a"})
	assert.Equal(t, KindContract, err.Kind)
	assert.Equal(t, CodeSeedCycle, err.Code)
	assert.Equal(t, []string{"a", "b", "a"}, err.Details["cycle"])
}
