package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationError_Message(t *testing.T) {
	err := Validation("route start is required", "path end is required")
	assert.Equal(t, "validation failed: route start is required; path end is required", err.Error())
	assert.True(t, IsValidation(err))
	assert.True(t, IsValidation(fmt.Errorf("wrapped: %w", err)))
	assert.False(t, IsNetwork(err))
}

func TestNetworkError_StatusAndTransport(t *testing.T) {
	byStatus := NetworkStatus(503)
	assert.Equal(t, "network error: server returned status 503", byStatus.Error())
	assert.True(t, IsNetwork(byStatus))

	cause := errors.New("connection refused")
	byTransport := Network(cause)
	assert.True(t, IsNetwork(byTransport))
	assert.ErrorIs(t, byTransport, cause)
}

func TestStorage_NilPassthrough(t *testing.T) {
	assert.NoError(t, Storage("commit", nil))

	err := Storage("insert record", errors.New("disk full"))
	assert.True(t, IsStorage(err))
	assert.Equal(t, "storage: insert record: disk full", err.Error())
}

func TestSentinelsAreDistinct(t *testing.T) {
	sentinels := []error{ErrNotFound, ErrInvalidState, ErrAuth, ErrSyncInProgress}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i != j {
				assert.NotErrorIs(t, a, b)
			}
		}
	}
}
