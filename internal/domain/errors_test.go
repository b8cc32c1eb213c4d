package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// A stale search trace is a form of supplier unavailability, so callers
// checking either sentinel must match it.
func TestStaleSearchTraceMatchesSupplierUnavailable(t *testing.T) {
	assert.ErrorIs(t, ErrStaleSearchTrace, ErrSupplierUnavailable)

	wrapped := fmt.Errorf("quote failed: %w", ErrStaleSearchTrace)
	assert.ErrorIs(t, wrapped, ErrStaleSearchTrace)
	assert.ErrorIs(t, wrapped, ErrSupplierUnavailable)
}

func TestStateErrorUnwrapsSentinel(t *testing.T) {
	request := &BookingRequest{
		RequestStatus:   RequestStatusApproved,
		ExecutionStatus: ExecutionStatusFailed,
	}
	err := NewStateError("execute", ErrInvalidState, request)

	assert.ErrorIs(t, err, ErrInvalidState)

	var stateErr *StateError
	assert.True(t, errors.As(err, &stateErr))
	assert.Equal(t, RequestStatusApproved, stateErr.RequestStatus)
	assert.Equal(t, ExecutionStatusFailed, stateErr.ExecutionStatus)
}
