package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidState        = errors.New("operation not permitted in current state")
	ErrNotApproved         = errors.New("booking request is not approved")
	ErrAlreadyProcessed    = errors.New("already processed")
	ErrInsufficientFunds   = errors.New("insufficient wallet balance")
	ErrCreditLimitExceeded = errors.New("credit limit exceeded")
	ErrSupplierUnavailable = errors.New("supplier unavailable")
	ErrNotAssignedApprover = errors.New("caller is not the assigned approver")
	ErrAccountBusy         = errors.New("ledger account is busy")
	ErrReverifyRequired    = errors.New("price reconciliation required before execution")
)

// A stale search trace is one face of supplier unavailability: there is no
// usable fare behind it. It matches both its own sentinel and
// ErrSupplierUnavailable.
var ErrStaleSearchTrace = fmt.Errorf("search trace is stale: %w", ErrSupplierUnavailable)

// StateError reports a rejected transition together with the state the
// request was left in, so callers never see a bare "operation failed".
type StateError struct {
	Op              string
	RequestStatus   RequestStatus
	ExecutionStatus ExecutionStatus
	Err             error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: %v (request=%s execution=%s)", e.Op, e.Err, e.RequestStatus, e.ExecutionStatus)
}

func (e *StateError) Unwrap() error { return e.Err }

func NewStateError(op string, err error, r *BookingRequest) *StateError {
	se := &StateError{Op: op, Err: err}
	if r != nil {
		se.RequestStatus = r.RequestStatus
		se.ExecutionStatus = r.ExecutionStatus
	}
	return se
}
