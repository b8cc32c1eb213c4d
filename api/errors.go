package api

import (
	"errors"
	"net/http"

	"github.com/avoronin/corptravel/internal/domain"
	"github.com/gin-gonic/gin"
)

// respondError maps the domain error taxonomy onto HTTP statuses and keeps
// the state the request was left in visible to the caller.
func respondError(c *gin.Context, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrAlreadyProcessed),
		errors.Is(err, domain.ErrNotApproved),
		errors.Is(err, domain.ErrReverifyRequired),
		errors.Is(err, domain.ErrAccountBusy):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrCreditLimitExceeded):
		status = http.StatusPaymentRequired
	case errors.Is(err, domain.ErrNotAssignedApprover):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrSupplierUnavailable),
		errors.Is(err, domain.ErrStaleSearchTrace):
		status = http.StatusBadGateway
	}

	body := gin.H{"error": err.Error()}
	var stateErr *domain.StateError
	if errors.As(err, &stateErr) {
		body["request_status"] = string(stateErr.RequestStatus)
		body["execution_status"] = string(stateErr.ExecutionStatus)
	}
	c.JSON(status, body)
}
