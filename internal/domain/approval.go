package domain

import "time"

type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "PENDING"
	ApprovalStatusApproved ApprovalStatus = "APPROVED"
	ApprovalStatusRejected ApprovalStatus = "REJECTED"
)

type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionReject  Decision = "REJECT"
)

// Approval is the single-approver review of one booking request. At most one
// pending Approval exists per request at a time; that is enforced by the
// request-status transition, not by a uniqueness constraint here.
type Approval struct {
	ID          string
	Reference   string
	RequesterID int64
	ApproverID  int64
	Status      ApprovalStatus
	Comments    string
	DecidedAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
