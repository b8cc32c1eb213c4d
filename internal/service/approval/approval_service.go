package approval

import (
	"context"
	"errors"
	"time"

	"github.com/avoronin/corptravel/internal/domain"
	"github.com/avoronin/corptravel/internal/kafka"
	"github.com/avoronin/corptravel/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ApprovalUseCase interface {
	SubmitForApproval(ctx context.Context, input SubmitInput) (*domain.Approval, error)
	Decide(ctx context.Context, input DecideInput) (*domain.Approval, error)
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

type SubmitInput struct {
	Reference  string `json:"reference"`
	ApproverID int64  `json:"approver_id"`
}

type DecideInput struct {
	ApprovalID string          `json:"approval_id"`
	ApproverID int64           `json:"approver_id"`
	Decision   domain.Decision `json:"decision"`
	Comments   string          `json:"comments"`
}

type ApprovalService struct {
	requests  repository.RequestRepository
	approvals repository.ApprovalRepository
	producer  Producer
	topic     string
	logger    *zap.Logger
}

func NewApprovalService(
	requests repository.RequestRepository,
	approvals repository.ApprovalRepository,
	producer Producer,
	topic string,
	logger *zap.Logger,
) *ApprovalService {
	return &ApprovalService{
		requests:  requests,
		approvals: approvals,
		producer:  producer,
		topic:     topic,
		logger:    logger,
	}
}

// SubmitForApproval moves a draft into review. The draft→pending transition
// is the single-pending-approval guard: a second submit loses the CAS and is
// rejected before any Approval row exists.
func (s *ApprovalService) SubmitForApproval(ctx context.Context, input SubmitInput) (*domain.Approval, error) {
	request, err := s.requests.GetByReference(ctx, input.Reference)
	if err != nil {
		return nil, err
	}
	if request.RequestStatus != domain.RequestStatusDraft {
		return nil, domain.NewStateError("submit for approval", domain.ErrInvalidState, request)
	}
	if request.Fare.Expired(time.Now()) {
		return nil, domain.NewStateError("submit for approval", domain.ErrInvalidState, request)
	}

	updated, err := s.requests.TransitionRequestStatus(ctx, input.Reference, domain.RequestStatusDraft, domain.RequestStatusPendingApproval)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidState) {
			return nil, domain.NewStateError("submit for approval", domain.ErrInvalidState, request)
		}
		return nil, err
	}

	approval := &domain.Approval{
		ID:          uuid.NewString(),
		Reference:   updated.Reference,
		RequesterID: updated.RequesterID,
		ApproverID:  input.ApproverID,
	}
	if err := s.approvals.Create(ctx, approval); err != nil {
		return nil, err
	}

	s.publish(ctx, "approval_requested", updated)
	return approval, nil
}

// Decide applies the single approver's verdict. The repository CAS on the
// PENDING status picks exactly one winner between concurrent deciders; the
// loser gets ErrAlreadyProcessed.
func (s *ApprovalService) Decide(ctx context.Context, input DecideInput) (*domain.Approval, error) {
	current, err := s.approvals.GetByID(ctx, input.ApprovalID)
	if err != nil {
		return nil, err
	}
	if current.ApproverID != input.ApproverID {
		return nil, domain.ErrNotAssignedApprover
	}
	if current.Status != domain.ApprovalStatusPending {
		return nil, domain.ErrAlreadyProcessed
	}

	target := domain.ApprovalStatusApproved
	requestTarget := domain.RequestStatusApproved
	eventType := "request_approved"
	if input.Decision == domain.DecisionReject {
		target = domain.ApprovalStatusRejected
		requestTarget = domain.RequestStatusRejected
		eventType = "request_rejected"
	}

	decided, err := s.approvals.Decide(ctx, input.ApprovalID, target, input.Comments, time.Now())
	if err != nil {
		return nil, err
	}

	updated, err := s.requests.TransitionRequestStatus(ctx, decided.Reference, domain.RequestStatusPendingApproval, requestTarget)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, eventType, updated)
	return decided, nil
}

// publish emits exactly one notification event per decision. Delivery
// failure must not roll back the transition, so errors are only logged.
func (s *ApprovalService) publish(ctx context.Context, eventType string, request *domain.BookingRequest) {
	if s.producer == nil || s.topic == "" {
		return
	}
	event := kafka.TravelEvent{
		Type:            eventType,
		Reference:       request.Reference,
		OrgID:           request.OrgID,
		RequesterID:     request.RequesterID,
		RequestStatus:   string(request.RequestStatus),
		ExecutionStatus: string(request.ExecutionStatus),
		AmountCents:     request.Pricing.TotalCents,
		Currency:        request.Pricing.Currency,
		OccurredAt:      time.Now(),
	}
	if err := s.producer.Publish(ctx, s.topic, request.Reference, event); err != nil {
		s.logger.Warn("failed to publish approval event",
			zap.String("type", eventType),
			zap.String("reference", request.Reference),
			zap.Error(err))
	}
}

var _ ApprovalUseCase = (*ApprovalService)(nil)
