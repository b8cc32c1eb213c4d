package approval

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/avoronin/corptravel/internal/domain"
	"github.com/avoronin/corptravel/internal/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

type MockProducer struct {
	mock.Mock
}

func (m *MockProducer) Publish(ctx context.Context, topic, key string, value interface{}) error {
	args := m.Called(ctx, topic, key, value)
	return args.Error(0)
}

func newTestService(producer Producer) (*ApprovalService, *repository.MemRequestRepository, *repository.MemApprovalRepository) {
	requests := repository.NewMemRequestRepository()
	approvals := repository.NewMemApprovalRepository()
	svc := NewApprovalService(requests, approvals, producer, "notifications", zap.NewNop())
	return svc, requests, approvals
}

func seedDraft(t *testing.T, requests *repository.MemRequestRepository, expiresAt time.Time) *domain.BookingRequest {
	t.Helper()
	request := &domain.BookingRequest{
		Reference:   uuid.NewString(),
		Kind:        domain.BookingKindFlight,
		OrgID:       7,
		RequesterID: 42,
		Travelers:   []domain.Traveler{{FullName: "A. Traveler", Email: "a@example.com"}},
		Fare:        domain.FareSnapshot{SearchTrace: "trace-1", ExpiresAt: expiresAt, Currency: "EUR"},
		Pricing:     domain.PricingSnapshot{TotalCents: 45000, Currency: "EUR", CapturedAt: time.Now()},
	}
	assert.NoError(t, requests.Create(context.Background(), request))
	return request
}

func TestApprovalService_SubmitForApproval_Success(t *testing.T) {
	producer := &MockProducer{}
	svc, requests, _ := newTestService(producer)
	ctx := context.Background()

	request := seedDraft(t, requests, time.Now().Add(time.Hour))
	producer.On("Publish", ctx, "notifications", request.Reference, mock.Anything).Return(nil).Once()

	approval, err := svc.SubmitForApproval(ctx, SubmitInput{Reference: request.Reference, ApproverID: 9})

	assert.NoError(t, err)
	assert.NotNil(t, approval)
	assert.Equal(t, domain.ApprovalStatusPending, approval.Status)
	assert.Equal(t, int64(9), approval.ApproverID)

	updated, err := requests.GetByReference(ctx, request.Reference)
	assert.NoError(t, err)
	assert.Equal(t, domain.RequestStatusPendingApproval, updated.RequestStatus)
	producer.AssertExpectations(t)
}

func TestApprovalService_SubmitForApproval_ExpiredFare(t *testing.T) {
	svc, requests, _ := newTestService(nil)
	ctx := context.Background()

	request := seedDraft(t, requests, time.Now().Add(-time.Minute))

	approval, err := svc.SubmitForApproval(ctx, SubmitInput{Reference: request.Reference, ApproverID: 9})

	assert.Nil(t, approval)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestApprovalService_SubmitForApproval_DoubleSubmit(t *testing.T) {
	svc, requests, _ := newTestService(nil)
	ctx := context.Background()

	request := seedDraft(t, requests, time.Now().Add(time.Hour))

	_, err := svc.SubmitForApproval(ctx, SubmitInput{Reference: request.Reference, ApproverID: 9})
	assert.NoError(t, err)

	approval, err := svc.SubmitForApproval(ctx, SubmitInput{Reference: request.Reference, ApproverID: 9})
	assert.Nil(t, approval)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	var stateErr *domain.StateError
	assert.ErrorAs(t, err, &stateErr)
	assert.Equal(t, domain.RequestStatusPendingApproval, stateErr.RequestStatus)
}

func TestApprovalService_Decide_Approve(t *testing.T) {
	producer := &MockProducer{}
	svc, requests, _ := newTestService(producer)
	ctx := context.Background()

	request := seedDraft(t, requests, time.Now().Add(time.Hour))
	producer.On("Publish", ctx, "notifications", request.Reference, mock.Anything).Return(nil)

	approval, err := svc.SubmitForApproval(ctx, SubmitInput{Reference: request.Reference, ApproverID: 9})
	assert.NoError(t, err)

	decided, err := svc.Decide(ctx, DecideInput{
		ApprovalID: approval.ID,
		ApproverID: 9,
		Decision:   domain.DecisionApprove,
		Comments:   "within policy",
	})

	assert.NoError(t, err)
	assert.Equal(t, domain.ApprovalStatusApproved, decided.Status)
	assert.NotNil(t, decided.DecidedAt)

	updated, err := requests.GetByReference(ctx, request.Reference)
	assert.NoError(t, err)
	assert.Equal(t, domain.RequestStatusApproved, updated.RequestStatus)
	assert.Equal(t, domain.ExecutionStatusNotStarted, updated.ExecutionStatus)

	// One submit event plus exactly one decision event.
	producer.AssertNumberOfCalls(t, "Publish", 2)
}

func TestApprovalService_Decide_RejectIsTerminal(t *testing.T) {
	svc, requests, _ := newTestService(nil)
	ctx := context.Background()

	request := seedDraft(t, requests, time.Now().Add(time.Hour))
	approval, err := svc.SubmitForApproval(ctx, SubmitInput{Reference: request.Reference, ApproverID: 9})
	assert.NoError(t, err)

	_, err = svc.Decide(ctx, DecideInput{ApprovalID: approval.ID, ApproverID: 9, Decision: domain.DecisionReject, Comments: "over budget"})
	assert.NoError(t, err)

	updated, err := requests.GetByReference(ctx, request.Reference)
	assert.NoError(t, err)
	assert.Equal(t, domain.RequestStatusRejected, updated.RequestStatus)

	// No further transition is permitted from rejected.
	_, err = requests.TransitionRequestStatus(ctx, request.Reference, domain.RequestStatusRejected, domain.RequestStatusApproved)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestApprovalService_Decide_WrongApprover(t *testing.T) {
	svc, requests, _ := newTestService(nil)
	ctx := context.Background()

	request := seedDraft(t, requests, time.Now().Add(time.Hour))
	approval, err := svc.SubmitForApproval(ctx, SubmitInput{Reference: request.Reference, ApproverID: 9})
	assert.NoError(t, err)

	decided, err := svc.Decide(ctx, DecideInput{ApprovalID: approval.ID, ApproverID: 13, Decision: domain.DecisionApprove})
	assert.Nil(t, decided)
	assert.ErrorIs(t, err, domain.ErrNotAssignedApprover)
}

func TestApprovalService_Decide_AlreadyProcessed(t *testing.T) {
	svc, requests, _ := newTestService(nil)
	ctx := context.Background()

	request := seedDraft(t, requests, time.Now().Add(time.Hour))
	approval, err := svc.SubmitForApproval(ctx, SubmitInput{Reference: request.Reference, ApproverID: 9})
	assert.NoError(t, err)

	_, err = svc.Decide(ctx, DecideInput{ApprovalID: approval.ID, ApproverID: 9, Decision: domain.DecisionApprove})
	assert.NoError(t, err)

	decided, err := svc.Decide(ctx, DecideInput{ApprovalID: approval.ID, ApproverID: 9, Decision: domain.DecisionReject})
	assert.Nil(t, decided)
	assert.ErrorIs(t, err, domain.ErrAlreadyProcessed)
}

// Two concurrent deciders, one approving and one rejecting: exactly one wins
// and the request status matches the winner.
func TestApprovalService_Decide_ConcurrentDeciders(t *testing.T) {
	svc, requests, _ := newTestService(nil)
	ctx := context.Background()

	request := seedDraft(t, requests, time.Now().Add(time.Hour))
	approval, err := svc.SubmitForApproval(ctx, SubmitInput{Reference: request.Reference, ApproverID: 9})
	assert.NoError(t, err)

	decisions := []domain.Decision{domain.DecisionApprove, domain.DecisionReject}
	results := make([]error, len(decisions))
	var wg sync.WaitGroup
	for i, decision := range decisions {
		wg.Add(1)
		go func(i int, decision domain.Decision) {
			defer wg.Done()
			_, results[i] = svc.Decide(ctx, DecideInput{ApprovalID: approval.ID, ApproverID: 9, Decision: decision})
		}(i, decision)
	}
	wg.Wait()

	var wins, losses int
	var winner domain.Decision
	for i, err := range results {
		if err == nil {
			wins++
			winner = decisions[i]
		} else {
			losses++
			assert.ErrorIs(t, err, domain.ErrAlreadyProcessed)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, losses)

	updated, err := requests.GetByReference(ctx, request.Reference)
	assert.NoError(t, err)
	if winner == domain.DecisionApprove {
		assert.Equal(t, domain.RequestStatusApproved, updated.RequestStatus)
	} else {
		assert.Equal(t, domain.RequestStatusRejected, updated.RequestStatus)
	}
}
