package execution

import (
	"context"
	"errors"
	"time"

	"github.com/avoronin/corptravel/internal/domain"
	"github.com/avoronin/corptravel/internal/kafka"
	"github.com/avoronin/corptravel/internal/repository"
	"github.com/avoronin/corptravel/internal/supplier"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ExecutionUseCase interface {
	Execute(ctx context.Context, reference string) (*domain.BookingRequest, error)
	PollTicketStatus(ctx context.Context, reference string) (*domain.BookingRequest, error)
	Cancel(ctx context.Context, reference, reason string) (*domain.BookingRequest, error)
}

type Settler interface {
	Settle(ctx context.Context, reference string) (*domain.PaymentRecord, error)
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

type ExecutionService struct {
	requests repository.RequestRepository
	ledger   repository.LedgerRepository
	gateway  supplier.Gateway
	settler  Settler
	producer Producer
	topic    string
	logger   *zap.Logger
}

func NewExecutionService(
	requests repository.RequestRepository,
	ledger repository.LedgerRepository,
	gateway supplier.Gateway,
	settler Settler,
	producer Producer,
	topic string,
	logger *zap.Logger,
) *ExecutionService {
	return &ExecutionService{
		requests: requests,
		ledger:   ledger,
		gateway:  gateway,
		settler:  settler,
		producer: producer,
		topic:    topic,
		logger:   logger,
	}
}

// Execute drives an approved request through supplier booking and
// settlement. The booking_initiated write lands before the supplier call so
// a crash in between can never hide a possibly-created booking from a
// resumer. Settlement runs strictly after booking; its failure marks the
// execution failed but keeps the BookingResult for operator reconciliation,
// because supplier inventory cannot be rolled back. Executions that failed
// before a booking was created may be resubmitted through the same call.
func (s *ExecutionService) Execute(ctx context.Context, reference string) (*domain.BookingRequest, error) {
	request, err := s.requests.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if request.RequestStatus != domain.RequestStatusApproved {
		return nil, domain.NewStateError("execute", domain.ErrNotApproved, request)
	}
	// Once the fare snapshot has lapsed, reconciliation is mandatory: the
	// pricing capture must postdate the expiry before any money moves.
	if request.Fare.Expired(time.Now()) && request.Pricing.CapturedAt.Before(request.Fare.ExpiresAt) {
		return nil, domain.NewStateError("execute", domain.ErrReverifyRequired, request)
	}

	// The CAS on not_started picks the single winner between concurrent
	// execute calls; the loser never reaches the supplier.
	request, err = s.requests.TransitionExecutionStatus(ctx, reference, domain.ExecutionStatusNotStarted, domain.ExecutionStatusBookingInitiated)
	if err != nil {
		if !errors.Is(err, domain.ErrInvalidState) {
			return nil, err
		}
		current, getErr := s.requests.GetByReference(ctx, reference)
		if getErr != nil {
			return nil, getErr
		}
		// A pre-booking failure may be resubmitted. Failures that already
		// hold a BookingResult (booked but unsettled) stay with the operator;
		// re-booking them would duplicate supplier inventory.
		if current.ExecutionStatus != domain.ExecutionStatusFailed || current.Booking != nil {
			return nil, domain.NewStateError("execute", domain.ErrInvalidState, current)
		}
		request, err = s.requests.TransitionExecutionStatus(ctx, reference, domain.ExecutionStatusFailed, domain.ExecutionStatusBookingInitiated)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidState) {
				fresh, getErr := s.requests.GetByReference(ctx, reference)
				if getErr != nil {
					return nil, getErr
				}
				return nil, domain.NewStateError("execute", domain.ErrInvalidState, fresh)
			}
			return nil, err
		}
	}

	booked, err := s.gateway.Book(ctx, supplier.BookRequest{
		SearchTrace: request.Fare.SearchTrace,
		Kind:        request.Kind,
		Segments:    request.Fare.Segments,
		Travelers:   request.Travelers,
		TotalCents:  request.Pricing.TotalCents,
		Currency:    request.Pricing.Currency,
	})
	if err != nil {
		failed := s.markFailed(ctx, reference, domain.ExecutionStatusBookingInitiated)
		s.publish(ctx, "execution_failed", failed)
		return nil, err
	}

	result := &domain.BookingResult{
		Confirmation:    booked.Confirmation,
		SupplierPayload: booked.RawPayload,
		TicketNumbers:   booked.TicketNumbers,
		TicketPending:   booked.TicketPending,
		BookedAt:        time.Now(),
	}
	if err := s.requests.SaveBookingResult(ctx, reference, result); err != nil {
		return nil, err
	}
	request, err = s.requests.TransitionExecutionStatus(ctx, reference, domain.ExecutionStatusBookingInitiated, domain.ExecutionStatusBooked)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, "booking_confirmed", request)

	if _, err := s.settler.Settle(ctx, reference); err != nil {
		// Booked on the supplier side, unsettled on the ledger side. The
		// divergence stays visible: failed execution, BookingResult kept.
		failed := s.markFailed(ctx, reference, domain.ExecutionStatusBooked)
		s.publish(ctx, "execution_failed", failed)
		s.logger.Error("settlement failed after supplier booking",
			zap.String("reference", reference),
			zap.String("confirmation", result.Confirmation),
			zap.Error(err))
		return nil, err
	}

	if booked.TicketPending {
		// Low-cost-carrier pattern: stay booked until a poll confirms
		// ticket numbers.
		final, err := s.requests.GetByReference(ctx, reference)
		if err != nil {
			return nil, err
		}
		return final, nil
	}

	request, err = s.requests.TransitionExecutionStatus(ctx, reference, domain.ExecutionStatusBooked, domain.ExecutionStatusTicketed)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, "booking_ticketed", request)
	return request, nil
}

// PollTicketStatus advances a ticket-pending booking once the supplier has
// issued the tickets. Idempotent: polling an already-ticketed request is a
// no-op, polling before issuance leaves the request booked.
func (s *ExecutionService) PollTicketStatus(ctx context.Context, reference string) (*domain.BookingRequest, error) {
	request, err := s.requests.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if request.ExecutionStatus == domain.ExecutionStatusTicketed {
		return request, nil
	}
	if request.ExecutionStatus != domain.ExecutionStatusBooked || request.Booking == nil {
		return nil, domain.NewStateError("poll ticket status", domain.ErrInvalidState, request)
	}

	status, err := s.gateway.PollTicketStatus(ctx, request.Booking.Confirmation)
	if err != nil {
		return nil, err
	}
	if !status.Issued {
		return request, nil
	}

	result := *request.Booking
	result.TicketNumbers = status.TicketNumbers
	result.TicketPending = false
	if err := s.requests.SaveBookingResult(ctx, reference, &result); err != nil {
		return nil, err
	}
	request, err = s.requests.TransitionExecutionStatus(ctx, reference, domain.ExecutionStatusBooked, domain.ExecutionStatusTicketed)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidState) {
			// A concurrent poll won the transition.
			return s.requests.GetByReference(ctx, reference)
		}
		return nil, err
	}
	s.publish(ctx, "booking_ticketed", request)
	return request, nil
}

// Cancel voids a booked or ticketed request with the supplier, records the
// refund/charge split and refunds the ledger. Terminal: no execution
// transition is permitted afterwards.
func (s *ExecutionService) Cancel(ctx context.Context, reference, reason string) (*domain.BookingRequest, error) {
	// Fresh read immediately before issuing the cancellation, so a request
	// that concurrently became ticketed is seen as such.
	request, err := s.requests.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if request.ExecutionStatus != domain.ExecutionStatusBooked && request.ExecutionStatus != domain.ExecutionStatusTicketed {
		return nil, domain.NewStateError("cancel", domain.ErrInvalidState, request)
	}
	if request.Booking == nil {
		return nil, domain.NewStateError("cancel", domain.ErrInvalidState, request)
	}

	cancelled, err := s.gateway.Cancel(ctx, request.Booking.Confirmation)
	if err != nil {
		return nil, err
	}

	record := &domain.CancellationRecord{
		Reason:           reason,
		RefundCents:      cancelled.RefundCents,
		ChargeCents:      cancelled.ChargeCents,
		SupplierResponse: cancelled.RawPayload,
		CancelledAt:      time.Now(),
	}
	if err := s.requests.SaveCancellationRecord(ctx, reference, record); err != nil {
		return nil, err
	}

	if request.Payment != nil && cancelled.RefundCents > 0 {
		if err := s.refund(ctx, request, cancelled.RefundCents); err != nil {
			s.logger.Error("failed to refund ledger on cancellation",
				zap.String("reference", reference), zap.Error(err))
		}
	}

	// The booking may have moved booked→ticketed while the supplier call was
	// in flight; both states permit cancellation, so retry the CAS once from
	// the fresh state.
	from := request.ExecutionStatus
	request, err = s.requests.TransitionExecutionStatus(ctx, reference, from, domain.ExecutionStatusCancelled)
	if errors.Is(err, domain.ErrInvalidState) {
		current, getErr := s.requests.GetByReference(ctx, reference)
		if getErr != nil {
			return nil, getErr
		}
		request, err = s.requests.TransitionExecutionStatus(ctx, reference, current.ExecutionStatus, domain.ExecutionStatusCancelled)
	}
	if err != nil {
		return nil, err
	}
	s.publish(ctx, "booking_cancelled", request)
	return request, nil
}

func (s *ExecutionService) refund(ctx context.Context, request *domain.BookingRequest, amount int64) error {
	account, err := s.ledger.GetAccountByOrg(ctx, request.OrgID)
	if err != nil {
		return err
	}
	entry := &domain.LedgerEntry{
		TransactionID: uuid.NewString(),
		AccountID:     account.ID,
		Reference:     request.Reference,
		Type:          domain.EntryTypeRefund,
		Status:        domain.EntryStatusCompleted,
		AmountCents:   amount,
		Currency:      request.Pricing.Currency,
	}
	if account.Classification == domain.AccountPrepaid {
		return s.ledger.CreditWallet(ctx, entry)
	}
	return s.ledger.ReleaseCredit(ctx, entry)
}

func (s *ExecutionService) markFailed(ctx context.Context, reference string, from domain.ExecutionStatus) *domain.BookingRequest {
	failed, err := s.requests.TransitionExecutionStatus(ctx, reference, from, domain.ExecutionStatusFailed)
	if err != nil {
		s.logger.Error("failed to mark execution failed",
			zap.String("reference", reference),
			zap.String("from", string(from)),
			zap.Error(err))
		return nil
	}
	return failed
}

func (s *ExecutionService) publish(ctx context.Context, eventType string, request *domain.BookingRequest) {
	if s.producer == nil || s.topic == "" || request == nil {
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
		s.logger.Warn("failed to publish execution event",
			zap.String("type", eventType),
			zap.String("reference", request.Reference),
			zap.Error(err))
	}
}

var _ ExecutionUseCase = (*ExecutionService)(nil)
