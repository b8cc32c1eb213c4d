package settlement

import (
	"context"
	"time"

	"github.com/avoronin/corptravel/internal/domain"
	"github.com/avoronin/corptravel/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type SettlementUseCase interface {
	Settle(ctx context.Context, reference string) (*domain.PaymentRecord, error)
}

// AccountLocker serializes settlements per ledger account. The lock is held
// across the idempotency check and the balance mutation.
type AccountLocker interface {
	AcquireAccountLock(ctx context.Context, accountID int64, ttl time.Duration) (bool, error)
	ReleaseAccountLock(ctx context.Context, accountID int64) error
}

type SettlementServiceOption func(*SettlementService)

func WithLockRetries(attempts int, backoff time.Duration) SettlementServiceOption {
	return func(s *SettlementService) {
		s.lockAttempts = attempts
		s.lockBackoff = backoff
	}
}

type SettlementService struct {
	requests     repository.RequestRepository
	ledger       repository.LedgerRepository
	locker       AccountLocker
	lockTTL      time.Duration
	lockAttempts int
	lockBackoff  time.Duration
	logger       *zap.Logger
}

func NewSettlementService(
	requests repository.RequestRepository,
	ledger repository.LedgerRepository,
	locker AccountLocker,
	lockTTL time.Duration,
	logger *zap.Logger,
	opts ...SettlementServiceOption,
) *SettlementService {
	service := &SettlementService{
		requests:     requests,
		ledger:       ledger,
		locker:       locker,
		lockTTL:      lockTTL,
		lockAttempts: 3,
		lockBackoff:  100 * time.Millisecond,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// Settle debits the organization's wallet or increments its credit usage for
// an approved request. Idempotent per reference: a second call returns the
// existing PaymentRecord without touching the ledger. Never advances
// executionStatus; a failed settlement leaves the request retryable.
func (s *SettlementService) Settle(ctx context.Context, reference string) (*domain.PaymentRecord, error) {
	request, err := s.requests.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if request.RequestStatus != domain.RequestStatusApproved {
		return nil, domain.NewStateError("settle", domain.ErrNotApproved, request)
	}
	if request.Payment != nil {
		return request.Payment, nil
	}

	account, err := s.ledger.GetAccountByOrg(ctx, request.OrgID)
	if err != nil {
		return nil, err
	}

	if s.locker != nil {
		acquired, err := s.acquireLock(ctx, account.ID)
		if err != nil {
			return nil, err
		}
		if !acquired {
			return nil, domain.ErrAccountBusy
		}
		defer func() {
			if err := s.locker.ReleaseAccountLock(ctx, account.ID); err != nil {
				s.logger.Warn("failed to release account lock", zap.Int64("account_id", account.ID), zap.Error(err))
			}
		}()

		// Re-check under the lock; a concurrent settle may have won.
		request, err = s.requests.GetByReference(ctx, reference)
		if err != nil {
			return nil, err
		}
		if request.Payment != nil {
			return request.Payment, nil
		}
	}

	entry := &domain.LedgerEntry{
		TransactionID: uuid.NewString(),
		AccountID:     account.ID,
		Reference:     reference,
		Type:          domain.EntryTypeBooking,
		AmountCents:   request.Pricing.TotalCents,
		Currency:      request.Pricing.Currency,
	}

	var method domain.PaymentMethod
	switch account.Classification {
	case domain.AccountPrepaid:
		method = domain.PaymentMethodWallet
		entry.Status = domain.EntryStatusCompleted
		if err := s.ledger.DebitWallet(ctx, entry); err != nil {
			return nil, err
		}
	case domain.AccountPostpaid:
		method = domain.PaymentMethodCredit
		// Postpaid entries settle later through the billing cycle.
		entry.Status = domain.EntryStatusPending
		if err := s.ledger.IncrementCredit(ctx, entry); err != nil {
			return nil, err
		}
	default:
		return nil, domain.ErrInvalidState
	}

	payment := &domain.PaymentRecord{
		Method:        method,
		TransactionID: entry.TransactionID,
		AmountCents:   entry.AmountCents,
		Currency:      entry.Currency,
		SettledAt:     time.Now(),
	}
	if err := s.requests.SavePaymentRecord(ctx, reference, payment); err != nil {
		return nil, err
	}

	s.logger.Info("settlement completed",
		zap.String("reference", reference),
		zap.String("transaction_id", payment.TransactionID),
		zap.Int64("amount_cents", payment.AmountCents))
	return payment, nil
}

func (s *SettlementService) acquireLock(ctx context.Context, accountID int64) (bool, error) {
	for attempt := 0; attempt < s.lockAttempts; attempt++ {
		ok, err := s.locker.AcquireAccountLock(ctx, accountID, s.lockTTL)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(s.lockBackoff):
		}
	}
	return false, nil
}

var _ SettlementUseCase = (*SettlementService)(nil)
