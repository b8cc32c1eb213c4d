package settlement

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/avoronin/corptravel/internal/domain"
	"github.com/avoronin/corptravel/internal/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// memLocker mirrors the redis SetNX lock semantics.
type memLocker struct {
	mu    sync.Mutex
	locks map[int64]bool
}

func newMemLocker() *memLocker {
	return &memLocker{locks: make(map[int64]bool)}
}

func (l *memLocker) AcquireAccountLock(ctx context.Context, accountID int64, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locks[accountID] {
		return false, nil
	}
	l.locks[accountID] = true
	return true, nil
}

func (l *memLocker) ReleaseAccountLock(ctx context.Context, accountID int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.locks, accountID)
	return nil
}

type fixture struct {
	svc      *SettlementService
	requests *repository.MemRequestRepository
	ledger   *repository.MemLedgerRepository
}

func newFixture(t *testing.T) *fixture {
	requests := repository.NewMemRequestRepository()
	ledger := repository.NewMemLedgerRepository()
	svc := NewSettlementService(requests, ledger, newMemLocker(), time.Second, zap.NewNop(),
		WithLockRetries(50, time.Millisecond))
	return &fixture{svc: svc, requests: requests, ledger: ledger}
}

func (f *fixture) seedAccount(t *testing.T, account domain.LedgerAccount) {
	t.Helper()
	f.ledger.PutAccount(&account)
}

func (f *fixture) seedApproved(t *testing.T, orgID, totalCents int64) *domain.BookingRequest {
	t.Helper()
	ctx := context.Background()
	request := &domain.BookingRequest{
		Reference:   uuid.NewString(),
		Kind:        domain.BookingKindFlight,
		OrgID:       orgID,
		RequesterID: 42,
		Travelers:   []domain.Traveler{{FullName: "A. Traveler"}},
		Fare:        domain.FareSnapshot{SearchTrace: "trace", ExpiresAt: time.Now().Add(time.Hour), Currency: "EUR"},
		Pricing:     domain.PricingSnapshot{TotalCents: totalCents, Currency: "EUR", CapturedAt: time.Now()},
	}
	assert.NoError(t, f.requests.Create(ctx, request))
	_, err := f.requests.TransitionRequestStatus(ctx, request.Reference, domain.RequestStatusDraft, domain.RequestStatusPendingApproval)
	assert.NoError(t, err)
	_, err = f.requests.TransitionRequestStatus(ctx, request.Reference, domain.RequestStatusPendingApproval, domain.RequestStatusApproved)
	assert.NoError(t, err)
	return request
}

func TestSettlementService_Settle_PrepaidSuccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedAccount(t, domain.LedgerAccount{ID: 1, OrgID: 7, Classification: domain.AccountPrepaid, Currency: "EUR", WalletBalanceCents: 100000})
	request := f.seedApproved(t, 7, 45000)

	payment, err := f.svc.Settle(ctx, request.Reference)

	assert.NoError(t, err)
	assert.Equal(t, domain.PaymentMethodWallet, payment.Method)
	assert.Equal(t, int64(45000), payment.AmountCents)

	account, err := f.ledger.GetAccountByOrg(ctx, 7)
	assert.NoError(t, err)
	assert.Equal(t, int64(55000), account.WalletBalanceCents)

	entries, err := f.ledger.EntriesForAccount(ctx, 1)
	assert.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, int64(100000), entries[0].BalanceBeforeCents)
	assert.Equal(t, int64(55000), entries[0].BalanceAfterCents)
	assert.Equal(t, domain.EntryStatusCompleted, entries[0].Status)
}

// Wallet of 1000, settlement of 1200: the debit is rejected wholesale, the
// balance stays 1000 and no entry is written.
func TestSettlementService_Settle_InsufficientFunds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedAccount(t, domain.LedgerAccount{ID: 1, OrgID: 7, Classification: domain.AccountPrepaid, Currency: "EUR", WalletBalanceCents: 1000})
	request := f.seedApproved(t, 7, 1200)

	payment, err := f.svc.Settle(ctx, request.Reference)

	assert.Nil(t, payment)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	account, err := f.ledger.GetAccountByOrg(ctx, 7)
	assert.NoError(t, err)
	assert.Equal(t, int64(1000), account.WalletBalanceCents)

	entries, err := f.ledger.EntriesForAccount(ctx, 1)
	assert.NoError(t, err)
	assert.Empty(t, entries)

	// Retryable: the request stays approved and unsettled.
	updated, err := f.requests.GetByReference(ctx, request.Reference)
	assert.NoError(t, err)
	assert.Equal(t, domain.RequestStatusApproved, updated.RequestStatus)
	assert.Equal(t, domain.ExecutionStatusNotStarted, updated.ExecutionStatus)
	assert.Nil(t, updated.Payment)
}

func TestSettlementService_Settle_PostpaidSuccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedAccount(t, domain.LedgerAccount{ID: 1, OrgID: 7, Classification: domain.AccountPostpaid, Currency: "EUR", CreditLimitCents: 200000})
	request := f.seedApproved(t, 7, 45000)

	payment, err := f.svc.Settle(ctx, request.Reference)

	assert.NoError(t, err)
	assert.Equal(t, domain.PaymentMethodCredit, payment.Method)

	account, err := f.ledger.GetAccountByOrg(ctx, 7)
	assert.NoError(t, err)
	assert.Equal(t, int64(45000), account.CurrentCreditCents)

	entries, err := f.ledger.EntriesForAccount(ctx, 1)
	assert.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, domain.EntryTypeBooking, entries[0].Type)
	assert.Equal(t, domain.EntryStatusPending, entries[0].Status)
}

func TestSettlementService_Settle_CreditLimitExceeded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedAccount(t, domain.LedgerAccount{ID: 1, OrgID: 7, Classification: domain.AccountPostpaid, Currency: "EUR", CreditLimitCents: 40000, CurrentCreditCents: 10000})
	request := f.seedApproved(t, 7, 35000)

	payment, err := f.svc.Settle(ctx, request.Reference)

	assert.Nil(t, payment)
	assert.ErrorIs(t, err, domain.ErrCreditLimitExceeded)

	account, err := f.ledger.GetAccountByOrg(ctx, 7)
	assert.NoError(t, err)
	assert.Equal(t, int64(10000), account.CurrentCreditCents)
}

func TestSettlementService_Settle_NotApproved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedAccount(t, domain.LedgerAccount{ID: 1, OrgID: 7, Classification: domain.AccountPrepaid, Currency: "EUR", WalletBalanceCents: 100000})

	request := &domain.BookingRequest{
		Reference:   uuid.NewString(),
		Kind:        domain.BookingKindHotel,
		OrgID:       7,
		RequesterID: 42,
		Travelers:   []domain.Traveler{{FullName: "A"}},
		Fare:        domain.FareSnapshot{SearchTrace: "trace", ExpiresAt: time.Now().Add(time.Hour)},
		Pricing:     domain.PricingSnapshot{TotalCents: 100, Currency: "EUR"},
	}
	assert.NoError(t, f.requests.Create(ctx, request))
	_, err := f.requests.TransitionRequestStatus(ctx, request.Reference, domain.RequestStatusDraft, domain.RequestStatusPendingApproval)
	assert.NoError(t, err)

	payment, err := f.svc.Settle(ctx, request.Reference)
	assert.Nil(t, payment)
	assert.ErrorIs(t, err, domain.ErrNotApproved)
}

// Settling the same request twice yields one entry, one balance mutation and
// the original PaymentRecord.
func TestSettlementService_Settle_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedAccount(t, domain.LedgerAccount{ID: 1, OrgID: 7, Classification: domain.AccountPrepaid, Currency: "EUR", WalletBalanceCents: 100000})
	request := f.seedApproved(t, 7, 45000)

	first, err := f.svc.Settle(ctx, request.Reference)
	assert.NoError(t, err)

	second, err := f.svc.Settle(ctx, request.Reference)
	assert.NoError(t, err)
	assert.Equal(t, first.TransactionID, second.TransactionID)

	account, err := f.ledger.GetAccountByOrg(ctx, 7)
	assert.NoError(t, err)
	assert.Equal(t, int64(55000), account.WalletBalanceCents)

	entries, err := f.ledger.EntriesForAccount(ctx, 1)
	assert.NoError(t, err)
	assert.Len(t, entries, 1)
}

// No interleaving of concurrent settlements may push a postpaid account past
// its credit limit.
func TestSettlementService_Settle_ConcurrentPostpaidNeverExceedsLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedAccount(t, domain.LedgerAccount{ID: 1, OrgID: 7, Classification: domain.AccountPostpaid, Currency: "EUR", CreditLimitCents: 100000})

	const workers = 8
	references := make([]string, workers)
	for i := range references {
		references[i] = f.seedApproved(t, 7, 30000).Reference
	}

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := range references {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Settle(ctx, references[i])
		}(i)
	}
	wg.Wait()

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, domain.ErrCreditLimitExceeded)
		}
	}
	assert.Equal(t, 3, succeeded)

	account, err := f.ledger.GetAccountByOrg(ctx, 7)
	assert.NoError(t, err)
	assert.LessOrEqual(t, account.CurrentCreditCents, account.CreditLimitCents)
	assert.Equal(t, int64(90000), account.CurrentCreditCents)
}

// The audit trail and the derived balance never diverge: replaying the
// entry deltas reproduces the current balance.
func TestSettlementService_EntriesMatchBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedAccount(t, domain.LedgerAccount{ID: 1, OrgID: 7, Classification: domain.AccountPrepaid, Currency: "EUR", WalletBalanceCents: 100000})

	amounts := []int64{45000, 20000, 5000}
	for _, amount := range amounts {
		request := f.seedApproved(t, 7, amount)
		_, err := f.svc.Settle(ctx, request.Reference)
		assert.NoError(t, err)
	}

	entries, err := f.ledger.EntriesForAccount(ctx, 1)
	assert.NoError(t, err)
	assert.Len(t, entries, len(amounts))

	balance := int64(100000)
	for _, entry := range entries {
		assert.Equal(t, balance, entry.BalanceBeforeCents)
		balance -= entry.AmountCents
		assert.Equal(t, balance, entry.BalanceAfterCents)
	}

	account, err := f.ledger.GetAccountByOrg(ctx, 7)
	assert.NoError(t, err)
	assert.Equal(t, balance, account.WalletBalanceCents)
}
