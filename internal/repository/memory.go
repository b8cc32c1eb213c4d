package repository

// In-memory implementations with the same compare-and-swap and conditional
// update semantics as the postgres repositories. Used by tests and local
// development, where the race guards must behave exactly like the SQL
// WHERE-clause guards.

import (
	"context"
	"sync"
	"time"

	"github.com/avoronin/corptravel/internal/domain"
)

type MemRequestRepository struct {
	mu       sync.Mutex
	requests map[string]*domain.BookingRequest
	audits   map[string][]domain.PriceAudit
	nextID   int64
}

func NewMemRequestRepository() *MemRequestRepository {
	return &MemRequestRepository{
		requests: make(map[string]*domain.BookingRequest),
		audits:   make(map[string][]domain.PriceAudit),
	}
}

func (r *MemRequestRepository) Create(ctx context.Context, request *domain.BookingRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	request.ID = r.nextID
	request.RequestStatus = domain.RequestStatusDraft
	request.ExecutionStatus = domain.ExecutionStatusNotStarted
	request.CreatedAt = time.Now()
	request.UpdatedAt = request.CreatedAt
	clone := cloneRequest(request)
	r.requests[request.Reference] = clone
	return nil
}

func (r *MemRequestRepository) GetByReference(ctx context.Context, reference string) (*domain.BookingRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.requests[reference]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneRequest(stored), nil
}

func (r *MemRequestRepository) TransitionRequestStatus(ctx context.Context, reference string, from, to domain.RequestStatus) (*domain.BookingRequest, error) {
	if !from.CanTransitionTo(to) {
		return nil, domain.ErrInvalidState
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.requests[reference]
	if !ok || stored.RequestStatus != from {
		return nil, domain.ErrInvalidState
	}
	stored.RequestStatus = to
	stored.Version++
	stored.UpdatedAt = time.Now()
	return cloneRequest(stored), nil
}

func (r *MemRequestRepository) TransitionExecutionStatus(ctx context.Context, reference string, from, to domain.ExecutionStatus) (*domain.BookingRequest, error) {
	if !from.CanTransitionTo(to) {
		return nil, domain.ErrInvalidState
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.requests[reference]
	if !ok || stored.ExecutionStatus != from {
		return nil, domain.ErrInvalidState
	}
	stored.ExecutionStatus = to
	stored.Version++
	stored.UpdatedAt = time.Now()
	return cloneRequest(stored), nil
}

func (r *MemRequestRepository) UpdatePricing(ctx context.Context, reference string, pricing domain.PricingSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.requests[reference]
	if !ok {
		return domain.ErrNotFound
	}
	stored.Pricing = pricing
	stored.UpdatedAt = time.Now()
	return nil
}

func (r *MemRequestRepository) AppendPriceAudit(ctx context.Context, audit *domain.PriceAudit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	audit.ID = r.nextID
	r.audits[audit.Reference] = append(r.audits[audit.Reference], *audit)
	return nil
}

func (r *MemRequestRepository) PriceAudits(ctx context.Context, reference string) ([]domain.PriceAudit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.PriceAudit(nil), r.audits[reference]...), nil
}

func (r *MemRequestRepository) SaveBookingResult(ctx context.Context, reference string, result *domain.BookingResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.requests[reference]
	if !ok {
		return domain.ErrNotFound
	}
	clone := *result
	stored.Booking = &clone
	stored.UpdatedAt = time.Now()
	return nil
}

func (r *MemRequestRepository) SavePaymentRecord(ctx context.Context, reference string, payment *domain.PaymentRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.requests[reference]
	if !ok || stored.Payment != nil {
		return domain.ErrAlreadyProcessed
	}
	clone := *payment
	stored.Payment = &clone
	stored.UpdatedAt = time.Now()
	return nil
}

func (r *MemRequestRepository) SaveCancellationRecord(ctx context.Context, reference string, record *domain.CancellationRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.requests[reference]
	if !ok {
		return domain.ErrNotFound
	}
	clone := *record
	stored.Cancellation = &clone
	stored.UpdatedAt = time.Now()
	return nil
}

func (r *MemRequestRepository) ExpirePendingBefore(ctx context.Context, deadline time.Time) ([]domain.BookingRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var expired []domain.BookingRequest
	for _, stored := range r.requests {
		if stored.RequestStatus == domain.RequestStatusPendingApproval && !stored.Fare.ExpiresAt.After(deadline) {
			stored.RequestStatus = domain.RequestStatusExpired
			stored.Version++
			stored.UpdatedAt = time.Now()
			expired = append(expired, *cloneRequest(stored))
		}
	}
	return expired, nil
}

func (r *MemRequestRepository) ListTicketPending(ctx context.Context) ([]domain.BookingRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var pending []domain.BookingRequest
	for _, stored := range r.requests {
		if stored.ExecutionStatus == domain.ExecutionStatusBooked && stored.Booking != nil && stored.Booking.TicketPending {
			pending = append(pending, *cloneRequest(stored))
		}
	}
	return pending, nil
}

func cloneRequest(r *domain.BookingRequest) *domain.BookingRequest {
	clone := *r
	clone.Travelers = append([]domain.Traveler(nil), r.Travelers...)
	clone.Fare.Segments = append([]domain.Segment(nil), r.Fare.Segments...)
	if r.Booking != nil {
		b := *r.Booking
		b.TicketNumbers = append([]string(nil), r.Booking.TicketNumbers...)
		clone.Booking = &b
	}
	if r.Payment != nil {
		p := *r.Payment
		clone.Payment = &p
	}
	if r.Cancellation != nil {
		c := *r.Cancellation
		clone.Cancellation = &c
	}
	return &clone
}

type MemApprovalRepository struct {
	mu        sync.Mutex
	approvals map[string]*domain.Approval
}

func NewMemApprovalRepository() *MemApprovalRepository {
	return &MemApprovalRepository{approvals: make(map[string]*domain.Approval)}
}

func (r *MemApprovalRepository) Create(ctx context.Context, approval *domain.Approval) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	approval.Status = domain.ApprovalStatusPending
	approval.CreatedAt = time.Now()
	approval.UpdatedAt = approval.CreatedAt
	clone := *approval
	r.approvals[approval.ID] = &clone
	return nil
}

func (r *MemApprovalRepository) GetByID(ctx context.Context, id string) (*domain.Approval, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.approvals[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *stored
	return &clone, nil
}

func (r *MemApprovalRepository) GetPendingByReference(ctx context.Context, reference string) (*domain.Approval, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, stored := range r.approvals {
		if stored.Reference == reference && stored.Status == domain.ApprovalStatusPending {
			clone := *stored
			return &clone, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MemApprovalRepository) Decide(ctx context.Context, id string, status domain.ApprovalStatus, comments string, decidedAt time.Time) (*domain.Approval, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.approvals[id]
	if !ok || stored.Status != domain.ApprovalStatusPending {
		return nil, domain.ErrAlreadyProcessed
	}
	stored.Status = status
	stored.Comments = comments
	stored.DecidedAt = &decidedAt
	stored.UpdatedAt = time.Now()
	clone := *stored
	return &clone, nil
}

type MemLedgerRepository struct {
	mu       sync.Mutex
	accounts map[int64]*domain.LedgerAccount
	entries  map[int64][]domain.LedgerEntry
	nextID   int64
}

func NewMemLedgerRepository() *MemLedgerRepository {
	return &MemLedgerRepository{
		accounts: make(map[int64]*domain.LedgerAccount),
		entries:  make(map[int64][]domain.LedgerEntry),
	}
}

func (r *MemLedgerRepository) PutAccount(account *domain.LedgerAccount) {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *account
	r.accounts[account.ID] = &clone
}

func (r *MemLedgerRepository) GetAccountByOrg(ctx context.Context, orgID int64) (*domain.LedgerAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, stored := range r.accounts {
		if stored.OrgID == orgID {
			clone := *stored
			return &clone, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MemLedgerRepository) DebitWallet(ctx context.Context, entry *domain.LedgerEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[entry.AccountID]
	if !ok {
		return domain.ErrNotFound
	}
	if account.WalletBalanceCents < entry.AmountCents {
		return domain.ErrInsufficientFunds
	}
	entry.BalanceBeforeCents = account.WalletBalanceCents
	account.WalletBalanceCents -= entry.AmountCents
	entry.BalanceAfterCents = account.WalletBalanceCents
	r.appendEntry(entry)
	return nil
}

func (r *MemLedgerRepository) CreditWallet(ctx context.Context, entry *domain.LedgerEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[entry.AccountID]
	if !ok {
		return domain.ErrNotFound
	}
	entry.BalanceBeforeCents = account.WalletBalanceCents
	account.WalletBalanceCents += entry.AmountCents
	entry.BalanceAfterCents = account.WalletBalanceCents
	r.appendEntry(entry)
	return nil
}

func (r *MemLedgerRepository) IncrementCredit(ctx context.Context, entry *domain.LedgerEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[entry.AccountID]
	if !ok {
		return domain.ErrNotFound
	}
	if account.CurrentCreditCents+entry.AmountCents > account.CreditLimitCents {
		return domain.ErrCreditLimitExceeded
	}
	entry.BalanceBeforeCents = account.CurrentCreditCents
	account.CurrentCreditCents += entry.AmountCents
	entry.BalanceAfterCents = account.CurrentCreditCents
	r.appendEntry(entry)
	return nil
}

func (r *MemLedgerRepository) ReleaseCredit(ctx context.Context, entry *domain.LedgerEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[entry.AccountID]
	if !ok {
		return domain.ErrNotFound
	}
	if account.CurrentCreditCents < entry.AmountCents {
		return domain.ErrInvalidState
	}
	entry.BalanceBeforeCents = account.CurrentCreditCents
	account.CurrentCreditCents -= entry.AmountCents
	entry.BalanceAfterCents = account.CurrentCreditCents
	r.appendEntry(entry)
	return nil
}

func (r *MemLedgerRepository) EntriesForAccount(ctx context.Context, accountID int64) ([]domain.LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.LedgerEntry(nil), r.entries[accountID]...), nil
}

func (r *MemLedgerRepository) appendEntry(entry *domain.LedgerEntry) {
	r.nextID++
	entry.ID = r.nextID
	entry.CreatedAt = time.Now()
	r.entries[entry.AccountID] = append(r.entries[entry.AccountID], *entry)
}

var (
	_ RequestRepository  = (*MemRequestRepository)(nil)
	_ ApprovalRepository = (*MemApprovalRepository)(nil)
	_ LedgerRepository   = (*MemLedgerRepository)(nil)
)
