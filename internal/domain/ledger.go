package domain

import "time"

type AccountClassification string

const (
	AccountPrepaid  AccountClassification = "PREPAID"
	AccountPostpaid AccountClassification = "POSTPAID"
)

// LedgerAccount is the per-organization financial state. Prepaid accounts
// spend WalletBalanceCents; postpaid accounts accumulate CurrentCreditCents
// against CreditLimitCents. Balances are authoritative derived state; the
// LedgerEntry trail is the audit record, and the two must never diverge.
type LedgerAccount struct {
	ID                 int64
	OrgID              int64
	Classification     AccountClassification
	Currency           string
	WalletBalanceCents int64
	CreditLimitCents   int64
	CurrentCreditCents int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type EntryType string

const (
	EntryTypeBooking EntryType = "BOOKING"
	EntryTypeRefund  EntryType = "REFUND"
	EntryTypeTopUp   EntryType = "TOP_UP"
)

type EntryStatus string

const (
	EntryStatusCompleted EntryStatus = "COMPLETED"
	// Postpaid booking entries stay PENDING until the external billing
	// cycle settles them.
	EntryStatusPending EntryStatus = "PENDING"
)

// LedgerEntry is one immutable balance mutation. BalanceBefore/BalanceAfter
// snapshot the mutated balance (wallet or current credit) around the write.
type LedgerEntry struct {
	ID                 int64
	TransactionID      string
	AccountID          int64
	Reference          string
	Type               EntryType
	Status             EntryStatus
	AmountCents        int64
	BalanceBeforeCents int64
	BalanceAfterCents  int64
	Currency           string
	CreatedAt          time.Time
}
