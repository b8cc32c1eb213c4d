package repository

import (
	"context"
	"errors"

	"github.com/avoronin/corptravel/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type LedgerRepository interface {
	GetAccountByOrg(ctx context.Context, orgID int64) (*domain.LedgerAccount, error)
	DebitWallet(ctx context.Context, entry *domain.LedgerEntry) error
	CreditWallet(ctx context.Context, entry *domain.LedgerEntry) error
	IncrementCredit(ctx context.Context, entry *domain.LedgerEntry) error
	ReleaseCredit(ctx context.Context, entry *domain.LedgerEntry) error
	EntriesForAccount(ctx context.Context, accountID int64) ([]domain.LedgerEntry, error)
}

type PGLedgerRepository struct {
	db *pgxpool.Pool
}

func NewLedgerRepository(db *pgxpool.Pool) LedgerRepository {
	return &PGLedgerRepository{db: db}
}

func (r *PGLedgerRepository) GetAccountByOrg(ctx context.Context, orgID int64) (*domain.LedgerAccount, error) {
	row := r.db.QueryRow(ctx, `SELECT id, org_id, classification, currency, wallet_balance_cents,
		credit_limit_cents, current_credit_cents, created_at, updated_at
		FROM ledger_accounts WHERE org_id=$1`, orgID)
	var a domain.LedgerAccount
	if err := row.Scan(&a.ID, &a.OrgID, &a.Classification, &a.Currency, &a.WalletBalanceCents,
		&a.CreditLimitCents, &a.CurrentCreditCents, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// DebitWallet performs the conditional balance check and the entry append in
// one transaction. The WHERE clause rejects the debit when funds are short,
// so the balance can never go negative regardless of interleaving.
func (r *PGLedgerRepository) DebitWallet(ctx context.Context, entry *domain.LedgerEntry) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var after int64
	err = tx.QueryRow(ctx, `UPDATE ledger_accounts
		SET wallet_balance_cents = wallet_balance_cents - $1, updated_at=now()
		WHERE id=$2 AND wallet_balance_cents >= $1
		RETURNING wallet_balance_cents`, entry.AmountCents, entry.AccountID).Scan(&after)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrInsufficientFunds
	}
	if err != nil {
		return err
	}

	entry.BalanceBeforeCents = after + entry.AmountCents
	entry.BalanceAfterCents = after
	if err := insertEntry(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *PGLedgerRepository) CreditWallet(ctx context.Context, entry *domain.LedgerEntry) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var after int64
	if err := tx.QueryRow(ctx, `UPDATE ledger_accounts
		SET wallet_balance_cents = wallet_balance_cents + $1, updated_at=now()
		WHERE id=$2
		RETURNING wallet_balance_cents`, entry.AmountCents, entry.AccountID).Scan(&after); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		return err
	}

	entry.BalanceBeforeCents = after - entry.AmountCents
	entry.BalanceAfterCents = after
	if err := insertEntry(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// IncrementCredit grows postpaid usage, hard-blocked at the credit limit.
func (r *PGLedgerRepository) IncrementCredit(ctx context.Context, entry *domain.LedgerEntry) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var after int64
	err = tx.QueryRow(ctx, `UPDATE ledger_accounts
		SET current_credit_cents = current_credit_cents + $1, updated_at=now()
		WHERE id=$2 AND current_credit_cents + $1 <= credit_limit_cents
		RETURNING current_credit_cents`, entry.AmountCents, entry.AccountID).Scan(&after)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrCreditLimitExceeded
	}
	if err != nil {
		return err
	}

	entry.BalanceBeforeCents = after - entry.AmountCents
	entry.BalanceAfterCents = after
	if err := insertEntry(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *PGLedgerRepository) ReleaseCredit(ctx context.Context, entry *domain.LedgerEntry) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var after int64
	err = tx.QueryRow(ctx, `UPDATE ledger_accounts
		SET current_credit_cents = current_credit_cents - $1, updated_at=now()
		WHERE id=$2 AND current_credit_cents >= $1
		RETURNING current_credit_cents`, entry.AmountCents, entry.AccountID).Scan(&after)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrInvalidState
	}
	if err != nil {
		return err
	}

	entry.BalanceBeforeCents = after + entry.AmountCents
	entry.BalanceAfterCents = after
	if err := insertEntry(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *PGLedgerRepository) EntriesForAccount(ctx context.Context, accountID int64) ([]domain.LedgerEntry, error) {
	rows, err := r.db.Query(ctx, `SELECT id, transaction_id, account_id, reference, type, status,
		amount_cents, balance_before_cents, balance_after_cents, currency, created_at
		FROM ledger_entries WHERE account_id=$1 ORDER BY id`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.LedgerEntry, 0)
	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(&e.ID, &e.TransactionID, &e.AccountID, &e.Reference, &e.Type, &e.Status,
			&e.AmountCents, &e.BalanceBeforeCents, &e.BalanceAfterCents, &e.Currency, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func insertEntry(ctx context.Context, tx pgx.Tx, entry *domain.LedgerEntry) error {
	return tx.QueryRow(ctx, `INSERT INTO ledger_entries
		(transaction_id, account_id, reference, type, status, amount_cents, balance_before_cents, balance_after_cents, currency)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`,
		entry.TransactionID, entry.AccountID, entry.Reference, entry.Type, entry.Status,
		entry.AmountCents, entry.BalanceBeforeCents, entry.BalanceAfterCents, entry.Currency).
		Scan(&entry.ID, &entry.CreatedAt)
}

var _ LedgerRepository = (*PGLedgerRepository)(nil)
