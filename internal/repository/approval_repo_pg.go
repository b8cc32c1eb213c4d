package repository

import (
	"context"
	"errors"
	"time"

	"github.com/avoronin/corptravel/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ApprovalRepository interface {
	Create(ctx context.Context, approval *domain.Approval) error
	GetByID(ctx context.Context, id string) (*domain.Approval, error)
	GetPendingByReference(ctx context.Context, reference string) (*domain.Approval, error)
	Decide(ctx context.Context, id string, status domain.ApprovalStatus, comments string, decidedAt time.Time) (*domain.Approval, error)
}

type PGApprovalRepository struct {
	db *pgxpool.Pool
}

func NewApprovalRepository(db *pgxpool.Pool) ApprovalRepository {
	return &PGApprovalRepository{db: db}
}

const approvalColumns = `id, reference, requester_id, approver_id, status, comments, decided_at, created_at, updated_at`

func (r *PGApprovalRepository) Create(ctx context.Context, approval *domain.Approval) error {
	approval.Status = domain.ApprovalStatusPending
	return r.db.QueryRow(ctx, `INSERT INTO approvals (id, reference, requester_id, approver_id, status, comments)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		approval.ID, approval.Reference, approval.RequesterID, approval.ApproverID, approval.Status, approval.Comments).
		Scan(&approval.CreatedAt, &approval.UpdatedAt)
}

func (r *PGApprovalRepository) GetByID(ctx context.Context, id string) (*domain.Approval, error) {
	row := r.db.QueryRow(ctx, `SELECT `+approvalColumns+` FROM approvals WHERE id=$1`, id)
	approval, err := scanApproval(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return approval, err
}

func (r *PGApprovalRepository) GetPendingByReference(ctx context.Context, reference string) (*domain.Approval, error) {
	row := r.db.QueryRow(ctx, `SELECT `+approvalColumns+` FROM approvals WHERE reference=$1 AND status=$2`,
		reference, domain.ApprovalStatusPending)
	approval, err := scanApproval(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return approval, err
}

// Decide flips a PENDING approval to its final status. The WHERE clause is
// the race guard: of two concurrent deciders exactly one updates a row, the
// other gets ErrAlreadyProcessed.
func (r *PGApprovalRepository) Decide(ctx context.Context, id string, status domain.ApprovalStatus, comments string, decidedAt time.Time) (*domain.Approval, error) {
	row := r.db.QueryRow(ctx, `UPDATE approvals
		SET status=$1, comments=$2, decided_at=$3, updated_at=now()
		WHERE id=$4 AND status=$5
		RETURNING `+approvalColumns, status, comments, decidedAt, id, domain.ApprovalStatusPending)
	approval, err := scanApproval(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrAlreadyProcessed
	}
	return approval, err
}

func scanApproval(row pgx.Row) (*domain.Approval, error) {
	var a domain.Approval
	if err := row.Scan(&a.ID, &a.Reference, &a.RequesterID, &a.ApproverID, &a.Status, &a.Comments,
		&a.DecidedAt, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

var _ ApprovalRepository = (*PGApprovalRepository)(nil)
