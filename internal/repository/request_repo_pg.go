package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/avoronin/corptravel/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type RequestRepository interface {
	Create(ctx context.Context, request *domain.BookingRequest) error
	GetByReference(ctx context.Context, reference string) (*domain.BookingRequest, error)
	TransitionRequestStatus(ctx context.Context, reference string, from, to domain.RequestStatus) (*domain.BookingRequest, error)
	TransitionExecutionStatus(ctx context.Context, reference string, from, to domain.ExecutionStatus) (*domain.BookingRequest, error)
	UpdatePricing(ctx context.Context, reference string, pricing domain.PricingSnapshot) error
	AppendPriceAudit(ctx context.Context, audit *domain.PriceAudit) error
	PriceAudits(ctx context.Context, reference string) ([]domain.PriceAudit, error)
	SaveBookingResult(ctx context.Context, reference string, result *domain.BookingResult) error
	SavePaymentRecord(ctx context.Context, reference string, payment *domain.PaymentRecord) error
	SaveCancellationRecord(ctx context.Context, reference string, record *domain.CancellationRecord) error
	ExpirePendingBefore(ctx context.Context, deadline time.Time) ([]domain.BookingRequest, error)
	ListTicketPending(ctx context.Context) ([]domain.BookingRequest, error)
}

type PGRequestRepository struct {
	db *pgxpool.Pool
}

func NewRequestRepository(db *pgxpool.Pool) RequestRepository {
	return &PGRequestRepository{db: db}
}

const requestColumns = `id, reference, kind, org_id, requester_id, travelers, purpose, fare, pricing,
	request_status, execution_status, booking_result, payment, cancellation, version, created_at, updated_at`

func (r *PGRequestRepository) Create(ctx context.Context, request *domain.BookingRequest) error {
	travelers, err := json.Marshal(request.Travelers)
	if err != nil {
		return err
	}
	fare, err := json.Marshal(request.Fare)
	if err != nil {
		return err
	}
	pricing, err := json.Marshal(request.Pricing)
	if err != nil {
		return err
	}

	request.RequestStatus = domain.RequestStatusDraft
	request.ExecutionStatus = domain.ExecutionStatusNotStarted
	return r.db.QueryRow(ctx, `INSERT INTO booking_requests
		(reference, kind, org_id, requester_id, travelers, purpose, fare, pricing, request_status, execution_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, version, created_at, updated_at`,
		request.Reference, request.Kind, request.OrgID, request.RequesterID, travelers,
		request.Purpose, fare, pricing, request.RequestStatus, request.ExecutionStatus).
		Scan(&request.ID, &request.Version, &request.CreatedAt, &request.UpdatedAt)
}

func (r *PGRequestRepository) GetByReference(ctx context.Context, reference string) (*domain.BookingRequest, error) {
	row := r.db.QueryRow(ctx, `SELECT `+requestColumns+` FROM booking_requests WHERE reference=$1`, reference)
	request, err := scanRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return request, err
}

// TransitionRequestStatus moves the request along the request axis with a
// compare-and-swap on the current status. A lost race or illegal source
// state surfaces as ErrInvalidState; the caller decides how to report it.
func (r *PGRequestRepository) TransitionRequestStatus(ctx context.Context, reference string, from, to domain.RequestStatus) (*domain.BookingRequest, error) {
	if !from.CanTransitionTo(to) {
		return nil, domain.ErrInvalidState
	}
	row := r.db.QueryRow(ctx, `UPDATE booking_requests
		SET request_status=$1, version=version+1, updated_at=now()
		WHERE reference=$2 AND request_status=$3
		RETURNING `+requestColumns, to, reference, from)
	updated, err := scanRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrInvalidState
	}
	return updated, err
}

func (r *PGRequestRepository) TransitionExecutionStatus(ctx context.Context, reference string, from, to domain.ExecutionStatus) (*domain.BookingRequest, error) {
	if !from.CanTransitionTo(to) {
		return nil, domain.ErrInvalidState
	}
	row := r.db.QueryRow(ctx, `UPDATE booking_requests
		SET execution_status=$1, version=version+1, updated_at=now()
		WHERE reference=$2 AND execution_status=$3
		RETURNING `+requestColumns, to, reference, from)
	updated, err := scanRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrInvalidState
	}
	return updated, err
}

func (r *PGRequestRepository) UpdatePricing(ctx context.Context, reference string, pricing domain.PricingSnapshot) error {
	payload, err := json.Marshal(pricing)
	if err != nil {
		return err
	}
	cmd, err := r.db.Exec(ctx, `UPDATE booking_requests SET pricing=$1, updated_at=now() WHERE reference=$2`, payload, reference)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PGRequestRepository) AppendPriceAudit(ctx context.Context, audit *domain.PriceAudit) error {
	return r.db.QueryRow(ctx, `INSERT INTO price_audits (reference, previous_cents, new_cents, delta_cents, currency, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		audit.Reference, audit.PreviousCents, audit.NewCents, audit.DeltaCents, audit.Currency, audit.DetectedAt).
		Scan(&audit.ID)
}

func (r *PGRequestRepository) PriceAudits(ctx context.Context, reference string) ([]domain.PriceAudit, error) {
	rows, err := r.db.Query(ctx, `SELECT id, reference, previous_cents, new_cents, delta_cents, currency, detected_at
		FROM price_audits WHERE reference=$1 ORDER BY id`, reference)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	audits := make([]domain.PriceAudit, 0)
	for rows.Next() {
		var a domain.PriceAudit
		if err := rows.Scan(&a.ID, &a.Reference, &a.PreviousCents, &a.NewCents, &a.DeltaCents, &a.Currency, &a.DetectedAt); err != nil {
			return nil, err
		}
		audits = append(audits, a)
	}
	return audits, rows.Err()
}

func (r *PGRequestRepository) SaveBookingResult(ctx context.Context, reference string, result *domain.BookingResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return err
	}
	cmd, err := r.db.Exec(ctx, `UPDATE booking_requests SET booking_result=$1, updated_at=now() WHERE reference=$2`, payload, reference)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PGRequestRepository) SavePaymentRecord(ctx context.Context, reference string, payment *domain.PaymentRecord) error {
	payload, err := json.Marshal(payment)
	if err != nil {
		return err
	}
	cmd, err := r.db.Exec(ctx, `UPDATE booking_requests SET payment=$1, updated_at=now() WHERE reference=$2 AND payment IS NULL`, payload, reference)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrAlreadyProcessed
	}
	return nil
}

func (r *PGRequestRepository) SaveCancellationRecord(ctx context.Context, reference string, record *domain.CancellationRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	cmd, err := r.db.Exec(ctx, `UPDATE booking_requests SET cancellation=$1, updated_at=now() WHERE reference=$2`, payload, reference)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ExpirePendingBefore times out requests whose fare snapshot expired while
// they sat in approval. Driven by the worker sweep.
func (r *PGRequestRepository) ExpirePendingBefore(ctx context.Context, deadline time.Time) ([]domain.BookingRequest, error) {
	rows, err := r.db.Query(ctx, `UPDATE booking_requests
		SET request_status=$1, version=version+1, updated_at=now()
		WHERE request_status=$2 AND (fare->>'expires_at')::timestamptz <= $3
		RETURNING `+requestColumns, domain.RequestStatusExpired, domain.RequestStatusPendingApproval, deadline)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var expired []domain.BookingRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		expired = append(expired, *req)
	}
	return expired, rows.Err()
}

func (r *PGRequestRepository) ListTicketPending(ctx context.Context) ([]domain.BookingRequest, error) {
	rows, err := r.db.Query(ctx, `SELECT `+requestColumns+` FROM booking_requests
		WHERE execution_status=$1 AND (booking_result->>'ticket_pending')::bool
		ORDER BY updated_at`, domain.ExecutionStatusBooked)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pending []domain.BookingRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		pending = append(pending, *req)
	}
	return pending, rows.Err()
}

func scanRequest(row pgx.Row) (*domain.BookingRequest, error) {
	var (
		req                                  domain.BookingRequest
		travelers, fare, pricing             []byte
		bookingResult, payment, cancellation []byte
	)
	if err := row.Scan(&req.ID, &req.Reference, &req.Kind, &req.OrgID, &req.RequesterID,
		&travelers, &req.Purpose, &fare, &pricing, &req.RequestStatus, &req.ExecutionStatus,
		&bookingResult, &payment, &cancellation, &req.Version, &req.CreatedAt, &req.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(travelers, &req.Travelers); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(fare, &req.Fare); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(pricing, &req.Pricing); err != nil {
		return nil, err
	}
	if bookingResult != nil {
		if err := json.Unmarshal(bookingResult, &req.Booking); err != nil {
			return nil, err
		}
	}
	if payment != nil {
		if err := json.Unmarshal(payment, &req.Payment); err != nil {
			return nil, err
		}
	}
	if cancellation != nil {
		if err := json.Unmarshal(cancellation, &req.Cancellation); err != nil {
			return nil, err
		}
	}
	return &req, nil
}

var _ RequestRepository = (*PGRequestRepository)(nil)
