package domain

import "time"

type BookingKind string

const (
	BookingKindFlight BookingKind = "FLIGHT"
	BookingKindHotel  BookingKind = "HOTEL"
)

type RequestStatus string

const (
	RequestStatusDraft           RequestStatus = "DRAFT"
	RequestStatusPendingApproval RequestStatus = "PENDING_APPROVAL"
	RequestStatusApproved        RequestStatus = "APPROVED"
	RequestStatusRejected        RequestStatus = "REJECTED"
	RequestStatusExpired         RequestStatus = "EXPIRED"
)

type ExecutionStatus string

const (
	ExecutionStatusNotStarted       ExecutionStatus = "NOT_STARTED"
	ExecutionStatusBookingInitiated ExecutionStatus = "BOOKING_INITIATED"
	ExecutionStatusBooked           ExecutionStatus = "BOOKED"
	ExecutionStatusTicketed         ExecutionStatus = "TICKETED"
	ExecutionStatusFailed           ExecutionStatus = "FAILED"
	ExecutionStatusCancelled        ExecutionStatus = "CANCELLED"
)

// requestTransitions enumerates every legal requestStatus transition.
// Rejected and Expired are terminal.
var requestTransitions = map[RequestStatus][]RequestStatus{
	RequestStatusDraft:           {RequestStatusPendingApproval},
	RequestStatusPendingApproval: {RequestStatusApproved, RequestStatusRejected, RequestStatusExpired},
}

// executionTransitions enumerates every legal executionStatus transition.
// Failed is reachable from any non-terminal state; Cancelled only from
// Booked/Ticketed. Failed may re-enter BookingInitiated so a failed
// execution can be resubmitted without re-running approval.
var executionTransitions = map[ExecutionStatus][]ExecutionStatus{
	ExecutionStatusNotStarted:       {ExecutionStatusBookingInitiated, ExecutionStatusFailed},
	ExecutionStatusBookingInitiated: {ExecutionStatusBooked, ExecutionStatusFailed},
	ExecutionStatusBooked:           {ExecutionStatusTicketed, ExecutionStatusFailed, ExecutionStatusCancelled},
	ExecutionStatusTicketed:         {ExecutionStatusCancelled},
	ExecutionStatusFailed:           {ExecutionStatusBookingInitiated},
}

func (s RequestStatus) CanTransitionTo(next RequestStatus) bool {
	for _, allowed := range requestTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s ExecutionStatus) CanTransitionTo(next ExecutionStatus) bool {
	for _, allowed := range executionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Traveler struct {
	FullName string `json:"full_name"`
	Document string `json:"document"`
	Email    string `json:"email"`
}

type Segment struct {
	Origin      string    `json:"origin"`
	Destination string    `json:"destination"`
	Carrier     string    `json:"carrier"`
	Departure   time.Time `json:"departure"`
	Arrival     time.Time `json:"arrival"`
	FareClass   string    `json:"fare_class"`
}

// FareSnapshot is the immutable capture of a priced itinerary at request
// time. After ExpiresAt the snapshotted price may no longer be trusted and
// reconciliation against the supplier is mandatory before execution.
type FareSnapshot struct {
	SearchTrace   string    `json:"search_trace"`
	Segments      []Segment `json:"segments"`
	BaseFareCents int64     `json:"base_fare_cents"`
	TaxCents      int64     `json:"tax_cents"`
	Currency      string    `json:"currency"`
	Refundable    bool      `json:"refundable"`
	ExpiresAt     time.Time `json:"expires_at"`
}

func (f FareSnapshot) Expired(now time.Time) bool {
	return !now.Before(f.ExpiresAt)
}

// PricingSnapshot is the total the traveler saw, overwritten in place by
// price reconciliation so re-reads always reflect the latest re-quote.
type PricingSnapshot struct {
	TotalCents int64     `json:"total_cents"`
	Currency   string    `json:"currency"`
	CapturedAt time.Time `json:"captured_at"`
}

// PriceAudit records one detected drift between the snapshotted total and a
// fresh supplier quote. Entries are append-only and survive the caller's
// decision to proceed.
type PriceAudit struct {
	ID            int64     `json:"id"`
	Reference     string    `json:"reference"`
	PreviousCents int64     `json:"previous_cents"`
	NewCents      int64     `json:"new_cents"`
	DeltaCents    int64     `json:"delta_cents"`
	Currency      string    `json:"currency"`
	DetectedAt    time.Time `json:"detected_at"`
}

// BookingResult holds the supplier's confirmation. TicketPending marks the
// low-cost-carrier pattern where ticket numbers arrive on a later poll.
type BookingResult struct {
	Confirmation    string    `json:"confirmation"`
	SupplierPayload string    `json:"supplier_payload"`
	TicketNumbers   []string  `json:"ticket_numbers"`
	TicketPending   bool      `json:"ticket_pending"`
	BookedAt        time.Time `json:"booked_at"`
}

type PaymentMethod string

const (
	PaymentMethodWallet PaymentMethod = "WALLET"
	PaymentMethodCredit PaymentMethod = "CREDIT"
)

type PaymentRecord struct {
	Method        PaymentMethod `json:"method"`
	TransactionID string        `json:"transaction_id"`
	AmountCents   int64         `json:"amount_cents"`
	Currency      string        `json:"currency"`
	SettledAt     time.Time     `json:"settled_at"`
}

type CancellationRecord struct {
	Reason           string    `json:"reason"`
	RefundCents      int64     `json:"refund_cents"`
	ChargeCents      int64     `json:"charge_cents"`
	SupplierResponse string    `json:"supplier_response"`
	CancelledAt      time.Time `json:"cancelled_at"`
}

// BookingRequest is the aggregate root. RequestStatus and ExecutionStatus are
// independent axes: execution may only leave NOT_STARTED once the request is
// APPROVED. Version backs the optimistic guard on status transitions.
type BookingRequest struct {
	ID              int64
	Reference       string
	Kind            BookingKind
	OrgID           int64
	RequesterID     int64
	Travelers       []Traveler
	Purpose         string
	Fare            FareSnapshot
	Pricing         PricingSnapshot
	RequestStatus   RequestStatus
	ExecutionStatus ExecutionStatus
	Booking         *BookingResult
	Payment         *PaymentRecord
	Cancellation    *CancellationRecord
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
