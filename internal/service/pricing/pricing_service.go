package pricing

import (
	"context"
	"time"

	"github.com/avoronin/corptravel/internal/domain"
	"github.com/avoronin/corptravel/internal/repository"
	"github.com/avoronin/corptravel/internal/supplier"
	"go.uber.org/zap"
)

type PricingUseCase interface {
	Reverify(ctx context.Context, reference string) (*ReverifyResult, error)
}

// QuoteCache keeps the latest live quote per search trace for read paths.
// Reverify never reads from it; every reconciliation hits the supplier.
type QuoteCache interface {
	SetQuote(ctx context.Context, searchTrace string, pricing domain.PricingSnapshot) error
}

type ReverifyResult struct {
	Drifted bool
	Pricing domain.PricingSnapshot
	Audit   *domain.PriceAudit
}

type PricingService struct {
	requests repository.RequestRepository
	gateway  supplier.Gateway
	cache    QuoteCache
	logger   *zap.Logger
}

func NewPricingService(requests repository.RequestRepository, gateway supplier.Gateway, cache QuoteCache, logger *zap.Logger) *PricingService {
	return &PricingService{requests: requests, gateway: gateway, cache: cache, logger: logger}
}

// Reverify re-quotes the snapshotted itinerary against the live supplier
// price. The pass condition is exact equality; any difference overwrites the
// pricing snapshot and appends a PriceAudit. Whether to proceed at the new
// price is the caller's call, this component only surfaces the delta.
func (s *PricingService) Reverify(ctx context.Context, reference string) (*ReverifyResult, error) {
	request, err := s.requests.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	// Reconciliation is open to anything that can still reach the supplier:
	// not-started executions and pre-booking failures awaiting resubmission.
	resubmittable := request.ExecutionStatus == domain.ExecutionStatusFailed && request.Booking == nil
	if request.RequestStatus != domain.RequestStatusApproved ||
		(request.ExecutionStatus != domain.ExecutionStatusNotStarted && !resubmittable) {
		return nil, domain.NewStateError("reverify", domain.ErrNotApproved, request)
	}

	fare, err := s.gateway.Quote(ctx, request.Fare.SearchTrace)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		snapshot := domain.PricingSnapshot{TotalCents: fare.TotalCents, Currency: fare.Currency, CapturedAt: fare.QuotedAt}
		if err := s.cache.SetQuote(ctx, request.Fare.SearchTrace, snapshot); err != nil {
			s.logger.Warn("failed to cache quote", zap.String("reference", reference), zap.Error(err))
		}
	}

	if fare.TotalCents == request.Pricing.TotalCents && fare.Currency == request.Pricing.Currency {
		return &ReverifyResult{Drifted: false, Pricing: request.Pricing}, nil
	}

	now := time.Now()
	audit := &domain.PriceAudit{
		Reference:     reference,
		PreviousCents: request.Pricing.TotalCents,
		NewCents:      fare.TotalCents,
		DeltaCents:    fare.TotalCents - request.Pricing.TotalCents,
		Currency:      fare.Currency,
		DetectedAt:    now,
	}
	if err := s.requests.AppendPriceAudit(ctx, audit); err != nil {
		return nil, err
	}

	pricing := domain.PricingSnapshot{TotalCents: fare.TotalCents, Currency: fare.Currency, CapturedAt: now}
	if err := s.requests.UpdatePricing(ctx, reference, pricing); err != nil {
		return nil, err
	}

	s.logger.Info("price drift detected",
		zap.String("reference", reference),
		zap.Int64("previous_cents", audit.PreviousCents),
		zap.Int64("new_cents", audit.NewCents),
		zap.Int64("delta_cents", audit.DeltaCents))

	return &ReverifyResult{Drifted: true, Pricing: pricing, Audit: audit}, nil
}

var _ PricingUseCase = (*PricingService)(nil)
