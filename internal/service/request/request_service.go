package request

import (
	"context"
	"errors"
	"time"

	"github.com/avoronin/corptravel/internal/domain"
	"github.com/avoronin/corptravel/internal/kafka"
	"github.com/avoronin/corptravel/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type RequestUseCase interface {
	CreateDraft(ctx context.Context, input CreateDraftInput) (*domain.BookingRequest, error)
	GetByReference(ctx context.Context, reference string) (*domain.BookingRequest, error)
	PriceAudits(ctx context.Context, reference string) ([]domain.PriceAudit, error)
	AccountForOrg(ctx context.Context, orgID int64) (*domain.LedgerAccount, error)
	ExpirePending(ctx context.Context) ([]domain.BookingRequest, error)
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

type CreateDraftInput struct {
	Kind        domain.BookingKind  `json:"kind"`
	OrgID       int64               `json:"org_id"`
	RequesterID int64               `json:"requester_id"`
	Travelers   []domain.Traveler   `json:"travelers"`
	Purpose     string              `json:"purpose"`
	Fare        domain.FareSnapshot `json:"fare"`
	TotalCents  int64               `json:"total_cents"`
	Currency    string              `json:"currency"`
}

type RequestService struct {
	requests repository.RequestRepository
	ledger   repository.LedgerRepository
	producer Producer
	topic    string
	logger   *zap.Logger
}

func NewRequestService(
	requests repository.RequestRepository,
	ledger repository.LedgerRepository,
	producer Producer,
	topic string,
	logger *zap.Logger,
) *RequestService {
	return &RequestService{
		requests: requests,
		ledger:   ledger,
		producer: producer,
		topic:    topic,
		logger:   logger,
	}
}

// CreateDraft captures the priced itinerary into an immutable fare snapshot
// and opens a draft request around it. The traveler list is fixed from here
// on.
func (s *RequestService) CreateDraft(ctx context.Context, input CreateDraftInput) (*domain.BookingRequest, error) {
	if len(input.Travelers) == 0 {
		return nil, errors.New("at least one traveler is required")
	}
	if input.Kind != domain.BookingKindFlight && input.Kind != domain.BookingKindHotel {
		return nil, errors.New("booking kind must be flight or hotel")
	}
	if input.TotalCents <= 0 {
		return nil, errors.New("total amount must be positive")
	}
	if input.Fare.SearchTrace == "" {
		return nil, errors.New("fare snapshot requires a search trace")
	}
	if input.Fare.Expired(time.Now()) {
		return nil, errors.New("fare snapshot is already expired")
	}

	request := &domain.BookingRequest{
		Reference:   uuid.NewString(),
		Kind:        input.Kind,
		OrgID:       input.OrgID,
		RequesterID: input.RequesterID,
		Travelers:   input.Travelers,
		Purpose:     input.Purpose,
		Fare:        input.Fare,
		Pricing: domain.PricingSnapshot{
			TotalCents: input.TotalCents,
			Currency:   input.Currency,
			CapturedAt: time.Now(),
		},
	}
	if err := s.requests.Create(ctx, request); err != nil {
		return nil, err
	}
	return request, nil
}

func (s *RequestService) GetByReference(ctx context.Context, reference string) (*domain.BookingRequest, error) {
	return s.requests.GetByReference(ctx, reference)
}

func (s *RequestService) PriceAudits(ctx context.Context, reference string) ([]domain.PriceAudit, error) {
	return s.requests.PriceAudits(ctx, reference)
}

func (s *RequestService) AccountForOrg(ctx context.Context, orgID int64) (*domain.LedgerAccount, error) {
	return s.ledger.GetAccountByOrg(ctx, orgID)
}

// ExpirePending times out requests whose fare snapshot lapsed while awaiting
// approval. Called by the worker sweep.
func (s *RequestService) ExpirePending(ctx context.Context) ([]domain.BookingRequest, error) {
	expired, err := s.requests.ExpirePendingBefore(ctx, time.Now())
	if err != nil {
		return nil, err
	}
	for i := range expired {
		s.publish(ctx, "request_expired", &expired[i])
	}
	return expired, nil
}

func (s *RequestService) publish(ctx context.Context, eventType string, request *domain.BookingRequest) {
	if s.producer == nil || s.topic == "" {
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
		s.logger.Warn("failed to publish request event",
			zap.String("type", eventType),
			zap.String("reference", request.Reference),
			zap.Error(err))
	}
}

var _ RequestUseCase = (*RequestService)(nil)
