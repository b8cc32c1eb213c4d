package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/avoronin/corptravel/internal/domain"
	"github.com/avoronin/corptravel/internal/service/request"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockRequestUseCase struct {
	mock.Mock
}

func (m *MockRequestUseCase) CreateDraft(ctx context.Context, input request.CreateDraftInput) (*domain.BookingRequest, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BookingRequest), args.Error(1)
}

func (m *MockRequestUseCase) GetByReference(ctx context.Context, reference string) (*domain.BookingRequest, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BookingRequest), args.Error(1)
}

func (m *MockRequestUseCase) PriceAudits(ctx context.Context, reference string) ([]domain.PriceAudit, error) {
	args := m.Called(ctx, reference)
	return args.Get(0).([]domain.PriceAudit), args.Error(1)
}

func (m *MockRequestUseCase) AccountForOrg(ctx context.Context, orgID int64) (*domain.LedgerAccount, error) {
	args := m.Called(ctx, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LedgerAccount), args.Error(1)
}

func (m *MockRequestUseCase) ExpirePending(ctx context.Context) ([]domain.BookingRequest, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.BookingRequest), args.Error(1)
}

func sampleRequest() *domain.BookingRequest {
	return &domain.BookingRequest{
		ID:              1,
		Reference:       "ref-123",
		Kind:            domain.BookingKindFlight,
		OrgID:           7,
		RequesterID:     42,
		Travelers:       []domain.Traveler{{FullName: "A. Traveler"}},
		Purpose:         "client onsite",
		Fare:            domain.FareSnapshot{SearchTrace: "trace", ExpiresAt: time.Now().Add(time.Hour), Currency: "EUR"},
		Pricing:         domain.PricingSnapshot{TotalCents: 45000, Currency: "EUR", CapturedAt: time.Now()},
		RequestStatus:   domain.RequestStatusDraft,
		ExecutionStatus: domain.ExecutionStatusNotStarted,
	}
}

func TestRequestHandler_create(t *testing.T) {
	mockService := &MockRequestUseCase{}
	handler := NewRequestHandler(mockService)

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	input := request.CreateDraftInput{
		Kind:        domain.BookingKindFlight,
		OrgID:       7,
		RequesterID: 42,
		Travelers:   []domain.Traveler{{FullName: "A. Traveler"}},
		Purpose:     "client onsite",
		Fare:        domain.FareSnapshot{SearchTrace: "trace", ExpiresAt: time.Now().Add(time.Hour).UTC().Truncate(time.Second), Currency: "EUR"},
		TotalCents:  45000,
		Currency:    "EUR",
	}
	body, _ := json.Marshal(input)
	c.Request = httptest.NewRequest("POST", "/requests", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	mockService.On("CreateDraft", c.Request.Context(), mock.AnythingOfType("request.CreateDraftInput")).
		Return(sampleRequest(), nil)

	handler.create(c)

	assert.Equal(t, http.StatusCreated, w.Code)

	var response requestResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	assert.NoError(t, err)
	assert.Equal(t, "ref-123", response.Reference)
	assert.Equal(t, string(domain.RequestStatusDraft), response.RequestStatus)
	assert.Equal(t, string(domain.ExecutionStatusNotStarted), response.ExecutionStatus)

	mockService.AssertExpectations(t)
}

func TestRequestHandler_get(t *testing.T) {
	mockService := &MockRequestUseCase{}
	handler := NewRequestHandler(mockService)

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/requests/ref-123", nil)
	c.Params = gin.Params{{Key: "reference", Value: "ref-123"}}

	mockService.On("GetByReference", c.Request.Context(), "ref-123").Return(sampleRequest(), nil)

	handler.get(c)

	assert.Equal(t, http.StatusOK, w.Code)

	var response requestResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, int64(45000), response.TotalCents)
	mockService.AssertExpectations(t)
}

func TestRequestHandler_get_NotFound(t *testing.T) {
	mockService := &MockRequestUseCase{}
	handler := NewRequestHandler(mockService)

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/requests/missing", nil)
	c.Params = gin.Params{{Key: "reference", Value: "missing"}}

	mockService.On("GetByReference", c.Request.Context(), "missing").Return(nil, domain.ErrNotFound)

	handler.get(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
	mockService.AssertExpectations(t)
}
