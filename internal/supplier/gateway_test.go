package supplier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/avoronin/corptravel/config"
	"github.com/avoronin/corptravel/internal/domain"
	"github.com/stretchr/testify/assert"
)

func newTestGateway(serverURL string) *HTTPGateway {
	return NewHTTPGateway(config.SupplierConfig{
		Environment:    "sandbox",
		SandboxURL:     serverURL,
		APIKey:         "test-key",
		TimeoutSeconds: 1,
	})
}

func TestHTTPGateway_Quote_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/quotes/trace-1", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(Fare{TotalCents: 45000, Currency: "EUR", FareClass: "Y"})
	}))
	defer server.Close()

	gateway := newTestGateway(server.URL)
	fare, err := gateway.Quote(context.Background(), "trace-1")

	assert.NoError(t, err)
	assert.Equal(t, int64(45000), fare.TotalCents)
	assert.Equal(t, "EUR", fare.Currency)
}

func TestHTTPGateway_Quote_StaleTrace(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
		json.NewEncoder(w).Encode(map[string]string{"code": "STALE_TRACE", "message": "search context expired"})
	}))
	defer server.Close()

	gateway := newTestGateway(server.URL)
	fare, err := gateway.Quote(context.Background(), "trace-old")

	assert.Nil(t, fare)
	assert.ErrorIs(t, err, domain.ErrStaleSearchTrace)
	// Stale traces are one face of supplier unavailability.
	assert.ErrorIs(t, err, domain.ErrSupplierUnavailable)
}

func TestHTTPGateway_Quote_SoldOut(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"code": "SOLD_OUT", "message": "fare class no longer available"})
	}))
	defer server.Close()

	gateway := newTestGateway(server.URL)
	fare, err := gateway.Quote(context.Background(), "trace-1")

	assert.Nil(t, fare)
	assert.ErrorIs(t, err, domain.ErrSupplierUnavailable)
}

func TestHTTPGateway_Book_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/bookings", r.URL.Path)

		var req BookRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "trace-1", req.SearchTrace)
		assert.Len(t, req.Travelers, 1)

		json.NewEncoder(w).Encode(BookResponse{Confirmation: "PNR123", TicketNumbers: []string{"125-1"}})
	}))
	defer server.Close()

	gateway := newTestGateway(server.URL)
	resp, err := gateway.Book(context.Background(), BookRequest{
		SearchTrace: "trace-1",
		Kind:        domain.BookingKindFlight,
		Travelers:   []domain.Traveler{{FullName: "A. Traveler"}},
		TotalCents:  45000,
		Currency:    "EUR",
	})

	assert.NoError(t, err)
	assert.Equal(t, "PNR123", resp.Confirmation)
}

func TestHTTPGateway_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(1200 * time.Millisecond)
	}))
	defer server.Close()

	gateway := newTestGateway(server.URL)
	fare, err := gateway.Quote(context.Background(), "trace-1")

	assert.Nil(t, fare)
	assert.ErrorIs(t, err, domain.ErrSupplierUnavailable)
}

func TestNewHTTPGateway_EnvironmentSelection(t *testing.T) {
	sandbox := NewHTTPGateway(config.SupplierConfig{Environment: "sandbox", SandboxURL: "http://sandbox", LiveURL: "http://live", TimeoutSeconds: 5})
	assert.Equal(t, "http://sandbox", sandbox.baseURL)

	live := NewHTTPGateway(config.SupplierConfig{Environment: "live", SandboxURL: "http://sandbox", LiveURL: "http://live", TimeoutSeconds: 5})
	assert.Equal(t, "http://live", live.baseURL)
}
