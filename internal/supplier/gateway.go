package supplier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/avoronin/corptravel/config"
	"github.com/avoronin/corptravel/internal/domain"
)

// Gateway is the narrow contract against the external flight/hotel supplier.
// Every call is synchronous with a bounded timeout; errors are typed, there
// is no empty-success path.
type Gateway interface {
	Quote(ctx context.Context, searchTrace string) (*Fare, error)
	Book(ctx context.Context, req BookRequest) (*BookResponse, error)
	PollTicketStatus(ctx context.Context, confirmation string) (*TicketStatus, error)
	Cancel(ctx context.Context, confirmation string) (*CancellationResult, error)
}

type Fare struct {
	TotalCents int64     `json:"total_cents"`
	Currency   string    `json:"currency"`
	FareClass  string    `json:"fare_class"`
	QuotedAt   time.Time `json:"quoted_at"`
}

type BookRequest struct {
	SearchTrace string             `json:"search_trace"`
	Kind        domain.BookingKind `json:"kind"`
	Segments    []domain.Segment   `json:"segments"`
	Travelers   []domain.Traveler  `json:"travelers"`
	TotalCents  int64              `json:"total_cents"`
	Currency    string             `json:"currency"`
}

type BookResponse struct {
	Confirmation  string   `json:"confirmation"`
	RawPayload    string   `json:"raw_payload"`
	TicketNumbers []string `json:"ticket_numbers"`
	TicketPending bool     `json:"ticket_pending"`
}

type TicketStatus struct {
	Confirmation  string   `json:"confirmation"`
	Issued        bool     `json:"issued"`
	TicketNumbers []string `json:"ticket_numbers"`
}

type CancellationResult struct {
	Confirmation string `json:"confirmation"`
	RefundCents  int64  `json:"refund_cents"`
	ChargeCents  int64  `json:"charge_cents"`
	RawPayload   string `json:"raw_payload"`
}

type HTTPGateway struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPGateway resolves the sandbox/live endpoint once, at construction.
// Nothing downstream ever consults a process-wide environment flag.
func NewHTTPGateway(cfg config.SupplierConfig) *HTTPGateway {
	baseURL := cfg.SandboxURL
	if cfg.Environment == "live" {
		baseURL = cfg.LiveURL
	}
	return &HTTPGateway{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
	}
}

type supplierError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (g *HTTPGateway) Quote(ctx context.Context, searchTrace string) (*Fare, error) {
	var fare Fare
	if err := g.call(ctx, http.MethodGet, "/v1/quotes/"+searchTrace, nil, &fare); err != nil {
		return nil, err
	}
	return &fare, nil
}

func (g *HTTPGateway) Book(ctx context.Context, req BookRequest) (*BookResponse, error) {
	var resp BookResponse
	if err := g.call(ctx, http.MethodPost, "/v1/bookings", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (g *HTTPGateway) PollTicketStatus(ctx context.Context, confirmation string) (*TicketStatus, error) {
	var status TicketStatus
	if err := g.call(ctx, http.MethodGet, "/v1/bookings/"+confirmation+"/tickets", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (g *HTTPGateway) Cancel(ctx context.Context, confirmation string) (*CancellationResult, error) {
	var result CancellationResult
	if err := g.call(ctx, http.MethodPost, "/v1/bookings/"+confirmation+"/cancel", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (g *HTTPGateway) call(ctx context.Context, method, path string, payload, out interface{}) error {
	var body *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		// Timeouts and transport failures are never success-by-default.
		return fmt.Errorf("%w: %v", domain.ErrSupplierUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var supErr supplierError
		_ = json.NewDecoder(resp.Body).Decode(&supErr)
		switch supErr.Code {
		case "STALE_TRACE":
			return fmt.Errorf("%w: %s", domain.ErrStaleSearchTrace, supErr.Message)
		default:
			return fmt.Errorf("%w: status %d code %s %s", domain.ErrSupplierUnavailable, resp.StatusCode, supErr.Code, supErr.Message)
		}
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

var _ Gateway = (*HTTPGateway)(nil)
