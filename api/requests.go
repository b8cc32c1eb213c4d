package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/avoronin/corptravel/internal/domain"
	"github.com/avoronin/corptravel/internal/service/request"
	"github.com/gin-gonic/gin"
)

type RequestHandler struct {
	service request.RequestUseCase
}

func NewRequestHandler(service request.RequestUseCase) *RequestHandler {
	return &RequestHandler{service: service}
}

func (h *RequestHandler) Register(router *gin.RouterGroup) {
	router.POST("/", h.create)
	router.GET("/:reference", h.get)
	router.GET("/:reference/audits", h.audits)
}

func (h *RequestHandler) RegisterAccounts(router *gin.RouterGroup) {
	router.GET("/:org_id/account", h.account)
}

type requestResponse struct {
	Reference       string                     `json:"reference"`
	Kind            string                     `json:"kind"`
	OrgID           int64                      `json:"org_id"`
	RequesterID     int64                      `json:"requester_id"`
	RequestStatus   string                     `json:"request_status"`
	ExecutionStatus string                     `json:"execution_status"`
	Travelers       []domain.Traveler          `json:"travelers"`
	Purpose         string                     `json:"purpose"`
	FareExpiresAt   string                     `json:"fare_expires_at"`
	TotalCents      int64                      `json:"total_cents"`
	Currency        string                     `json:"currency"`
	PriceCapturedAt string                     `json:"price_captured_at"`
	Booking         *domain.BookingResult      `json:"booking,omitempty"`
	Payment         *domain.PaymentRecord      `json:"payment,omitempty"`
	Cancellation    *domain.CancellationRecord `json:"cancellation,omitempty"`
}

func toRequestResponse(r *domain.BookingRequest) requestResponse {
	return requestResponse{
		Reference:       r.Reference,
		Kind:            string(r.Kind),
		OrgID:           r.OrgID,
		RequesterID:     r.RequesterID,
		RequestStatus:   string(r.RequestStatus),
		ExecutionStatus: string(r.ExecutionStatus),
		Travelers:       r.Travelers,
		Purpose:         r.Purpose,
		FareExpiresAt:   r.Fare.ExpiresAt.Format(time.RFC3339),
		TotalCents:      r.Pricing.TotalCents,
		Currency:        r.Pricing.Currency,
		PriceCapturedAt: r.Pricing.CapturedAt.Format(time.RFC3339),
		Booking:         r.Booking,
		Payment:         r.Payment,
		Cancellation:    r.Cancellation,
	}
}

func (h *RequestHandler) create(c *gin.Context) {
	var input request.CreateDraftInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, err := h.service.CreateDraft(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toRequestResponse(created))
}

func (h *RequestHandler) get(c *gin.Context) {
	req, err := h.service.GetByReference(c.Request.Context(), c.Param("reference"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toRequestResponse(req))
}

func (h *RequestHandler) audits(c *gin.Context) {
	audits, err := h.service.PriceAudits(c.Request.Context(), c.Param("reference"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, audits)
}

func (h *RequestHandler) account(c *gin.Context) {
	orgID, err := strconv.ParseInt(c.Param("org_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid org id"})
		return
	}
	account, err := h.service.AccountForOrg(c.Request.Context(), orgID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}
