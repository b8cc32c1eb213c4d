package api

import (
	"net/http"

	"github.com/avoronin/corptravel/internal/service/execution"
	"github.com/avoronin/corptravel/internal/service/pricing"
	"github.com/avoronin/corptravel/internal/service/settlement"
	"github.com/gin-gonic/gin"
)

type ExecutionHandler struct {
	executions execution.ExecutionUseCase
	pricing    pricing.PricingUseCase
	settlement settlement.SettlementUseCase
}

func NewExecutionHandler(
	executions execution.ExecutionUseCase,
	pricingSvc pricing.PricingUseCase,
	settlementSvc settlement.SettlementUseCase,
) *ExecutionHandler {
	return &ExecutionHandler{
		executions: executions,
		pricing:    pricingSvc,
		settlement: settlementSvc,
	}
}

func (h *ExecutionHandler) Register(router *gin.RouterGroup) {
	router.POST("/:reference/reverify", h.reverify)
	router.POST("/:reference/execute", h.execute)
	router.POST("/:reference/settle", h.settle)
	router.POST("/:reference/tickets/poll", h.pollTickets)
	router.POST("/:reference/cancel", h.cancel)
}

type reverifyResponse struct {
	Drifted       bool   `json:"drifted"`
	TotalCents    int64  `json:"total_cents"`
	Currency      string `json:"currency"`
	PreviousCents int64  `json:"previous_cents,omitempty"`
	DeltaCents    int64  `json:"delta_cents,omitempty"`
}

func (h *ExecutionHandler) reverify(c *gin.Context) {
	result, err := h.pricing.Reverify(c.Request.Context(), c.Param("reference"))
	if err != nil {
		respondError(c, err)
		return
	}

	resp := reverifyResponse{
		Drifted:    result.Drifted,
		TotalCents: result.Pricing.TotalCents,
		Currency:   result.Pricing.Currency,
	}
	if result.Audit != nil {
		resp.PreviousCents = result.Audit.PreviousCents
		resp.DeltaCents = result.Audit.DeltaCents
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ExecutionHandler) execute(c *gin.Context) {
	req, err := h.executions.Execute(c.Request.Context(), c.Param("reference"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toRequestResponse(req))
}

func (h *ExecutionHandler) settle(c *gin.Context) {
	payment, err := h.settlement.Settle(c.Request.Context(), c.Param("reference"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}

func (h *ExecutionHandler) pollTickets(c *gin.Context) {
	req, err := h.executions.PollTicketStatus(c.Request.Context(), c.Param("reference"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toRequestResponse(req))
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *ExecutionHandler) cancel(c *gin.Context) {
	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cancelled, err := h.executions.Cancel(c.Request.Context(), c.Param("reference"), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toRequestResponse(cancelled))
}
