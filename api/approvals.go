package api

import (
	"net/http"
	"time"

	"github.com/avoronin/corptravel/internal/domain"
	"github.com/avoronin/corptravel/internal/service/approval"
	"github.com/gin-gonic/gin"
)

type ApprovalHandler struct {
	service approval.ApprovalUseCase
}

func NewApprovalHandler(service approval.ApprovalUseCase) *ApprovalHandler {
	return &ApprovalHandler{service: service}
}

func (h *ApprovalHandler) Register(requests, approvals *gin.RouterGroup) {
	requests.POST("/:reference/submit", h.submit)
	approvals.POST("/:id/decision", h.decide)
}

type submitRequest struct {
	ApproverID int64 `json:"approver_id"`
}

type decideRequest struct {
	ApproverID int64  `json:"approver_id"`
	Decision   string `json:"decision"`
	Comments   string `json:"comments"`
}

type approvalResponse struct {
	ID          string `json:"id"`
	Reference   string `json:"reference"`
	RequesterID int64  `json:"requester_id"`
	ApproverID  int64  `json:"approver_id"`
	Status      string `json:"status"`
	Comments    string `json:"comments"`
	DecidedAt   string `json:"decided_at,omitempty"`
}

func toApprovalResponse(a *domain.Approval) approvalResponse {
	resp := approvalResponse{
		ID:          a.ID,
		Reference:   a.Reference,
		RequesterID: a.RequesterID,
		ApproverID:  a.ApproverID,
		Status:      string(a.Status),
		Comments:    a.Comments,
	}
	if a.DecidedAt != nil {
		resp.DecidedAt = a.DecidedAt.Format(time.RFC3339)
	}
	return resp
}

func (h *ApprovalHandler) submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, err := h.service.SubmitForApproval(c.Request.Context(), approval.SubmitInput{
		Reference:  c.Param("reference"),
		ApproverID: req.ApproverID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toApprovalResponse(created))
}

func (h *ApprovalHandler) decide(c *gin.Context) {
	var req decideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var decision domain.Decision
	switch req.Decision {
	case "approve":
		decision = domain.DecisionApprove
	case "reject":
		decision = domain.DecisionReject
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "decision must be approve or reject"})
		return
	}

	decided, err := h.service.Decide(c.Request.Context(), approval.DecideInput{
		ApprovalID: c.Param("id"),
		ApproverID: req.ApproverID,
		Decision:   decision,
		Comments:   req.Comments,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toApprovalResponse(decided))
}
