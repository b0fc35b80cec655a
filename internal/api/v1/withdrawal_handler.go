package v1

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"lootbox-hub/internal/api/response"
	"lootbox-hub/internal/service"
)

type WithdrawalHandler struct {
	withdrawalService *service.WithdrawalService
	logger            *zap.Logger
}

type requestWithdrawalRequest struct {
	InventoryID string `json:"inventory_id" binding:"required"`
}

type processWithdrawalRequest struct {
	Code string `json:"code" binding:"required"`
}

func NewWithdrawalHandler(withdrawalService *service.WithdrawalService, logger *zap.Logger) *WithdrawalHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WithdrawalHandler{withdrawalService: withdrawalService, logger: logger}
}

func RegisterWithdrawalRoutes(group, admin *gin.RouterGroup, withdrawalService *service.WithdrawalService, limit gin.HandlerFunc, logger *zap.Logger) {
	if withdrawalService == nil {
		return
	}

	handler := NewWithdrawalHandler(withdrawalService, logger)
	withdrawals := group.Group("/withdrawals")
	withdrawals.GET("", handler.ListMine)
	if limit != nil {
		withdrawals.POST("", limit, handler.Request)
	} else {
		withdrawals.POST("", handler.Request)
	}

	admin.GET("/withdrawals/pending", handler.ListPending)
	admin.POST("/withdrawals/:id/process", handler.Process)
}

// Request
// @Summary Withdraw an inventory item as an activation code
// @Tags withdrawal
// @Router /api/v1/withdrawals [post]
func (h *WithdrawalHandler) Request(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var req requestWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidInput, "invalid request")
		return
	}
	inventoryID, err := uuid.Parse(strings.TrimSpace(req.InventoryID))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidInput, "invalid inventory_id")
		return
	}

	result, err := h.withdrawalService.RequestWithdrawal(c.Request.Context(), actor, inventoryID, service.WithdrawalMetadata{
		IPAddress:   c.ClientIP(),
		UserAgent:   c.Request.UserAgent(),
		Fingerprint: clientFingerprint(c),
	})
	if err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	response.Success(c, result)
}

// ListMine
// @Summary Caller's withdrawals
// @Tags withdrawal
// @Router /api/v1/withdrawals [get]
func (h *WithdrawalHandler) ListMine(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	page, pageSize := pageParams(c)
	items, total, err := h.withdrawalService.ListUserWithdrawals(c.Request.Context(), actor, page, pageSize)
	if err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	response.Paginated(c, items, page, pageSize, total)
}

// ListPending
// @Summary Manual withdrawal queue, oldest first
// @Tags withdrawal
// @Router /api/v1/admin/withdrawals/pending [get]
func (h *WithdrawalHandler) ListPending(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	items, err := h.withdrawalService.ListPendingManual(c.Request.Context(), actor)
	if err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	response.Success(c, gin.H{
		"items":      items,
		"manual_sla": h.withdrawalService.ManualSLA().String(),
	})
}

// Process
// @Summary Deliver an operator-supplied code for a pending withdrawal
// @Tags withdrawal
// @Router /api/v1/admin/withdrawals/{id}/process [post]
func (h *WithdrawalHandler) Process(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	withdrawalID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req processWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidInput, "invalid request")
		return
	}

	result, err := h.withdrawalService.ProcessManualWithdrawal(c.Request.Context(), actor, withdrawalID, strings.TrimSpace(req.Code))
	if err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	response.Success(c, result)
}
