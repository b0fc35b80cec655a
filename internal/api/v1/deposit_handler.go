package v1

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"lootbox-hub/internal/api/response"
	"lootbox-hub/internal/service"
)

type DepositHandler struct {
	depositService *service.DepositService
	logger         *zap.Logger
}

type createDepositRequest struct {
	Amount        string `json:"amount" binding:"required"`
	Currency      string `json:"currency" binding:"required"`
	PaymentMethod string `json:"payment_method" binding:"required"`
}

func NewDepositHandler(depositService *service.DepositService, logger *zap.Logger) *DepositHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DepositHandler{depositService: depositService, logger: logger}
}

func RegisterDepositRoutes(group *gin.RouterGroup, depositService *service.DepositService, logger *zap.Logger) {
	if depositService == nil {
		return
	}

	handler := NewDepositHandler(depositService, logger)
	deposits := group.Group("/deposits")
	deposits.GET("", handler.List)
	deposits.POST("", handler.Create)
	deposits.GET("/rates", handler.Rates)
}

// Create
// @Summary Open a pending deposit; credits arrive on payment confirmation
// @Tags deposit
// @Router /api/v1/deposits [post]
func (h *DepositHandler) Create(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var req createDepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidInput, "invalid request")
		return
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil || !amount.IsPositive() {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidInput, "invalid amount")
		return
	}

	deposit, err := h.depositService.CreateDeposit(c.Request.Context(), actor, amount, req.Currency, req.PaymentMethod)
	if err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	response.Success(c, deposit)
}

// List
// @Summary Caller's deposits
// @Tags deposit
// @Router /api/v1/deposits [get]
func (h *DepositHandler) List(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	page, pageSize := pageParams(c)
	items, total, err := h.depositService.ListUserDeposits(c.Request.Context(), actor, page, pageSize)
	if err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	response.Paginated(c, items, page, pageSize, total)
}

// Rates
// @Summary Current USD conversion rates
// @Tags deposit
// @Router /api/v1/deposits/rates [get]
func (h *DepositHandler) Rates(c *gin.Context) {
	response.Success(c, h.depositService.Rates(c.Request.Context()))
}
