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

type ExchangeHandler struct {
	exchangeService *service.ExchangeService
	logger          *zap.Logger
}

type exchangeRequest struct {
	SourceInventoryIDs []string `json:"source_inventory_ids" binding:"required"`
	TargetItemID       string   `json:"target_item_id" binding:"required"`
}

func NewExchangeHandler(exchangeService *service.ExchangeService, logger *zap.Logger) *ExchangeHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExchangeHandler{exchangeService: exchangeService, logger: logger}
}

func RegisterExchangeRoutes(group *gin.RouterGroup, exchangeService *service.ExchangeService, logger *zap.Logger) {
	if exchangeService == nil {
		return
	}

	handler := NewExchangeHandler(exchangeService, logger)
	exchange := group.Group("/exchange")
	exchange.POST("/calculate", handler.Calculate)
	exchange.POST("/execute", handler.Execute)
	exchange.GET("/history", handler.History)
}

func (h *ExchangeHandler) bind(c *gin.Context) ([]uuid.UUID, uuid.UUID, bool) {
	var req exchangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidInput, "invalid request")
		return nil, uuid.Nil, false
	}

	sources, err := parseUUIDs(req.SourceInventoryIDs)
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidInput, "invalid source_inventory_ids")
		return nil, uuid.Nil, false
	}
	target, err := uuid.Parse(strings.TrimSpace(req.TargetItemID))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidInput, "invalid target_item_id")
		return nil, uuid.Nil, false
	}
	return sources, target, true
}

// Calculate
// @Summary Advisory exchange quote
// @Tags exchange
// @Router /api/v1/exchange/calculate [post]
func (h *ExchangeHandler) Calculate(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	sources, target, ok := h.bind(c)
	if !ok {
		return
	}

	quote, err := h.exchangeService.CalculateExchange(c.Request.Context(), actor, sources, target)
	if err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	response.Success(c, quote)
}

// Execute
// @Summary Trade owned items for a target item, revalued under lock
// @Tags exchange
// @Router /api/v1/exchange/execute [post]
func (h *ExchangeHandler) Execute(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	sources, target, ok := h.bind(c)
	if !ok {
		return
	}

	result, err := h.exchangeService.ExecuteExchange(c.Request.Context(), actor, sources, target, clientFingerprint(c))
	if err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	response.Success(c, result)
}

// History
// @Summary Caller's exchanges
// @Tags exchange
// @Router /api/v1/exchange/history [get]
func (h *ExchangeHandler) History(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	page, pageSize := pageParams(c)
	items, total, err := h.exchangeService.ListExchangeHistory(c.Request.Context(), actor, page, pageSize)
	if err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	response.Paginated(c, items, page, pageSize, total)
}
