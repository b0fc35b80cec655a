package v1

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"lootbox-hub/internal/api/response"
	"lootbox-hub/internal/model"
	"lootbox-hub/internal/service"
)

// maxImportCodes caps one upload; suppliers send batches in the low thousands.
const maxImportCodes = 10000

type CodeHandler struct {
	codeService *service.ActivationCodeService
	logger      *zap.Logger
}

type importCodesRequest struct {
	ItemID string   `json:"item_id" binding:"required"`
	Codes  []string `json:"codes" binding:"required"`
}

func NewCodeHandler(codeService *service.ActivationCodeService, logger *zap.Logger) *CodeHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CodeHandler{codeService: codeService, logger: logger}
}

func RegisterCodeRoutes(admin *gin.RouterGroup, codeService *service.ActivationCodeService, logger *zap.Logger) {
	if codeService == nil {
		return
	}

	handler := NewCodeHandler(codeService, logger)
	codes := admin.Group("/codes")
	codes.GET("", handler.List)
	codes.GET("/stock", handler.Stock)
	codes.POST("/import", handler.Import)
}

// Import
// @Summary Import a supplier batch of activation codes for one item
// @Tags code
// @Router /api/v1/admin/codes/import [post]
func (h *CodeHandler) Import(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var req importCodesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidInput, "invalid request")
		return
	}
	itemID, err := uuid.Parse(strings.TrimSpace(req.ItemID))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidInput, "invalid item_id")
		return
	}
	if len(req.Codes) > maxImportCodes {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidInput, "too many codes in one batch")
		return
	}

	result, err := h.codeService.ImportBatch(c.Request.Context(), actor, itemID, req.Codes)
	if err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	response.Success(c, result)
}

// List
// @Summary Browse the activation code pool
// @Tags code
// @Router /api/v1/admin/codes [get]
func (h *CodeHandler) List(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	filter := service.ActivationCodeListFilter{}
	if raw := strings.TrimSpace(c.Query("item_id")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.Fail(c, http.StatusBadRequest, response.ErrInvalidInput, "invalid item_id")
			return
		}
		filter.ItemID = &id
	}
	if raw := strings.TrimSpace(c.Query("batch_id")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.Fail(c, http.StatusBadRequest, response.ErrInvalidInput, "invalid batch_id")
			return
		}
		filter.BatchID = &id
	}
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		status := model.ActivationCodeStatus(strings.ToLower(raw))
		if status != model.ActivationCodeAvailable && status != model.ActivationCodeUsed {
			response.Fail(c, http.StatusBadRequest, response.ErrInvalidInput, "invalid status")
			return
		}
		filter.Status = &status
	}

	page, pageSize := pageParams(c)
	items, err := h.codeService.List(c.Request.Context(), actor, page, pageSize, filter)
	if err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	response.Success(c, items)
}

// Stock
// @Summary Unclaimed codes per item
// @Tags code
// @Router /api/v1/admin/codes/stock [get]
func (h *CodeHandler) Stock(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	if !actor.Elevated() {
		response.Fail(c, http.StatusForbidden, response.ErrForbidden, "forbidden")
		return
	}

	stock, err := h.codeService.StockByItem(c.Request.Context())
	if err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	response.Success(c, stock)
}
