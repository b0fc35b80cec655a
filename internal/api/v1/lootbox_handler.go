package v1

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"lootbox-hub/internal/api/response"
	"lootbox-hub/internal/service"
)

type LootboxHandler struct {
	lootboxService *service.LootboxService
	logger         *zap.Logger
}

func NewLootboxHandler(lootboxService *service.LootboxService, logger *zap.Logger) *LootboxHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LootboxHandler{lootboxService: lootboxService, logger: logger}
}

// RegisterLootboxRoutes expects group to carry JWT auth already. open is the
// rate-limited settlement entry point.
func RegisterLootboxRoutes(group *gin.RouterGroup, lootboxService *service.LootboxService, open gin.HandlerFunc, logger *zap.Logger) {
	if lootboxService == nil {
		return
	}

	handler := NewLootboxHandler(lootboxService, logger)
	boxes := group.Group("/boxes")
	boxes.GET("", handler.ListBoxes)
	boxes.GET("/:id", handler.GetBox)
	if open != nil {
		boxes.POST("/:id/open", open, handler.Open)
	} else {
		boxes.POST("/:id/open", handler.Open)
	}

	draws := group.Group("/draws")
	draws.GET("", handler.ListDraws)
	draws.GET("/:id/verify", handler.VerifyDraw)
}

// ListBoxes
// @Summary List active lootboxes
// @Tags lootbox
// @Router /api/v1/boxes [get]
func (h *LootboxHandler) ListBoxes(c *gin.Context) {
	boxes, err := h.lootboxService.ListBoxes(c.Request.Context())
	if err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	response.Success(c, boxes)
}

// GetBox
// @Summary Box contents with rarity bands; operators also see weights
// @Tags lootbox
// @Router /api/v1/boxes/{id} [get]
func (h *LootboxHandler) GetBox(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	boxID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	details, err := h.lootboxService.GetBoxDetails(c.Request.Context(), actor, boxID)
	if err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	response.Success(c, details)
}

// Open
// @Summary Pay for and open a lootbox
// @Tags lootbox
// @Router /api/v1/boxes/{id}/open [post]
func (h *LootboxHandler) Open(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	boxID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	result, err := h.lootboxService.OpenLootbox(c.Request.Context(), actor, boxID, clientFingerprint(c))
	if err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	response.Success(c, result)
}

// ListDraws
// @Summary Caller's draw history
// @Tags lootbox
// @Router /api/v1/draws [get]
func (h *LootboxHandler) ListDraws(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	page, pageSize := pageParams(c)
	draws, total, err := h.lootboxService.ListDraws(c.Request.Context(), actor, page, pageSize)
	if err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	response.Paginated(c, draws, page, pageSize, total)
}

// VerifyDraw
// @Summary Recompute and check a draw's fairness proof
// @Tags lootbox
// @Router /api/v1/draws/{id}/verify [get]
func (h *LootboxHandler) VerifyDraw(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	drawID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	verification, err := h.lootboxService.VerifyDraw(c.Request.Context(), actor, drawID)
	if err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	response.Success(c, verification)
}
