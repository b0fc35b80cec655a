package v1

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"lootbox-hub/internal/api/response"
	"lootbox-hub/internal/service"
)

type DashboardHandler struct {
	dashboardService *service.DashboardService
	logger           *zap.Logger
}

func RegisterDashboardRoutes(admin *gin.RouterGroup, dashboardService *service.DashboardService, logger *zap.Logger) {
	if dashboardService == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	handler := &DashboardHandler{dashboardService: dashboardService, logger: logger}
	admin.GET("/dashboard", handler.Stats)
}

// Stats
// @Summary Operator overview of users, revenue, openings and queues
// @Tags admin
// @Router /api/v1/admin/dashboard [get]
func (h *DashboardHandler) Stats(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	stats, err := h.dashboardService.Stats(c.Request.Context(), actor)
	if err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	response.Success(c, stats)
}
