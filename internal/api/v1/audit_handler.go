package v1

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"lootbox-hub/internal/api/response"
	"lootbox-hub/internal/service"
)

type AuditHandler struct {
	auditService *service.AuditService
	logger       *zap.Logger
}

func NewAuditHandler(auditService *service.AuditService, logger *zap.Logger) *AuditHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditHandler{auditService: auditService, logger: logger}
}

func RegisterAuditRoutes(admin *gin.RouterGroup, auditService *service.AuditService, logger *zap.Logger) {
	if auditService == nil {
		return
	}
	admin.GET("/audit", NewAuditHandler(auditService, logger).List)
}

// List
// @Summary Settlement audit trail, filterable by user, resource, action and time
// @Tags audit
// @Router /api/v1/admin/audit [get]
func (h *AuditHandler) List(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	from, to, ok := timeRange(c)
	if !ok {
		return
	}

	filter := service.AuditFilter{
		UserID:       optionalQuery(c, "user_id"),
		ResourceType: optionalQuery(c, "resource_type"),
		ResourceID:   optionalQuery(c, "resource_id"),
		Action:       optionalQuery(c, "action"),
		IPAddress:    optionalQuery(c, "ip_address"),
	}
	if !from.IsZero() {
		filter.From = &from
	}
	if !to.IsZero() {
		filter.To = &to
	}

	page, pageSize := pageParams(c)
	items, total, err := h.auditService.List(c.Request.Context(), actor, filter, page, pageSize)
	if err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	response.Paginated(c, items, page, pageSize, total)
}
