package v1

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"lootbox-hub/internal/api/response"
	"lootbox-hub/internal/model"
	"lootbox-hub/internal/service"
)

type UserHandler struct {
	userService *service.UserService
	logger      *zap.Logger
}

type bindTelegramRequest struct {
	Code string `json:"code" binding:"required"`
}

type setUserStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func NewUserHandler(userService *service.UserService, logger *zap.Logger) *UserHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserHandler{userService: userService, logger: logger}
}

func RegisterUserRoutes(group, admin *gin.RouterGroup, userService *service.UserService, logger *zap.Logger) {
	if userService == nil {
		return
	}

	handler := NewUserHandler(userService, logger)
	group.GET("/me", handler.Me)
	group.GET("/inventory", handler.Inventory)
	group.POST("/me/telegram", handler.BindTelegram)
	group.DELETE("/me/telegram", handler.UnbindTelegram)

	admin.GET("/users", handler.List)
	admin.PUT("/users/:id/status", handler.SetStatus)
}

// Me
// @Summary Caller's balance, level and totals
// @Tags user
// @Router /api/v1/me [get]
func (h *UserHandler) Me(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	user, err := h.userService.Profile(c.Request.Context(), actor)
	if err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	response.Success(c, gin.H{
		"user":            user,
		"telegram_linked": user.TelegramChatID != nil,
	})
}

// Inventory
// @Summary Caller's items, optionally filtered by status
// @Tags user
// @Router /api/v1/inventory [get]
func (h *UserHandler) Inventory(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var status *model.InventoryStatus
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		parsed := model.InventoryStatus(strings.ToLower(raw))
		switch parsed {
		case model.InventoryStatusAvailable,
			model.InventoryStatusPendingWithdrawal,
			model.InventoryStatusWithdrawn,
			model.InventoryStatusExchanged:
			status = &parsed
		default:
			response.Fail(c, http.StatusBadRequest, response.ErrInvalidInput, "invalid status")
			return
		}
	}

	page, pageSize := pageParams(c)
	items, total, err := h.userService.ListInventory(c.Request.Context(), actor, status, page, pageSize)
	if err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	response.Paginated(c, items, page, pageSize, total)
}

// BindTelegram
// @Summary Link the chat that received the bind code for notifications
// @Tags user
// @Router /api/v1/me/telegram [post]
func (h *UserHandler) BindTelegram(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var req bindTelegramRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidInput, "invalid request")
		return
	}

	if err := h.userService.BindTelegramByCode(c.Request.Context(), actor, req.Code); err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	response.Success(c, gin.H{"linked": true})
}

func (h *UserHandler) UnbindTelegram(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	if err := h.userService.UnbindTelegram(c.Request.Context(), actor); err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	response.Success(c, gin.H{"linked": false})
}

// List
// @Summary Accounts for operators
// @Tags user
// @Router /api/v1/admin/users [get]
func (h *UserHandler) List(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	filters := make([]service.UserFilter, 0, 3)
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		filters = append(filters, service.ByStatus(model.UserStatus(strings.ToLower(raw))))
	}
	if raw := strings.TrimSpace(c.Query("role")); raw != "" {
		filters = append(filters, service.ByRole(model.UserRole(strings.ToLower(raw))))
	}
	if raw := c.Query("keyword"); raw != "" {
		filters = append(filters, service.ByKeyword(raw))
	}

	page, pageSize := pageParams(c)
	users, total, err := h.userService.List(c.Request.Context(), actor, page, pageSize, filters...)
	if err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	response.Paginated(c, users, page, pageSize, total)
}

// SetStatus
// @Summary Suspend or reactivate an account
// @Tags user
// @Router /api/v1/admin/users/{id}/status [put]
func (h *UserHandler) SetStatus(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	targetID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req setUserStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidInput, "invalid request")
		return
	}

	status := model.UserStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	if err := h.userService.SetStatus(c.Request.Context(), actor, targetID, status); err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	response.Success(c, gin.H{"id": targetID, "status": status})
}
