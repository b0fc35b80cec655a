package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"lootbox-hub/internal/api/response"
	inputsanitize "lootbox-hub/internal/api/sanitize"
	"lootbox-hub/internal/model"
	"lootbox-hub/internal/service"
)

type TicketHandler struct {
	ticketService *service.TicketService
	logger        *zap.Logger
}

type createTicketRequest struct {
	Subject  string `json:"subject" binding:"required"`
	Category string `json:"category"`
	Priority string `json:"priority"`
	Message  string `json:"message" binding:"required"`
}

type replyTicketRequest struct {
	Reply string `json:"reply" binding:"required"`
}

func NewTicketHandler(ticketService *service.TicketService, logger *zap.Logger) *TicketHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketHandler{ticketService: ticketService, logger: logger}
}

func RegisterTicketRoutes(group, admin *gin.RouterGroup, ticketService *service.TicketService, logger *zap.Logger) {
	if ticketService == nil {
		return
	}

	handler := NewTicketHandler(ticketService, logger)
	tickets := group.Group("/tickets")
	tickets.POST("", handler.Create)
	tickets.GET("", handler.ListMine)
	tickets.GET("/:id", handler.Get)
	tickets.POST("/:id/close", handler.Close)

	admin.GET("/tickets", handler.ListAll)
	admin.POST("/tickets/:id/reply", handler.Reply)
}

// Create
// @Summary Open a support ticket
// @Tags ticket
// @Router /api/v1/tickets [post]
func (h *TicketHandler) Create(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var req createTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidInput, "invalid request")
		return
	}

	ticket, err := h.ticketService.CreateTicket(c.Request.Context(), actor, service.CreateTicketInput{
		Subject:  inputsanitize.Text(req.Subject),
		Category: model.TicketCategory(req.Category),
		Priority: model.TicketPriority(req.Priority),
		Message:  inputsanitize.Text(req.Message),
	})
	if err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	response.Success(c, ticket)
}

// ListMine
// @Summary The caller's tickets, newest first
// @Tags ticket
// @Router /api/v1/tickets [get]
func (h *TicketHandler) ListMine(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	page, pageSize := pageParams(c)
	items, total, err := h.ticketService.ListMine(c.Request.Context(), actor, page, pageSize)
	if err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	response.Paginated(c, items, page, pageSize, total)
}

// Get
// @Summary One ticket with its reply
// @Tags ticket
// @Router /api/v1/tickets/{id} [get]
func (h *TicketHandler) Get(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	ticket, err := h.ticketService.Get(c.Request.Context(), actor, id)
	if err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	response.Success(c, ticket)
}

// Close
// @Summary Close a ticket
// @Tags ticket
// @Router /api/v1/tickets/{id}/close [post]
func (h *TicketHandler) Close(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	ticket, err := h.ticketService.Close(c.Request.Context(), actor, id)
	if err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	response.Success(c, ticket)
}

// ListAll
// @Summary Support queue filtered by status and priority
// @Tags ticket
// @Router /api/v1/admin/tickets [get]
func (h *TicketHandler) ListAll(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var status *model.TicketStatus
	if raw := optionalQuery(c, "status"); raw != nil {
		value := model.TicketStatus(*raw)
		status = &value
	}
	var priority *model.TicketPriority
	if raw := optionalQuery(c, "priority"); raw != nil {
		value := model.TicketPriority(*raw)
		priority = &value
	}

	page, pageSize := pageParams(c)
	items, total, err := h.ticketService.ListAll(c.Request.Context(), actor, status, priority, page, pageSize)
	if err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	response.Paginated(c, items, page, pageSize, total)
}

// Reply
// @Summary Answer a ticket
// @Tags ticket
// @Router /api/v1/admin/tickets/{id}/reply [post]
func (h *TicketHandler) Reply(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req replyTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidInput, "invalid request")
		return
	}

	ticket, err := h.ticketService.Reply(c.Request.Context(), actor, id, inputsanitize.Text(req.Reply))
	if err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	response.Success(c, ticket)
}
