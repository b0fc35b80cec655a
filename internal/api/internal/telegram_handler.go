package internalapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"lootbox-hub/internal/api/response"
)

type bindCodeIssuer interface {
	IssueTelegramBindCode(chatID int64) (string, error)
}

type issueBindCodeRequest struct {
	ChatID int64 `json:"chat_id" binding:"required"`
}

// RegisterTelegramRoutes serves the bot process: it asks for a bind code when
// a chat sends /start and relays the code back to that chat.
func RegisterTelegramRoutes(router gin.IRoutes, issuer bindCodeIssuer) {
	router.POST("/telegram/bind-codes", func(c *gin.Context) {
		if issuer == nil {
			response.Fail(c, http.StatusServiceUnavailable, response.ErrUnavailable, "service unavailable")
			return
		}

		var req issueBindCodeRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.ChatID == 0 {
			response.Fail(c, http.StatusBadRequest, response.ErrInvalidInput, "invalid request")
			return
		}

		code, err := issuer.IssueTelegramBindCode(req.ChatID)
		if err != nil {
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "issue bind code failed")
			return
		}
		response.Success(c, gin.H{"code": code})
	})
}
