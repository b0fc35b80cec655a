package internalapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"lootbox-hub/internal/api/response"
	"lootbox-hub/internal/service"
	cryptoutil "lootbox-hub/pkg/crypto"
)

const signatureHeader = "X-Signature"

// depositConfirmer is the DepositService surface the payment callback needs.
type depositConfirmer interface {
	ConfirmDeposit(ctx context.Context, depositID uuid.UUID, paymentRef string) (*service.DepositConfirmation, error)
}

type DepositCallbackHandler struct {
	deposits depositConfirmer
	secret   string
	logger   *zap.Logger
}

type confirmDepositRequest struct {
	PaymentRef string `json:"payment_ref" binding:"required"`
}

func NewDepositCallbackHandler(deposits depositConfirmer, secret string, logger *zap.Logger) *DepositCallbackHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DepositCallbackHandler{
		deposits: deposits,
		secret:   strings.TrimSpace(secret),
		logger:   logger,
	}
}

func RegisterDepositCallbackRoutes(router gin.IRoutes, deposits depositConfirmer, secret string, logger *zap.Logger) {
	handler := NewDepositCallbackHandler(deposits, secret, logger)
	router.POST("/deposits/:id/confirm", handler.Confirm)
}

// Confirm credits a pending deposit after the payment provider's signed
// callback. The signature covers the deposit id and payment reference.
func (h *DepositCallbackHandler) Confirm(c *gin.Context) {
	if h.deposits == nil {
		response.Fail(c, http.StatusServiceUnavailable, response.ErrUnavailable, "service unavailable")
		return
	}

	rawID := strings.TrimSpace(c.Param("id"))
	depositID, err := uuid.Parse(rawID)
	if err != nil || depositID == uuid.Nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidInput, "invalid deposit id")
		return
	}

	var req confirmDepositRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.PaymentRef) == "" {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidInput, "invalid request")
		return
	}
	paymentRef := strings.TrimSpace(req.PaymentRef)

	if h.secret == "" || !cryptoutil.VerifyCallback(h.secret, c.GetHeader(signatureHeader), depositID.String(), paymentRef) {
		h.logger.Warn("deposit callback rejected",
			zap.String("deposit_id", depositID.String()),
			zap.String("client_ip", c.ClientIP()),
		)
		response.Fail(c, http.StatusUnauthorized, response.ErrUnauthorized, "invalid signature")
		return
	}

	result, err := h.deposits.ConfirmDeposit(c.Request.Context(), depositID, paymentRef)
	if err != nil {
		h.writeError(c, depositID, err)
		return
	}

	response.Success(c, result)
}

func (h *DepositCallbackHandler) writeError(c *gin.Context, depositID uuid.UUID, err error) {
	switch service.KindOf(err) {
	case service.KindNotFound:
		response.Fail(c, http.StatusNotFound, response.ErrNotFound, "deposit not found")
	case service.KindInvalidState:
		var typed *service.Error
		reason := ""
		if errors.As(err, &typed) {
			reason = typed.Code
		}
		response.FailWithDetails(c, http.StatusConflict, response.ErrInvalidState, "deposit is not pending", reason, service.DetailsOf(err))
	case service.KindInvariantViolation:
		response.Fail(c, http.StatusInternalServerError, response.ErrInvariantViolation, "operation aborted")
	default:
		h.logger.Error("confirm deposit failed", zap.String("deposit_id", depositID.String()), zap.Error(err))
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "confirm deposit failed")
	}
}
