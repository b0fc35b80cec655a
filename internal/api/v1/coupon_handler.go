package v1

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"lootbox-hub/internal/api/response"
	inputsanitize "lootbox-hub/internal/api/sanitize"
	"lootbox-hub/internal/lottery"
	"lootbox-hub/internal/service"
)

type CouponHandler struct {
	couponService *service.CouponService
	logger        *zap.Logger
}

type redeemCouponRequest struct {
	Code string `json:"code" binding:"required"`
}

type couponEntryRequest struct {
	ItemID string `json:"item_id" binding:"required"`
	Weight int64  `json:"weight" binding:"required"`
}

type createCouponRequest struct {
	Code           string               `json:"code" binding:"required"`
	InfluencerName string               `json:"influencer_name" binding:"required"`
	InfluencerURL  *string              `json:"influencer_url"`
	MinimumDeposit *string              `json:"minimum_deposit"`
	MaxUses        *int64               `json:"max_uses"`
	ExpiresAt      *string              `json:"expires_at"`
	Items          []couponEntryRequest `json:"items" binding:"required"`
}

func NewCouponHandler(couponService *service.CouponService, logger *zap.Logger) *CouponHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CouponHandler{couponService: couponService, logger: logger}
}

func RegisterCouponRoutes(group, admin *gin.RouterGroup, couponService *service.CouponService, limit gin.HandlerFunc, logger *zap.Logger) {
	if couponService == nil {
		return
	}

	handler := NewCouponHandler(couponService, logger)
	coupons := group.Group("/coupons")
	coupons.GET("", handler.ListActive)
	coupons.GET("/:code", handler.Details)
	if limit != nil {
		coupons.POST("/redeem", limit, handler.Redeem)
	} else {
		coupons.POST("/redeem", handler.Redeem)
	}

	admin.POST("/coupons", handler.Create)
}

// Redeem
// @Summary Redeem an influencer coupon for one free draw
// @Tags coupon
// @Router /api/v1/coupons/redeem [post]
func (h *CouponHandler) Redeem(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var req redeemCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidInput, "invalid request")
		return
	}

	result, err := h.couponService.UseCoupon(c.Request.Context(), actor, req.Code, fingerprintInputs(c))
	if err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	response.Success(c, result)
}

// ListActive
// @Summary Coupons that can currently be redeemed
// @Tags coupon
// @Router /api/v1/coupons [get]
func (h *CouponHandler) ListActive(c *gin.Context) {
	coupons, err := h.couponService.ListActiveCoupons(c.Request.Context())
	if err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	response.Success(c, coupons)
}

// Details
// @Summary Coupon contents and remaining uses
// @Tags coupon
// @Router /api/v1/coupons/{code} [get]
func (h *CouponHandler) Details(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	details, err := h.couponService.GetCouponDetails(c.Request.Context(), actor, c.Param("code"))
	if err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	response.Success(c, details)
}

// Create
// @Summary Create an influencer coupon with its own item weights
// @Tags coupon
// @Router /api/v1/admin/coupons [post]
func (h *CouponHandler) Create(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var req createCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidInput, "invalid request")
		return
	}

	input, reason := buildCouponInput(req)
	if reason != "" {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidInput, reason)
		return
	}

	coupon, err := h.couponService.CreateCoupon(c.Request.Context(), actor, input)
	if err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	response.Success(c, coupon)
}

// buildCouponInput converts the request and strips markup from the
// influencer fields, which are shown on public pages.
func buildCouponInput(req createCouponRequest) (service.CreateCouponInput, string) {
	input := service.CreateCouponInput{
		Code:           strings.TrimSpace(req.Code),
		InfluencerName: inputsanitize.Text(req.InfluencerName),
		MaxUses:        req.MaxUses,
	}
	if req.InfluencerURL != nil && strings.TrimSpace(*req.InfluencerURL) != "" {
		input.InfluencerURL = inputsanitize.URL(req.InfluencerURL)
		if input.InfluencerURL == nil {
			return input, "invalid influencer_url"
		}
	}

	if req.MinimumDeposit != nil && strings.TrimSpace(*req.MinimumDeposit) != "" {
		amount, err := decimal.NewFromString(strings.TrimSpace(*req.MinimumDeposit))
		if err != nil {
			return input, "invalid minimum_deposit"
		}
		input.MinimumDeposit = amount
	}

	if req.ExpiresAt != nil && strings.TrimSpace(*req.ExpiresAt) != "" {
		expiresAt, err := time.Parse(time.RFC3339, strings.TrimSpace(*req.ExpiresAt))
		if err != nil {
			return input, "invalid expires_at"
		}
		utc := expiresAt.UTC()
		input.ExpiresAt = &utc
	}

	entries := make([]lottery.Entry, 0, len(req.Items))
	for _, item := range req.Items {
		itemID, err := uuid.Parse(strings.TrimSpace(item.ItemID))
		if err != nil {
			return input, "invalid item_id"
		}
		entries = append(entries, lottery.Entry{ItemID: itemID, Weight: item.Weight})
	}
	input.Entries = entries

	return input, ""
}
