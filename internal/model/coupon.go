package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"lootbox-hub/internal/lottery"
)

type CouponStatus string

const (
	CouponStatusActive   CouponStatus = "active"
	CouponStatusDisabled CouponStatus = "disabled"
)

type Coupon struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	Code           string          `db:"code" json:"code"`
	InfluencerName string          `db:"influencer_name" json:"influencer_name"`
	InfluencerURL  *string         `db:"influencer_url" json:"influencer_url,omitempty"`
	MinimumDeposit decimal.Decimal `db:"minimum_deposit" json:"minimum_deposit"`
	MaxUses        *int64          `db:"max_uses" json:"max_uses,omitempty"`
	TimesUsed      int64           `db:"times_used" json:"times_used"`
	ExpiresAt      *time.Time      `db:"expires_at" json:"expires_at,omitempty"`
	Status         CouponStatus    `db:"status" json:"status"`
	Entries        []lottery.Entry `db:"-" json:"-"`
	CreatedBy      uuid.UUID       `db:"created_by" json:"created_by"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	LastUsedAt     *time.Time      `db:"last_used_at" json:"last_used_at,omitempty"`
}

// CouponUsage existence is the anti-replay record for (coupon, user) and
// (coupon, fingerprint).
type CouponUsage struct {
	ID           uuid.UUID `db:"id" json:"id"`
	CouponID     uuid.UUID `db:"coupon_id" json:"coupon_id"`
	UserID       uuid.UUID `db:"user_id" json:"user_id"`
	Fingerprint  string    `db:"fingerprint" json:"fingerprint"`
	ItemID       uuid.UUID `db:"item_id" json:"item_id"`
	InventoryID  uuid.UUID `db:"inventory_id" json:"inventory_id"`
	FairnessHash string    `db:"fairness_hash" json:"fairness_hash"`
	UsedAt       time.Time `db:"used_at" json:"used_at"`
}
