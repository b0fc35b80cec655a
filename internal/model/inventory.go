package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type InventorySource string

type InventoryStatus string

const (
	InventorySourceLootbox  InventorySource = "lootbox"
	InventorySourceExchange InventorySource = "exchange"
	InventorySourceCoupon   InventorySource = "coupon"
)

const (
	InventoryStatusAvailable         InventoryStatus = "available"
	InventoryStatusPendingWithdrawal InventoryStatus = "pending_withdrawal"
	InventoryStatusWithdrawn         InventoryStatus = "withdrawn"
	InventoryStatusExchanged         InventoryStatus = "exchanged"
)

// InventoryEntry is an ownership edge between a user and an item.
// RequiredDeposit is copied from the coupon gate at redemption time.
type InventoryEntry struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	UserID          uuid.UUID       `db:"user_id" json:"user_id"`
	ItemID          uuid.UUID       `db:"item_id" json:"item_id"`
	SourceType      InventorySource `db:"source_type" json:"source_type"`
	SourceID        *uuid.UUID      `db:"source_id" json:"source_id,omitempty"`
	Status          InventoryStatus `db:"status" json:"status"`
	RequiredDeposit decimal.Decimal `db:"required_deposit" json:"required_deposit"`
	ObtainedAt      time.Time       `db:"obtained_at" json:"obtained_at"`
	WithdrawnAt     *time.Time      `db:"withdrawn_at" json:"withdrawn_at,omitempty"`
}
