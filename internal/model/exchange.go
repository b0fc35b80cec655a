package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Exchange records both sides of a completed trade-in.
type Exchange struct {
	ID                 uuid.UUID       `db:"id" json:"id"`
	UserID             uuid.UUID       `db:"user_id" json:"user_id"`
	SourceInventoryIDs []uuid.UUID     `db:"source_inventory_ids" json:"source_inventory_ids"`
	TargetItemID       uuid.UUID       `db:"target_item_id" json:"target_item_id"`
	TargetInventoryID  uuid.UUID       `db:"target_inventory_id" json:"target_inventory_id"`
	SourceValue        decimal.Decimal `db:"source_value" json:"source_value"`
	Fee                decimal.Decimal `db:"fee" json:"fee"`
	NetValue           decimal.Decimal `db:"net_value" json:"net_value"`
	TargetValue        decimal.Decimal `db:"target_value" json:"target_value"`
	Fingerprint        *string         `db:"fingerprint" json:"fingerprint,omitempty"`
	ExchangedAt        time.Time       `db:"exchanged_at" json:"exchanged_at"`
}
