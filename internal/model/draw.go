package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"lootbox-hub/pkg/fairness"
)

// DrawRecord is the write-once audit row of one lootbox opening. FairnessData
// is the frozen proof input; verification reads nothing else.
type DrawRecord struct {
	ID           uuid.UUID            `db:"id" json:"id"`
	UserID       uuid.UUID            `db:"user_id" json:"user_id"`
	LootboxID    uuid.UUID            `db:"lootbox_id" json:"lootbox_id"`
	ItemID       uuid.UUID            `db:"item_id" json:"item_id"`
	InventoryID  uuid.UUID            `db:"inventory_id" json:"inventory_id"`
	PricePaid    decimal.Decimal      `db:"price_paid" json:"price_paid"`
	FairnessHash string               `db:"fairness_hash" json:"fairness_hash"`
	FairnessData fairness.DrawPayload `db:"fairness_data" json:"fairness_data"`
	Fingerprint  *string              `db:"fingerprint" json:"fingerprint,omitempty"`
	OpenedAt     time.Time            `db:"opened_at" json:"opened_at"`
}
