package model

import (
	"time"

	"github.com/google/uuid"
)

type ActivationCodeStatus string

const (
	ActivationCodeAvailable ActivationCodeStatus = "available"
	ActivationCodeUsed      ActivationCodeStatus = "used"
)

type ActivationCode struct {
	ID           uuid.UUID            `db:"id" json:"id"`
	ItemID       uuid.UUID            `db:"item_id" json:"item_id"`
	Code         string               `db:"code" json:"-"`
	BatchID      uuid.UUID            `db:"batch_id" json:"batch_id"`
	Status       ActivationCodeStatus `db:"status" json:"status"`
	WithdrawalID *uuid.UUID           `db:"withdrawal_id" json:"withdrawal_id,omitempty"`
	UsedBy       *uuid.UUID           `db:"used_by" json:"used_by,omitempty"`
	UsedAt       *time.Time           `db:"used_at" json:"used_at,omitempty"`
	CreatedBy    uuid.UUID            `db:"created_by" json:"created_by"`
	CreatedAt    time.Time            `db:"created_at" json:"created_at"`
}

// ActivationCodeStock is the per-item count of unclaimed codes.
type ActivationCodeStock struct {
	ItemID    uuid.UUID `json:"item_id"`
	ItemName  string    `json:"item_name"`
	Available int64     `json:"available"`
	Used      int64     `json:"used"`
}
