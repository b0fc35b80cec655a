package model

import (
	"time"

	"github.com/google/uuid"
)

type WithdrawalStatus string

const (
	WithdrawalStatusCompleted     WithdrawalStatus = "completed"
	WithdrawalStatusPendingManual WithdrawalStatus = "pending_manual"
)

type Withdrawal struct {
	ID            uuid.UUID              `db:"id" json:"id"`
	UserID        uuid.UUID              `db:"user_id" json:"user_id"`
	InventoryID   uuid.UUID              `db:"inventory_id" json:"inventory_id"`
	ItemID        uuid.UUID              `db:"item_id" json:"item_id"`
	Status        WithdrawalStatus       `db:"status" json:"status"`
	CodeID        *uuid.UUID             `db:"code_id" json:"code_id,omitempty"`
	DeliveredCode *string                `db:"delivered_code" json:"delivered_code,omitempty"`
	ProcessedBy   *uuid.UUID             `db:"processed_by" json:"processed_by,omitempty"`
	ProcessedAt   *time.Time             `db:"processed_at" json:"processed_at,omitempty"`
	Metadata      map[string]interface{} `db:"metadata" json:"metadata,omitempty"`
	CreatedAt     time.Time              `db:"created_at" json:"created_at"`
}

// PendingWithdrawal is the operator queue view, oldest first.
type PendingWithdrawal struct {
	ID           uuid.UUID `json:"id"`
	UserID       uuid.UUID `json:"user_id"`
	Username     string    `json:"username"`
	ItemID       uuid.UUID `json:"item_id"`
	ItemName     string    `json:"item_name"`
	CreatedAt    time.Time `json:"created_at"`
	HoursPending float64   `json:"hours_pending"`
}
