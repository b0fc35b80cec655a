package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	AuditActionLootboxOpen        = "lootbox.open"
	AuditActionWithdrawalRequest  = "withdrawal.request"
	AuditActionWithdrawalManual   = "withdrawal.process_manual"
	AuditActionExchangeExecute    = "exchange.execute"
	AuditActionCouponRedeem       = "coupon.redeem"
	AuditActionCouponCreate       = "coupon.create"
	AuditActionCodeImport         = "activation_code.import"
	AuditActionDepositConfirm     = "deposit.confirm"
	AuditActionInvariantViolation = "invariant.violation"
	AuditActionFairnessRotation   = "fairness.rotation_reminder"
	AuditActionUserStatus         = "user.status_change"
	AuditActionTelegramLink       = "user.telegram_link"
	AuditActionTicketReply        = "ticket.reply"
	AuditActionTicketClose        = "ticket.close"
)

type AuditLog struct {
	ID           int64                  `db:"id" json:"id"`
	UserID       *uuid.UUID             `db:"user_id" json:"user_id,omitempty"`
	Action       string                 `db:"action" json:"action"`
	ResourceType *string                `db:"resource_type" json:"resource_type,omitempty"`
	ResourceID   *string                `db:"resource_id" json:"resource_id,omitempty"`
	OldValue     map[string]interface{} `db:"old_value" json:"old_value,omitempty"`
	NewValue     map[string]interface{} `db:"new_value" json:"new_value,omitempty"`
	IPAddress    *string                `db:"ip_address" json:"ip_address,omitempty"`
	UserAgent    *string                `db:"user_agent" json:"user_agent,omitempty"`
	CreatedAt    time.Time              `db:"created_at" json:"created_at"`
}
