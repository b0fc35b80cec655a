package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type DepositStatus string

const (
	DepositStatusPending   DepositStatus = "pending"
	DepositStatusCompleted DepositStatus = "completed"
	DepositStatusFailed    DepositStatus = "failed"
)

type Deposit struct {
	ID               uuid.UUID       `db:"id" json:"id"`
	UserID           uuid.UUID       `db:"user_id" json:"user_id"`
	AmountOriginal   decimal.Decimal `db:"amount_original" json:"amount"`
	CurrencyOriginal string          `db:"currency_original" json:"currency"`
	AmountUSD        decimal.Decimal `db:"amount_usd" json:"credits"`
	PaymentMethod    string          `db:"payment_method" json:"payment_method"`
	Status           DepositStatus   `db:"status" json:"status"`
	PaymentRef       *string         `db:"payment_ref" json:"payment_ref,omitempty"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	CompletedAt      *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
}
