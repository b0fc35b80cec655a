package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type UserStatus string

type UserRole string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
)

const (
	UserRoleUser      UserRole = "user"
	UserRoleModerator UserRole = "moderator"
	UserRoleAdmin     UserRole = "admin"
)

type User struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	Username       string          `db:"username" json:"username"`
	Email          *string         `db:"email" json:"email,omitempty"`
	Role           UserRole        `db:"role" json:"role"`
	Status         UserStatus      `db:"status" json:"status"`
	Balance        decimal.Decimal `db:"balance" json:"balance"`
	Level          int             `db:"level" json:"level"`
	TotalDeposited decimal.Decimal `db:"total_deposited" json:"total_deposited"`
	TotalWithdrawn int64           `db:"total_withdrawn" json:"total_withdrawn"`
	TelegramChatID *int64          `db:"telegram_chat_id" json:"-"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}
