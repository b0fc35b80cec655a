package model

import (
	"time"

	"github.com/google/uuid"
)

type TicketStatus string

const (
	TicketStatusOpen     TicketStatus = "open"
	TicketStatusAnswered TicketStatus = "answered"
	TicketStatusClosed   TicketStatus = "closed"
)

type TicketCategory string

const (
	TicketCategoryGeneral    TicketCategory = "general"
	TicketCategoryTechnical  TicketCategory = "technical"
	TicketCategoryPayment    TicketCategory = "payment"
	TicketCategoryWithdrawal TicketCategory = "withdrawal"
	TicketCategoryFairness   TicketCategory = "fairness"
	TicketCategoryAccount    TicketCategory = "account"
	TicketCategoryOther      TicketCategory = "other"
)

type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
	TicketPriorityUrgent TicketPriority = "urgent"
)

type Ticket struct {
	ID        uuid.UUID      `db:"id" json:"id"`
	UserID    uuid.UUID      `db:"user_id" json:"user_id"`
	Subject   string         `db:"subject" json:"subject"`
	Category  TicketCategory `db:"category" json:"category"`
	Priority  TicketPriority `db:"priority" json:"priority"`
	Status    TicketStatus   `db:"status" json:"status"`
	Message   string         `db:"message" json:"message"`
	Reply     *string        `db:"reply" json:"reply,omitempty"`
	RepliedBy *uuid.UUID     `db:"replied_by" json:"replied_by,omitempty"`
	RepliedAt *time.Time     `db:"replied_at" json:"replied_at,omitempty"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt time.Time      `db:"updated_at" json:"updated_at"`
}
