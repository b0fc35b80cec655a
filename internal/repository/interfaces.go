package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"lootbox-hub/internal/model"
)

var ErrNotFound = errors.New("record not found")

type Pagination struct {
	Limit  int32 `json:"limit"`
	Offset int32 `json:"offset"`
}

type UserListFilter struct {
	Role       *model.UserRole   `json:"role,omitempty"`
	Status     *model.UserStatus `json:"status,omitempty"`
	Keyword    *string           `json:"keyword,omitempty"`
	Pagination Pagination        `json:"pagination"`
}

type DrawListFilter struct {
	UserID     *uuid.UUID `json:"user_id,omitempty"`
	LootboxID  *uuid.UUID `json:"lootbox_id,omitempty"`
	Pagination Pagination `json:"pagination"`
}

type ActivationCodeListFilter struct {
	ItemID     *uuid.UUID                  `json:"item_id,omitempty"`
	BatchID    *uuid.UUID                  `json:"batch_id,omitempty"`
	Status     *model.ActivationCodeStatus `json:"status,omitempty"`
	Pagination Pagination                  `json:"pagination"`
}

type TicketListFilter struct {
	UserID     *uuid.UUID            `json:"user_id,omitempty"`
	Status     *model.TicketStatus   `json:"status,omitempty"`
	Priority   *model.TicketPriority `json:"priority,omitempty"`
	Pagination Pagination            `json:"pagination"`
}

type AuditListFilter struct {
	UserID       *uuid.UUID `json:"user_id,omitempty"`
	Action       *string    `json:"action,omitempty"`
	ResourceType *string    `json:"resource_type,omitempty"`
	ResourceID   *string    `json:"resource_id,omitempty"`
	IPAddress    *string    `json:"ip_address,omitempty"`
	StartTime    *time.Time `json:"start_time,omitempty"`
	EndTime      *time.Time `json:"end_time,omitempty"`
	Pagination   Pagination `json:"pagination"`
}

type UserRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	FindByUsername(ctx context.Context, username string) (*model.User, error)
	FindByTelegramChatID(ctx context.Context, chatID int64) (*model.User, error)
	Create(ctx context.Context, user *model.User) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.UserStatus) error
	UpdateTelegramChat(ctx context.Context, id uuid.UUID, chatID *int64) error
	List(ctx context.Context, filter UserListFilter) ([]*model.User, error)
	Count(ctx context.Context, filter UserListFilter) (int64, error)
}

// CatalogRepository reads and seeds boxes and items. Box reads always carry
// the ordered weight list.
type CatalogRepository interface {
	FindBox(ctx context.Context, id uuid.UUID) (*model.Lootbox, error)
	ListActiveBoxes(ctx context.Context) ([]*model.Lootbox, error)
	FindItem(ctx context.Context, id uuid.UUID) (*model.Item, error)
	FindItems(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.Item, error)
	CreateItem(ctx context.Context, item *model.Item) error
	CreateBox(ctx context.Context, box *model.Lootbox) error
	WithinTx(ctx context.Context, fn func(CatalogRepository) error) error
}

type DrawRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.DrawRecord, error)
	List(ctx context.Context, filter DrawListFilter) ([]*model.DrawRecord, error)
	Count(ctx context.Context, filter DrawListFilter) (int64, error)
}

type ActivationCodeRepository interface {
	BatchCreate(ctx context.Context, codes []*model.ActivationCode) (int64, error)
	List(ctx context.Context, filter ActivationCodeListFilter) ([]*model.ActivationCode, error)
	StockByItem(ctx context.Context) ([]model.ActivationCodeStock, error)
}

// AuditRepository is append-only. Count ignores the filter's pagination.
type AuditRepository interface {
	Create(ctx context.Context, log *model.AuditLog) error
	List(ctx context.Context, filter AuditListFilter) ([]*model.AuditLog, error)
	Count(ctx context.Context, filter AuditListFilter) (int64, error)
}

// TicketRepository stores support tickets. Reply and Close only touch tickets
// that are not closed yet and report ErrNotFound otherwise.
type TicketRepository interface {
	Create(ctx context.Context, ticket *model.Ticket) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Ticket, error)
	List(ctx context.Context, filter TicketListFilter) ([]*model.Ticket, error)
	Count(ctx context.Context, filter TicketListFilter) (int64, error)
	Reply(ctx context.Context, id uuid.UUID, reply string, repliedBy uuid.UUID, at time.Time) error
	Close(ctx context.Context, id uuid.UUID, at time.Time) error
}
