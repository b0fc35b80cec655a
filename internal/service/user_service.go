package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"lootbox-hub/internal/model"
	"lootbox-hub/internal/repository"
)

const (
	defaultListPage     = 1
	defaultListPageSize = 20
	maxListPageSize     = 200
	telegramBindCodeTTL = 10 * time.Minute
)

type userListOptions struct {
	status  *model.UserStatus
	role    *model.UserRole
	keyword *string
}

type UserFilter func(*userListOptions)

// InventoryView is an inventory entry joined with the item it points at.
type InventoryView struct {
	model.InventoryEntry
	ItemName   string          `json:"item_name"`
	ItemValue  decimal.Decimal `json:"item_value"`
	ItemRarity string          `json:"item_rarity"`
}

type UserService struct {
	userRepo  repository.UserRepository
	pool      *pgxpool.Pool
	reporter  opsReporter
	logger    *zap.Logger
	now       func() time.Time
	bindMu    sync.Mutex
	bindCodes map[string]telegramBindTicket
}

type telegramBindTicket struct {
	ChatID    int64
	ExpiresAt time.Time
}

func NewUserService(
	userRepo repository.UserRepository,
	pool *pgxpool.Pool,
	auditRepo repository.AuditRepository,
	logger *zap.Logger,
) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{
		userRepo:  userRepo,
		pool:      pool,
		reporter:  newOpsReporter(logger, nil, auditRepo),
		logger:    logger,
		now:       time.Now,
		bindCodes: make(map[string]telegramBindTicket),
	}
}

func ByStatus(status model.UserStatus) UserFilter {
	return func(opts *userListOptions) {
		s := status
		opts.status = &s
	}
}

func ByRole(role model.UserRole) UserFilter {
	return func(opts *userListOptions) {
		r := role
		opts.role = &r
	}
}

func ByKeyword(keyword string) UserFilter {
	return func(opts *userListOptions) {
		trimmed := strings.TrimSpace(keyword)
		if trimmed == "" {
			return
		}
		opts.keyword = &trimmed
	}
}

// Profile returns the caller's own account with balance and progress totals.
func (s *UserService) Profile(ctx context.Context, actor Actor) (*model.User, error) {
	if err := actor.requireSelf(); err != nil {
		return nil, err
	}
	return s.findUser(ctx, actor.UserID)
}

// ListInventory pages through the caller's items, newest first. A nil status
// lists every entry.
func (s *UserService) ListInventory(
	ctx context.Context,
	actor Actor,
	status *model.InventoryStatus,
	page, pageSize int,
) ([]*InventoryView, int64, error) {
	if s.pool == nil {
		return nil, 0, errors.New("database pool is nil")
	}
	if err := actor.requireSelf(); err != nil {
		return nil, 0, err
	}

	page, pageSize = normalizeListPagination(page, pageSize)

	args := []any{actor.UserID}
	where := "inv.user_id = $1"
	if status != nil {
		args = append(args, *status)
		where += " AND inv.status = $2"
	}

	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM inventory inv WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, pageSize, (page-1)*pageSize)
	query := fmt.Sprintf(
		`SELECT inv.id, inv.user_id, inv.item_id, inv.source_type, inv.source_id, inv.status,
		        inv.required_deposit, inv.obtained_at, inv.withdrawn_at,
		        i.name, i.value, i.rarity
		   FROM inventory inv
		   JOIN items i ON i.id = inv.item_id
		  WHERE %s
		  ORDER BY inv.obtained_at DESC, inv.id DESC
		  LIMIT $%d OFFSET $%d`,
		where, len(args)-1, len(args),
	)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]*InventoryView, 0, pageSize)
	for rows.Next() {
		view := &InventoryView{}
		if err := rows.Scan(
			&view.ID,
			&view.UserID,
			&view.ItemID,
			&view.SourceType,
			&view.SourceID,
			&view.Status,
			&view.RequiredDeposit,
			&view.ObtainedAt,
			&view.WithdrawnAt,
			&view.ItemName,
			&view.ItemValue,
			&view.ItemRarity,
		); err != nil {
			return nil, 0, err
		}
		out = append(out, view)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *UserService) List(ctx context.Context, actor Actor, page, pageSize int, filters ...UserFilter) ([]*model.User, int64, error) {
	if err := actor.requireOperator(); err != nil {
		return nil, 0, err
	}

	normalizedPage, normalizedPageSize := normalizeListPagination(page, pageSize)
	options := &userListOptions{}
	for _, filter := range filters {
		if filter != nil {
			filter(options)
		}
	}

	repoFilter := repository.UserListFilter{
		Role:    options.role,
		Status:  options.status,
		Keyword: options.keyword,
		Pagination: repository.Pagination{
			Limit:  int32(normalizedPageSize),
			Offset: int32((normalizedPage - 1) * normalizedPageSize),
		},
	}

	users, err := s.userRepo.List(ctx, repoFilter)
	if err != nil {
		return nil, 0, err
	}

	total, err := s.userRepo.Count(ctx, repoFilter)
	if err != nil {
		return nil, 0, err
	}

	return users, total, nil
}

// SetStatus suspends or reactivates an account. Suspended users cannot open
// boxes or redeem coupons.
func (s *UserService) SetStatus(ctx context.Context, actor Actor, targetID uuid.UUID, status model.UserStatus) error {
	if err := actor.requireAdmin(); err != nil {
		return err
	}
	if status != model.UserStatusActive && status != model.UserStatusSuspended {
		return invalidInput(ErrInvalidInput, "unknown status")
	}
	if actor.UserID == targetID && status == model.UserStatusSuspended {
		return policyViolation(ErrSelfSuspendForbidden, nil)
	}

	target, err := s.findUser(ctx, targetID)
	if err != nil {
		return err
	}
	if target.Status == status {
		return nil
	}

	if err := s.userRepo.UpdateStatus(ctx, targetID, status); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFound(ErrUserNotFound)
		}
		return err
	}

	operatorID := actor.UserID
	s.reporter.audit(ctx, &model.AuditLog{
		UserID:       &operatorID,
		Action:       model.AuditActionUserStatus,
		ResourceType: strPtr("user"),
		ResourceID:   strPtr(targetID.String()),
		OldValue:     map[string]interface{}{"status": target.Status},
		NewValue:     map[string]interface{}{"status": status},
	})
	s.logger.Info("user status changed",
		zap.String("operator_id", operatorID.String()),
		zap.String("user_id", targetID.String()),
		zap.String("status", string(status)),
	)
	return nil
}

// IssueTelegramBindCode is called by the bot when a chat sends /start. The
// user then proves ownership of the chat by submitting the code while
// authenticated.
func (s *UserService) IssueTelegramBindCode(chatID int64) (string, error) {
	if chatID == 0 {
		return "", invalidInput(ErrInvalidInput, "chat id is required")
	}

	code, err := generateBindCode()
	if err != nil {
		return "", err
	}

	s.bindMu.Lock()
	defer s.bindMu.Unlock()
	s.pruneExpiredBindCodesLocked()
	s.bindCodes[code] = telegramBindTicket{
		ChatID:    chatID,
		ExpiresAt: s.now().UTC().Add(telegramBindCodeTTL),
	}

	return code, nil
}

func (s *UserService) BindTelegramByCode(ctx context.Context, actor Actor, code string) error {
	if err := actor.requireSelf(); err != nil {
		return err
	}
	normalizedCode := strings.ToUpper(strings.TrimSpace(code))
	if normalizedCode == "" {
		return invalidInput(ErrInvalidBindCode, "code is required")
	}

	s.bindMu.Lock()
	s.pruneExpiredBindCodesLocked()
	ticket, ok := s.bindCodes[normalizedCode]
	if !ok {
		s.bindMu.Unlock()
		return notFound(ErrInvalidBindCode)
	}
	delete(s.bindCodes, normalizedCode)
	s.bindMu.Unlock()

	existing, err := s.userRepo.FindByTelegramChatID(ctx, ticket.ChatID)
	if err == nil && existing.ID != actor.UserID {
		return invalidState(ErrTelegramChatInUse, nil)
	}
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	chatID := ticket.ChatID
	if err := s.userRepo.UpdateTelegramChat(ctx, actor.UserID, &chatID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFound(ErrUserNotFound)
		}
		return err
	}

	uid := actor.UserID
	s.reporter.audit(ctx, &model.AuditLog{
		UserID:       &uid,
		Action:       model.AuditActionTelegramLink,
		ResourceType: strPtr("user"),
		ResourceID:   strPtr(uid.String()),
		NewValue:     map[string]interface{}{"linked": true},
	})
	return nil
}

func (s *UserService) UnbindTelegram(ctx context.Context, actor Actor) error {
	if err := actor.requireSelf(); err != nil {
		return err
	}
	if err := s.userRepo.UpdateTelegramChat(ctx, actor.UserID, nil); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFound(ErrUserNotFound)
		}
		return err
	}

	uid := actor.UserID
	s.reporter.audit(ctx, &model.AuditLog{
		UserID:       &uid,
		Action:       model.AuditActionTelegramLink,
		ResourceType: strPtr("user"),
		ResourceID:   strPtr(uid.String()),
		NewValue:     map[string]interface{}{"linked": false},
	})
	return nil
}

func (s *UserService) findUser(ctx context.Context, id uuid.UUID) (*model.User, error) {
	if s.userRepo == nil {
		return nil, errors.New("user repository is nil")
	}
	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound(ErrUserNotFound)
		}
		return nil, err
	}
	return user, nil
}

func normalizeListPagination(page, pageSize int) (int, int) {
	return normalizePage(page, pageSize, defaultListPage, defaultListPageSize, maxListPageSize)
}

func (s *UserService) pruneExpiredBindCodesLocked() {
	now := s.now().UTC()
	for code, ticket := range s.bindCodes {
		if !ticket.ExpiresAt.After(now) {
			delete(s.bindCodes, code)
		}
	}
}

func generateBindCode() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(buf)), nil
}
