package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"lootbox-hub/internal/model"
	"lootbox-hub/internal/repository"
)

type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository reads and administers accounts. Balance, level and the
// deposit/withdraw totals are only written by settlement transactions.
func NewUserRepository(pool *pgxpool.Pool) repository.UserRepository {
	return &userRepository{pool: pool}
}

var _ repository.UserRepository = (*userRepository)(nil)

const userColumns = `id, username, email, role, status, balance, level, total_deposited, total_withdrawn, telegram_chat_id, created_at, updated_at`

func (r *userRepository) findOne(ctx context.Context, where string, arg any) (*model.User, error) {
	return oneRow(scanUser(r.pool.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE "+where, arg)))
}

func (r *userRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return r.findOne(ctx, "id = $1", id)
}

func (r *userRepository) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.findOne(ctx, "username = $1", strings.TrimSpace(username))
}

func (r *userRepository) FindByTelegramChatID(ctx context.Context, chatID int64) (*model.User, error) {
	return r.findOne(ctx, "telegram_chat_id = $1", chatID)
}

// Create mirrors an account provisioned by the upstream auth service.
func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.Role == "" {
		user.Role = model.UserRoleUser
	}
	if user.Status == "" {
		user.Status = model.UserStatusActive
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = user.CreatedAt
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, username, email, role, status, balance, level, total_deposited, total_withdrawn, telegram_chat_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		user.ID,
		user.Username,
		user.Email,
		user.Role,
		user.Status,
		user.Balance,
		user.Level,
		user.TotalDeposited,
		user.TotalWithdrawn,
		user.TelegramChatID,
		user.CreatedAt,
		user.UpdatedAt,
	)
	return err
}

func (r *userRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.UserStatus) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	return ensureAffected(tag)
}

// UpdateTelegramChat links or, with a nil chatID, unlinks the notification chat.
func (r *userRepository) UpdateTelegramChat(ctx context.Context, id uuid.UUID, chatID *int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET telegram_chat_id = $2, updated_at = NOW() WHERE id = $1`, id, chatID)
	if err != nil {
		return err
	}
	return ensureAffected(tag)
}

func (r *userRepository) List(ctx context.Context, filter repository.UserListFilter) ([]*model.User, error) {
	clause := userFilter(filter)
	limit, args := clause.page(filter.Pagination)

	rows, err := r.pool.Query(ctx, "SELECT "+userColumns+" FROM users"+clause.where()+" ORDER BY created_at DESC"+limit, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]*model.User, 0)
	for rows.Next() {
		item, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, item)
	}
	return users, rows.Err()
}

func (r *userRepository) Count(ctx context.Context, filter repository.UserListFilter) (int64, error) {
	clause := userFilter(filter)

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM users"+clause.where(), clause.args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func userFilter(filter repository.UserListFilter) *filterClause {
	clause := &filterClause{}
	if filter.Role != nil {
		clause.eq("role", *filter.Role)
	}
	if filter.Status != nil {
		clause.eq("status", *filter.Status)
	}
	if filter.Keyword != nil && strings.TrimSpace(*filter.Keyword) != "" {
		clause.add("(username ILIKE $%d OR email ILIKE $%d)", "%"+strings.TrimSpace(*filter.Keyword)+"%")
	}
	return clause
}

func scanUser(src scanTarget) (*model.User, error) {
	user := &model.User{}
	if err := src.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.Role,
		&user.Status,
		&user.Balance,
		&user.Level,
		&user.TotalDeposited,
		&user.TotalWithdrawn,
		&user.TelegramChatID,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return user, nil
}
