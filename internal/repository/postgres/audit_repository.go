package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"lootbox-hub/internal/model"
	"lootbox-hub/internal/repository"
)

type auditRepository struct {
	pool *pgxpool.Pool
}

// NewAuditRepository stores operator-facing audit entries. Draw records are
// not written here; lootbox_openings is their own append-only table.
func NewAuditRepository(pool *pgxpool.Pool) repository.AuditRepository {
	return &auditRepository{pool: pool}
}

var _ repository.AuditRepository = (*auditRepository)(nil)

const auditColumns = `id, user_id, action, resource_type, resource_id, old_value, new_value, ip_address, user_agent, created_at`

func (r *auditRepository) Create(ctx context.Context, log *model.AuditLog) error {
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}

	oldValue, err := encodeJSONMap(log.OldValue)
	if err != nil {
		return fmt.Errorf("encode audit old_value: %w", err)
	}
	newValue, err := encodeJSONMap(log.NewValue)
	if err != nil {
		return fmt.Errorf("encode audit new_value: %w", err)
	}

	return r.pool.QueryRow(ctx, `
		INSERT INTO audit_logs (user_id, action, resource_type, resource_id, old_value, new_value, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		log.UserID,
		log.Action,
		log.ResourceType,
		log.ResourceID,
		oldValue,
		newValue,
		log.IPAddress,
		log.UserAgent,
		log.CreatedAt,
	).Scan(&log.ID)
}

// List returns matching entries newest first.
func (r *auditRepository) List(ctx context.Context, filter repository.AuditListFilter) ([]*model.AuditLog, error) {
	clause := auditFilter(filter)
	limit, args := clause.page(filter.Pagination)

	rows, err := r.pool.Query(ctx, "SELECT "+auditColumns+" FROM audit_logs"+clause.where()+" ORDER BY created_at DESC, id DESC"+limit, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]*model.AuditLog, 0)
	for rows.Next() {
		item, err := scanAuditLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, item)
	}
	return logs, rows.Err()
}

func (r *auditRepository) Count(ctx context.Context, filter repository.AuditListFilter) (int64, error) {
	clause := auditFilter(filter)

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM audit_logs"+clause.where(), clause.args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func auditFilter(filter repository.AuditListFilter) *filterClause {
	clause := &filterClause{}
	if filter.UserID != nil {
		clause.eq("user_id", *filter.UserID)
	}
	if filter.Action != nil {
		clause.eq("action", *filter.Action)
	}
	if filter.ResourceType != nil {
		clause.eq("resource_type", *filter.ResourceType)
	}
	if filter.ResourceID != nil {
		clause.eq("resource_id", *filter.ResourceID)
	}
	if filter.IPAddress != nil {
		clause.eq("ip_address", *filter.IPAddress)
	}
	if filter.StartTime != nil {
		clause.add("created_at >= $%d", filter.StartTime.UTC())
	}
	if filter.EndTime != nil {
		clause.add("created_at <= $%d", filter.EndTime.UTC())
	}
	return clause
}

func scanAuditLog(src scanTarget) (*model.AuditLog, error) {
	log := &model.AuditLog{}
	var oldValueRaw, newValueRaw []byte

	if err := src.Scan(
		&log.ID,
		&log.UserID,
		&log.Action,
		&log.ResourceType,
		&log.ResourceID,
		&oldValueRaw,
		&newValueRaw,
		&log.IPAddress,
		&log.UserAgent,
		&log.CreatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if log.OldValue, err = decodeJSONMap(oldValueRaw); err != nil {
		return nil, err
	}
	if log.NewValue, err = decodeJSONMap(newValueRaw); err != nil {
		return nil, err
	}
	return log, nil
}
