package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"lootbox-hub/internal/model"
	"lootbox-hub/internal/repository"
)

// drawRepository is read-only. Rows in lootbox_openings are inserted by the
// settlement transaction and a trigger rejects any later UPDATE or DELETE.
type drawRepository struct {
	pool *pgxpool.Pool
}

func NewDrawRepository(pool *pgxpool.Pool) repository.DrawRepository {
	return &drawRepository{pool: pool}
}

var _ repository.DrawRepository = (*drawRepository)(nil)

const drawColumns = `
	id,
	user_id,
	lootbox_id,
	item_id,
	inventory_id,
	price_paid,
	fairness_hash,
	fairness_data,
	fingerprint,
	opened_at
`

func (r *drawRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.DrawRecord, error) {
	return oneRow(scanDrawRecord(r.pool.QueryRow(ctx, "SELECT "+drawColumns+" FROM lootbox_openings WHERE id = $1", id)))
}

func (r *drawRepository) List(ctx context.Context, filter repository.DrawListFilter) ([]*model.DrawRecord, error) {
	clause := drawFilter(filter)
	limit, args := clause.page(filter.Pagination)

	rows, err := r.pool.Query(ctx, "SELECT "+drawColumns+" FROM lootbox_openings"+clause.where()+" ORDER BY opened_at DESC, id DESC"+limit, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]*model.DrawRecord, 0)
	for rows.Next() {
		record, err := scanDrawRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (r *drawRepository) Count(ctx context.Context, filter repository.DrawListFilter) (int64, error) {
	clause := drawFilter(filter)

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM lootbox_openings"+clause.where(), clause.args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func drawFilter(filter repository.DrawListFilter) *filterClause {
	clause := &filterClause{}
	if filter.UserID != nil {
		clause.eq("user_id", *filter.UserID)
	}
	if filter.LootboxID != nil {
		clause.eq("lootbox_id", *filter.LootboxID)
	}
	return clause
}

func scanDrawRecord(src scanTarget) (*model.DrawRecord, error) {
	record := &model.DrawRecord{}
	var fairnessRaw []byte

	err := src.Scan(
		&record.ID,
		&record.UserID,
		&record.LootboxID,
		&record.ItemID,
		&record.InventoryID,
		&record.PricePaid,
		&record.FairnessHash,
		&fairnessRaw,
		&record.Fingerprint,
		&record.OpenedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(fairnessRaw, &record.FairnessData); err != nil {
		return nil, fmt.Errorf("decode fairness_data for draw %s: %w", record.ID, err)
	}

	return record, nil
}
