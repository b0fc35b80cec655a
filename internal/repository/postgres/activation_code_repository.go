package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"lootbox-hub/internal/model"
	"lootbox-hub/internal/repository"
)

type activationCodeRepository struct {
	pool *pgxpool.Pool
}

func NewActivationCodeRepository(pool *pgxpool.Pool) repository.ActivationCodeRepository {
	return &activationCodeRepository{pool: pool}
}

var _ repository.ActivationCodeRepository = (*activationCodeRepository)(nil)

const activationCodeColumns = `
	id,
	item_id,
	code,
	batch_id,
	status,
	withdrawal_id,
	used_by,
	used_at,
	created_by,
	created_at
`

// BatchCreate inserts the whole batch or nothing and reports how many rows
// were new. Codes already present in the pool are skipped.
func (r *activationCodeRepository) BatchCreate(ctx context.Context, codes []*model.ActivationCode) (int64, error) {
	if len(codes) == 0 {
		return 0, nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	query := `
		INSERT INTO activation_codes (
			id, item_id, code, batch_id, status,
			withdrawal_id, used_by, used_at, created_by, created_at
		)
		VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10
		)
		ON CONFLICT (code) DO NOTHING
	`

	batch := &pgx.Batch{}
	now := time.Now().UTC()
	for i, code := range codes {
		if code.ID == uuid.Nil {
			code.ID = uuid.New()
		}
		if code.Status == "" {
			code.Status = model.ActivationCodeAvailable
		}
		if code.CreatedAt.IsZero() {
			// Strictly increasing timestamps keep FIFO claim order equal to
			// the supplier file order inside one batch.
			code.CreatedAt = now.Add(time.Duration(i) * time.Microsecond)
		}

		batch.Queue(
			query,
			code.ID,
			code.ItemID,
			code.Code,
			code.BatchID,
			code.Status,
			code.WithdrawalID,
			code.UsedBy,
			code.UsedAt,
			code.CreatedBy,
			code.CreatedAt,
		)
	}

	var inserted int64
	results := tx.SendBatch(ctx, batch)
	for range codes {
		tag, err := results.Exec()
		if err != nil {
			_ = results.Close()
			return 0, err
		}
		inserted += tag.RowsAffected()
	}
	if err := results.Close(); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return inserted, nil
}

func (r *activationCodeRepository) List(
	ctx context.Context,
	filter repository.ActivationCodeListFilter,
) ([]*model.ActivationCode, error) {
	clause := &filterClause{}
	if filter.ItemID != nil {
		clause.eq("item_id", *filter.ItemID)
	}
	if filter.BatchID != nil {
		clause.eq("batch_id", *filter.BatchID)
	}
	if filter.Status != nil {
		clause.eq("status", *filter.Status)
	}
	limit, args := clause.page(filter.Pagination)
	query := "SELECT " + activationCodeColumns + " FROM activation_codes" + clause.where() + " ORDER BY created_at ASC, id ASC" + limit

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	codes := make([]*model.ActivationCode, 0)
	for rows.Next() {
		code, err := scanActivationCode(rows)
		if err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return codes, nil
}

func (r *activationCodeRepository) StockByItem(ctx context.Context) ([]model.ActivationCodeStock, error) {
	rows, err := r.pool.Query(
		ctx,
		`SELECT i.id,
		        i.name,
		        COUNT(c.id) FILTER (WHERE c.status = 'available'),
		        COUNT(c.id) FILTER (WHERE c.status = 'used')
		   FROM items i
		   LEFT JOIN activation_codes c ON c.item_id = i.id
		  GROUP BY i.id, i.name
		  ORDER BY i.name ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stock := make([]model.ActivationCodeStock, 0)
	for rows.Next() {
		var row model.ActivationCodeStock
		if err := rows.Scan(&row.ItemID, &row.ItemName, &row.Available, &row.Used); err != nil {
			return nil, err
		}
		stock = append(stock, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return stock, nil
}

func scanActivationCode(src scanTarget) (*model.ActivationCode, error) {
	code := &model.ActivationCode{}
	err := src.Scan(
		&code.ID,
		&code.ItemID,
		&code.Code,
		&code.BatchID,
		&code.Status,
		&code.WithdrawalID,
		&code.UsedBy,
		&code.UsedAt,
		&code.CreatedBy,
		&code.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return code, nil
}
