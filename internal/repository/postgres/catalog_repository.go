package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"lootbox-hub/internal/lottery"
	"lootbox-hub/internal/model"
	"lootbox-hub/internal/repository"
)

// catalogDB is satisfied by both *pgxpool.Pool and pgx.Tx. Begin on a
// transaction opens a savepoint.
type catalogDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type catalogRepository struct {
	db catalogDB
}

func NewCatalogRepository(pool *pgxpool.Pool) repository.CatalogRepository {
	return &catalogRepository{db: pool}
}

// WithinTx runs fn against a repository bound to one transaction and commits
// only if fn succeeds.
func (r *catalogRepository) WithinTx(ctx context.Context, fn func(repository.CatalogRepository) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(&catalogRepository{db: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

var _ repository.CatalogRepository = (*catalogRepository)(nil)

const lootboxColumns = `
	id,
	name,
	description,
	image_url,
	category,
	price,
	status,
	min_level,
	times_opened,
	last_opened_at,
	created_at
`

const itemColumns = `
	id,
	name,
	description,
	image_url,
	category,
	rarity,
	value,
	times_won,
	created_at
`

func (r *catalogRepository) FindBox(ctx context.Context, id uuid.UUID) (*model.Lootbox, error) {
	box, err := oneRow(scanLootbox(r.db.QueryRow(ctx, `SELECT `+lootboxColumns+` FROM lootboxes WHERE id = $1`, id)))
	if err != nil {
		return nil, err
	}

	entries, err := r.entriesFor(ctx, []uuid.UUID{box.ID})
	if err != nil {
		return nil, err
	}
	box.Entries = entries[box.ID]

	return box, nil
}

func (r *catalogRepository) ListActiveBoxes(ctx context.Context) ([]*model.Lootbox, error) {
	query := `SELECT ` + lootboxColumns + ` FROM lootboxes WHERE status = $1 ORDER BY price ASC, created_at ASC`
	rows, err := r.db.Query(ctx, query, model.LootboxStatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	boxes := make([]*model.Lootbox, 0)
	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		box, err := scanLootbox(rows)
		if err != nil {
			return nil, err
		}
		boxes = append(boxes, box)
		ids = append(ids, box.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(ids) == 0 {
		return boxes, nil
	}

	entries, err := r.entriesFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, box := range boxes {
		box.Entries = entries[box.ID]
	}

	return boxes, nil
}

func (r *catalogRepository) FindItem(ctx context.Context, id uuid.UUID) (*model.Item, error) {
	return oneRow(scanItem(r.db.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1`, id)))
}

func (r *catalogRepository) FindItems(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.Item, error) {
	out := make(map[uuid.UUID]*model.Item, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query := `SELECT ` + itemColumns + ` FROM items WHERE id = ANY($1)`
	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out[item.ID] = item
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return out, nil
}

func (r *catalogRepository) CreateItem(ctx context.Context, item *model.Item) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	if item.Category == "" {
		item.Category = "general"
	}
	if item.Rarity == "" {
		item.Rarity = "common"
	}

	query := `
		INSERT INTO items (
			id, name, description, image_url, category,
			rarity, value, times_won, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.Exec(
		ctx,
		query,
		item.ID,
		item.Name,
		item.Description,
		item.ImageURL,
		item.Category,
		item.Rarity,
		item.Value,
		item.TimesWon,
		item.CreatedAt,
	)
	return err
}

// CreateBox writes the box row and its ordered weight list in one
// transaction. Entries are validated through lottery.NewCatalog first so a
// box with an empty or non-positive weight list is never persisted.
func (r *catalogRepository) CreateBox(ctx context.Context, box *model.Lootbox) error {
	if _, err := lottery.NewCatalog(box.Entries); err != nil {
		return err
	}

	if box.ID == uuid.Nil {
		box.ID = uuid.New()
	}
	if box.CreatedAt.IsZero() {
		box.CreatedAt = time.Now().UTC()
	}
	if box.Status == "" {
		box.Status = model.LootboxStatusActive
	}
	if box.Category == "" {
		box.Category = "general"
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(
		ctx,
		`INSERT INTO lootboxes (
			id, name, description, image_url, category,
			price, status, min_level, times_opened, last_opened_at, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		box.ID,
		box.Name,
		box.Description,
		box.ImageURL,
		box.Category,
		box.Price,
		box.Status,
		box.MinLevel,
		box.TimesOpened,
		box.LastOpenedAt,
		box.CreatedAt,
	); err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for position, entry := range box.Entries {
		batch.Queue(
			`INSERT INTO lootbox_items (lootbox_id, position, item_id, weight) VALUES ($1, $2, $3, $4)`,
			box.ID,
			position,
			entry.ItemID,
			entry.Weight,
		)
	}

	results := tx.SendBatch(ctx, batch)
	for range box.Entries {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return err
		}
	}
	if err := results.Close(); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *catalogRepository) entriesFor(ctx context.Context, boxIDs []uuid.UUID) (map[uuid.UUID][]lottery.Entry, error) {
	rows, err := r.db.Query(
		ctx,
		`SELECT lootbox_id, item_id, weight
		   FROM lootbox_items
		  WHERE lootbox_id = ANY($1)
		  ORDER BY lootbox_id, position ASC`,
		boxIDs,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]lottery.Entry, len(boxIDs))
	for rows.Next() {
		var boxID uuid.UUID
		var entry lottery.Entry
		if err := rows.Scan(&boxID, &entry.ItemID, &entry.Weight); err != nil {
			return nil, err
		}
		out[boxID] = append(out[boxID], entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return out, nil
}

func scanLootbox(src scanTarget) (*model.Lootbox, error) {
	box := &model.Lootbox{}
	err := src.Scan(
		&box.ID,
		&box.Name,
		&box.Description,
		&box.ImageURL,
		&box.Category,
		&box.Price,
		&box.Status,
		&box.MinLevel,
		&box.TimesOpened,
		&box.LastOpenedAt,
		&box.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return box, nil
}

func scanItem(src scanTarget) (*model.Item, error) {
	item := &model.Item{}
	err := src.Scan(
		&item.ID,
		&item.Name,
		&item.Description,
		&item.ImageURL,
		&item.Category,
		&item.Rarity,
		&item.Value,
		&item.TimesWon,
		&item.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return item, nil
}
