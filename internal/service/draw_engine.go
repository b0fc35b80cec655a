package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"lootbox-hub/internal/lottery"
	"lootbox-hub/internal/model"
	"lootbox-hub/pkg/fairness"
)

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

type rowScanner interface {
	Scan(dest ...any) error
}

// FairnessProof is what a caller needs to dispute a draw later.
type FairnessProof struct {
	Hash        string `json:"hash"`
	Timestamp   int64  `json:"timestamp"`
	RandomValue int64  `json:"random_value"`
	TotalWeight int64  `json:"total_weight"`
}

// drawEngine runs a weighted selection inside the caller's transaction and
// seals the outcome with a keyed proof. Box openings and coupon redemptions
// share it.
type drawEngine struct {
	secret string
	random lottery.RandomFunc
	now    func() time.Time
}

type drawOutcome struct {
	Item      *model.Item
	Selection lottery.Selection
	Payload   fairness.DrawPayload
	Proof     string
}

func newDrawEngine(secret string) drawEngine {
	return drawEngine{
		secret: secret,
		random: fairness.SecureRandomInRange,
		now:    time.Now,
	}
}

func (o *drawOutcome) fairnessProof() FairnessProof {
	return FairnessProof{
		Hash:        o.Proof,
		Timestamp:   o.Payload.Timestamp,
		RandomValue: o.Payload.RandomValue,
		TotalWeight: o.Payload.TotalWeight,
	}
}

func (e drawEngine) draw(
	ctx context.Context,
	tx pgx.Tx,
	userID uuid.UUID,
	sourceID string,
	entries []lottery.Entry,
) (*drawOutcome, error) {
	catalog, err := lottery.NewCatalog(entries)
	if err != nil {
		return nil, invariantViolation(ErrNoCandidateSelected, err, map[string]any{"source": sourceID})
	}

	selection, err := catalog.Pick(e.random)
	if err != nil {
		if errors.Is(err, lottery.ErrNoCandidate) {
			return nil, invariantViolation(ErrNoCandidateSelected, err, map[string]any{
				"source":       sourceID,
				"total_weight": catalog.TotalWeight(),
			})
		}
		return nil, fmt.Errorf("draw %s: %w", sourceID, err)
	}

	item, err := findItemTx(ctx, tx, selection.ItemID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, invariantViolation(ErrItemNotFound, nil, map[string]any{
			"source":  sourceID,
			"item_id": selection.ItemID.String(),
		})
	}
	if err != nil {
		return nil, err
	}

	payload := fairness.DrawPayload{
		UserID:      userID.String(),
		LootboxID:   sourceID,
		ItemID:      item.ID.String(),
		Timestamp:   e.now().UnixMilli(),
		RandomValue: selection.RandomValue,
		TotalWeight: selection.TotalWeight,
	}

	proof, err := fairness.KeyedProof(payload, e.secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFairnessSecretNotConfigured, err)
	}

	return &drawOutcome{
		Item:      item,
		Selection: selection,
		Payload:   payload,
		Proof:     proof,
	}, nil
}

func findItemTx(ctx context.Context, tx pgx.Tx, itemID uuid.UUID) (*model.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE id = $1`
	return scanItemRow(tx.QueryRow(ctx, query, itemID))
}

func insertInventoryTx(ctx context.Context, tx pgx.Tx, entry *model.InventoryEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Status == "" {
		entry.Status = model.InventoryStatusAvailable
	}

	return tx.QueryRow(
		ctx,
		`INSERT INTO inventory (
			id, user_id, item_id, source_type, source_id, status, required_deposit
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING obtained_at`,
		entry.ID,
		entry.UserID,
		entry.ItemID,
		entry.SourceType,
		entry.SourceID,
		entry.Status,
		entry.RequiredDeposit,
	).Scan(&entry.ObtainedAt)
}

func incrementItemWonTx(ctx context.Context, tx pgx.Tx, itemID uuid.UUID) error {
	tag, err := tx.Exec(ctx, `UPDATE items SET times_won = times_won + 1 WHERE id = $1`, itemID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return invariantViolation(ErrSettlementCounterMismatch, nil, map[string]any{
			"table":   "items",
			"item_id": itemID.String(),
		})
	}
	return nil
}

func scanItemRow(src rowScanner) (*model.Item, error) {
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
