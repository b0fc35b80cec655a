package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"lootbox-hub/internal/event"
	"lootbox-hub/internal/lottery"
	"lootbox-hub/internal/metrics"
	"lootbox-hub/internal/model"
	"lootbox-hub/internal/repository"
	"lootbox-hub/pkg/fairness"
)

const (
	drawListDefaultPage = 1
	drawListDefaultSize = 20
	drawListMaxPageSize = 100
)

type LootboxServiceConfig struct {
	FairnessSecret string
	TxTimeout      time.Duration
}

type OpenResult struct {
	DrawID      uuid.UUID       `json:"draw_id"`
	InventoryID uuid.UUID       `json:"inventory_id"`
	Item        *model.Item     `json:"item"`
	PricePaid   decimal.Decimal `json:"price_paid"`
	NewBalance  decimal.Decimal `json:"new_balance"`
	Proof       FairnessProof   `json:"fairness_proof"`
}

type Verification struct {
	DrawID          uuid.UUID            `json:"draw_id"`
	IsValid         bool                 `json:"is_valid"`
	Proof           string               `json:"proof"`
	RecomputedProof string               `json:"recomputed_proof"`
	Data            fairness.DrawPayload `json:"data"`
	OpenedAt        time.Time            `json:"opened_at"`
}

// BoxItemView is one catalog entry as shown to a caller. Weight and
// Probability are only set for operators; everyone gets the rarity band.
type BoxItemView struct {
	Item        *model.Item `json:"item"`
	Weight      *int64      `json:"weight,omitempty"`
	Probability *float64    `json:"probability,omitempty"`
	RarityBand  string      `json:"rarity_band"`
	RarityLabel string      `json:"rarity_label"`
}

type BoxDetails struct {
	Lootbox     *model.Lootbox `json:"lootbox"`
	Items       []BoxItemView  `json:"items"`
	TotalWeight *int64         `json:"total_weight,omitempty"`
}

type LootboxService struct {
	pool        *pgxpool.Pool
	catalogRepo repository.CatalogRepository
	drawRepo    repository.DrawRepository
	engine      drawEngine
	secret      string
	txTimeout   time.Duration
	bus         *event.Bus
	reporter    opsReporter
	logger      *zap.Logger
	fairnessLog *zap.Logger
}

func NewLootboxService(
	pool *pgxpool.Pool,
	catalogRepo repository.CatalogRepository,
	drawRepo repository.DrawRepository,
	auditRepo repository.AuditRepository,
	bus *event.Bus,
	cfg LootboxServiceConfig,
	logger *zap.Logger,
) *LootboxService {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &LootboxService{
		pool:        pool,
		catalogRepo: catalogRepo,
		drawRepo:    drawRepo,
		engine:      newDrawEngine(cfg.FairnessSecret),
		secret:      cfg.FairnessSecret,
		txTimeout:   cfg.TxTimeout,
		bus:         bus,
		reporter:    newOpsReporter(logger, bus, auditRepo),
		logger:      logger,
		fairnessLog: logger.Named("fairness"),
	}
}

// OpenLootbox debits the box price and credits one drawn item as a single
// transaction. A failure at any step rolls back the debit, the inventory
// row and the draw record together.
func (s *LootboxService) OpenLootbox(
	ctx context.Context,
	actor Actor,
	boxID uuid.UUID,
	fingerprint string,
) (result *OpenResult, err error) {
	if s.pool == nil {
		return nil, errors.New("database pool is nil")
	}
	if err := actor.requireSelf(); err != nil {
		return nil, err
	}

	trace := newSettlementTrace("open_lootbox")
	defer func() {
		s.reporter.finish(ctx, trace, actor.UserID, err)
	}()

	txCtx, cancel := withTxTimeout(ctx, s.txTimeout)
	defer cancel()

	tx, err := s.pool.BeginTx(txCtx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(txCtx) //nolint:errcheck

	box, err := findActiveBoxTx(txCtx, tx, boxID)
	if err != nil {
		return nil, err
	}

	user, err := lockUserTx(txCtx, tx, actor.UserID)
	if err != nil {
		return nil, err
	}
	if user.Status != model.UserStatusActive {
		return nil, policyViolation(ErrUserSuspended, nil)
	}
	if user.Balance.LessThan(box.Price) {
		return nil, policyViolation(ErrInsufficientFunds, map[string]any{
			"required":  box.Price.StringFixed(2),
			"balance":   user.Balance.StringFixed(2),
			"shortfall": box.Price.Sub(user.Balance).StringFixed(2),
		})
	}
	if user.Level < box.MinLevel {
		return nil, policyViolation(ErrLevelRequirementNotMet, map[string]any{
			"required_level": box.MinLevel,
			"current_level":  user.Level,
		})
	}

	newBalance, err := debitBalanceTx(txCtx, tx, user.ID, box.Price)
	if err != nil {
		return nil, err
	}
	trace.advance(StateFundsVerified)

	outcome, err := s.engine.draw(txCtx, tx, user.ID, box.ID.String(), box.Entries)
	if err != nil {
		return nil, err
	}
	trace.advance(StateItemSelected)

	boxRef := box.ID
	inventory := &model.InventoryEntry{
		UserID:     user.ID,
		ItemID:     outcome.Item.ID,
		SourceType: model.InventorySourceLootbox,
		SourceID:   &boxRef,
	}
	if err := insertInventoryTx(txCtx, tx, inventory); err != nil {
		return nil, err
	}
	trace.advance(StateInventoryCredited)

	drawID, err := insertDrawRecordTx(txCtx, tx, &model.DrawRecord{
		UserID:       user.ID,
		LootboxID:    box.ID,
		ItemID:       outcome.Item.ID,
		InventoryID:  inventory.ID,
		PricePaid:    box.Price,
		FairnessHash: outcome.Proof,
		FairnessData: outcome.Payload,
		Fingerprint:  optionalString(fingerprint),
	})
	if err != nil {
		return nil, err
	}
	trace.advance(StateAudited)

	if err := incrementBoxOpenedTx(txCtx, tx, box.ID); err != nil {
		return nil, err
	}
	if err := incrementItemWonTx(txCtx, tx, outcome.Item.ID); err != nil {
		return nil, err
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, err
	}
	trace.advance(StateCommitted)

	s.fairnessLog.Info("draw executed",
		zap.String("draw_id", drawID.String()),
		zap.String("user_id", user.ID.String()),
		zap.String("lootbox_id", box.ID.String()),
		zap.String("item_id", outcome.Item.ID.String()),
		zap.Int64("random_value", outcome.Payload.RandomValue),
		zap.Int64("total_weight", outcome.Payload.TotalWeight),
		zap.Int64("timestamp", outcome.Payload.Timestamp),
		zap.String("fairness_hash", outcome.Proof),
	)
	metrics.IncDraw(box.ID.String())

	if s.bus != nil {
		s.bus.Publish(event.EventDrawCompleted, event.DrawCompletedPayload{
			DrawID:    drawID.String(),
			UserID:    user.ID.String(),
			SourceID:  box.ID.String(),
			ItemID:    outcome.Item.ID.String(),
			ItemName:  outcome.Item.Name,
			Timestamp: time.UnixMilli(outcome.Payload.Timestamp).UTC(),
		})
	}

	return &OpenResult{
		DrawID:      drawID,
		InventoryID: inventory.ID,
		Item:        outcome.Item,
		PricePaid:   box.Price,
		NewBalance:  newBalance,
		Proof:       outcome.fairnessProof(),
	}, nil
}

// VerifyDraw recomputes the proof from the frozen snapshot only. It never
// reads the clock or the current catalog.
func (s *LootboxService) VerifyDraw(ctx context.Context, actor Actor, drawID uuid.UUID) (*Verification, error) {
	if s.drawRepo == nil {
		return nil, errors.New("draw repository is nil")
	}

	record, err := s.drawRepo.FindByID(ctx, drawID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound(ErrDrawNotFound)
		}
		return nil, err
	}
	if !actor.CanAccess(record.UserID) {
		return nil, forbidden()
	}

	return verifyRecord(record, s.secret), nil
}

func verifyRecord(record *model.DrawRecord, secret string) *Verification {
	payload := record.FairnessData
	recomputed, err := fairness.KeyedProof(payload, secret)
	if err != nil {
		recomputed = ""
	}

	valid := recomputed != "" &&
		fairness.VerifyProof(payload, secret, record.FairnessHash) &&
		payload.ItemID == record.ItemID.String() &&
		payload.UserID == record.UserID.String() &&
		payload.LootboxID == record.LootboxID.String()

	return &Verification{
		DrawID:          record.ID,
		IsValid:         valid,
		Proof:           record.FairnessHash,
		RecomputedProof: recomputed,
		Data:            payload,
		OpenedAt:        record.OpenedAt,
	}
}

func (s *LootboxService) ListBoxes(ctx context.Context) ([]*model.Lootbox, error) {
	if s.catalogRepo == nil {
		return nil, errors.New("catalog repository is nil")
	}
	return s.catalogRepo.ListActiveBoxes(ctx)
}

// GetBoxDetails discloses exact odds to operators and rarity bands to
// everyone else. Items are ordered by value, most valuable first.
func (s *LootboxService) GetBoxDetails(ctx context.Context, actor Actor, boxID uuid.UUID) (*BoxDetails, error) {
	if s.catalogRepo == nil {
		return nil, errors.New("catalog repository is nil")
	}

	box, err := s.catalogRepo.FindBox(ctx, boxID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound(ErrLootboxNotFound)
		}
		return nil, err
	}
	if box.Status != model.LootboxStatusActive && !actor.Elevated() {
		return nil, notFound(ErrLootboxNotFound)
	}

	catalog, err := lottery.NewCatalog(box.Entries)
	if err != nil {
		return nil, invariantViolation(ErrNoCandidateSelected, err, map[string]any{"source": box.ID.String()})
	}

	ids := make([]uuid.UUID, 0, catalog.Len())
	for _, entry := range catalog.Entries() {
		ids = append(ids, entry.ItemID)
	}
	items, err := s.catalogRepo.FindItems(ctx, ids)
	if err != nil {
		return nil, err
	}

	privileged := actor.Elevated()
	views := make([]BoxItemView, 0, catalog.Len())
	for _, odds := range catalog.Odds() {
		item, ok := items[odds.ItemID]
		if !ok {
			s.logger.Warn("catalog entry references missing item",
				zap.String("lootbox_id", box.ID.String()),
				zap.String("item_id", odds.ItemID.String()),
			)
			continue
		}

		band := lottery.RarityBand(odds.Probability)
		view := BoxItemView{
			Item:        item,
			RarityBand:  string(band),
			RarityLabel: band.Label(),
		}
		if privileged {
			weight := odds.Weight
			probability := odds.Probability
			view.Weight = &weight
			view.Probability = &probability
		}
		views = append(views, view)
	}

	sort.SliceStable(views, func(i, j int) bool {
		return views[i].Item.Value.GreaterThan(views[j].Item.Value)
	})

	details := &BoxDetails{Lootbox: box, Items: views}
	if privileged {
		total := catalog.TotalWeight()
		details.TotalWeight = &total
	}
	return details, nil
}

func (s *LootboxService) ListDraws(
	ctx context.Context,
	actor Actor,
	page, pageSize int,
) ([]*model.DrawRecord, int64, error) {
	if s.drawRepo == nil {
		return nil, 0, errors.New("draw repository is nil")
	}
	if err := actor.requireSelf(); err != nil {
		return nil, 0, err
	}

	page, pageSize = normalizePage(page, pageSize, drawListDefaultPage, drawListDefaultSize, drawListMaxPageSize)
	userID := actor.UserID
	filter := repository.DrawListFilter{
		UserID: &userID,
		Pagination: repository.Pagination{
			Limit:  int32(pageSize),
			Offset: int32((page - 1) * pageSize),
		},
	}

	records, err := s.drawRepo.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.drawRepo.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

type userBalanceRow struct {
	ID      uuid.UUID
	Status  model.UserStatus
	Balance decimal.Decimal
	Level   int
}

func lockUserTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*userBalanceRow, error) {
	row := &userBalanceRow{}
	err := tx.QueryRow(
		ctx,
		`SELECT id, status, balance, level
		   FROM users
		  WHERE id = $1
		  FOR UPDATE`,
		userID,
	).Scan(&row.ID, &row.Status, &row.Balance, &row.Level)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(ErrUserNotFound)
	}
	if err != nil {
		return nil, err
	}
	return row, nil
}

// debitBalanceTx is the single conditional update guarding the balance. Zero
// affected rows means a concurrent debit won; the caller sees
// InsufficientFunds rather than a negative balance.
func debitBalanceTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := tx.QueryRow(
		ctx,
		`UPDATE users
		    SET balance = balance - $2,
		        updated_at = NOW()
		  WHERE id = $1
		    AND balance >= $2
		RETURNING balance`,
		userID,
		amount,
	).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, policyViolation(ErrInsufficientFunds, map[string]any{
			"required": amount.StringFixed(2),
		})
	}
	if err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

func findActiveBoxTx(ctx context.Context, tx pgx.Tx, boxID uuid.UUID) (*model.Lootbox, error) {
	box := &model.Lootbox{}
	err := tx.QueryRow(
		ctx,
		`SELECT id, name, price, status, min_level
		   FROM lootboxes
		  WHERE id = $1`,
		boxID,
	).Scan(&box.ID, &box.Name, &box.Price, &box.Status, &box.MinLevel)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(ErrLootboxNotFound)
	}
	if err != nil {
		return nil, err
	}
	if box.Status != model.LootboxStatusActive {
		return nil, notFound(ErrLootboxNotFound)
	}

	entries, err := loadEntriesTx(ctx, tx, `SELECT item_id, weight FROM lootbox_items WHERE lootbox_id = $1 ORDER BY position ASC`, box.ID)
	if err != nil {
		return nil, err
	}
	box.Entries = entries
	return box, nil
}

func loadEntriesTx(ctx context.Context, tx pgx.Tx, query string, ownerID uuid.UUID) ([]lottery.Entry, error) {
	rows, err := tx.Query(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]lottery.Entry, 0)
	for rows.Next() {
		var entry lottery.Entry
		if err := rows.Scan(&entry.ItemID, &entry.Weight); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func insertDrawRecordTx(ctx context.Context, tx pgx.Tx, record *model.DrawRecord) (uuid.UUID, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	fairnessData, err := json.Marshal(record.FairnessData)
	if err != nil {
		return uuid.Nil, err
	}

	err = tx.QueryRow(
		ctx,
		`INSERT INTO lootbox_openings (
			id, user_id, lootbox_id, item_id, inventory_id,
			price_paid, fairness_hash, fairness_data, fingerprint
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING opened_at`,
		record.ID,
		record.UserID,
		record.LootboxID,
		record.ItemID,
		record.InventoryID,
		record.PricePaid,
		record.FairnessHash,
		fairnessData,
		record.Fingerprint,
	).Scan(&record.OpenedAt)
	if err != nil {
		return uuid.Nil, err
	}
	return record.ID, nil
}

func incrementBoxOpenedTx(ctx context.Context, tx pgx.Tx, boxID uuid.UUID) error {
	tag, err := tx.Exec(
		ctx,
		`UPDATE lootboxes
		    SET times_opened = times_opened + 1,
		        last_opened_at = NOW()
		  WHERE id = $1`,
		boxID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return invariantViolation(ErrSettlementCounterMismatch, nil, map[string]any{
			"table":      "lootboxes",
			"lootbox_id": boxID.String(),
		})
	}
	return nil
}

func optionalString(v string) *string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func normalizePage(page, pageSize, defaultPage, defaultSize, maxSize int) (int, int) {
	if page <= 0 {
		page = defaultPage
	}
	if pageSize <= 0 {
		pageSize = defaultSize
	}
	if pageSize > maxSize {
		pageSize = maxSize
	}
	return page, pageSize
}
