package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"lootbox-hub/internal/event"
	"lootbox-hub/internal/metrics"
	"lootbox-hub/internal/model"
	"lootbox-hub/internal/repository"
)

const (
	exchangeListDefaultPage = 1
	exchangeListDefaultSize = 20
	exchangeListMaxPageSize = 100
	exchangeMaxSources      = 50
)

var defaultExchangeFeeRate = decimal.RequireFromString("0.05")

type ExchangeServiceConfig struct {
	FeeRate   decimal.Decimal
	TxTimeout time.Duration
}

// ExchangeValuation is the pure arithmetic of a trade-in.
type ExchangeValuation struct {
	TotalSourceValue decimal.Decimal `json:"total_source_value"`
	FeeRate          decimal.Decimal `json:"fee_rate"`
	Fee              decimal.Decimal `json:"fee"`
	NetValue         decimal.Decimal `json:"net_value"`
	TargetValue      decimal.Decimal `json:"target_value"`
	Difference       decimal.Decimal `json:"difference"`
	CanExchange      bool            `json:"can_exchange"`
}

type ExchangeSource struct {
	InventoryID uuid.UUID       `json:"inventory_id"`
	ItemID      uuid.UUID       `json:"item_id"`
	Name        string          `json:"name"`
	Value       decimal.Decimal `json:"value"`
}

type ExchangeQuote struct {
	ExchangeValuation
	Sources    []ExchangeSource `json:"sources"`
	TargetItem *model.Item      `json:"target_item"`
}

type ExchangeExecution struct {
	ExchangeID     uuid.UUID      `json:"exchange_id"`
	NewInventoryID uuid.UUID      `json:"new_inventory_id"`
	Quote          *ExchangeQuote `json:"quote"`
}

// QuoteExchange computes fee, net value and difference in exact decimal
// arithmetic. The fee is rounded to cents before it is subtracted.
func QuoteExchange(sourceValues []decimal.Decimal, targetValue, feeRate decimal.Decimal) ExchangeValuation {
	total := decimal.Zero
	for _, value := range sourceValues {
		total = total.Add(value)
	}

	fee := total.Mul(feeRate).Round(2)
	net := total.Sub(fee)
	difference := net.Sub(targetValue)

	return ExchangeValuation{
		TotalSourceValue: total,
		FeeRate:          feeRate,
		Fee:              fee,
		NetValue:         net,
		TargetValue:      targetValue,
		Difference:       difference,
		CanExchange:      !difference.IsNegative(),
	}
}

type ExchangeService struct {
	pool      *pgxpool.Pool
	feeRate   decimal.Decimal
	txTimeout time.Duration
	reporter  opsReporter
	logger    *zap.Logger
	auditLog  *zap.Logger
}

func NewExchangeService(
	pool *pgxpool.Pool,
	auditRepo repository.AuditRepository,
	bus *event.Bus,
	cfg ExchangeServiceConfig,
	logger *zap.Logger,
) *ExchangeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	feeRate := cfg.FeeRate
	if feeRate.IsNegative() || feeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		feeRate = defaultExchangeFeeRate
	}

	return &ExchangeService{
		pool:      pool,
		feeRate:   feeRate,
		txTimeout: cfg.TxTimeout,
		reporter:  newOpsReporter(logger, bus, auditRepo),
		logger:    logger,
		auditLog:  logger.Named("audit"),
	}
}

func (s *ExchangeService) FeeRate() decimal.Decimal {
	return s.feeRate
}

// CalculateExchange is advisory. ExecuteExchange recomputes everything under
// row locks and never trusts an earlier quote.
func (s *ExchangeService) CalculateExchange(
	ctx context.Context,
	actor Actor,
	sourceIDs []uuid.UUID,
	targetItemID uuid.UUID,
) (*ExchangeQuote, error) {
	if s.pool == nil {
		return nil, errors.New("database pool is nil")
	}
	if err := actor.requireSelf(); err != nil {
		return nil, err
	}
	if err := validateExchangeSources(sourceIDs); err != nil {
		return nil, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	return s.quoteTx(ctx, tx, actor.UserID, sourceIDs, targetItemID, false)
}

func (s *ExchangeService) ExecuteExchange(
	ctx context.Context,
	actor Actor,
	sourceIDs []uuid.UUID,
	targetItemID uuid.UUID,
	fingerprint string,
) (result *ExchangeExecution, err error) {
	if s.pool == nil {
		return nil, errors.New("database pool is nil")
	}
	if err := actor.requireSelf(); err != nil {
		return nil, err
	}
	if err := validateExchangeSources(sourceIDs); err != nil {
		return nil, err
	}

	trace := newSettlementTrace("execute_exchange")
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

	quote, err := s.quoteTx(txCtx, tx, actor.UserID, sourceIDs, targetItemID, true)
	if err != nil {
		return nil, err
	}
	if !quote.CanExchange {
		return nil, policyViolation(ErrExchangeNotPossible, map[string]any{
			"net_value":    quote.NetValue.StringFixed(2),
			"target_value": quote.TargetValue.StringFixed(2),
			"shortfall":    quote.Difference.Neg().StringFixed(2),
		})
	}
	trace.advance(StateFundsVerified)

	tag, err := tx.Exec(
		txCtx,
		`UPDATE inventory
		    SET status = $3
		  WHERE id = ANY($1)
		    AND user_id = $2
		    AND status = $4`,
		sourceIDs,
		actor.UserID,
		model.InventoryStatusExchanged,
		model.InventoryStatusAvailable,
	)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() != int64(len(sourceIDs)) {
		return nil, invariantViolation(ErrSettlementCounterMismatch, nil, map[string]any{
			"table":    "inventory",
			"expected": len(sourceIDs),
			"affected": tag.RowsAffected(),
		})
	}

	exchangeID := uuid.New()
	target := &model.InventoryEntry{
		UserID:     actor.UserID,
		ItemID:     quote.TargetItem.ID,
		SourceType: model.InventorySourceExchange,
		SourceID:   &exchangeID,
	}
	if err := insertInventoryTx(txCtx, tx, target); err != nil {
		return nil, err
	}
	trace.advance(StateInventoryCredited)

	record := &model.Exchange{
		ID:                 exchangeID,
		UserID:             actor.UserID,
		SourceInventoryIDs: sourceIDs,
		TargetItemID:       quote.TargetItem.ID,
		TargetInventoryID:  target.ID,
		SourceValue:        quote.TotalSourceValue,
		Fee:                quote.Fee,
		NetValue:           quote.NetValue,
		TargetValue:        quote.TargetValue,
		Fingerprint:        optionalString(fingerprint),
	}
	if err := tx.QueryRow(
		txCtx,
		`INSERT INTO exchanges (
			id, user_id, source_inventory_ids, target_item_id, target_inventory_id,
			source_value, fee, net_value, target_value, fingerprint
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING exchanged_at`,
		record.ID,
		record.UserID,
		record.SourceInventoryIDs,
		record.TargetItemID,
		record.TargetInventoryID,
		record.SourceValue,
		record.Fee,
		record.NetValue,
		record.TargetValue,
		record.Fingerprint,
	).Scan(&record.ExchangedAt); err != nil {
		return nil, err
	}
	trace.advance(StateAudited)

	if err := tx.Commit(txCtx); err != nil {
		return nil, err
	}
	trace.advance(StateCommitted)

	uid := actor.UserID
	sources := make([]string, 0, len(sourceIDs))
	for _, id := range sourceIDs {
		sources = append(sources, id.String())
	}
	s.reporter.audit(ctx, &model.AuditLog{
		UserID:       &uid,
		Action:       model.AuditActionExchangeExecute,
		ResourceType: strPtr("exchange"),
		ResourceID:   strPtr(exchangeID.String()),
		NewValue: map[string]interface{}{
			"sources":      sources,
			"target_item":  quote.TargetItem.ID.String(),
			"source_value": quote.TotalSourceValue.StringFixed(2),
			"fee":          quote.Fee.StringFixed(2),
			"net_value":    quote.NetValue.StringFixed(2),
			"target_value": quote.TargetValue.StringFixed(2),
		},
		CreatedAt: record.ExchangedAt,
	})
	s.auditLog.Info("exchange executed",
		zap.String("exchange_id", exchangeID.String()),
		zap.String("user_id", actor.UserID.String()),
		zap.Int("sources", len(sourceIDs)),
		zap.String("fee", quote.Fee.StringFixed(2)),
	)
	metrics.IncExchange()

	return &ExchangeExecution{
		ExchangeID:     exchangeID,
		NewInventoryID: target.ID,
		Quote:          quote,
	}, nil
}

func (s *ExchangeService) ListExchangeHistory(
	ctx context.Context,
	actor Actor,
	page, pageSize int,
) ([]*model.Exchange, int64, error) {
	if s.pool == nil {
		return nil, 0, errors.New("database pool is nil")
	}
	if err := actor.requireSelf(); err != nil {
		return nil, 0, err
	}

	page, pageSize = normalizePage(page, pageSize, exchangeListDefaultPage, exchangeListDefaultSize, exchangeListMaxPageSize)

	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM exchanges WHERE user_id = $1`, actor.UserID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(
		ctx,
		`SELECT id, user_id, source_inventory_ids, target_item_id, target_inventory_id,
		        source_value, fee, net_value, target_value, fingerprint, exchanged_at
		   FROM exchanges
		  WHERE user_id = $1
		  ORDER BY exchanged_at DESC, id DESC
		  LIMIT $2 OFFSET $3`,
		actor.UserID,
		pageSize,
		(page-1)*pageSize,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]*model.Exchange, 0, pageSize)
	for rows.Next() {
		record := &model.Exchange{}
		if err := rows.Scan(
			&record.ID,
			&record.UserID,
			&record.SourceInventoryIDs,
			&record.TargetItemID,
			&record.TargetInventoryID,
			&record.SourceValue,
			&record.Fee,
			&record.NetValue,
			&record.TargetValue,
			&record.Fingerprint,
			&record.ExchangedAt,
		); err != nil {
			return nil, 0, err
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return out, total, nil
}

// quoteTx loads the sources (optionally locking them) and the target, then
// values the trade. Every requested id must be an available entry owned by
// userID; a partial match is rejected.
func (s *ExchangeService) quoteTx(
	ctx context.Context,
	tx pgx.Tx,
	userID uuid.UUID,
	sourceIDs []uuid.UUID,
	targetItemID uuid.UUID,
	lock bool,
) (*ExchangeQuote, error) {
	query := `SELECT inv.id, inv.item_id, it.name, it.value
	            FROM inventory inv
	            JOIN items it ON it.id = inv.item_id
	           WHERE inv.id = ANY($1)
	             AND inv.user_id = $2
	             AND inv.status = $3
	           ORDER BY inv.obtained_at ASC, inv.id ASC`
	if lock {
		query += ` FOR UPDATE OF inv`
	}

	rows, err := tx.Query(ctx, query, sourceIDs, userID, model.InventoryStatusAvailable)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sources := make([]ExchangeSource, 0, len(sourceIDs))
	values := make([]decimal.Decimal, 0, len(sourceIDs))
	for rows.Next() {
		var src ExchangeSource
		if err := rows.Scan(&src.InventoryID, &src.ItemID, &src.Name, &src.Value); err != nil {
			return nil, err
		}
		sources = append(sources, src)
		values = append(values, src.Value)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(sources) != len(sourceIDs) {
		return nil, invalidState(ErrItemsNotAvailable, map[string]any{
			"requested": len(sourceIDs),
			"available": len(sources),
		})
	}

	target, err := findItemTx(ctx, tx, targetItemID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(ErrItemNotFound)
	}
	if err != nil {
		return nil, err
	}

	return &ExchangeQuote{
		ExchangeValuation: QuoteExchange(values, target.Value, s.feeRate),
		Sources:           sources,
		TargetItem:        target,
	}, nil
}

func validateExchangeSources(sourceIDs []uuid.UUID) error {
	if len(sourceIDs) == 0 {
		return invalidInput(ErrInvalidInput, "at least one source item is required")
	}
	if len(sourceIDs) > exchangeMaxSources {
		return invalidInput(ErrInvalidInput, "too many source items")
	}

	seen := make(map[uuid.UUID]struct{}, len(sourceIDs))
	for _, id := range sourceIDs {
		if id == uuid.Nil {
			return invalidInput(ErrInvalidInput, "source id is empty")
		}
		if _, ok := seen[id]; ok {
			return invalidInput(ErrInvalidInput, "duplicate source id")
		}
		seen[id] = struct{}{}
	}
	return nil
}
