package service

import (
	"context"
	"errors"
	"strings"
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
	defaultManualSLA = 72 * time.Hour

	withdrawalListDefaultPage = 1
	withdrawalListDefaultSize = 20
	withdrawalListMaxPageSize = 100
)

const withdrawalColumns = `
	id,
	user_id,
	inventory_id,
	item_id,
	status,
	code_id,
	delivered_code,
	processed_by,
	processed_at,
	metadata,
	created_at
`

type WithdrawalServiceConfig struct {
	ManualSLA time.Duration
	TxTimeout time.Duration
}

// WithdrawalMetadata is request context stored with the withdrawal row.
type WithdrawalMetadata struct {
	IPAddress   string `json:"ip_address,omitempty"`
	UserAgent   string `json:"user_agent,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

type WithdrawalResult struct {
	WithdrawalID uuid.UUID              `json:"withdrawal_id"`
	Status       model.WithdrawalStatus `json:"status"`
	Code         *string                `json:"code"`
	ETA          *time.Time             `json:"eta,omitempty"`
	Item         *model.Item            `json:"item,omitempty"`
}

type PendingBacklog struct {
	Total         int64
	OverThreshold int64
	Oldest        time.Duration
}

type WithdrawalService struct {
	pool      *pgxpool.Pool
	manualSLA time.Duration
	txTimeout time.Duration
	now       func() time.Time
	bus       *event.Bus
	reporter  opsReporter
	logger    *zap.Logger
	auditLog  *zap.Logger
}

func NewWithdrawalService(
	pool *pgxpool.Pool,
	auditRepo repository.AuditRepository,
	bus *event.Bus,
	cfg WithdrawalServiceConfig,
	logger *zap.Logger,
) *WithdrawalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ManualSLA <= 0 {
		cfg.ManualSLA = defaultManualSLA
	}

	return &WithdrawalService{
		pool:      pool,
		manualSLA: cfg.ManualSLA,
		txTimeout: cfg.TxTimeout,
		now:       time.Now,
		bus:       bus,
		reporter:  newOpsReporter(logger, bus, auditRepo),
		logger:    logger,
		auditLog:  logger.Named("audit"),
	}
}

type lockedInventory struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	ItemID          uuid.UUID
	SourceType      model.InventorySource
	Status          model.InventoryStatus
	RequiredDeposit decimal.Decimal
}

// RequestWithdrawal resolves an owned item into an activation code. When the
// pool for the item is empty the withdrawal is parked as pending_manual; that
// outcome is a success with an ETA, not an error.
func (s *WithdrawalService) RequestWithdrawal(
	ctx context.Context,
	actor Actor,
	inventoryID uuid.UUID,
	meta WithdrawalMetadata,
) (result *WithdrawalResult, err error) {
	if s.pool == nil {
		return nil, errors.New("database pool is nil")
	}
	if err := actor.requireSelf(); err != nil {
		return nil, err
	}

	trace := newSettlementTrace("request_withdrawal")
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

	entry, err := lockInventoryTx(txCtx, tx, inventoryID, actor.UserID)
	if err != nil {
		return nil, err
	}
	if err := requireWithdrawable(entry.Status); err != nil {
		return nil, err
	}

	if entry.SourceType == model.InventorySourceCoupon && entry.RequiredDeposit.IsPositive() {
		deposited, err := completedDepositsTx(txCtx, tx, actor.UserID)
		if err != nil {
			return nil, err
		}
		if deposited.LessThan(entry.RequiredDeposit) {
			return nil, policyViolation(ErrDepositRequirementNotMet, map[string]any{
				"required":  entry.RequiredDeposit.StringFixed(2),
				"deposited": deposited.StringFixed(2),
				"shortfall": entry.RequiredDeposit.Sub(deposited).StringFixed(2),
			})
		}
	}
	trace.advance(StateFundsVerified)

	item, err := findItemTx(txCtx, tx, entry.ItemID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, invariantViolation(ErrItemNotFound, nil, map[string]any{"item_id": entry.ItemID.String()})
	}
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	withdrawal := &model.Withdrawal{
		ID:          uuid.New(),
		UserID:      actor.UserID,
		InventoryID: entry.ID,
		ItemID:      entry.ItemID,
		Metadata:    meta.toMap(),
		CreatedAt:   now,
	}

	codeID, code, found, err := nextAvailableCodeTx(txCtx, tx, entry.ItemID)
	if err != nil {
		return nil, err
	}
	trace.advance(StateItemSelected)

	if found {
		if err := claimCodeTx(txCtx, tx, codeID, withdrawal.ID, actor.UserID, now); err != nil {
			return nil, err
		}
		withdrawal.Status = model.WithdrawalStatusCompleted
		withdrawal.CodeID = &codeID
		withdrawal.DeliveredCode = &code
	} else {
		withdrawal.Status = model.WithdrawalStatusPendingManual
	}

	if err := insertWithdrawalTx(txCtx, tx, withdrawal); err != nil {
		return nil, err
	}

	inventoryStatus := model.InventoryStatusPendingWithdrawal
	if found {
		inventoryStatus = model.InventoryStatusWithdrawn
	}
	if err := transitionInventoryTx(txCtx, tx, entry.ID, model.InventoryStatusAvailable, inventoryStatus, now); err != nil {
		return nil, err
	}
	if found {
		if err := incrementWithdrawnTx(txCtx, tx, actor.UserID); err != nil {
			return nil, err
		}
	}
	trace.advance(StateInventoryCredited)

	if err := tx.Commit(txCtx); err != nil {
		return nil, err
	}
	trace.advance(StateCommitted)

	result = &WithdrawalResult{
		WithdrawalID: withdrawal.ID,
		Status:       withdrawal.Status,
		Code:         withdrawal.DeliveredCode,
		Item:         item,
	}
	if !found {
		eta := now.Add(s.manualSLA)
		result.ETA = &eta
	}

	s.afterWithdrawal(ctx, actor.UserID, withdrawal, item, result.ETA)
	return result, nil
}

// ProcessManualWithdrawal completes a pending_manual withdrawal with a code
// supplied by an operator. The code is consumed from the pool, or recorded in
// it as used, so it can never be handed out a second time.
func (s *WithdrawalService) ProcessManualWithdrawal(
	ctx context.Context,
	actor Actor,
	withdrawalID uuid.UUID,
	code string,
) (result *WithdrawalResult, err error) {
	if s.pool == nil {
		return nil, errors.New("database pool is nil")
	}
	if err := actor.requireOperator(); err != nil {
		return nil, err
	}

	deliveredCode := strings.TrimSpace(code)
	if deliveredCode == "" {
		return nil, invalidInput(ErrInvalidInput, "code is required")
	}
	if len(deliveredCode) > activationCodeMaxLength {
		return nil, invalidInput(ErrInvalidInput, "code exceeds 255 characters")
	}

	trace := newSettlementTrace("process_manual_withdrawal")
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

	withdrawal, err := scanWithdrawal(tx.QueryRow(
		txCtx,
		`SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1 FOR UPDATE`,
		withdrawalID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(ErrWithdrawalNotFound)
	}
	if err != nil {
		return nil, err
	}
	if withdrawal.Status != model.WithdrawalStatusPendingManual {
		return nil, invalidState(ErrWithdrawalNotPendingManual, map[string]any{
			"status": string(withdrawal.Status),
		})
	}

	now := s.now().UTC()
	codeID, err := consumeOperatorCodeTx(txCtx, tx, deliveredCode, withdrawal, actor.UserID, now)
	if err != nil {
		return nil, err
	}

	operatorID := actor.UserID
	tag, err := tx.Exec(
		txCtx,
		`UPDATE withdrawals
		    SET status = $2,
		        code_id = $3,
		        delivered_code = $4,
		        processed_by = $5,
		        processed_at = $6
		  WHERE id = $1
		    AND status = $7`,
		withdrawal.ID,
		model.WithdrawalStatusCompleted,
		codeID,
		deliveredCode,
		operatorID,
		now,
		model.WithdrawalStatusPendingManual,
	)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() != 1 {
		return nil, invariantViolation(ErrSettlementCounterMismatch, nil, map[string]any{
			"table":         "withdrawals",
			"withdrawal_id": withdrawal.ID.String(),
		})
	}

	if err := transitionInventoryTx(
		txCtx,
		tx,
		withdrawal.InventoryID,
		model.InventoryStatusPendingWithdrawal,
		model.InventoryStatusWithdrawn,
		now,
	); err != nil {
		return nil, err
	}
	if err := incrementWithdrawnTx(txCtx, tx, withdrawal.UserID); err != nil {
		return nil, err
	}

	item, err := findItemTx(txCtx, tx, withdrawal.ItemID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, err
	}
	trace.advance(StateCommitted)

	withdrawal.Status = model.WithdrawalStatusCompleted
	withdrawal.CodeID = codeID
	withdrawal.DeliveredCode = &deliveredCode
	withdrawal.ProcessedBy = &operatorID
	withdrawal.ProcessedAt = &now

	s.reporter.audit(ctx, &model.AuditLog{
		UserID:       &operatorID,
		Action:       model.AuditActionWithdrawalManual,
		ResourceType: strPtr("withdrawal"),
		ResourceID:   strPtr(withdrawal.ID.String()),
		OldValue:     map[string]interface{}{"status": string(model.WithdrawalStatusPendingManual)},
		NewValue: map[string]interface{}{
			"status":  string(model.WithdrawalStatusCompleted),
			"user_id": withdrawal.UserID.String(),
		},
		CreatedAt: now,
	})
	s.auditLog.Info("manual withdrawal processed",
		zap.String("withdrawal_id", withdrawal.ID.String()),
		zap.String("user_id", withdrawal.UserID.String()),
		zap.String("operator_id", operatorID.String()),
		zap.Duration("waited", now.Sub(withdrawal.CreatedAt)),
	)
	metrics.IncWithdrawal("manual_completed")

	if s.bus != nil {
		payload := event.WithdrawalPayload{
			WithdrawalID: withdrawal.ID.String(),
			UserID:       withdrawal.UserID.String(),
			ItemID:       withdrawal.ItemID.String(),
			Status:       string(model.WithdrawalStatusCompleted),
			Timestamp:    now,
		}
		if item != nil {
			payload.ItemName = item.Name
		}
		s.bus.Publish(event.EventWithdrawalCompleted, payload)
	}

	return &WithdrawalResult{
		WithdrawalID: withdrawal.ID,
		Status:       model.WithdrawalStatusCompleted,
		Code:         &deliveredCode,
		Item:         item,
	}, nil
}

func (s *WithdrawalService) ListUserWithdrawals(
	ctx context.Context,
	actor Actor,
	page, pageSize int,
) ([]*model.Withdrawal, int64, error) {
	if s.pool == nil {
		return nil, 0, errors.New("database pool is nil")
	}
	if err := actor.requireSelf(); err != nil {
		return nil, 0, err
	}

	page, pageSize = normalizePage(page, pageSize, withdrawalListDefaultPage, withdrawalListDefaultSize, withdrawalListMaxPageSize)

	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM withdrawals WHERE user_id = $1`, actor.UserID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(
		ctx,
		`SELECT `+withdrawalColumns+`
		   FROM withdrawals
		  WHERE user_id = $1
		  ORDER BY created_at DESC, id DESC
		  LIMIT $2 OFFSET $3`,
		actor.UserID,
		pageSize,
		(page-1)*pageSize,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]*model.Withdrawal, 0, pageSize)
	for rows.Next() {
		withdrawal, err := scanWithdrawal(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, withdrawal)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return out, total, nil
}

// ListPendingManual is the operator queue, oldest first.
func (s *WithdrawalService) ListPendingManual(ctx context.Context, actor Actor) ([]model.PendingWithdrawal, error) {
	if s.pool == nil {
		return nil, errors.New("database pool is nil")
	}
	if err := actor.requireOperator(); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(
		ctx,
		`SELECT w.id, w.user_id, u.username, w.item_id, i.name, w.created_at
		   FROM withdrawals w
		   JOIN users u ON u.id = w.user_id
		   JOIN items i ON i.id = w.item_id
		  WHERE w.status = $1
		  ORDER BY w.created_at ASC, w.id ASC`,
		model.WithdrawalStatusPendingManual,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	now := s.now().UTC()
	out := make([]model.PendingWithdrawal, 0)
	for rows.Next() {
		var row model.PendingWithdrawal
		if err := rows.Scan(&row.ID, &row.UserID, &row.Username, &row.ItemID, &row.ItemName, &row.CreatedAt); err != nil {
			return nil, err
		}
		row.HoursPending = now.Sub(row.CreatedAt).Hours()
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// CountPendingManual reports the manual backlog and how much of it is older
// than threshold.
func (s *WithdrawalService) CountPendingManual(ctx context.Context, threshold time.Duration) (PendingBacklog, error) {
	if s.pool == nil {
		return PendingBacklog{}, errors.New("database pool is nil")
	}

	cutoff := s.now().UTC().Add(-threshold)
	var backlog PendingBacklog
	var oldest *time.Time
	err := s.pool.QueryRow(
		ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE created_at <= $2),
		        MIN(created_at)
		   FROM withdrawals
		  WHERE status = $1`,
		model.WithdrawalStatusPendingManual,
		cutoff,
	).Scan(&backlog.Total, &backlog.OverThreshold, &oldest)
	if err != nil {
		return PendingBacklog{}, err
	}
	if oldest != nil {
		backlog.Oldest = s.now().UTC().Sub(*oldest)
	}
	return backlog, nil
}

func (s *WithdrawalService) ManualSLA() time.Duration {
	return s.manualSLA
}

func (s *WithdrawalService) afterWithdrawal(
	ctx context.Context,
	userID uuid.UUID,
	withdrawal *model.Withdrawal,
	item *model.Item,
	eta *time.Time,
) {
	uid := userID
	newValue := map[string]interface{}{
		"status":       string(withdrawal.Status),
		"inventory_id": withdrawal.InventoryID.String(),
		"item_id":      withdrawal.ItemID.String(),
	}
	if withdrawal.CodeID != nil {
		newValue["code_id"] = withdrawal.CodeID.String()
	}
	s.reporter.audit(ctx, &model.AuditLog{
		UserID:       &uid,
		Action:       model.AuditActionWithdrawalRequest,
		ResourceType: strPtr("withdrawal"),
		ResourceID:   strPtr(withdrawal.ID.String()),
		NewValue:     newValue,
		CreatedAt:    withdrawal.CreatedAt,
	})
	s.auditLog.Info("withdrawal requested",
		zap.String("withdrawal_id", withdrawal.ID.String()),
		zap.String("user_id", userID.String()),
		zap.String("item_id", withdrawal.ItemID.String()),
		zap.String("status", string(withdrawal.Status)),
	)
	metrics.IncWithdrawal(string(withdrawal.Status))

	if s.bus == nil {
		return
	}

	payload := event.WithdrawalPayload{
		WithdrawalID: withdrawal.ID.String(),
		UserID:       userID.String(),
		ItemID:       withdrawal.ItemID.String(),
		ItemName:     item.Name,
		Status:       string(withdrawal.Status),
		Timestamp:    withdrawal.CreatedAt,
	}
	if eta != nil {
		payload.ETA = *eta
		s.bus.Publish(event.EventWithdrawalManualPending, payload)
		return
	}
	s.bus.Publish(event.EventWithdrawalCompleted, payload)
}

func requireWithdrawable(status model.InventoryStatus) error {
	switch status {
	case model.InventoryStatusAvailable:
		return nil
	case model.InventoryStatusWithdrawn:
		return invalidState(ErrAlreadyWithdrawn, nil)
	case model.InventoryStatusPendingWithdrawal:
		return invalidState(ErrWithdrawalPending, nil)
	case model.InventoryStatusExchanged:
		return invalidState(ErrInventoryExchanged, nil)
	default:
		return invalidState(ErrInventoryNotFound, map[string]any{"status": string(status)})
	}
}

func lockInventoryTx(ctx context.Context, tx pgx.Tx, inventoryID, userID uuid.UUID) (*lockedInventory, error) {
	entry := &lockedInventory{}
	err := tx.QueryRow(
		ctx,
		`SELECT id, user_id, item_id, source_type, status, required_deposit
		   FROM inventory
		  WHERE id = $1
		    AND user_id = $2
		  FOR UPDATE`,
		inventoryID,
		userID,
	).Scan(&entry.ID, &entry.UserID, &entry.ItemID, &entry.SourceType, &entry.Status, &entry.RequiredDeposit)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(ErrInventoryNotFound)
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func completedDepositsTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := tx.QueryRow(
		ctx,
		`SELECT COALESCE(SUM(amount_usd), 0)
		   FROM deposits
		  WHERE user_id = $1
		    AND status = $2`,
		userID,
		model.DepositStatusCompleted,
	).Scan(&total)
	return total, err
}

// nextAvailableCodeTx locks the oldest unclaimed code for the item. Rows held
// by a concurrent withdrawal are skipped rather than waited on.
func nextAvailableCodeTx(ctx context.Context, tx pgx.Tx, itemID uuid.UUID) (uuid.UUID, string, bool, error) {
	var id uuid.UUID
	var code string
	err := tx.QueryRow(
		ctx,
		`SELECT id, code
		   FROM activation_codes
		  WHERE item_id = $1
		    AND status = $2
		  ORDER BY created_at ASC, id ASC
		  LIMIT 1
		  FOR UPDATE SKIP LOCKED`,
		itemID,
		model.ActivationCodeAvailable,
	).Scan(&id, &code)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, "", false, nil
	}
	if err != nil {
		return uuid.Nil, "", false, err
	}
	return id, code, true, nil
}

func claimCodeTx(ctx context.Context, tx pgx.Tx, codeID, withdrawalID, userID uuid.UUID, now time.Time) error {
	tag, err := tx.Exec(
		ctx,
		`UPDATE activation_codes
		    SET status = $2,
		        withdrawal_id = $3,
		        used_by = $4,
		        used_at = $5
		  WHERE id = $1
		    AND status = $6`,
		codeID,
		model.ActivationCodeUsed,
		withdrawalID,
		userID,
		now,
		model.ActivationCodeAvailable,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return invariantViolation(ErrActivationCodeDoubleClaim, nil, map[string]any{
			"code_id":       codeID.String(),
			"withdrawal_id": withdrawalID.String(),
		})
	}
	return nil
}

// consumeOperatorCodeTx marks the operator's code used. A code that is not in
// the pool is recorded there as already used, so UNIQUE(code) rejects it for
// any later withdrawal or import.
func consumeOperatorCodeTx(
	ctx context.Context,
	tx pgx.Tx,
	code string,
	withdrawal *model.Withdrawal,
	operatorID uuid.UUID,
	now time.Time,
) (*uuid.UUID, error) {
	var codeID uuid.UUID
	var itemID uuid.UUID
	var status model.ActivationCodeStatus
	err := tx.QueryRow(
		ctx,
		`SELECT id, item_id, status FROM activation_codes WHERE code = $1 FOR UPDATE`,
		code,
	).Scan(&codeID, &itemID, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return recordOperatorCodeTx(ctx, tx, code, withdrawal, operatorID, now)
	}
	if err != nil {
		return nil, err
	}
	if status != model.ActivationCodeAvailable {
		return nil, invalidState(ErrActivationCodeUsed, map[string]any{"code_id": codeID.String()})
	}
	if itemID != withdrawal.ItemID {
		return nil, invalidInput(ErrInvalidInput, "code belongs to a different item")
	}

	if err := claimCodeTx(ctx, tx, codeID, withdrawal.ID, withdrawal.UserID, now); err != nil {
		return nil, err
	}
	return &codeID, nil
}

func recordOperatorCodeTx(
	ctx context.Context,
	tx pgx.Tx,
	code string,
	withdrawal *model.Withdrawal,
	operatorID uuid.UUID,
	now time.Time,
) (*uuid.UUID, error) {
	var codeID uuid.UUID
	err := tx.QueryRow(
		ctx,
		`INSERT INTO activation_codes (
			item_id, code, batch_id, status,
			withdrawal_id, used_by, used_at, created_by, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $7)
		ON CONFLICT (code) DO NOTHING
		RETURNING id`,
		withdrawal.ItemID,
		code,
		uuid.New(),
		model.ActivationCodeUsed,
		withdrawal.ID,
		withdrawal.UserID,
		now,
		operatorID,
	).Scan(&codeID)
	if errors.Is(err, pgx.ErrNoRows) {
		// Another transaction recorded the same code first.
		return nil, invalidState(ErrActivationCodeUsed, nil)
	}
	if err != nil {
		return nil, err
	}
	return &codeID, nil
}

func insertWithdrawalTx(ctx context.Context, tx pgx.Tx, withdrawal *model.Withdrawal) error {
	metadata, err := encodeMetadata(withdrawal.Metadata)
	if err != nil {
		return err
	}

	_, err = tx.Exec(
		ctx,
		`INSERT INTO withdrawals (
			id, user_id, inventory_id, item_id, status,
			code_id, delivered_code, metadata, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		withdrawal.ID,
		withdrawal.UserID,
		withdrawal.InventoryID,
		withdrawal.ItemID,
		withdrawal.Status,
		withdrawal.CodeID,
		withdrawal.DeliveredCode,
		metadata,
		withdrawal.CreatedAt,
	)
	return err
}

// transitionInventoryTx moves an inventory row between lifecycle states. The
// from-state guard makes a lost race an invariant violation instead of a
// silent overwrite.
func transitionInventoryTx(
	ctx context.Context,
	tx pgx.Tx,
	inventoryID uuid.UUID,
	from, to model.InventoryStatus,
	now time.Time,
) error {
	var withdrawnAt *time.Time
	if to == model.InventoryStatusWithdrawn {
		withdrawnAt = &now
	}

	tag, err := tx.Exec(
		ctx,
		`UPDATE inventory
		    SET status = $3,
		        withdrawn_at = COALESCE($4, withdrawn_at)
		  WHERE id = $1
		    AND status = $2`,
		inventoryID,
		from,
		to,
		withdrawnAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return invariantViolation(ErrSettlementCounterMismatch, nil, map[string]any{
			"table":        "inventory",
			"inventory_id": inventoryID.String(),
			"from":         string(from),
			"to":           string(to),
		})
	}
	return nil
}

func incrementWithdrawnTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID) error {
	tag, err := tx.Exec(
		ctx,
		`UPDATE users
		    SET total_withdrawn = total_withdrawn + 1,
		        updated_at = NOW()
		  WHERE id = $1`,
		userID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return invariantViolation(ErrSettlementCounterMismatch, nil, map[string]any{
			"table":   "users",
			"user_id": userID.String(),
		})
	}
	return nil
}

func scanWithdrawal(src rowScanner) (*model.Withdrawal, error) {
	withdrawal := &model.Withdrawal{}
	var metadataRaw []byte
	err := src.Scan(
		&withdrawal.ID,
		&withdrawal.UserID,
		&withdrawal.InventoryID,
		&withdrawal.ItemID,
		&withdrawal.Status,
		&withdrawal.CodeID,
		&withdrawal.DeliveredCode,
		&withdrawal.ProcessedBy,
		&withdrawal.ProcessedAt,
		&metadataRaw,
		&withdrawal.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	withdrawal.Metadata, err = decodeMetadata(metadataRaw)
	if err != nil {
		return nil, err
	}
	return withdrawal, nil
}

func (m WithdrawalMetadata) toMap() map[string]interface{} {
	out := make(map[string]interface{}, 3)
	if v := strings.TrimSpace(m.IPAddress); v != "" {
		out["ip_address"] = v
	}
	if v := strings.TrimSpace(m.UserAgent); v != "" {
		out["user_agent"] = v
	}
	if v := strings.TrimSpace(m.Fingerprint); v != "" {
		out["fingerprint"] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
