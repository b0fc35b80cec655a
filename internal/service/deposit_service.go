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

	"lootbox-hub/internal/currency"
	"lootbox-hub/internal/event"
	"lootbox-hub/internal/model"
	"lootbox-hub/internal/repository"
)

const (
	depositListDefaultPage = 1
	depositListDefaultSize = 50
	depositListMaxPageSize = 100
)

const depositColumns = `
	id,
	user_id,
	amount_original,
	currency_original,
	amount_usd,
	payment_method,
	status,
	payment_ref,
	created_at,
	completed_at
`

var depositMinimums = map[string]decimal.Decimal{
	"USD": decimal.NewFromInt(5),
	"BRL": decimal.NewFromInt(25),
	"EUR": decimal.NewFromInt(5),
	"PHP": decimal.NewFromInt(250),
}

var depositMethods = map[string]struct{}{
	"stripe": {},
	"paypal": {},
	"pix":    {},
}

type DepositConfirmation struct {
	DepositID    uuid.UUID       `json:"deposit_id"`
	UserID       uuid.UUID       `json:"user_id"`
	CreditsAdded decimal.Decimal `json:"credits_added"`
	NewBalance   decimal.Decimal `json:"new_balance"`
}

// MinimumDeposit returns the smallest accepted amount in the given currency.
func MinimumDeposit(code string) (decimal.Decimal, bool) {
	minimum, ok := depositMinimums[currency.Normalize(code)]
	return minimum, ok
}

type DepositService struct {
	pool      *pgxpool.Pool
	rates     *currency.Cache
	txTimeout time.Duration
	bus       *event.Bus
	reporter  opsReporter
	logger    *zap.Logger
	auditLog  *zap.Logger
}

func NewDepositService(
	pool *pgxpool.Pool,
	rates *currency.Cache,
	auditRepo repository.AuditRepository,
	bus *event.Bus,
	txTimeout time.Duration,
	logger *zap.Logger,
) *DepositService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if rates == nil {
		rates = currency.NewCache(nil, nil, currency.DefaultTTL, logger)
	}

	return &DepositService{
		pool:      pool,
		rates:     rates,
		txTimeout: txTimeout,
		bus:       bus,
		reporter:  newOpsReporter(logger, bus, auditRepo),
		logger:    logger,
		auditLog:  logger.Named("audit"),
	}
}

// CreateDeposit records a pending deposit with its USD credit value fixed at
// creation time. Credits are granted only by ConfirmDeposit.
func (s *DepositService) CreateDeposit(
	ctx context.Context,
	actor Actor,
	amount decimal.Decimal,
	currencyCode string,
	method string,
) (*model.Deposit, error) {
	if s.pool == nil {
		return nil, errors.New("database pool is nil")
	}
	if err := actor.requireSelf(); err != nil {
		return nil, err
	}

	code := currency.Normalize(currencyCode)
	minimum, ok := depositMinimums[code]
	if !ok {
		return nil, invalidInput(ErrUnsupportedCurrency, code)
	}
	method = strings.ToLower(strings.TrimSpace(method))
	if _, ok := depositMethods[method]; !ok {
		return nil, invalidInput(ErrInvalidInput, "unsupported payment method")
	}
	amount = amount.Round(2)
	if amount.LessThan(minimum) {
		return nil, policyViolation(ErrDepositBelowMinimum, map[string]any{
			"minimum":  minimum.StringFixed(2),
			"currency": code,
		})
	}

	credits, err := s.rates.ToUSD(ctx, amount, code)
	if err != nil {
		if errors.Is(err, currency.ErrUnsupported) {
			return nil, invalidInput(ErrUnsupportedCurrency, code)
		}
		return nil, err
	}
	if !credits.IsPositive() {
		return nil, policyViolation(ErrDepositBelowMinimum, map[string]any{
			"minimum":  minimum.StringFixed(2),
			"currency": code,
		})
	}

	deposit := &model.Deposit{
		ID:               uuid.New(),
		UserID:           actor.UserID,
		AmountOriginal:   amount,
		CurrencyOriginal: code,
		AmountUSD:        credits,
		PaymentMethod:    method,
		Status:           model.DepositStatusPending,
	}
	if err := s.pool.QueryRow(
		ctx,
		`INSERT INTO deposits (
			id, user_id, amount_original, currency_original, amount_usd, payment_method, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		deposit.ID,
		deposit.UserID,
		deposit.AmountOriginal,
		deposit.CurrencyOriginal,
		deposit.AmountUSD,
		deposit.PaymentMethod,
		deposit.Status,
	).Scan(&deposit.CreatedAt); err != nil {
		return nil, err
	}

	s.logger.Info("deposit created",
		zap.String("deposit_id", deposit.ID.String()),
		zap.String("user_id", deposit.UserID.String()),
		zap.String("amount", deposit.AmountOriginal.StringFixed(2)),
		zap.String("currency", code),
		zap.String("credits", deposit.AmountUSD.StringFixed(2)),
		zap.String("method", method),
	)
	return deposit, nil
}

// ConfirmDeposit is driven by the payment callback. It credits the balance
// exactly once; a second confirmation fails with DepositNotPending.
func (s *DepositService) ConfirmDeposit(
	ctx context.Context,
	depositID uuid.UUID,
	paymentRef string,
) (result *DepositConfirmation, err error) {
	if s.pool == nil {
		return nil, errors.New("database pool is nil")
	}

	var ownerID uuid.UUID
	trace := newSettlementTrace("confirm_deposit")
	defer func() {
		s.reporter.finish(ctx, trace, ownerID, err)
	}()

	txCtx, cancel := withTxTimeout(ctx, s.txTimeout)
	defer cancel()

	tx, err := s.pool.BeginTx(txCtx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(txCtx) //nolint:errcheck

	deposit, err := scanDeposit(tx.QueryRow(
		txCtx,
		`SELECT `+depositColumns+` FROM deposits WHERE id = $1 FOR UPDATE`,
		depositID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(ErrDepositNotFound)
	}
	if err != nil {
		return nil, err
	}
	ownerID = deposit.UserID
	if deposit.Status != model.DepositStatusPending {
		return nil, invalidState(ErrDepositNotPending, map[string]any{"status": string(deposit.Status)})
	}

	if _, err := tx.Exec(
		txCtx,
		`UPDATE deposits
		    SET status = $2,
		        payment_ref = $3,
		        completed_at = NOW()
		  WHERE id = $1`,
		deposit.ID,
		model.DepositStatusCompleted,
		optionalString(paymentRef),
	); err != nil {
		return nil, err
	}
	trace.advance(StateFundsVerified)

	var newBalance decimal.Decimal
	err = tx.QueryRow(
		txCtx,
		`UPDATE users
		    SET balance = balance + $2,
		        total_deposited = total_deposited + $2,
		        updated_at = NOW()
		  WHERE id = $1
		RETURNING balance`,
		deposit.UserID,
		deposit.AmountUSD,
	).Scan(&newBalance)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, invariantViolation(ErrUserNotFound, nil, map[string]any{"deposit_id": deposit.ID.String()})
	}
	if err != nil {
		return nil, err
	}
	trace.advance(StateInventoryCredited)

	if err := tx.Commit(txCtx); err != nil {
		return nil, err
	}
	trace.advance(StateCommitted)

	uid := deposit.UserID
	s.reporter.audit(ctx, &model.AuditLog{
		UserID:       &uid,
		Action:       model.AuditActionDepositConfirm,
		ResourceType: strPtr("deposit"),
		ResourceID:   strPtr(deposit.ID.String()),
		NewValue: map[string]interface{}{
			"credits":     deposit.AmountUSD.StringFixed(2),
			"amount":      deposit.AmountOriginal.StringFixed(2),
			"currency":    deposit.CurrencyOriginal,
			"payment_ref": paymentRef,
		},
	})
	s.auditLog.Info("deposit confirmed",
		zap.String("deposit_id", deposit.ID.String()),
		zap.String("user_id", deposit.UserID.String()),
		zap.String("credits", deposit.AmountUSD.StringFixed(2)),
	)

	if s.bus != nil {
		s.bus.Publish(event.EventDepositCompleted, event.DepositCompletedPayload{
			DepositID: deposit.ID.String(),
			UserID:    deposit.UserID.String(),
			AmountUSD: deposit.AmountUSD.StringFixed(2),
			Timestamp: time.Now().UTC(),
		})
	}

	return &DepositConfirmation{
		DepositID:    deposit.ID,
		UserID:       deposit.UserID,
		CreditsAdded: deposit.AmountUSD,
		NewBalance:   newBalance,
	}, nil
}

func (s *DepositService) ListUserDeposits(
	ctx context.Context,
	actor Actor,
	page, pageSize int,
) ([]*model.Deposit, int64, error) {
	if s.pool == nil {
		return nil, 0, errors.New("database pool is nil")
	}
	if err := actor.requireSelf(); err != nil {
		return nil, 0, err
	}

	page, pageSize = normalizePage(page, pageSize, depositListDefaultPage, depositListDefaultSize, depositListMaxPageSize)

	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM deposits WHERE user_id = $1`, actor.UserID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(
		ctx,
		`SELECT `+depositColumns+`
		   FROM deposits
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

	out := make([]*model.Deposit, 0, pageSize)
	for rows.Next() {
		deposit, err := scanDeposit(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, deposit)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *DepositService) Rates(ctx context.Context) currency.Snapshot {
	return s.rates.Get(ctx)
}

func scanDeposit(src rowScanner) (*model.Deposit, error) {
	deposit := &model.Deposit{}
	err := src.Scan(
		&deposit.ID,
		&deposit.UserID,
		&deposit.AmountOriginal,
		&deposit.CurrencyOriginal,
		&deposit.AmountUSD,
		&deposit.PaymentMethod,
		&deposit.Status,
		&deposit.PaymentRef,
		&deposit.CreatedAt,
		&deposit.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return deposit, nil
}
