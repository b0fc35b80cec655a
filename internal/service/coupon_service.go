package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
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

const couponColumns = `
	id,
	code,
	influencer_name,
	influencer_url,
	minimum_deposit,
	max_uses,
	times_used,
	expires_at,
	status,
	created_by,
	created_at,
	last_used_at
`

const couponEntriesQuery = `SELECT item_id, weight FROM coupon_items WHERE coupon_id = $1 ORDER BY position ASC`

var couponCodePattern = regexp.MustCompile(`^[A-Z0-9_-]{3,64}$`)

// DepositGate travels with a coupon item until it is withdrawn.
type DepositGate struct {
	Required  decimal.Decimal `json:"required"`
	Deposited decimal.Decimal `json:"deposited"`
	Satisfied bool            `json:"satisfied"`
}

type CouponResult struct {
	CouponID    uuid.UUID     `json:"coupon_id"`
	UsageID     uuid.UUID     `json:"usage_id"`
	InventoryID uuid.UUID     `json:"inventory_id"`
	Item        *model.Item   `json:"item"`
	Proof       FairnessProof `json:"fairness_proof"`
	DepositGate DepositGate   `json:"deposit_gate"`
}

type CreateCouponInput struct {
	Code           string
	InfluencerName string
	InfluencerURL  *string
	MinimumDeposit decimal.Decimal
	MaxUses        *int64
	ExpiresAt      *time.Time
	Entries        []lottery.Entry
}

type CouponDetails struct {
	Coupon        *model.Coupon `json:"coupon"`
	Items         []BoxItemView `json:"items"`
	RemainingUses *int64        `json:"remaining_uses,omitempty"`
}

type CouponServiceConfig struct {
	FairnessSecret string
	TxTimeout      time.Duration
}

type CouponService struct {
	pool        *pgxpool.Pool
	catalogRepo repository.CatalogRepository
	engine      drawEngine
	txTimeout   time.Duration
	bus         *event.Bus
	reporter    opsReporter
	logger      *zap.Logger
	fairnessLog *zap.Logger
	now         func() time.Time
}

func NewCouponService(
	pool *pgxpool.Pool,
	catalogRepo repository.CatalogRepository,
	auditRepo repository.AuditRepository,
	bus *event.Bus,
	cfg CouponServiceConfig,
	logger *zap.Logger,
) *CouponService {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &CouponService{
		pool:        pool,
		catalogRepo: catalogRepo,
		engine:      newDrawEngine(cfg.FairnessSecret),
		txTimeout:   cfg.TxTimeout,
		bus:         bus,
		reporter:    newOpsReporter(logger, bus, auditRepo),
		logger:      logger,
		fairnessLog: logger.Named("fairness"),
		now:         time.Now,
	}
}

// UseCoupon grants one draw from the coupon's micro-catalog. A prior usage
// by the same user or the same fingerprint blocks the redemption.
func (s *CouponService) UseCoupon(
	ctx context.Context,
	actor Actor,
	code string,
	fingerprintInputs map[string]string,
) (result *CouponResult, err error) {
	if s.pool == nil {
		return nil, errors.New("database pool is nil")
	}
	if err := actor.requireSelf(); err != nil {
		return nil, err
	}

	normalized := normalizeCouponCode(code)
	if normalized == "" {
		return nil, policyViolation(ErrInvalidCoupon, nil)
	}
	fingerprint := fairness.Fingerprint(fingerprintInputs)

	trace := newSettlementTrace("use_coupon")
	defer func() {
		metrics.IncCouponRedemption(couponOutcome(err))
		s.reporter.finish(ctx, trace, actor.UserID, err)
	}()

	txCtx, cancel := withTxTimeout(ctx, s.txTimeout)
	defer cancel()

	tx, err := s.pool.BeginTx(txCtx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(txCtx) //nolint:errcheck

	coupon, err := scanCoupon(tx.QueryRow(
		txCtx,
		`SELECT `+couponColumns+` FROM coupons WHERE code = $1 FOR UPDATE`,
		normalized,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, policyViolation(ErrInvalidCoupon, nil)
	}
	if err != nil {
		return nil, err
	}
	if err := checkCouponRedeemable(coupon, s.now()); err != nil {
		return nil, err
	}

	user, err := lockUserTx(txCtx, tx, actor.UserID)
	if err != nil {
		return nil, err
	}
	if user.Status != model.UserStatusActive {
		return nil, policyViolation(ErrUserSuspended, nil)
	}

	var used bool
	if err := tx.QueryRow(
		txCtx,
		`SELECT EXISTS (
			SELECT 1 FROM coupon_usage
			 WHERE coupon_id = $1
			   AND (user_id = $2 OR fingerprint = $3)
		)`,
		coupon.ID,
		actor.UserID,
		fingerprint,
	).Scan(&used); err != nil {
		return nil, err
	}
	if used {
		return nil, policyViolation(ErrCouponAlreadyUsed, nil)
	}
	trace.advance(StateFundsVerified)

	entries, err := loadEntriesTx(txCtx, tx, couponEntriesQuery, coupon.ID)
	if err != nil {
		return nil, err
	}
	sourceID := couponSourceID(coupon.ID)
	outcome, err := s.engine.draw(txCtx, tx, actor.UserID, sourceID, entries)
	if err != nil {
		return nil, err
	}
	trace.advance(StateItemSelected)

	couponRef := coupon.ID
	inventory := &model.InventoryEntry{
		UserID:          actor.UserID,
		ItemID:          outcome.Item.ID,
		SourceType:      model.InventorySourceCoupon,
		SourceID:        &couponRef,
		RequiredDeposit: coupon.MinimumDeposit,
	}
	if err := insertInventoryTx(txCtx, tx, inventory); err != nil {
		return nil, err
	}
	trace.advance(StateInventoryCredited)

	fairnessData, err := json.Marshal(outcome.Payload)
	if err != nil {
		return nil, err
	}
	usage := &model.CouponUsage{
		ID:           uuid.New(),
		CouponID:     coupon.ID,
		UserID:       actor.UserID,
		Fingerprint:  fingerprint,
		ItemID:       outcome.Item.ID,
		InventoryID:  inventory.ID,
		FairnessHash: outcome.Proof,
	}
	err = tx.QueryRow(
		txCtx,
		`INSERT INTO coupon_usage (
			id, coupon_id, user_id, fingerprint, item_id, inventory_id, fairness_hash, fairness_data
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING used_at`,
		usage.ID,
		usage.CouponID,
		usage.UserID,
		usage.Fingerprint,
		usage.ItemID,
		usage.InventoryID,
		usage.FairnessHash,
		fairnessData,
	).Scan(&usage.UsedAt)
	if isUniqueViolation(err) {
		return nil, policyViolation(ErrCouponAlreadyUsed, nil)
	}
	if err != nil {
		return nil, err
	}
	trace.advance(StateAudited)

	tag, err := tx.Exec(
		txCtx,
		`UPDATE coupons
		    SET times_used = times_used + 1,
		        last_used_at = NOW()
		  WHERE id = $1`,
		coupon.ID,
	)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() != 1 {
		return nil, invariantViolation(ErrSettlementCounterMismatch, nil, map[string]any{
			"table":     "coupons",
			"coupon_id": coupon.ID.String(),
		})
	}
	if err := incrementItemWonTx(txCtx, tx, outcome.Item.ID); err != nil {
		return nil, err
	}

	deposited, err := completedDepositsTx(txCtx, tx, actor.UserID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, err
	}
	trace.advance(StateCommitted)

	s.fairnessLog.Info("coupon draw executed",
		zap.String("usage_id", usage.ID.String()),
		zap.String("coupon_id", coupon.ID.String()),
		zap.String("user_id", actor.UserID.String()),
		zap.String("item_id", outcome.Item.ID.String()),
		zap.Int64("random_value", outcome.Payload.RandomValue),
		zap.Int64("total_weight", outcome.Payload.TotalWeight),
		zap.Int64("timestamp", outcome.Payload.Timestamp),
		zap.String("fairness_hash", outcome.Proof),
	)
	uid := actor.UserID
	s.reporter.audit(ctx, &model.AuditLog{
		UserID:       &uid,
		Action:       model.AuditActionCouponRedeem,
		ResourceType: strPtr("coupon"),
		ResourceID:   strPtr(coupon.ID.String()),
		NewValue: map[string]interface{}{
			"code":         coupon.Code,
			"item_id":      outcome.Item.ID.String(),
			"inventory_id": inventory.ID.String(),
			"fingerprint":  fingerprint,
		},
		CreatedAt: usage.UsedAt,
	})
	metrics.IncDraw("coupon")

	if s.bus != nil {
		s.bus.Publish(event.EventDrawCompleted, event.DrawCompletedPayload{
			DrawID:    usage.ID.String(),
			UserID:    actor.UserID.String(),
			SourceID:  sourceID,
			ItemID:    outcome.Item.ID.String(),
			ItemName:  outcome.Item.Name,
			Coupon:    true,
			Timestamp: time.UnixMilli(outcome.Payload.Timestamp).UTC(),
		})
	}

	return &CouponResult{
		CouponID:    coupon.ID,
		UsageID:     usage.ID,
		InventoryID: inventory.ID,
		Item:        outcome.Item,
		Proof:       outcome.fairnessProof(),
		DepositGate: DepositGate{
			Required:  coupon.MinimumDeposit,
			Deposited: deposited,
			Satisfied: !deposited.LessThan(coupon.MinimumDeposit),
		},
	}, nil
}

func (s *CouponService) CreateCoupon(ctx context.Context, actor Actor, input CreateCouponInput) (*model.Coupon, error) {
	if s.pool == nil {
		return nil, errors.New("database pool is nil")
	}
	if err := actor.requireAdmin(); err != nil {
		return nil, err
	}

	coupon, err := s.validateCouponInput(input)
	if err != nil {
		return nil, err
	}
	coupon.CreatedBy = actor.UserID

	catalog, err := lottery.NewCatalog(input.Entries)
	if err != nil {
		return nil, invalidInput(ErrInvalidInput, err.Error())
	}
	if s.catalogRepo != nil {
		ids := make([]uuid.UUID, 0, catalog.Len())
		for _, entry := range catalog.Entries() {
			ids = append(ids, entry.ItemID)
		}
		items, err := s.catalogRepo.FindItems(ctx, ids)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			if _, ok := items[id]; !ok {
				return nil, notFound(ErrItemNotFound)
			}
		}
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	err = tx.QueryRow(
		ctx,
		`INSERT INTO coupons (
			id, code, influencer_name, influencer_url, minimum_deposit,
			max_uses, expires_at, status, created_by
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`,
		coupon.ID,
		coupon.Code,
		coupon.InfluencerName,
		coupon.InfluencerURL,
		coupon.MinimumDeposit,
		coupon.MaxUses,
		coupon.ExpiresAt,
		coupon.Status,
		coupon.CreatedBy,
	).Scan(&coupon.CreatedAt)
	if isUniqueViolation(err) {
		return nil, invalidState(ErrCouponCodeTaken, map[string]any{"code": coupon.Code})
	}
	if err != nil {
		return nil, err
	}

	batch := &pgx.Batch{}
	for position, entry := range catalog.Entries() {
		batch.Queue(
			`INSERT INTO coupon_items (coupon_id, position, item_id, weight) VALUES ($1, $2, $3, $4)`,
			coupon.ID,
			position,
			entry.ItemID,
			entry.Weight,
		)
	}
	results := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return nil, err
		}
	}
	if err := results.Close(); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	coupon.Entries = catalog.Entries()

	uid := actor.UserID
	s.reporter.audit(ctx, &model.AuditLog{
		UserID:       &uid,
		Action:       model.AuditActionCouponCreate,
		ResourceType: strPtr("coupon"),
		ResourceID:   strPtr(coupon.ID.String()),
		NewValue: map[string]interface{}{
			"code":            coupon.Code,
			"influencer":      coupon.InfluencerName,
			"minimum_deposit": coupon.MinimumDeposit.StringFixed(2),
			"entries":         catalog.Len(),
		},
		CreatedAt: coupon.CreatedAt,
	})
	s.logger.Info("coupon created",
		zap.String("coupon_id", coupon.ID.String()),
		zap.String("code", coupon.Code),
		zap.Int("entries", catalog.Len()),
	)

	return coupon, nil
}

// ListActiveCoupons returns coupons that can still be redeemed right now.
func (s *CouponService) ListActiveCoupons(ctx context.Context) ([]*model.Coupon, error) {
	if s.pool == nil {
		return nil, errors.New("database pool is nil")
	}

	rows, err := s.pool.Query(
		ctx,
		`SELECT `+couponColumns+`
		   FROM coupons
		  WHERE status = $1
		    AND (expires_at IS NULL OR expires_at > $2)
		    AND (max_uses IS NULL OR times_used < max_uses)
		  ORDER BY created_at DESC, id DESC`,
		model.CouponStatusActive,
		s.now().UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*model.Coupon, 0)
	for rows.Next() {
		coupon, err := scanCoupon(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, coupon)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *CouponService) GetCouponDetails(ctx context.Context, actor Actor, code string) (*CouponDetails, error) {
	if s.pool == nil {
		return nil, errors.New("database pool is nil")
	}

	normalized := normalizeCouponCode(code)
	if normalized == "" {
		return nil, notFound(ErrInvalidCoupon)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	coupon, err := scanCoupon(tx.QueryRow(ctx, `SELECT `+couponColumns+` FROM coupons WHERE code = $1`, normalized))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(ErrInvalidCoupon)
	}
	if err != nil {
		return nil, err
	}
	if coupon.Status != model.CouponStatusActive && !actor.Elevated() {
		return nil, notFound(ErrInvalidCoupon)
	}

	entries, err := loadEntriesTx(ctx, tx, couponEntriesQuery, coupon.ID)
	if err != nil {
		return nil, err
	}
	catalog, err := lottery.NewCatalog(entries)
	if err != nil {
		return nil, invariantViolation(ErrNoCandidateSelected, err, map[string]any{"source": couponSourceID(coupon.ID)})
	}

	views := make([]BoxItemView, 0, catalog.Len())
	privileged := actor.Elevated()
	for _, odds := range catalog.Odds() {
		item, err := findItemTx(ctx, tx, odds.ItemID)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, err
		}

		band := lottery.RarityBand(odds.Probability)
		view := BoxItemView{Item: item, RarityBand: string(band), RarityLabel: band.Label()}
		if privileged {
			weight := odds.Weight
			probability := odds.Probability
			view.Weight = &weight
			view.Probability = &probability
		}
		views = append(views, view)
	}
	if privileged {
		coupon.Entries = catalog.Entries()
	}

	details := &CouponDetails{Coupon: coupon, Items: views}
	if coupon.MaxUses != nil {
		remaining := *coupon.MaxUses - coupon.TimesUsed
		if remaining < 0 {
			remaining = 0
		}
		details.RemainingUses = &remaining
	}
	return details, nil
}

func (s *CouponService) validateCouponInput(input CreateCouponInput) (*model.Coupon, error) {
	code := normalizeCouponCode(input.Code)
	if !couponCodePattern.MatchString(code) {
		return nil, invalidInput(ErrInvalidInput, "coupon code must be 3-64 characters of A-Z, 0-9, _ or -")
	}

	name := strings.TrimSpace(input.InfluencerName)
	if name == "" || len(name) > 128 {
		return nil, invalidInput(ErrInvalidInput, "influencer name is required and at most 128 characters")
	}

	var influencerURL *string
	if input.InfluencerURL != nil && strings.TrimSpace(*input.InfluencerURL) != "" {
		raw := strings.TrimSpace(*input.InfluencerURL)
		parsed, err := url.Parse(raw)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return nil, invalidInput(ErrInvalidInput, "influencer url must be an absolute http(s) url")
		}
		influencerURL = &raw
	}

	if input.MinimumDeposit.IsNegative() {
		return nil, invalidInput(ErrInvalidInput, "minimum deposit cannot be negative")
	}
	if input.MaxUses != nil && *input.MaxUses <= 0 {
		return nil, invalidInput(ErrInvalidInput, "max uses must be positive")
	}
	if input.ExpiresAt != nil && !input.ExpiresAt.After(s.now()) {
		return nil, invalidInput(ErrInvalidInput, "expiry must be in the future")
	}

	return &model.Coupon{
		ID:             uuid.New(),
		Code:           code,
		InfluencerName: name,
		InfluencerURL:  influencerURL,
		MinimumDeposit: input.MinimumDeposit.Round(2),
		MaxUses:        input.MaxUses,
		ExpiresAt:      input.ExpiresAt,
		Status:         model.CouponStatusActive,
	}, nil
}

func checkCouponRedeemable(coupon *model.Coupon, now time.Time) error {
	if coupon.Status != model.CouponStatusActive {
		return policyViolation(ErrInvalidCoupon, nil)
	}
	if coupon.ExpiresAt != nil && !now.Before(*coupon.ExpiresAt) {
		return policyViolation(ErrCouponExpired, map[string]any{
			"expired_at": coupon.ExpiresAt.UTC().Format(time.RFC3339),
		})
	}
	if coupon.MaxUses != nil && coupon.TimesUsed >= *coupon.MaxUses {
		return policyViolation(ErrCouponLimitReached, map[string]any{
			"max_uses": *coupon.MaxUses,
		})
	}
	return nil
}

func scanCoupon(src rowScanner) (*model.Coupon, error) {
	coupon := &model.Coupon{}
	err := src.Scan(
		&coupon.ID,
		&coupon.Code,
		&coupon.InfluencerName,
		&coupon.InfluencerURL,
		&coupon.MinimumDeposit,
		&coupon.MaxUses,
		&coupon.TimesUsed,
		&coupon.ExpiresAt,
		&coupon.Status,
		&coupon.CreatedBy,
		&coupon.CreatedAt,
		&coupon.LastUsedAt,
	)
	if err != nil {
		return nil, err
	}
	return coupon, nil
}

func normalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// couponSourceID names the micro-catalog in fairness payloads.
func couponSourceID(couponID uuid.UUID) string {
	return "coupon_" + couponID.String()
}

func couponOutcome(err error) string {
	if err == nil {
		return "redeemed"
	}
	switch {
	case errors.Is(err, ErrCouponAlreadyUsed):
		return "replay_blocked"
	case errors.Is(err, ErrCouponExpired):
		return "expired"
	case errors.Is(err, ErrCouponLimitReached):
		return "limit_reached"
	case errors.Is(err, ErrInvalidCoupon):
		return "invalid"
	default:
		return "failed"
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
