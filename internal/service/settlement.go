package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"lootbox-hub/internal/event"
	"lootbox-hub/internal/metrics"
	"lootbox-hub/internal/model"
	"lootbox-hub/internal/repository"
)

// SettlementState is the last step a settlement transaction reached.
type SettlementState string

const (
	StateStarted           SettlementState = "started"
	StateFundsVerified     SettlementState = "funds_verified"
	StateItemSelected      SettlementState = "item_selected"
	StateInventoryCredited SettlementState = "inventory_credited"
	StateAudited           SettlementState = "audited"
	StateCommitted         SettlementState = "committed"
	StateAborted           SettlementState = "aborted"
)

const defaultTxTimeout = 10 * time.Second

type settlementTrace struct {
	operation string
	state     SettlementState
	started   time.Time
}

func newSettlementTrace(operation string) *settlementTrace {
	return &settlementTrace{
		operation: operation,
		state:     StateStarted,
		started:   time.Now(),
	}
}

func (t *settlementTrace) advance(state SettlementState) {
	t.state = state
}

// opsReporter records the outcome of a transactional operation after the
// transaction has been committed or rolled back.
type opsReporter struct {
	logger    *zap.Logger
	bus       *event.Bus
	auditRepo repository.AuditRepository
}

func newOpsReporter(logger *zap.Logger, bus *event.Bus, auditRepo repository.AuditRepository) opsReporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return opsReporter{logger: logger, bus: bus, auditRepo: auditRepo}
}

func (r opsReporter) finish(ctx context.Context, trace *settlementTrace, userID uuid.UUID, err error) {
	outcome := "committed"
	if err != nil {
		outcome = string(KindOf(err))
	}
	metrics.ObserveSettlement(trace.operation, outcome, time.Since(trace.started))

	if err == nil {
		return
	}

	lastState := trace.state
	trace.state = StateAborted

	if KindOf(err) != KindInvariantViolation {
		r.logger.Debug("settlement aborted",
			zap.String("operation", trace.operation),
			zap.String("last_state", string(lastState)),
			zap.String("user_id", userID.String()),
			zap.Error(err),
		)
		return
	}

	r.logger.Error("invariant violation, transaction rolled back",
		zap.String("operation", trace.operation),
		zap.String("last_state", string(lastState)),
		zap.String("user_id", userID.String()),
		zap.Any("details", DetailsOf(err)),
		zap.Error(err),
	)
	metrics.IncInvariantViolation(trace.operation)

	now := time.Now().UTC()
	if r.bus != nil {
		r.bus.Publish(event.EventInvariantViolation, event.InvariantViolationPayload{
			Operation: trace.operation,
			UserID:    userID.String(),
			Detail:    err.Error(),
			Timestamp: now,
		})
	}

	if r.auditRepo != nil {
		uid := userID
		if auditErr := r.auditRepo.Create(context.WithoutCancel(ctx), &model.AuditLog{
			UserID:       &uid,
			Action:       model.AuditActionInvariantViolation,
			ResourceType: strPtr(trace.operation),
			NewValue: map[string]interface{}{
				"last_state": string(lastState),
				"error":      err.Error(),
				"details":    DetailsOf(err),
			},
			CreatedAt: now,
		}); auditErr != nil {
			r.logger.Warn("write invariant audit failed", zap.Error(auditErr))
		}
	}
}

func (r opsReporter) audit(ctx context.Context, entry *model.AuditLog) {
	if r.auditRepo == nil || entry == nil {
		return
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if err := r.auditRepo.Create(context.WithoutCancel(ctx), entry); err != nil {
		r.logger.Warn("write audit log failed",
			zap.String("action", entry.Action),
			zap.Error(err),
		)
	}
}

func withTxTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = defaultTxTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

func strPtr(v string) *string {
	return &v
}

func encodeMetadata(value map[string]interface{}) ([]byte, error) {
	if value == nil {
		return nil, nil
	}
	return json.Marshal(value)
}

func decodeMetadata(raw []byte) (map[string]interface{}, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
