package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"lootbox-hub/internal/event"
	"lootbox-hub/internal/metrics"
	"lootbox-hub/internal/service"
)

const defaultBacklogWarning = 48 * time.Hour

type backlogCounter interface {
	CountPendingManual(ctx context.Context, threshold time.Duration) (service.PendingBacklog, error)
}

// WithdrawalJob watches the manual fulfilment queue.
type WithdrawalJob struct {
	withdrawals backlogCounter
	bus         *event.Bus
	warnAfter   time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

func NewWithdrawalJob(
	withdrawals backlogCounter,
	bus *event.Bus,
	warnAfter time.Duration,
	logger *zap.Logger,
) *WithdrawalJob {
	if logger == nil {
		logger = zap.NewNop()
	}
	if warnAfter <= 0 {
		warnAfter = defaultBacklogWarning
	}

	return &WithdrawalJob{
		withdrawals: withdrawals,
		bus:         bus,
		warnAfter:   warnAfter,
		logger:      logger,
		now:         time.Now,
	}
}

func (j *WithdrawalJob) CheckBacklog() {
	if j == nil || j.withdrawals == nil {
		return
	}

	ctx, cancel := jobContext(30 * time.Second)
	defer cancel()

	backlog, err := j.withdrawals.CountPendingManual(ctx, j.warnAfter)
	if err != nil {
		j.logger.Warn("count pending manual withdrawals failed", zap.Error(err))
		return
	}

	metrics.SetPendingManualWithdrawals(backlog.Total, backlog.OverThreshold)
	if backlog.OverThreshold == 0 {
		return
	}

	j.logger.Warn("manual withdrawals waiting past threshold",
		zap.Int64("pending", backlog.Total),
		zap.Int64("over_threshold", backlog.OverThreshold),
		zap.Duration("threshold", j.warnAfter),
		zap.Duration("oldest", backlog.Oldest),
	)
	if j.bus != nil {
		j.bus.Publish(event.EventWithdrawalBacklogWarning, event.BacklogPayload{
			Pending:       backlog.Total,
			OverThreshold: backlog.OverThreshold,
			Threshold:     j.warnAfter,
			OldestPending: backlog.Oldest,
			Timestamp:     j.now().UTC(),
		})
	}
}
