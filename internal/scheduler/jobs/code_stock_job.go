package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"lootbox-hub/internal/metrics"
	"lootbox-hub/internal/model"
)

type stockReader interface {
	StockByItem(ctx context.Context) ([]model.ActivationCodeStock, error)
}

type CodeStockJob struct {
	codes  stockReader
	logger *zap.Logger
}

func NewCodeStockJob(codes stockReader, logger *zap.Logger) *CodeStockJob {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CodeStockJob{codes: codes, logger: logger}
}

// RefreshStock publishes the unclaimed code count per item. Items at zero
// are logged because their withdrawals fall back to manual fulfilment.
func (j *CodeStockJob) RefreshStock() {
	if j == nil || j.codes == nil {
		return
	}

	ctx, cancel := jobContext(30 * time.Second)
	defer cancel()

	stock, err := j.codes.StockByItem(ctx)
	if err != nil {
		j.logger.Warn("load activation code stock failed", zap.Error(err))
		return
	}

	empty := make([]string, 0)
	for _, entry := range stock {
		metrics.SetActivationCodesAvailable(entry.ItemName, entry.Available)
		if entry.Available == 0 {
			empty = append(empty, entry.ItemName)
		}
	}

	if len(empty) > 0 {
		j.logger.Info("items without activation codes",
			zap.Int("count", len(empty)),
			zap.Strings("items", empty),
		)
	}
}
