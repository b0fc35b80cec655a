package jobs

import (
	"time"

	"go.uber.org/zap"

	"lootbox-hub/internal/currency"
)

// CurrencyJob keeps the rate cache warm so deposit requests rarely wait on
// the provider.
type CurrencyJob struct {
	cache  *currency.Cache
	logger *zap.Logger
}

func NewCurrencyJob(cache *currency.Cache, logger *zap.Logger) *CurrencyJob {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CurrencyJob{cache: cache, logger: logger}
}

func (j *CurrencyJob) Warm() {
	if j == nil || j.cache == nil {
		return
	}

	ctx, cancel := jobContext(10 * time.Second)
	defer cancel()

	snapshot := j.cache.Get(ctx)
	if snapshot.Fallback {
		j.logger.Warn("serving fallback exchange rates")
	}
}
