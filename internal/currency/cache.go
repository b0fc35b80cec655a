package currency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"lootbox-hub/internal/metrics"
)

const (
	Base       = "USD"
	DefaultTTL = time.Hour

	// DefaultFailureBackoff is how long a failed refresh is remembered before
	// the provider is asked again.
	DefaultFailureBackoff = time.Minute
)

var ErrUnsupported = errors.New("currency: unsupported currency")

// Supported lists accepted deposit currencies in display order.
var Supported = []string{"USD", "BRL", "EUR", "PHP"}

// Rates maps a currency code to units per one USD.
type Rates map[string]decimal.Decimal

// Snapshot is a set of rates plus the moment they were fetched.
type Snapshot struct {
	Rates     Rates     `json:"rates"`
	FetchedAt time.Time `json:"fetched_at"`
	Fallback  bool      `json:"fallback"`
}

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type Provider interface {
	Fetch(ctx context.Context, base string) (Rates, error)
}

// FallbackRates are served when no provider response has ever succeeded.
func FallbackRates() Rates {
	return Rates{
		"USD": decimal.NewFromInt(1),
		"BRL": decimal.RequireFromString("5.0"),
		"EUR": decimal.RequireFromString("0.92"),
		"PHP": decimal.RequireFromString("56.0"),
	}
}

// Cache serves rates for ttl after a successful fetch. A failed refresh
// keeps the last good snapshot, or the static fallback if there is none.
// Concurrent misses share one provider call, made without holding mu.
type Cache struct {
	provider Provider
	clock    Clock
	ttl      time.Duration
	backoff  time.Duration
	logger   *zap.Logger
	fetches  singleflight.Group

	mu       sync.Mutex
	snapshot *Snapshot
	lastGood *Snapshot
	failedAt time.Time
}

func NewCache(provider Provider, clock Clock, ttl time.Duration, logger *zap.Logger) *Cache {
	if clock == nil {
		clock = systemClock{}
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Cache{
		provider: provider,
		clock:    clock,
		ttl:      ttl,
		backoff:  DefaultFailureBackoff,
		logger:   logger,
	}
}

func (c *Cache) Get(ctx context.Context) Snapshot {
	now := c.clock.Now()

	c.mu.Lock()
	if c.snapshot != nil && now.Sub(c.snapshot.FetchedAt) < c.ttl {
		fresh := *c.snapshot
		c.mu.Unlock()
		return fresh
	}
	coolingDown := !c.failedAt.IsZero() && now.Sub(c.failedAt) < c.backoff
	c.mu.Unlock()

	if c.provider == nil || coolingDown {
		return c.stale(now)
	}

	// The fetch outlives a cancelled caller so the other waiters still get
	// its result; the provider's own timeout bounds it.
	fetchCtx := context.WithoutCancel(ctx)
	result := c.fetches.DoChan(Base, func() (any, error) {
		return c.refresh(fetchCtx), nil
	})
	select {
	case res := <-result:
		return res.Val.(Snapshot)
	case <-ctx.Done():
		return c.stale(now)
	}
}

func (c *Cache) refresh(ctx context.Context) Snapshot {
	rates, err := c.provider.Fetch(ctx, Base)
	if err == nil {
		err = validateRates(rates)
	}
	now := c.clock.Now()

	if err != nil {
		metrics.IncCurrencyRefresh("failure")
		c.logger.Warn("exchange rate refresh failed", zap.Error(err))
		c.mu.Lock()
		c.failedAt = now
		c.mu.Unlock()
		return c.stale(now)
	}

	rates[Base] = decimal.NewFromInt(1)
	fresh := &Snapshot{Rates: rates, FetchedAt: now}
	c.mu.Lock()
	c.snapshot = fresh
	c.lastGood = fresh
	c.failedAt = time.Time{}
	c.mu.Unlock()
	metrics.IncCurrencyRefresh("success")
	return *fresh
}

func (c *Cache) stale(now time.Time) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastGood != nil {
		return *c.lastGood
	}
	return Snapshot{Rates: FallbackRates(), FetchedAt: now, Fallback: true}
}

// ToUSD converts amount in code to USD credits, rounded to cents.
func (c *Cache) ToUSD(ctx context.Context, amount decimal.Decimal, code string) (decimal.Decimal, error) {
	code = Normalize(code)
	if !IsSupported(code) {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnsupported, code)
	}
	if code == Base {
		return amount.Round(2), nil
	}

	snapshot := c.Get(ctx)
	rate, ok := snapshot.Rates[code]
	if !ok || !rate.IsPositive() {
		rate, ok = FallbackRates()[code]
		if !ok {
			return decimal.Zero, fmt.Errorf("%w: %s", ErrUnsupported, code)
		}
	}
	return amount.DivRound(rate, 2), nil
}

func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func IsSupported(code string) bool {
	for _, candidate := range Supported {
		if candidate == code {
			return true
		}
	}
	return false
}

func validateRates(rates Rates) error {
	if len(rates) == 0 {
		return errors.New("provider returned no rates")
	}
	for _, code := range Supported {
		if code == Base {
			continue
		}
		rate, ok := rates[code]
		if !ok {
			return fmt.Errorf("provider response missing %s", code)
		}
		if !rate.IsPositive() {
			return fmt.Errorf("provider returned non-positive rate for %s", code)
		}
	}
	return nil
}
