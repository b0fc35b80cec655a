package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DrawsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lootbox_draws_total",
		Help: "Committed draws by source (box id or coupon)",
	}, []string{"source"})

	SettlementDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lootbox_settlement_duration_seconds",
		Help:    "Wall time of settlement transactions by operation and outcome",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "outcome"})

	InvariantViolations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lootbox_invariant_violations_total",
		Help: "Should-never-happen conditions detected inside a transaction",
	}, []string{"operation"})

	WithdrawalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lootbox_withdrawals_total",
		Help: "Withdrawal requests by resulting status",
	}, []string{"status"})

	PendingManualWithdrawals = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lootbox_withdrawals_pending_manual",
		Help: "Withdrawals waiting for an operator-supplied code",
	})

	PendingManualOverSLA = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lootbox_withdrawals_pending_over_threshold",
		Help: "Pending manual withdrawals older than the warning threshold",
	})

	ActivationCodesAvailable = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lootbox_activation_codes_available",
		Help: "Unclaimed activation codes per item",
	}, []string{"item"})

	ExchangesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lootbox_exchanges_total",
		Help: "Completed item exchanges",
	})

	CouponRedemptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lootbox_coupon_redemptions_total",
		Help: "Coupon redemptions by outcome",
	}, []string{"outcome"})

	CurrencyRateRefresh = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lootbox_currency_rate_refresh_total",
		Help: "Exchange-rate refresh attempts by result",
	}, []string{"result"})

	HostCPUPercent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lootbox_host_cpu_percent",
		Help: "Host CPU usage sampled by the status collector",
	})

	HostMemoryPercent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lootbox_host_memory_percent",
		Help: "Host memory usage sampled by the status collector",
	})

	SSEClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lootbox_sse_clients",
		Help: "Current number of SSE clients connected",
	})

	RateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lootbox_rate_limited_total",
		Help: "Requests rejected by a per-caller rate limit, by scope",
	}, []string{"scope"})
)

func IncDraw(source string) {
	DrawsTotal.WithLabelValues(labelOrUnknown(source)).Inc()
}

func ObserveSettlement(operation, outcome string, duration time.Duration) {
	SettlementDuration.WithLabelValues(labelOrUnknown(operation), labelOrUnknown(outcome)).Observe(duration.Seconds())
}

func IncInvariantViolation(operation string) {
	InvariantViolations.WithLabelValues(labelOrUnknown(operation)).Inc()
}

func IncWithdrawal(status string) {
	WithdrawalsTotal.WithLabelValues(labelOrUnknown(status)).Inc()
}

func SetPendingManualWithdrawals(total, overThreshold int64) {
	if total < 0 {
		total = 0
	}
	if overThreshold < 0 {
		overThreshold = 0
	}
	PendingManualWithdrawals.Set(float64(total))
	PendingManualOverSLA.Set(float64(overThreshold))
}

func SetActivationCodesAvailable(item string, count int64) {
	if count < 0 {
		count = 0
	}
	ActivationCodesAvailable.WithLabelValues(labelOrUnknown(item)).Set(float64(count))
}

func IncExchange() {
	ExchangesTotal.Inc()
}

func IncCouponRedemption(outcome string) {
	CouponRedemptions.WithLabelValues(labelOrUnknown(outcome)).Inc()
}

func IncCurrencyRefresh(result string) {
	CurrencyRateRefresh.WithLabelValues(labelOrUnknown(result)).Inc()
}

func SetHostUsage(cpuPercent, memoryPercent float64) {
	HostCPUPercent.Set(cpuPercent)
	HostMemoryPercent.Set(memoryPercent)
}

func SetSSEClients(count int) {
	if count < 0 {
		count = 0
	}
	SSEClients.Set(float64(count))
}

func IncRateLimited(scope string) {
	RateLimited.WithLabelValues(labelOrUnknown(scope)).Inc()
}

func labelOrUnknown(v string) string {
	label := strings.TrimSpace(v)
	if label == "" {
		return "unknown"
	}
	return label
}
