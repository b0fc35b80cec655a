package service

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"lootbox-hub/internal/model"
)

// DashboardStats is the operator overview. "Today" starts at UTC midnight.
type DashboardStats struct {
	TotalUsers         int64           `json:"total_users"`
	NewUsersToday      int64           `json:"new_users_today"`
	TotalRevenue       decimal.Decimal `json:"total_revenue"`
	RevenueToday       decimal.Decimal `json:"revenue_today"`
	TotalOpenings      int64           `json:"total_openings"`
	OpeningsToday      int64           `json:"openings_today"`
	OpeningSpend       decimal.Decimal `json:"opening_spend"`
	PendingWithdrawals int64           `json:"pending_withdrawals"`
	CompletedWithdraws int64           `json:"completed_withdrawals"`
	OpenTickets        int64           `json:"open_tickets"`
	AvailableCodes     int64           `json:"available_codes"`
	GeneratedAt        time.Time       `json:"generated_at"`
}

const dashboardQuery = `
SELECT
	(SELECT COUNT(*) FROM users),
	(SELECT COUNT(*) FROM users WHERE created_at >= $1),
	(SELECT COALESCE(SUM(amount_usd), 0) FROM deposits WHERE status = $2),
	(SELECT COALESCE(SUM(amount_usd), 0) FROM deposits WHERE status = $2 AND completed_at >= $1),
	(SELECT COUNT(*) FROM lootbox_openings),
	(SELECT COUNT(*) FROM lootbox_openings WHERE opened_at >= $1),
	(SELECT COALESCE(SUM(price_paid), 0) FROM lootbox_openings),
	(SELECT COUNT(*) FROM withdrawals WHERE status = $3),
	(SELECT COUNT(*) FROM withdrawals WHERE status = $4),
	(SELECT COUNT(*) FROM support_tickets WHERE status = $5),
	(SELECT COUNT(*) FROM activation_codes WHERE status = $6)
`

type DashboardService struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewDashboardService(pool *pgxpool.Pool) *DashboardService {
	return &DashboardService{pool: pool, now: time.Now}
}

// Stats reads every counter in one statement so the figures share a snapshot.
func (s *DashboardService) Stats(ctx context.Context, actor Actor) (*DashboardStats, error) {
	if err := actor.requireOperator(); err != nil {
		return nil, err
	}
	if s.pool == nil {
		return nil, errors.New("database pool is nil")
	}

	now := s.now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	stats := &DashboardStats{GeneratedAt: now}
	if err := s.pool.QueryRow(ctx, dashboardQuery,
		midnight,
		model.DepositStatusCompleted,
		model.WithdrawalStatusPendingManual,
		model.WithdrawalStatusCompleted,
		model.TicketStatusOpen,
		model.ActivationCodeAvailable,
	).Scan(
		&stats.TotalUsers,
		&stats.NewUsersToday,
		&stats.TotalRevenue,
		&stats.RevenueToday,
		&stats.TotalOpenings,
		&stats.OpeningsToday,
		&stats.OpeningSpend,
		&stats.PendingWithdrawals,
		&stats.CompletedWithdraws,
		&stats.OpenTickets,
		&stats.AvailableCodes,
	); err != nil {
		return nil, err
	}
	return stats, nil
}
