package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"lootbox-hub/internal/model"
)

func TestDashboardStatsReflectsSettledActivity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	player := env.createUser(t, "20.00", model.UserRoleUser)
	admin := env.createUser(t, "0", model.UserRoleAdmin)
	items := env.createItems(t, "3.00")
	box := env.createBox(t, "5.00", 1, items, 1)

	for i := 0; i < 2; i++ {
		if _, err := env.lootboxes.OpenLootbox(ctx, player, box.ID, ""); err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
	}

	now := time.Now().UTC()
	yesterday := now.Add(-48 * time.Hour)
	for _, deposit := range []struct {
		amount      string
		status      model.DepositStatus
		completedAt *time.Time
	}{
		{amount: "25.00", status: model.DepositStatusCompleted, completedAt: &now},
		{amount: "10.00", status: model.DepositStatusCompleted, completedAt: &yesterday},
		{amount: "99.00", status: model.DepositStatusPending},
	} {
		if _, err := env.pool.Exec(ctx, `
			INSERT INTO deposits (user_id, amount_original, currency_original, amount_usd, payment_method, status, completed_at)
			VALUES ($1, $2, 'USD', $2, 'card', $3, $4)`,
			player.UserID, deposit.amount, deposit.status, deposit.completedAt,
		); err != nil {
			t.Fatalf("insert deposit: %v", err)
		}
	}

	if _, err := env.tickets.CreateTicket(ctx, player, CreateTicketInput{Subject: "Where is my key", Message: "Still waiting on delivery."}); err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}

	if _, err := env.dashboard.Stats(ctx, player); KindOf(err) != KindForbidden {
		t.Fatalf("plain user must not read the dashboard, got %v", err)
	}

	stats, err := env.dashboard.Stats(ctx, admin)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalUsers != 2 || stats.NewUsersToday != 2 {
		t.Fatalf("unexpected user counts: %+v", stats)
	}
	if !stats.TotalRevenue.Equal(decimal.RequireFromString("35")) || !stats.RevenueToday.Equal(decimal.RequireFromString("25")) {
		t.Fatalf("unexpected revenue: total=%s today=%s", stats.TotalRevenue, stats.RevenueToday)
	}
	if stats.TotalOpenings != 2 || stats.OpeningsToday != 2 || !stats.OpeningSpend.Equal(decimal.RequireFromString("10")) {
		t.Fatalf("unexpected openings: %+v", stats)
	}
	if stats.OpenTickets != 1 || stats.PendingWithdrawals != 0 {
		t.Fatalf("unexpected queue counts: %+v", stats)
	}
}

func TestTicketLifecycleAgainstPostgres(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	player := env.createUser(t, "0", model.UserRoleUser)
	moderator := env.createUser(t, "0", model.UserRoleModerator)

	ticket, err := env.tickets.CreateTicket(ctx, player, CreateTicketInput{
		Subject:  "Charged twice",
		Category: model.TicketCategoryPayment,
		Priority: model.TicketPriorityUrgent,
		Message:  "Two card charges for one deposit.",
	})
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}

	if _, err := env.tickets.Reply(ctx, moderator, ticket.ID, "Refund issued."); err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if _, err := env.tickets.Close(ctx, player, ticket.ID); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got, err := env.tickets.Get(ctx, moderator, ticket.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != model.TicketStatusClosed || got.Reply == nil || *got.Reply != "Refund issued." {
		t.Fatalf("unexpected final ticket: %+v", got)
	}
	if n := env.countRows(t, `SELECT COUNT(*) FROM audit_logs WHERE resource_id = $1`, ticket.ID.String()); n != 2 {
		t.Fatalf("expected reply and close audit entries, got %d", n)
	}
}
