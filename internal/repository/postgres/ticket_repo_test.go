package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"lootbox-hub/internal/model"
	"lootbox-hub/internal/repository"
)

func TestTicketRepository_ReplyThenCloseLifecycle(t *testing.T) {
	pool := testPool(t)
	users := NewUserRepository(pool)
	repo := NewTicketRepository(pool)
	ctx := context.Background()

	owner := &model.User{Username: "ticket_owner"}
	admin := &model.User{Username: "ticket_admin", Role: model.UserRoleAdmin}
	createUsers(t, users, owner, admin)

	ticket := &model.Ticket{
		UserID:   owner.ID,
		Subject:  "Code did not arrive",
		Category: model.TicketCategoryWithdrawal,
		Priority: model.TicketPriorityHigh,
		Message:  "My withdrawal has been pending for two days.",
	}
	if err := repo.Create(ctx, ticket); err != nil {
		t.Fatalf("Create: %v", err)
	}

	repliedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := repo.Reply(ctx, ticket.ID, "Sent manually.", admin.ID, repliedAt); err != nil {
		t.Fatalf("Reply: %v", err)
	}
	got, err := repo.FindByID(ctx, ticket.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got.Status != model.TicketStatusAnswered || got.Reply == nil || *got.Reply != "Sent manually." {
		t.Fatalf("unexpected ticket after reply: %+v", got)
	}
	if got.RepliedBy == nil || *got.RepliedBy != admin.ID || got.RepliedAt == nil || !got.RepliedAt.Equal(repliedAt) {
		t.Fatalf("reply author not recorded: %+v", got)
	}

	if err := repo.Close(ctx, ticket.ID, repliedAt.Add(time.Hour)); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := repo.Close(ctx, ticket.ID, repliedAt.Add(2*time.Hour)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second close should report ErrNotFound, got %v", err)
	}
	if err := repo.Reply(ctx, ticket.ID, "late", admin.ID, repliedAt.Add(3*time.Hour)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("reply to closed ticket should report ErrNotFound, got %v", err)
	}
}

func TestTicketRepository_ListFiltersAndCounts(t *testing.T) {
	pool := testPool(t)
	users := NewUserRepository(pool)
	repo := NewTicketRepository(pool)
	ctx := context.Background()

	alice := &model.User{Username: "ticket_alice"}
	bob := &model.User{Username: "ticket_bob"}
	createUsers(t, users, alice, bob)

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	seed := []*model.Ticket{
		{UserID: alice.ID, Subject: "first", Category: model.TicketCategoryGeneral, Priority: model.TicketPriorityLow, Message: "first message body", CreatedAt: base},
		{UserID: alice.ID, Subject: "second", Category: model.TicketCategoryPayment, Priority: model.TicketPriorityUrgent, Message: "second message body", CreatedAt: base.Add(time.Minute)},
		{UserID: bob.ID, Subject: "third", Category: model.TicketCategoryOther, Priority: model.TicketPriorityUrgent, Message: "third message body", CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, ticket := range seed {
		if err := repo.Create(ctx, ticket); err != nil {
			t.Fatalf("Create %s: %v", ticket.Subject, err)
		}
	}

	mine, err := repo.List(ctx, repository.TicketListFilter{UserID: &alice.ID})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(mine) != 2 || mine[0].Subject != "second" || mine[1].Subject != "first" {
		t.Fatalf("expected alice's tickets newest first, got %+v", mine)
	}

	urgent := model.TicketPriorityUrgent
	total, err := repo.Count(ctx, repository.TicketListFilter{Priority: &urgent})
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected 2 urgent tickets, got %d", total)
	}

	page, err := repo.List(ctx, repository.TicketListFilter{Priority: &urgent, Pagination: repository.Pagination{Limit: 1, Offset: 1}})
	if err != nil {
		t.Fatalf("List page: %v", err)
	}
	if len(page) != 1 || page[0].Subject != "second" {
		t.Fatalf("unexpected second page: %+v", page)
	}
}
