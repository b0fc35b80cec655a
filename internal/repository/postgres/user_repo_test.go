package postgres

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"lootbox-hub/internal/model"
	"lootbox-hub/internal/repository"
)

func createUsers(t *testing.T, repo repository.UserRepository, users ...*model.User) {
	t.Helper()
	for _, u := range users {
		if err := repo.Create(context.Background(), u); err != nil {
			t.Fatalf("create %s: %v", u.Username, err)
		}
	}
}

func TestUserRepository_CreateAndFindKeepsMoneyExact(t *testing.T) {
	repo := NewUserRepository(testPool(t))
	ctx := context.Background()

	user := &model.User{
		Username:       "exact_money",
		Balance:        decimal.RequireFromString("5.10"),
		TotalDeposited: decimal.RequireFromString("100.05"),
		Level:          3,
	}
	createUsers(t, repo, user)

	got, err := repo.FindByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if !got.Balance.Equal(decimal.RequireFromString("5.1")) || !got.TotalDeposited.Equal(decimal.RequireFromString("100.05")) {
		t.Fatalf("money drifted: balance=%s deposited=%s", got.Balance, got.TotalDeposited)
	}
	if got.Role != model.UserRoleUser || got.Status != model.UserStatusActive || got.Level != 3 {
		t.Fatalf("unexpected defaults role=%s status=%s level=%d", got.Role, got.Status, got.Level)
	}

	if _, err := repo.FindByUsername(ctx, "  exact_money "); err != nil {
		t.Fatalf("FindByUsername should trim: %v", err)
	}
	missing, err := repo.FindByUsername(ctx, "missing-user")
	if !errors.Is(err, ErrNotFound) || missing != nil {
		t.Fatalf("expected ErrNotFound and nil user, got %+v, %v", missing, err)
	}
}

// The balance floor is enforced by the conditional debit and, as a
// backstop, by CHECK (balance >= 0).
func TestUserRepository_ConcurrentDebitsStopAtZero(t *testing.T) {
	pool := testPool(t)
	repo := NewUserRepository(pool)
	ctx := context.Background()

	user := &model.User{Username: "floor_user", Balance: decimal.NewFromInt(1)}
	createUsers(t, repo, user)

	var wg sync.WaitGroup
	var debited atomic.Int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tag, err := pool.Exec(ctx, `UPDATE users SET balance = balance - 0.25 WHERE id = $1 AND balance >= 0.25`, user.ID)
			if err != nil {
				t.Errorf("conditional debit: %v", err)
				return
			}
			debited.Add(int32(tag.RowsAffected()))
		}()
	}
	wg.Wait()

	if got := debited.Load(); got != 4 {
		t.Fatalf("expected exactly 4 debits to pass, got %d", got)
	}
	got, err := repo.FindByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if !got.Balance.IsZero() {
		t.Fatalf("expected zero balance, got %s", got.Balance)
	}
	if _, err := pool.Exec(ctx, `UPDATE users SET balance = -1 WHERE id = $1`, user.ID); err == nil {
		t.Fatal("expected CHECK (balance >= 0) to reject a negative balance")
	}
}

func TestUserRepository_TelegramLink(t *testing.T) {
	repo := NewUserRepository(testPool(t))
	ctx := context.Background()

	user := &model.User{Username: "tg_user"}
	createUsers(t, repo, user)

	chatID := int64(987654321)
	if err := repo.UpdateTelegramChat(ctx, user.ID, &chatID); err != nil {
		t.Fatalf("link chat: %v", err)
	}
	linked, err := repo.FindByTelegramChatID(ctx, chatID)
	if err != nil || linked.ID != user.ID {
		t.Fatalf("expected chat to resolve to the user, got %+v, %v", linked, err)
	}

	if err := repo.UpdateTelegramChat(ctx, user.ID, nil); err != nil {
		t.Fatalf("unlink chat: %v", err)
	}
	if _, err := repo.FindByTelegramChatID(ctx, chatID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected unlinked chat to be gone, got %v", err)
	}
	if err := repo.UpdateTelegramChat(ctx, uuid.New(), &chatID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown user, got %v", err)
	}
}

func TestUserRepository_ListFilters(t *testing.T) {
	repo := NewUserRepository(testPool(t))
	ctx := context.Background()

	email := "ops@lootbox.test"
	alice := &model.User{Username: "alice"}
	bob := &model.User{Username: "bob", Role: model.UserRoleModerator, Email: &email}
	carol := &model.User{Username: "carol"}
	createUsers(t, repo, alice, bob, carol)

	if err := repo.UpdateStatus(ctx, carol.ID, model.UserStatusSuspended); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if err := repo.UpdateStatus(ctx, uuid.New(), model.UserStatusSuspended); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown user, got %v", err)
	}

	suspended := model.UserStatusSuspended
	moderator := model.UserRoleModerator
	keyword := "OPS@"
	cases := []struct {
		name   string
		filter repository.UserListFilter
		want   []uuid.UUID
	}{
		{name: "status", filter: repository.UserListFilter{Status: &suspended}, want: []uuid.UUID{carol.ID}},
		{name: "role", filter: repository.UserListFilter{Role: &moderator}, want: []uuid.UUID{bob.ID}},
		{name: "keyword matches email case-insensitively", filter: repository.UserListFilter{Keyword: &keyword}, want: []uuid.UUID{bob.ID}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			users, err := repo.List(ctx, tc.filter)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(users) != len(tc.want) || users[0].ID != tc.want[0] {
				t.Fatalf("expected %v, got %+v", tc.want, users)
			}
			total, err := repo.Count(ctx, tc.filter)
			if err != nil || total != int64(len(tc.want)) {
				t.Fatalf("Count = %d, %v", total, err)
			}
		})
	}

	page := repository.UserListFilter{Pagination: repository.Pagination{Limit: 2, Offset: 2}}
	users, err := repo.List(ctx, page)
	if err != nil {
		t.Fatalf("List page: %v", err)
	}
	total, err := repo.Count(ctx, page)
	if err != nil {
		t.Fatalf("Count page: %v", err)
	}
	if len(users) != 1 || total != 3 {
		t.Fatalf("expected the last of 3 users on page two, got %d of %d", len(users), total)
	}
}
