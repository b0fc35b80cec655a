package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"lootbox-hub/internal/model"
	"lootbox-hub/internal/repository"
)

type chatLinkRepo struct {
	repository.UserRepository
	users map[uuid.UUID]*model.User
}

func (r *chatLinkRepo) FindByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	user, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return user, nil
}

func (r *chatLinkRepo) FindByTelegramChatID(_ context.Context, chatID int64) (*model.User, error) {
	for _, user := range r.users {
		if user.TelegramChatID != nil && *user.TelegramChatID == chatID {
			return user, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *chatLinkRepo) UpdateTelegramChat(_ context.Context, id uuid.UUID, chatID *int64) error {
	user, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.TelegramChatID = chatID
	return nil
}

func (r *chatLinkRepo) UpdateStatus(_ context.Context, id uuid.UUID, status model.UserStatus) error {
	user, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.Status = status
	return nil
}

func newChatLinkFixture(t *testing.T) (*UserService, *chatLinkRepo, Actor, Actor) {
	t.Helper()

	alice := &model.User{ID: uuid.New(), Username: "alice", Status: model.UserStatusActive}
	bob := &model.User{ID: uuid.New(), Username: "bob", Status: model.UserStatusActive}
	repo := &chatLinkRepo{users: map[uuid.UUID]*model.User{alice.ID: alice, bob.ID: bob}}

	aliceActor, err := NewActor(alice.ID.String(), "user")
	if err != nil {
		t.Fatalf("alice actor: %v", err)
	}
	bobActor, err := NewActor(bob.ID.String(), "user")
	if err != nil {
		t.Fatalf("bob actor: %v", err)
	}
	return NewUserService(repo, nil, nil, nil), repo, aliceActor, bobActor
}

func TestBindTelegramByCode_LinksOnceAndConsumesCode(t *testing.T) {
	t.Parallel()

	svc, repo, alice, bob := newChatLinkFixture(t)
	ctx := context.Background()

	code, err := svc.IssueTelegramBindCode(4242)
	if err != nil {
		t.Fatalf("issue code: %v", err)
	}
	if len(code) != 8 {
		t.Fatalf("expected 8 character code, got %q", code)
	}

	if err := svc.BindTelegramByCode(ctx, alice, " "+code+" "); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if got := repo.users[alice.UserID].TelegramChatID; got == nil || *got != 4242 {
		t.Fatalf("expected chat 4242 linked, got %v", got)
	}

	if err := svc.BindTelegramByCode(ctx, bob, code); !errors.Is(err, ErrInvalidBindCode) {
		t.Fatalf("expected consumed code to be rejected, got %v", err)
	}

	second, err := svc.IssueTelegramBindCode(4242)
	if err != nil {
		t.Fatalf("issue second code: %v", err)
	}
	err = svc.BindTelegramByCode(ctx, bob, second)
	if !errors.Is(err, ErrTelegramChatInUse) || KindOf(err) != KindInvalidState {
		t.Fatalf("expected chat in use, got %v", err)
	}
}

func TestBindTelegramByCode_ExpiredCode(t *testing.T) {
	t.Parallel()

	svc, _, alice, _ := newChatLinkFixture(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	code, err := svc.IssueTelegramBindCode(7)
	if err != nil {
		t.Fatalf("issue code: %v", err)
	}

	now = now.Add(telegramBindCodeTTL)
	if err := svc.BindTelegramByCode(context.Background(), alice, code); KindOf(err) != KindNotFound {
		t.Fatalf("expected expired code to be not found, got %v", err)
	}
}

func TestSetStatus_RequiresAdminAndBlocksSelfSuspend(t *testing.T) {
	t.Parallel()

	svc, repo, alice, bob := newChatLinkFixture(t)
	ctx := context.Background()

	if err := svc.SetStatus(ctx, alice, bob.UserID, model.UserStatusSuspended); KindOf(err) != KindForbidden {
		t.Fatalf("expected forbidden for plain user, got %v", err)
	}

	admin, err := NewActor(alice.UserID.String(), "admin")
	if err != nil {
		t.Fatalf("admin actor: %v", err)
	}
	if err := svc.SetStatus(ctx, admin, alice.UserID, model.UserStatusSuspended); !errors.Is(err, ErrSelfSuspendForbidden) {
		t.Fatalf("expected self suspend rejection, got %v", err)
	}
	if err := svc.SetStatus(ctx, admin, bob.UserID, model.UserStatus("banned")); KindOf(err) != KindInvalidInput {
		t.Fatalf("expected invalid status, got %v", err)
	}
	if err := svc.SetStatus(ctx, admin, bob.UserID, model.UserStatusSuspended); err != nil {
		t.Fatalf("suspend bob: %v", err)
	}
	if repo.users[bob.UserID].Status != model.UserStatusSuspended {
		t.Fatalf("expected bob suspended, got %s", repo.users[bob.UserID].Status)
	}
}
