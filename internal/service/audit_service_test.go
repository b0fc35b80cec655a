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

type recordingAuditRepo struct {
	lastFilter repository.AuditListFilter
	created    []*model.AuditLog
}

func (r *recordingAuditRepo) Create(_ context.Context, log *model.AuditLog) error {
	r.created = append(r.created, log)
	return nil
}

func (r *recordingAuditRepo) List(_ context.Context, filter repository.AuditListFilter) ([]*model.AuditLog, error) {
	r.lastFilter = filter
	return []*model.AuditLog{{Action: model.AuditActionUserStatus}}, nil
}

func (r *recordingAuditRepo) Count(_ context.Context, _ repository.AuditListFilter) (int64, error) {
	return 41, nil
}

func TestAuditServiceList(t *testing.T) {
	repo := &recordingAuditRepo{}
	svc := NewAuditService(repo)
	operator := mustActor(t, "moderator")

	userID := uuid.New()
	raw := " " + userID.String() + " "
	blank := "   "
	action := "withdrawal.manual_process"
	items, total, err := svc.List(context.Background(), operator, AuditFilter{
		UserID:       &raw,
		ResourceType: &blank,
		Action:       &action,
	}, 3, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 1 || total != 41 {
		t.Fatalf("unexpected result: %d items, total %d", len(items), total)
	}
	got := repo.lastFilter
	if got.UserID == nil || *got.UserID != userID {
		t.Fatalf("user id not forwarded: %+v", got.UserID)
	}
	if got.ResourceType != nil {
		t.Fatal("blank filters must be dropped")
	}
	if got.Pagination.Limit != 10 || got.Pagination.Offset != 20 {
		t.Fatalf("unexpected pagination: %+v", got.Pagination)
	}

	if _, _, err := svc.List(context.Background(), mustActor(t, "user"), AuditFilter{}, 1, 10); KindOf(err) != KindForbidden {
		t.Fatalf("plain users must be forbidden, got %v", err)
	}

	bad := "nope"
	if _, _, err := svc.List(context.Background(), operator, AuditFilter{UserID: &bad}, 1, 10); !errors.Is(err, ErrInvalidUserID) {
		t.Fatalf("expected ErrInvalidUserID, got %v", err)
	}

	from := time.Now()
	to := from.Add(-time.Hour)
	if _, _, err := svc.List(context.Background(), operator, AuditFilter{From: &from, To: &to}, 1, 10); !errors.Is(err, ErrInvalidAuditRange) {
		t.Fatalf("expected ErrInvalidAuditRange, got %v", err)
	}
}

func mustActor(t *testing.T, role string) Actor {
	t.Helper()
	actor, err := NewActor(uuid.NewString(), role)
	if err != nil {
		t.Fatalf("actor: %v", err)
	}
	return actor
}
