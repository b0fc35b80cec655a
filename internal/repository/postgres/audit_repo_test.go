package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"lootbox-hub/internal/model"
	"lootbox-hub/internal/repository"
)

func TestAuditRepository_FiltersAndCounts(t *testing.T) {
	repo := NewAuditRepository(testPool(t))
	ctx := context.Background()

	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	userID := uuid.New()
	withdrawal := "withdrawal"
	ip := "198.51.100.7"
	entries := []*model.AuditLog{
		{UserID: &userID, Action: model.AuditActionLootboxOpen, CreatedAt: base, NewValue: map[string]interface{}{"item": "ak"}},
		{UserID: &userID, Action: model.AuditActionWithdrawalRequest, ResourceType: &withdrawal, IPAddress: &ip, CreatedAt: base.Add(time.Hour)},
		{Action: model.AuditActionFairnessRotation, CreatedAt: base.Add(2 * time.Hour)},
	}
	for _, entry := range entries {
		if err := repo.Create(ctx, entry); err != nil {
			t.Fatalf("create %s: %v", entry.Action, err)
		}
		if entry.ID == 0 {
			t.Fatalf("expected id assigned for %s", entry.Action)
		}
	}

	from := base.Add(30 * time.Minute)
	cases := []struct {
		name    string
		filter  repository.AuditListFilter
		actions []string
	}{
		{name: "all newest first", actions: []string{model.AuditActionFairnessRotation, model.AuditActionWithdrawalRequest, model.AuditActionLootboxOpen}},
		{name: "by user", filter: repository.AuditListFilter{UserID: &userID}, actions: []string{model.AuditActionWithdrawalRequest, model.AuditActionLootboxOpen}},
		{name: "by resource and ip", filter: repository.AuditListFilter{ResourceType: &withdrawal, IPAddress: &ip}, actions: []string{model.AuditActionWithdrawalRequest}},
		{name: "by time", filter: repository.AuditListFilter{StartTime: &from}, actions: []string{model.AuditActionFairnessRotation, model.AuditActionWithdrawalRequest}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			logs, err := repo.List(ctx, tc.filter)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(logs) != len(tc.actions) {
				t.Fatalf("expected %d entries, got %d", len(tc.actions), len(logs))
			}
			for i, action := range tc.actions {
				if logs[i].Action != action {
					t.Fatalf("entry %d: expected %s, got %s", i, action, logs[i].Action)
				}
			}

			tc.filter.Pagination = repository.Pagination{Limit: 1}
			total, err := repo.Count(ctx, tc.filter)
			if err != nil || total != int64(len(tc.actions)) {
				t.Fatalf("Count ignores paging: got %d, %v", total, err)
			}
		})
	}

	logs, err := repo.List(ctx, repository.AuditListFilter{UserID: &userID, Pagination: repository.Pagination{Limit: 1, Offset: 1}})
	if err != nil || len(logs) != 1 || logs[0].NewValue["item"] != "ak" {
		t.Fatalf("expected the open entry with its payload on page two, got %+v, %v", logs, err)
	}
}
