package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"lootbox-hub/internal/model"
	"lootbox-hub/internal/repository"
)

const (
	auditListDefaultPage = 1
	auditListDefaultSize = 20
	auditListMaxPageSize = 200
)

// AuditFilter is the operator query over audit_logs. Blank strings are
// ignored.
type AuditFilter struct {
	UserID       *string    `json:"user_id,omitempty"`
	ResourceType *string    `json:"resource_type,omitempty"`
	ResourceID   *string    `json:"resource_id,omitempty"`
	Action       *string    `json:"action,omitempty"`
	IPAddress    *string    `json:"ip_address,omitempty"`
	From         *time.Time `json:"from,omitempty"`
	To           *time.Time `json:"to,omitempty"`
}

type AuditService struct {
	auditRepo repository.AuditRepository
}

func NewAuditService(auditRepo repository.AuditRepository) *AuditService {
	return &AuditService{auditRepo: auditRepo}
}

// List is the operator view of settlement, withdrawal and account changes,
// newest first.
func (s *AuditService) List(
	ctx context.Context,
	actor Actor,
	filter AuditFilter,
	page, pageSize int,
) ([]*model.AuditLog, int64, error) {
	if s.auditRepo == nil {
		return nil, 0, errors.New("audit repository is nil")
	}
	if err := actor.requireOperator(); err != nil {
		return nil, 0, err
	}

	query, err := filter.toRepository()
	if err != nil {
		return nil, 0, err
	}
	page, pageSize = normalizePage(page, pageSize, auditListDefaultPage, auditListDefaultSize, auditListMaxPageSize)
	query.Pagination = repository.Pagination{
		Limit:  int32(pageSize), // #nosec G115 -- bounded by auditListMaxPageSize.
		Offset: int32((page - 1) * pageSize),
	}

	items, err := s.auditRepo.List(ctx, query)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.auditRepo.Count(ctx, query)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (f AuditFilter) toRepository() (repository.AuditListFilter, error) {
	out := repository.AuditListFilter{
		Action:       optionalStringPtr(f.Action),
		ResourceType: optionalStringPtr(f.ResourceType),
		ResourceID:   optionalStringPtr(f.ResourceID),
		IPAddress:    optionalStringPtr(f.IPAddress),
		StartTime:    f.From,
		EndTime:      f.To,
	}
	if raw := optionalStringPtr(f.UserID); raw != nil {
		uid, err := uuid.Parse(*raw)
		if err != nil {
			return repository.AuditListFilter{}, invalidInput(ErrInvalidUserID, "user_id must be a uuid")
		}
		out.UserID = &uid
	}
	if out.StartTime != nil && out.EndTime != nil && out.EndTime.Before(*out.StartTime) {
		return repository.AuditListFilter{}, invalidInput(ErrInvalidAuditRange, "to is before from")
	}
	return out, nil
}

func optionalStringPtr(v *string) *string {
	if v == nil {
		return nil
	}
	return optionalString(*v)
}
