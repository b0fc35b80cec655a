package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"lootbox-hub/internal/model"
	"lootbox-hub/internal/repository"
)

const (
	activationCodeImportMax       = 5000
	activationCodeMaxLength       = 255
	activationCodeListDefaultPage = 1
	activationCodeListDefaultSize = 50
	activationCodeListMaxPageSize = 200
)

type ImportResult struct {
	BatchID    uuid.UUID `json:"batch_id"`
	ItemID     uuid.UUID `json:"item_id"`
	Submitted  int       `json:"submitted"`
	Inserted   int64     `json:"inserted"`
	Duplicates int64     `json:"duplicates"`
}

type ActivationCodeListFilter struct {
	ItemID  *uuid.UUID
	BatchID *uuid.UUID
	Status  *model.ActivationCodeStatus
}

// ActivationCodeService manages the supplier code pool that withdrawals
// draw from.
type ActivationCodeService struct {
	codeRepo    repository.ActivationCodeRepository
	catalogRepo repository.CatalogRepository
	reporter    opsReporter
	logger      *zap.Logger
}

func NewActivationCodeService(
	codeRepo repository.ActivationCodeRepository,
	catalogRepo repository.CatalogRepository,
	auditRepo repository.AuditRepository,
	logger *zap.Logger,
) *ActivationCodeService {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ActivationCodeService{
		codeRepo:    codeRepo,
		catalogRepo: catalogRepo,
		reporter:    newOpsReporter(logger, nil, auditRepo),
		logger:      logger,
	}
}

// ImportBatch adds supplier codes for one item under a fresh batch id.
// Blank lines and repeats inside the upload are dropped before insert; codes
// already in the pool are counted as duplicates.
func (s *ActivationCodeService) ImportBatch(
	ctx context.Context,
	actor Actor,
	itemID uuid.UUID,
	codes []string,
) (*ImportResult, error) {
	if s.codeRepo == nil || s.catalogRepo == nil {
		return nil, errors.New("activation code repositories are nil")
	}
	if err := actor.requireAdmin(); err != nil {
		return nil, err
	}

	normalized, err := normalizeImportCodes(codes)
	if err != nil {
		return nil, err
	}

	if _, err := s.catalogRepo.FindItem(ctx, itemID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound(ErrItemNotFound)
		}
		return nil, err
	}

	batchID := uuid.New()
	rows := make([]*model.ActivationCode, 0, len(normalized))
	for _, code := range normalized {
		rows = append(rows, &model.ActivationCode{
			ItemID:    itemID,
			Code:      code,
			BatchID:   batchID,
			Status:    model.ActivationCodeAvailable,
			CreatedBy: actor.UserID,
		})
	}

	inserted, err := s.codeRepo.BatchCreate(ctx, rows)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{
		BatchID:    batchID,
		ItemID:     itemID,
		Submitted:  len(normalized),
		Inserted:   inserted,
		Duplicates: int64(len(normalized)) - inserted,
	}

	operatorID := actor.UserID
	s.reporter.audit(ctx, &model.AuditLog{
		UserID:       &operatorID,
		Action:       model.AuditActionCodeImport,
		ResourceType: strPtr("activation_code"),
		ResourceID:   strPtr(batchID.String()),
		NewValue: map[string]interface{}{
			"item_id":    itemID.String(),
			"submitted":  result.Submitted,
			"inserted":   result.Inserted,
			"duplicates": result.Duplicates,
		},
		CreatedAt: time.Now().UTC(),
	})
	s.logger.Info("activation codes imported",
		zap.String("batch_id", batchID.String()),
		zap.String("item_id", itemID.String()),
		zap.Int64("inserted", inserted),
		zap.Int64("duplicates", result.Duplicates),
	)

	return result, nil
}

func (s *ActivationCodeService) StockByItem(ctx context.Context) ([]model.ActivationCodeStock, error) {
	if s.codeRepo == nil {
		return nil, errors.New("activation code repository is nil")
	}
	return s.codeRepo.StockByItem(ctx)
}

func (s *ActivationCodeService) List(
	ctx context.Context,
	actor Actor,
	page, pageSize int,
	filter ActivationCodeListFilter,
) ([]*model.ActivationCode, error) {
	if s.codeRepo == nil {
		return nil, errors.New("activation code repository is nil")
	}
	if err := actor.requireOperator(); err != nil {
		return nil, err
	}

	page, pageSize = normalizePage(
		page,
		pageSize,
		activationCodeListDefaultPage,
		activationCodeListDefaultSize,
		activationCodeListMaxPageSize,
	)
	return s.codeRepo.List(ctx, repository.ActivationCodeListFilter{
		ItemID:  filter.ItemID,
		BatchID: filter.BatchID,
		Status:  filter.Status,
		Pagination: repository.Pagination{
			Limit:  int32(pageSize),
			Offset: int32((page - 1) * pageSize),
		},
	})
}

func normalizeImportCodes(codes []string) ([]string, error) {
	seen := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))
	for _, raw := range codes {
		code := strings.TrimSpace(raw)
		if code == "" {
			continue
		}
		if len(code) > activationCodeMaxLength {
			return nil, invalidInput(ErrInvalidInput, "code exceeds 255 characters")
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}

	if len(out) == 0 {
		return nil, invalidInput(ErrInvalidInput, "no codes supplied")
	}
	if len(out) > activationCodeImportMax {
		return nil, invalidInput(ErrInvalidInput, "too many codes in one batch")
	}
	return out, nil
}
