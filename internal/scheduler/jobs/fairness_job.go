package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"lootbox-hub/internal/model"
)

type auditWriter interface {
	Create(ctx context.Context, log *model.AuditLog) error
}

// FairnessJob reminds operators to rotate the draw secret. It never rotates
// the secret itself.
type FairnessJob struct {
	audit  auditWriter
	logger *zap.Logger
	now    func() time.Time
}

func NewFairnessJob(audit auditWriter, logger *zap.Logger) *FairnessJob {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FairnessJob{audit: audit, logger: logger, now: time.Now}
}

func (j *FairnessJob) RemindRotation() {
	if j == nil {
		return
	}

	now := j.now().UTC()
	j.logger.Warn("fairness secret rotation due; rotate during a maintenance window and keep the old secret for verification")

	if j.audit == nil {
		return
	}

	ctx, cancel := jobContext(10 * time.Second)
	defer cancel()

	resource := "fairness_secret"
	if err := j.audit.Create(ctx, &model.AuditLog{
		Action:       model.AuditActionFairnessRotation,
		ResourceType: &resource,
		NewValue: map[string]interface{}{
			"week": now.Format("2006-01-02"),
		},
		CreatedAt: now,
	}); err != nil {
		j.logger.Warn("write rotation reminder audit failed", zap.Error(err))
	}
}
