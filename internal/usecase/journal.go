package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/repository"
	"storefront/internal/session"

	"go.uber.org/zap"
)

// journal は操作ログを残す。書けなくても本処理は止めない。
type journal struct {
	repo   repository.AuditLogRepository
	logger *zap.Logger
	clock  Clock
}

type journalEntry struct {
	action       model.AuditAction
	resourceType model.AuditResourceType
	resourceID   string
	before       any
	after        any
	err          error
}

func (j journal) record(ctx context.Context, cred session.Credential, e journalEntry) {
	if j.repo == nil {
		return
	}

	outcome := model.AuditOutcomeOK
	var errText string
	switch {
	case errors.Is(e.err, ErrSuperseded):
		outcome = model.AuditOutcomeSuperseded
	case e.err != nil:
		outcome = model.AuditOutcomeFailed
		errText = e.err.Error()
	}

	log := model.AuditLog{
		OwnerKey:     cred.OwnerKey(),
		Action:       e.action,
		ResourceType: e.resourceType,
		ResourceID:   e.resourceID,
		BeforeJSON:   toJSON(e.before),
		AfterJSON:    toJSON(e.after),
		Outcome:      outcome,
		Error:        errText,
		CreatedAt:    j.now(),
	}

	//リクエストがキャンセルされてもログは残す
	if err := j.repo.Create(context.WithoutCancel(ctx), log); err != nil {
		j.logger.Warn("audit log write failed",
			zap.String("action", string(e.action)),
			zap.String("resource_id", e.resourceID),
			zap.Error(err),
		)
	}
}

func (j journal) now() time.Time {
	if j.clock == nil {
		return time.Now()
	}
	return j.clock.Now()
}

func toJSON(v any) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil || string(b) == "null" {
		return ""
	}
	return string(b)
}
