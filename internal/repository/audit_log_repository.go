package repository

import (
	"context"
	"time"

	"storefront/internal/domain/model"
)

//操作ログの絞り込み条件。
type AuditLogFilter struct {
	OwnerKey     *string
	Action       *model.AuditAction
	ResourceType *model.AuditResourceType
	ResourceID   *string
	Outcome      *model.AuditOutcome
	CreatedFrom  *time.Time
	CreatedTo    *time.Time
	Limit        int
	Offset       int
}

// 操作ログの保存・一覧取得の約束。
type AuditLogRepository interface {
	Create(ctx context.Context, log model.AuditLog) error

	//新しい順
	List(ctx context.Context, filter AuditLogFilter) ([]model.AuditLog, error)
}
