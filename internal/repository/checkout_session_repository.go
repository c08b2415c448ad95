package repository

import (
	"context"

	"storefront/internal/domain/model"
)

// チェックアウト状態の保存・取得の約束。
type CheckoutSessionRepository interface {
	//同じorder_idが既にあればErrConflict
	Create(ctx context.Context, s model.CheckoutSession) (model.CheckoutSession, error)

	FindByOrderID(ctx context.Context, orderID model.OrderID) (model.CheckoutSession, error)

	Update(ctx context.Context, s model.CheckoutSession) error
}
