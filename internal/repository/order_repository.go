package repository

import (
	"context"

	"storefront/internal/domain/model"
	"storefront/internal/session"
)

// リモートの注文・決済サービスの窓口。
type OrderRepository interface {
	//カートから注文を作る（サーバー側でカートは空になる）
	CreateFromCart(ctx context.Context, cred session.Credential) (model.OrderID, error)

	ListItems(ctx context.Context, cred session.Credential, orderID model.OrderID) ([]model.OrderItem, error)

	//請求番号に対してバウチャーを適用
	ApplyVoucher(ctx context.Context, cred session.Credential, invoiceNumber string, code string) error

	InitiatePayment(ctx context.Context, cred session.Credential, orderID model.OrderID) error
}
