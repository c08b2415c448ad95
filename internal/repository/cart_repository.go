package repository

import (
	"context"

	"storefront/internal/domain/model"
	"storefront/internal/session"
)

// リモートのカートサービスの窓口。
// サーバー側が正で、ここはその写し。
type CartRepository interface {
	//現在の明細を取得
	List(ctx context.Context, cred session.Credential) ([]model.CartLine, error)

	//1個追加（product_idだけ送る）
	Add(ctx context.Context, cred session.Credential, productID int64) error

	//数量を絶対値で設定（0で削除）
	SetQuantity(ctx context.Context, cred session.Credential, productID int64, quantity int64) error
}
