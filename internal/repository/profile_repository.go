package repository

import (
	"context"

	"storefront/internal/domain/model"
	"storefront/internal/session"
)

type ProfileRepository interface {
	//ログインユーザーの配送先一覧
	ListAddresses(ctx context.Context, cred session.Credential) ([]model.Address, error)
}
