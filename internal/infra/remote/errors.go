package remote

import "storefront/internal/repository"

// ErrUnavailable はサーキットブレーカーが開いている間に返る。
var ErrUnavailable = repository.ErrBackendUnavailable

// APIError はバックエンドが2xx以外を返したとき。
type APIError = repository.BackendError

func AsAPIError(err error) (*APIError, bool) {
	return repository.AsBackendError(err)
}

// 4xxはバックエンドの故障ではない（ブレーカーの失敗に数えない）
func isClientError(err error) bool {
	ae, ok := AsAPIError(err)
	return ok && ae.Status >= 400 && ae.Status < 500
}
