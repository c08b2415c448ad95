package repository

import (
	"errors"
	"fmt"
	"net/http"
)

var ErrNotFound = errors.New("not found")

// 一意制約違反（同じ注文のチェックアウトが既にある等）
var ErrConflict = errors.New("conflict")

// ErrBackendUnavailable はストアAPIに繋がらない（ブレーカーが開いている等）。
var ErrBackendUnavailable = errors.New("remote: backend unavailable")

// BackendError はストアAPIが2xx以外を返したとき。
type BackendError struct {
	Status  int
	Message string
}

func (e *BackendError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote: status %d: %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("remote: status %d: %s", e.Status, e.Message)
}

// Unauthorized はトークンがバックエンドに拒否されたか。
func (e *BackendError) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
}

func AsBackendError(err error) (*BackendError, bool) {
	var be *BackendError
	ok := errors.As(err, &be)
	return be, ok
}
