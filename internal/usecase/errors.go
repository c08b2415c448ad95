package usecase

import (
	"errors"
	"fmt"
	"net/http"

	"storefront/internal/repository"
	"storefront/internal/session"
)

var (
	//400 入力不足
	ErrValidation = errors.New("validation error")
	//401 認証失敗
	ErrUnauthorized = errors.New("unauthorized")
	//404
	ErrNotFound = errors.New("not found")
	//404 チェックアウトが無い、または他人の注文
	ErrOrderNotFound = errors.New("order not found")

	//400 空のカートはチェックアウトできない
	ErrCartEmpty = errors.New("cart empty")
	//400 数量は1未満にできない（リクエストは送らない）
	ErrQuantityFloor = errors.New("quantity cannot be less than 1")
	//404 カートにない商品
	ErrLineNotFound = errors.New("item not found in the cart")

	//409 同じ商品に新しいリクエストが出たので結果を捨てた
	ErrSuperseded = errors.New("superseded by a newer request")
	//409 状態遷移の順番違い
	ErrInvalidTransition = errors.New("invalid checkout transition")
	//400 請求番号が取れない注文
	ErrNoInvoice = errors.New("order has no invoice number")

	//ログアウト後のストア
	ErrStoreClosed = errors.New("cart store closed")
)

type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

func NewHTTPError(status int, message string) error {
	return &HTTPError{
		Status:  status,
		Message: message,
	}
}

func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	ok := errors.As(err, &he)
	return he, ok
}

// ToHTTPError はusecaseのエラーをHTTPステータスに変換する。
func ToHTTPError(err error) *HTTPError {
	if he, ok := AsHTTPError(err); ok {
		return he
	}

	switch {
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrCartEmpty),
		errors.Is(err, ErrQuantityFloor),
		errors.Is(err, ErrNoInvoice):
		return &HTTPError{Status: http.StatusBadRequest, Message: err.Error()}
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrStoreClosed),
		errors.Is(err, session.ErrMissingToken),
		errors.Is(err, session.ErrInvalidToken),
		errors.Is(err, session.ErrExpiredToken):
		return &HTTPError{Status: http.StatusUnauthorized, Message: "unauthorized"}
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrOrderNotFound),
		errors.Is(err, ErrLineNotFound),
		errors.Is(err, repository.ErrNotFound):
		return &HTTPError{Status: http.StatusNotFound, Message: "not found"}
	case errors.Is(err, ErrSuperseded),
		errors.Is(err, ErrInvalidTransition):
		return &HTTPError{Status: http.StatusConflict, Message: err.Error()}
	case errors.Is(err, repository.ErrBackendUnavailable):
		return &HTTPError{Status: http.StatusServiceUnavailable, Message: "backend unavailable"}
	}

	if ae, ok := repository.AsBackendError(err); ok {
		//バックエンドの401はそのまま返す（トークン切れ等）
		if ae.Status == http.StatusUnauthorized {
			return &HTTPError{Status: http.StatusUnauthorized, Message: "unauthorized"}
		}
		return &HTTPError{Status: http.StatusBadGateway, Message: ae.Message}
	}

	//500
	return &HTTPError{Status: http.StatusInternalServerError, Message: "internal error"}
}
