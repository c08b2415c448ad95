package middleware

import (
	"context"
	"net/http"
	"strings"

	"storefront/internal/session"
	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
)

const (
	CtxSessionIDKey  = "session_id" // string
	CtxCartStoreKey  = "cart_store" // *usecase.CartStore
	CtxCredentialKey = "credential" // session.Credential
	CtxRequestIDKey  = "request_id" // string
)

// UIが持つセッションID
const SessionHeader = "X-Session-ID"

type SessionResolver interface {
	Resolve(ctx context.Context, sessionID string) (*usecase.CartStore, error)
}

// RequireSession はX-Session-IDからCartStoreを取り出してcontextに入れる。
func RequireSession(resolver SessionResolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sessionID := strings.TrimSpace(c.Request().Header.Get(SessionHeader))
			if sessionID == "" {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}

			store, err := resolver.Resolve(c.Request().Context(), sessionID)
			if err != nil {
				he := usecase.ToHTTPError(err)
				return c.JSON(he.Status, errorJSON(he.Message))
			}

			//contextへ保存
			c.Set(CtxSessionIDKey, sessionID)
			c.Set(CtxCartStoreKey, store)
			c.Set(CtxCredentialKey, store.Credential())

			return next(c)
		}
	}
}

// BearerToken はAuthorizationヘッダからトークンを抜く。
func BearerToken(c echo.Context) (string, error) {
	authz := c.Request().Header.Get("Authorization")
	if authz == "" {
		return "", session.ErrMissingToken
	}

	//Bearer形式か確認
	parts := strings.SplitN(authz, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", session.ErrInvalidToken
	}
	raw := strings.TrimSpace(parts[1])
	if raw == "" {
		return "", session.ErrMissingToken
	}
	return raw, nil
}

func CartStoreFrom(c echo.Context) (*usecase.CartStore, bool) {
	s, ok := c.Get(CtxCartStoreKey).(*usecase.CartStore)
	return s, ok && s != nil
}

func CredentialFrom(c echo.Context) (session.Credential, bool) {
	cred, ok := c.Get(CtxCredentialKey).(session.Credential)
	return cred, ok && !cred.IsZero()
}

func SessionIDFrom(c echo.Context) string {
	id, _ := c.Get(CtxSessionIDKey).(string)
	return id
}

type errorResponse struct {
	Error string `json:"error"`
}

func errorJSON(msg string) errorResponse {
	return errorResponse{Error: msg}
}
