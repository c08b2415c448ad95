package handler

import (
	"net/http"
	"strconv"

	"storefront/internal/middleware"
	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
)

// /sessionのHTTP
type SessionHandler struct {
	uc *usecase.SessionUsecase
}

// DI
func NewSessionHandler(uc *usecase.SessionUsecase) *SessionHandler {
	return &SessionHandler{uc: uc}
}

// POST /session はBearer、それ以外はX-Session-ID
func (h *SessionHandler) RegisterRoutes(e *echo.Echo, requireSession echo.MiddlewareFunc) {
	e.POST("/session", h.login)

	g := e.Group("/session", requireSession)
	g.DELETE("", h.logout)
	g.GET("/history", h.history)
}

func (h *SessionHandler) login(c echo.Context) error {
	token, err := middleware.BearerToken(c)
	if err != nil {
		return unauthorized(c)
	}

	out, err := h.uc.Login(c.Request().Context(), token)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusCreated, out)
}

func (h *SessionHandler) logout(c echo.Context) error {
	sessionID := middleware.SessionIDFrom(c)
	if sessionID == "" {
		return unauthorized(c)
	}

	if err := h.uc.Logout(c.Request().Context(), sessionID); err != nil {
		return writeError(c, err)
	}

	return c.NoContent(http.StatusNoContent)
}

// 自分の操作ログ（limit/offset）
func (h *SessionHandler) history(c echo.Context) error {
	cred, ok := middleware.CredentialFrom(c)
	if !ok {
		return unauthorized(c)
	}

	limit, err := queryInt(c, "limit")
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
	}
	offset, err := queryInt(c, "offset")
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid offset"})
	}

	logs, err := h.uc.History(c.Request().Context(), cred, limit, offset)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, logs)
}

func queryInt(c echo.Context, name string) (int, error) {
	v := c.QueryParam(name)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
