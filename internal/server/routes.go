package server

import (
	"net/http"

	"storefront/internal/handler"
	"storefront/internal/middleware"
	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo, sessions *usecase.SessionUsecase, checkout *usecase.CheckoutUsecase) {
	e.GET("/healthz", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})

	requireSession := middleware.RequireSession(sessions)

	handler.NewSessionHandler(sessions).RegisterRoutes(e, requireSession)
	handler.NewCartHandler().RegisterRoutes(e, requireSession)
	handler.NewCheckoutHandler(checkout).RegisterRoutes(e, requireSession)
}
