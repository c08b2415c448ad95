package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"storefront/internal/middleware"
	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

type Server struct {
	e      *echo.Echo
	addr   string
	logger *zap.Logger
}

// New はechoを組み立ててルートを登録する。
func New(addr string, logger *zap.Logger, sessions *usecase.SessionUsecase, checkout *usecase.CheckoutUsecase) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(logger))

	RegisterRoutes(e, sessions, checkout)

	return &Server{e: e, addr: addr, logger: logger}
}

func (s *Server) Handler() http.Handler {
	return s.e
}

// Start はShutdownされるまでブロックする。
func (s *Server) Start() error {
	s.logger.Info("server starting", zap.String("addr", s.addr))
	if err := s.e.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.e.Shutdown(ctx)
}
