package handler

import (
	"errors"
	"net/http"
	"strconv"

	"storefront/internal/domain/model"
	"storefront/internal/domain/pricing"
	"storefront/internal/middleware"
	"storefront/internal/usecase"
	"storefront/internal/validator"

	"github.com/labstack/echo/v4"
)

// /cartのHTTP。状態はセッションごとのCartStoreが持つ。
type CartHandler struct{}

// DI
func NewCartHandler() *CartHandler {
	return &CartHandler{}
}

type AddCartRequest struct {
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	ImageURL    string `json:"image_url"`
	UnitPrice   int64  `json:"unit_price"`
}

type UpdateCartItemRequest struct {
	Delta int64 `json:"delta"`
}

type CartResponse struct {
	Lines         []model.CartLine `json:"lines"`
	Subtotal      int64            `json:"subtotal"`
	SubtotalLabel string           `json:"subtotal_label"`
	LastError     string           `json:"last_error,omitempty"`
}

// /cart, /cart/items/{product_id} を登録
func (h *CartHandler) RegisterRoutes(e *echo.Echo, requireSession echo.MiddlewareFunc) {
	g := e.Group("/cart", requireSession)

	g.GET("", h.getCart)
	g.POST("/items", h.addItem)
	g.PATCH("/items/:product_id", h.patchItem)
	g.DELETE("/items/:product_id", h.deleteItem)
	g.POST("/refresh", h.refresh)
}

func (h *CartHandler) getCart(c echo.Context) error {
	store, ok := middleware.CartStoreFrom(c)
	if !ok {
		return unauthorized(c)
	}
	return c.JSON(http.StatusOK, cartResponse(store))
}

func (h *CartHandler) addItem(c echo.Context) error {
	store, ok := middleware.CartStoreFrom(c)
	if !ok {
		return unauthorized(c)
	}

	var req AddCartRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	if err := validator.ValidateAddItem(req.ProductID, req.UnitPrice); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid product"})
	}

	err := store.AddToCart(c.Request().Context(), model.CartLine{
		ProductID:   req.ProductID,
		ProductName: req.ProductName,
		ImageURL:    req.ImageURL,
		UnitPrice:   req.UnitPrice,
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, cartResponse(store))
}

func (h *CartHandler) patchItem(c echo.Context) error {
	store, ok := middleware.CartStoreFrom(c)
	if !ok {
		return unauthorized(c)
	}

	productID, err := strconv.ParseInt(c.Param("product_id"), 10, 64)
	if err != nil || productID <= 0 {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid product_id"})
	}

	var req UpdateCartItemRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	if err := validator.ValidateDelta(req.Delta); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid delta"})
	}

	if err := store.UpdateQuantity(c.Request().Context(), productID, req.Delta); err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, cartResponse(store))
}

func (h *CartHandler) deleteItem(c echo.Context) error {
	store, ok := middleware.CartStoreFrom(c)
	if !ok {
		return unauthorized(c)
	}

	productID, err := strconv.ParseInt(c.Param("product_id"), 10, 64)
	if err != nil || productID <= 0 {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid product_id"})
	}

	if err := store.RemoveFromCart(c.Request().Context(), productID); err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, cartResponse(store))
}

// サーバーから取り直す（失敗時は今の状態を返さずエラー）
func (h *CartHandler) refresh(c echo.Context) error {
	store, ok := middleware.CartStoreFrom(c)
	if !ok {
		return unauthorized(c)
	}

	err := store.Refresh(c.Request().Context())
	//途中で変更が入った場合は今の状態を返す
	if err != nil && !errors.Is(err, usecase.ErrSuperseded) {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, cartResponse(store))
}

func cartResponse(store *usecase.CartStore) CartResponse {
	subtotal := store.Subtotal()
	out := CartResponse{
		Lines:         store.Lines(),
		Subtotal:      subtotal,
		SubtotalLabel: pricing.FormatRupiah(subtotal),
	}
	if err := store.LastError(); err != nil {
		out.LastError = usecase.ToHTTPError(err).Message
	}
	return out
}
