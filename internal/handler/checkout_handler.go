package handler

import (
	"net/http"
	"strings"

	"storefront/internal/domain/model"
	"storefront/internal/domain/pricing"
	"storefront/internal/middleware"
	"storefront/internal/session"
	"storefront/internal/usecase"
	"storefront/internal/validator"

	"github.com/labstack/echo/v4"
)

// /checkout, /reviewのHTTP
type CheckoutHandler struct {
	uc *usecase.CheckoutUsecase
}

// DI
func NewCheckoutHandler(uc *usecase.CheckoutUsecase) *CheckoutHandler {
	return &CheckoutHandler{uc: uc}
}

type SelectAddressRequest struct {
	AddressID int64 `json:"address_id"`
}

type SetInsuranceRequest struct {
	Enabled *bool `json:"enabled"`
}

type ApplyVoucherRequest struct {
	Code string `json:"code"`
}

type CheckoutResponse struct {
	usecase.CheckoutOutput
	TotalLabel string `json:"total_label"`
}

type ReviewResponse struct {
	OrderID model.OrderID     `json:"order_id"`
	Items   []model.OrderItem `json:"items"`
}

func (h *CheckoutHandler) RegisterRoutes(e *echo.Echo, requireSession echo.MiddlewareFunc) {
	g := e.Group("/checkout", requireSession)
	g.POST("", h.proceed)
	g.GET("/:order_id", h.get)
	g.PUT("/:order_id/address", h.selectAddress)
	g.PUT("/:order_id/insurance", h.setInsurance)
	g.POST("/:order_id/voucher", h.applyVoucher)
	g.POST("/:order_id/pay", h.pay)

	e.GET("/review/:order_id", h.review, requireSession)
}

func (h *CheckoutHandler) proceed(c echo.Context) error {
	store, ok := middleware.CartStoreFrom(c)
	if !ok {
		return unauthorized(c)
	}

	out, err := h.uc.ProceedToCheckout(c.Request().Context(), store.Credential(), store)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusCreated, checkoutResponse(out))
}

// 注文作成直後・確認中なら明細と配送先を取り直す
func (h *CheckoutHandler) get(c echo.Context) error {
	cred, orderID, err := orderParams(c)
	if err != nil {
		return writeError(c, err)
	}

	ctx := c.Request().Context()
	out, err := h.uc.Get(ctx, cred, orderID)
	if err != nil {
		return writeError(c, err)
	}

	if out.State == model.CheckoutStateOrderCreated || out.State == model.CheckoutStateReviewing {
		out, err = h.uc.OpenReview(ctx, cred, orderID)
		if err != nil {
			return writeError(c, err)
		}
	}

	return c.JSON(http.StatusOK, checkoutResponse(out))
}

func (h *CheckoutHandler) selectAddress(c echo.Context) error {
	cred, orderID, err := orderParams(c)
	if err != nil {
		return writeError(c, err)
	}

	var req SelectAddressRequest
	if err := c.Bind(&req); err != nil || req.AddressID <= 0 {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid address_id"})
	}

	out, err := h.uc.SelectAddress(c.Request().Context(), cred, orderID, req.AddressID)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, checkoutResponse(out))
}

func (h *CheckoutHandler) setInsurance(c echo.Context) error {
	cred, orderID, err := orderParams(c)
	if err != nil {
		return writeError(c, err)
	}

	var req SetInsuranceRequest
	if err := c.Bind(&req); err != nil || req.Enabled == nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid enabled"})
	}

	out, err := h.uc.SetInsurance(c.Request().Context(), cred, orderID, *req.Enabled)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, checkoutResponse(out))
}

func (h *CheckoutHandler) applyVoucher(c echo.Context) error {
	cred, orderID, err := orderParams(c)
	if err != nil {
		return writeError(c, err)
	}

	var req ApplyVoucherRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	if err := validator.ValidateVoucherCode(req.Code); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	}

	out, err := h.uc.ApplyVoucher(c.Request().Context(), cred, orderID, req.Code)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, checkoutResponse(out))
}

func (h *CheckoutHandler) pay(c echo.Context) error {
	cred, orderID, err := orderParams(c)
	if err != nil {
		return writeError(c, err)
	}

	out, err := h.uc.Pay(c.Request().Context(), cred, orderID)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, checkoutResponse(out))
}

func (h *CheckoutHandler) review(c echo.Context) error {
	cred, orderID, err := orderParams(c)
	if err != nil {
		return writeError(c, err)
	}

	items, err := h.uc.ReviewItems(c.Request().Context(), cred, orderID)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, ReviewResponse{OrderID: orderID, Items: items})
}

// ログイン情報とルートの注文IDを取り出す
func orderParams(c echo.Context) (session.Credential, model.OrderID, error) {
	cred, ok := middleware.CredentialFrom(c)
	if !ok {
		return session.Credential{}, "", usecase.ErrUnauthorized
	}

	raw := strings.TrimSpace(c.Param("order_id"))
	if err := validator.ValidateOrderID(raw); err != nil {
		return session.Credential{}, "", usecase.ErrValidation
	}
	return cred, model.OrderID(raw), nil
}

func checkoutResponse(out usecase.CheckoutOutput) CheckoutResponse {
	return CheckoutResponse{
		CheckoutOutput: out,
		TotalLabel:     pricing.FormatRupiah(out.Totals.Total),
	}
}
