package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"storefront/internal/domain/model"
	"storefront/internal/repository"
	"storefront/internal/session"
)

var _ repository.OrderRepository = (*Client)(nil)

var errMissingOrderID = errors.New("remote: order id missing in response")

type createOrderPayload struct {
	ID json.RawMessage `json:"id"`
}

type orderItemPayload struct {
	ID            int64  `json:"id"`
	InvoiceNumber string `json:"invoice_number"`
	ProductID     int64  `json:"product_id"`
	ProductName   string `json:"product_name"`
	TotalPrice    int64  `json:"total_price"`
	Quantity      int64  `json:"quantity"`
	ImageURL      string `json:"image_url"`
}

type applyVoucherRequest struct {
	InvoiceNumber string `json:"invoice_number"`
	KodeVoucher   string `json:"kode_voucher"`
}

type paymentRequest struct {
	OrderID string `json:"order_id"`
}

func (c *Client) CreateFromCart(ctx context.Context, cred session.Credential) (model.OrderID, error) {
	var payload createOrderPayload
	if err := c.doJSON(ctx, cred, http.MethodPost, []string{c.paths.Orders}, nil, &payload); err != nil {
		return "", err
	}

	id := parseID(payload.ID)
	if id == "" {
		return "", errMissingOrderID
	}
	return model.OrderID(id), nil
}

func (c *Client) ListItems(ctx context.Context, cred session.Credential, orderID model.OrderID) ([]model.OrderItem, error) {
	var payload []orderItemPayload
	if err := c.doJSON(ctx, cred, http.MethodGet, []string{c.paths.OrderItems, orderID.String()}, nil, &payload); err != nil {
		return nil, err
	}

	items := make([]model.OrderItem, 0, len(payload))
	for _, p := range payload {
		items = append(items, model.OrderItem{
			ID:            p.ID,
			InvoiceNumber: p.InvoiceNumber,
			ProductID:     p.ProductID,
			ProductName:   p.ProductName,
			ImageURL:      p.ImageURL,
			UnitPrice:     p.TotalPrice,
			Quantity:      p.Quantity,
		})
	}
	return items, nil
}

func (c *Client) ApplyVoucher(ctx context.Context, cred session.Credential, invoiceNumber string, code string) error {
	return c.doJSON(ctx, cred, http.MethodPost, []string{c.paths.Voucher}, applyVoucherRequest{
		InvoiceNumber: invoiceNumber,
		KodeVoucher:   code,
	}, nil)
}

func (c *Client) InitiatePayment(ctx context.Context, cred session.Credential, orderID model.OrderID) error {
	return c.doJSON(ctx, cred, http.MethodPost, []string{c.paths.Payment}, paymentRequest{OrderID: orderID.String()}, nil)
}

// idは数値でも文字列でも来る
func parseID(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return ""
	}
	if strings.HasPrefix(s, `"`) {
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return ""
		}
		return strings.TrimSpace(v)
	}
	return s
}
