package remote

import (
	"context"
	"net/http"

	"storefront/internal/domain/model"
	"storefront/internal/repository"
	"storefront/internal/session"
)

var _ repository.CartRepository = (*Client)(nil)

// バックエンドのカート明細。total_price は単価のスナップショット。
type cartLinePayload struct {
	ID          int64  `json:"id"`
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	TotalPrice  int64  `json:"total_price"`
	Quantity    int64  `json:"quantity"`
	ImageURL    string `json:"image_url"`
}

type addCartRequest struct {
	ProductID int64 `json:"product_id"`
}

type setQuantityRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

func (c *Client) List(ctx context.Context, cred session.Credential) ([]model.CartLine, error) {
	var payload []cartLinePayload
	if err := c.doJSON(ctx, cred, http.MethodGet, []string{c.paths.Cart}, nil, &payload); err != nil {
		return nil, err
	}

	lines := make([]model.CartLine, 0, len(payload))
	for _, p := range payload {
		lines = append(lines, model.CartLine{
			ID:          p.ID,
			ProductID:   p.ProductID,
			ProductName: p.ProductName,
			ImageURL:    p.ImageURL,
			UnitPrice:   p.TotalPrice,
			Quantity:    p.Quantity,
		})
	}
	return lines, nil
}

func (c *Client) Add(ctx context.Context, cred session.Credential, productID int64) error {
	return c.doJSON(ctx, cred, http.MethodPost, []string{c.paths.Cart}, addCartRequest{ProductID: productID}, nil)
}

func (c *Client) SetQuantity(ctx context.Context, cred session.Credential, productID int64, quantity int64) error {
	return c.doJSON(ctx, cred, http.MethodPut, []string{c.paths.Cart}, setQuantityRequest{
		ProductID: productID,
		Quantity:  quantity,
	}, nil)
}
