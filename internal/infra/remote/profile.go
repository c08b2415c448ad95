package remote

import (
	"context"
	"net/http"

	"storefront/internal/domain/model"
	"storefront/internal/repository"
	"storefront/internal/session"
)

var _ repository.ProfileRepository = (*Client)(nil)

type profilePayload struct {
	Address []addressPayload `json:"address"`
}

type addressPayload struct {
	ID          int64  `json:"id"`
	Address     string `json:"address"`
	City        string `json:"city"`
	Province    string `json:"province"`
	PostalCode  string `json:"postal_code"`
	PhoneNumber string `json:"phone_number"`
}

// ListAddresses は profile/me の住所一覧を返す。
// idが無い住所は並び順（1始まり）をidにする。
func (c *Client) ListAddresses(ctx context.Context, cred session.Credential) ([]model.Address, error) {
	var payload profilePayload
	if err := c.doJSON(ctx, cred, http.MethodGet, []string{c.paths.Profile}, nil, &payload); err != nil {
		return nil, err
	}

	out := make([]model.Address, 0, len(payload.Address))
	for i, a := range payload.Address {
		id := a.ID
		if id == 0 {
			id = int64(i + 1)
		}
		out = append(out, model.Address{
			ID:          id,
			Address:     a.Address,
			City:        a.City,
			Province:    a.Province,
			PostalCode:  a.PostalCode,
			PhoneNumber: a.PhoneNumber,
		})
	}
	return out, nil
}
