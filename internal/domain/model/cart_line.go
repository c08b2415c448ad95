package model

// カートの明細
// 追加時点の価格・商品名・画像を保存（ライブで取り直さない）。
type CartLine struct {
	ID          int64  `json:"id"`
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	ImageURL    string `json:"image_url"`
	UnitPrice   int64  `json:"unit_price"`
	Quantity    int64  `json:"quantity"`
}

// LineTotal は単価×数量。
func (l CartLine) LineTotal() int64 {
	return l.UnitPrice * l.Quantity
}
