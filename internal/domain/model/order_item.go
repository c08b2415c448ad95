package model

// 注文作成時にカートからコピーされた明細。
type OrderItem struct {
	ID            int64  `json:"id"`
	InvoiceNumber string `json:"invoice_number"`
	ProductID     int64  `json:"product_id"`
	ProductName   string `json:"product_name"`
	ImageURL      string `json:"image_url"`
	UnitPrice     int64  `json:"unit_price"`
	Quantity      int64  `json:"quantity"`
}
