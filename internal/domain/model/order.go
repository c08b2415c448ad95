package model

// 注文IDはサーバー採番。ルート経由で受け渡すので文字列で持つ。
type OrderID string

func (id OrderID) String() string {
	return string(id)
}

type Order struct {
	ID    OrderID     `json:"id"`
	Items []OrderItem `json:"items"`
}

// InvoiceNumber は注文の請求番号（明細に同じ番号が入っている）。
func (o Order) InvoiceNumber() string {
	for _, it := range o.Items {
		if it.InvoiceNumber != "" {
			return it.InvoiceNumber
		}
	}
	return ""
}
