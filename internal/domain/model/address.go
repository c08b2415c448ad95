package model

// 配送先住所（プロフィールから取得）
type Address struct {
	ID int64 `json:"id"`

	//番地など
	Address string `json:"address"`

	City     string `json:"city"`
	Province string `json:"province"`

	//郵便番号
	PostalCode string `json:"postal_code"`

	//電話番号
	PhoneNumber string `json:"phone_number"`
}
