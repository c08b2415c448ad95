package model

import "time"

type CheckoutState string

const (
	CheckoutStateCart         CheckoutState = "CART"
	CheckoutStateOrderCreated CheckoutState = "ORDER_CREATED"
	CheckoutStateReviewing    CheckoutState = "REVIEWING"
	CheckoutStatePaying       CheckoutState = "PAYING"
	CheckoutStateCompleted    CheckoutState = "COMPLETED"
)

// 注文1件ごとのチェックアウト状態。
// 持ち主はトークンではなくOwnerKey（ハッシュ）で持つ。
// PaymentUnknownは支払い中に落ちて結果が分からない注文（確認画面に戻してある）。
type CheckoutSession struct {
	ID               int64         `gorm:"primaryKey;autoIncrement" json:"-"`
	OrderID          OrderID       `gorm:"type:varchar(64);not null;uniqueIndex" json:"order_id"`
	OwnerKey         string        `gorm:"type:varchar(64);not null;index" json:"-"`
	State            CheckoutState `gorm:"type:varchar(20);not null;index" json:"state"`
	AddressID        int64         `gorm:"not null;default:0" json:"address_id"`
	InsuranceEnabled bool          `gorm:"not null;default:true" json:"insurance_enabled"`
	VoucherCode      string        `gorm:"type:varchar(64)" json:"voucher_code,omitempty"`
	PaymentUnknown   bool          `gorm:"not null;default:false" json:"payment_unknown"`
	CreatedAt        time.Time     `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time     `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
