package model

import "time"

// カート操作、チェックアウト遷移など。
type AuditAction string

const (
	AuditActionCartAdd            AuditAction = "CART_ADD"
	AuditActionCartRemove         AuditAction = "CART_REMOVE"
	AuditActionCartUpdateQuantity AuditAction = "CART_UPDATE_QUANTITY"
	AuditActionCartRefresh        AuditAction = "CART_REFRESH"
	AuditActionCartClear          AuditAction = "CART_CLEAR"

	AuditActionCreateOrder  AuditAction = "CREATE_ORDER"
	AuditActionApplyVoucher AuditAction = "APPLY_VOUCHER"
	AuditActionPay          AuditAction = "PAY"
)

// 何に対する操作か
type AuditResourceType string

const (
	AuditResourceCartLine AuditResourceType = "cart_line"
	AuditResourceCart     AuditResourceType = "cart"
	AuditResourceOrder    AuditResourceType = "order"
)

type AuditOutcome string

const (
	AuditOutcomeOK         AuditOutcome = "OK"
	AuditOutcomeFailed     AuditOutcome = "FAILED"
	AuditOutcomeSuperseded AuditOutcome = "SUPERSEDED"
)

// 操作ログ。
// 「どのセッションが」「何を」「どの対象に」「どう変えたか」「結果」を残す。
// ローカルとサーバーのずれを後から追えるようにする。
type AuditLog struct {
	ID int64 `gorm:"primaryKey;autoIncrement" json:"id"`

	//セッションの持ち主（生トークンは残さない）
	OwnerKey string `gorm:"type:varchar(64);not null;index" json:"-"`

	Action AuditAction `gorm:"type:varchar(50);not null;index" json:"action"`

	ResourceType AuditResourceType `gorm:"type:varchar(50);not null;index" json:"resource_type"`

	//productIDやorderIDを文字列で
	ResourceID string `gorm:"type:varchar(64);not null;index" json:"resource_id"`

	//JSON文字列で保存する。
	BeforeJSON string `gorm:"type:text" json:"before_json"`
	AfterJSON  string `gorm:"type:text" json:"after_json"`

	Outcome AuditOutcome `gorm:"type:varchar(20);not null" json:"outcome"`
	Error   string       `gorm:"type:text" json:"error,omitempty"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}
