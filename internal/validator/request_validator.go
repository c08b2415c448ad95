package validator

import (
	"errors"
	"regexp"
	"strings"
)

var (
	// 入力が不正
	ErrInvalidInput = errors.New("invalid input")

	// バウチャーコードが不正
	ErrInvalidVoucher = errors.New("invalid voucher code")
)

var (
	//バックエンドの注文IDは数字（文字列で来ることもある）
	orderIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
	voucherPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
)

// カート追加の入力を検証
func ValidateAddItem(productID int64, unitPrice int64) error {
	if productID <= 0 {
		return ErrInvalidInput
	}
	// 価格は表示用。0円は許す
	if unitPrice < 0 {
		return ErrInvalidInput
	}
	return nil
}

// 数量変更の入力を検証
func ValidateDelta(delta int64) error {
	if delta == 0 {
		return ErrInvalidInput
	}
	return nil
}

// ルートの注文IDを検証
func ValidateOrderID(id string) error {
	if !orderIDPattern.MatchString(strings.TrimSpace(id)) {
		return ErrInvalidInput
	}
	return nil
}

// バウチャーコードを検証（空白は前後を落としてから）
func ValidateVoucherCode(code string) error {
	code = strings.TrimSpace(code)
	if code == "" || !voucherPattern.MatchString(code) {
		return ErrInvalidVoucher
	}
	return nil
}
