package pricing

import "storefront/internal/domain/model"

// 標準の送料・保険料（IDR）
const (
	DefaultShippingFee  int64 = 7000
	DefaultInsuranceFee int64 = 800
)

// Totals はチェックアウト画面の合計欄。
// Insuranceは実際に加算された額（OFFなら0）。
type Totals struct {
	Subtotal  int64 `json:"subtotal"`
	Shipping  int64 `json:"shipping"`
	Insurance int64 `json:"insurance"`
	Total     int64 `json:"total"`
}

// ComputeTotals はカート明細から合計を出す。状態は持たない。
func ComputeTotals(lines []model.CartLine, shippingFee, insuranceFee int64, insuranceEnabled bool) Totals {
	var subtotal int64
	for _, l := range lines {
		subtotal += l.UnitPrice * l.Quantity
	}
	return withFees(subtotal, shippingFee, insuranceFee, insuranceEnabled)
}

// ComputeOrderTotals は注文明細版。
func ComputeOrderTotals(items []model.OrderItem, shippingFee, insuranceFee int64, insuranceEnabled bool) Totals {
	var subtotal int64
	for _, it := range items {
		subtotal += it.UnitPrice * it.Quantity
	}
	return withFees(subtotal, shippingFee, insuranceFee, insuranceEnabled)
}

func withFees(subtotal, shippingFee, insuranceFee int64, insuranceEnabled bool) Totals {
	var insurance int64
	if insuranceEnabled {
		insurance = insuranceFee
	}
	return Totals{
		Subtotal:  subtotal,
		Shipping:  shippingFee,
		Insurance: insurance,
		Total:     subtotal + shippingFee + insurance,
	}
}
