package pricing

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var idPrinter = message.NewPrinter(language.Indonesian)

// FormatRupiah は "Rp20.000" 形式（id-IDの桁区切り）。
func FormatRupiah(amount int64) string {
	if amount < 0 {
		return "-Rp" + idPrinter.Sprintf("%d", -amount)
	}
	return "Rp" + idPrinter.Sprintf("%d", amount)
}
