package model

// 1セッションにつきカートは1つ。
// Linesは追加順で、ProductIDごとに1行だけ持つ。
type Cart struct {
	Lines []CartLine `json:"lines"`
}

// IndexOf はproductIDの明細位置を返す（無ければ -1）。
func (c Cart) IndexOf(productID int64) int {
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// Clone は明細をコピーしたCartを返す。
func (c Cart) Clone() Cart {
	lines := make([]CartLine, len(c.Lines))
	copy(lines, c.Lines)
	return Cart{Lines: lines}
}

func (c Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}
