package enums

// StockState classifies available stock relative to a configured minimum.
type StockState string

const (
	StockStateOutOfStock StockState = "out_of_stock"
	StockStateCritical   StockState = "critical"
	StockStateLow        StockState = "low"
	StockStateNormal     StockState = "normal"
)

// String implements fmt.Stringer.
func (s StockState) String() string {
	return string(s)
}

// DeriveStockState classifies stock against the minimum threshold.
// Critical means at or below half the minimum, low means at or below
// the minimum, otherwise normal.
func DeriveStockState(stock, minimum int) StockState {
	switch {
	case stock <= 0:
		return StockStateOutOfStock
	case stock*2 <= minimum:
		return StockStateCritical
	case stock <= minimum:
		return StockStateLow
	default:
		return StockStateNormal
	}
}
