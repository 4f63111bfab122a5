package domain

import "github.com/shopspring/decimal"

// Direction represents the price movement direction
type Direction int

const (
	DirectionSame Direction = 0
	DirectionUp   Direction = +1
	DirectionDown Direction = -1
)

// PriceState 一个代码最近一次看到的价格和变动方向
type PriceState struct {
	Value     decimal.Decimal
	HasValue  bool
	Direction Direction
	Source    string
}

// Update 记录新价格，返回价格是否变化。无法解析的价格被忽略
func (ps *PriceState) Update(price, source string) bool {
	n, err := decimal.NewFromString(price)
	if err != nil || !n.IsPositive() {
		return false
	}
	ps.Source = source
	if !ps.HasValue {
		ps.HasValue = true
		ps.Value = n
		ps.Direction = DirectionSame
		return true
	}

	switch n.Cmp(ps.Value) {
	case 1:
		ps.Direction = DirectionUp
	case -1:
		ps.Direction = DirectionDown
	default:
		ps.Direction = DirectionSame
		return false
	}
	ps.Value = n
	return true
}

func (ps *PriceState) String() string {
	if !ps.HasValue {
		return "--"
	}
	return ps.Value.StringFixed(2)
}
