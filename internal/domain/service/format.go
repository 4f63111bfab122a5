package service

import (
	"fmt"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// DefaultCurrency 未配置时使用的币种
const DefaultCurrency = "USD"

// FormatCurrency renders amount with the currency's symbol, grouping and fraction digits.
func FormatCurrency(amount float64, code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		code = DefaultCurrency
	}
	cur := money.GetCurrency(code)
	if cur == nil {
		return fmt.Sprintf("%.2f %s", amount, code)
	}
	// go-money 以最小货币单位计数
	factor := decimal.New(1, int32(cur.Fraction))
	minor := decimal.NewFromFloat(amount).Mul(factor).Round(0)
	return money.New(minor.IntPart(), code).Display()
}

// FormatPercent renders a signed percentage with two decimals, e.g. "+4.00%".
func FormatPercent(p float64) string {
	return fmt.Sprintf("%+.2f%%", p)
}
