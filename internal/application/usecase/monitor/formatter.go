package monitor

import (
	"fmt"
	"strings"

	"folio/internal/domain/model"
	dsvc "folio/internal/domain/service"
)

const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiDim    = "\033[2m"
)

func colorize(s, c string) string { return c + s + ansiReset }

// Formatter 生成通知文案和控制台列表
type Formatter struct {
	Currency string
}

func NewFormatter(currency string) *Formatter {
	if currency == "" {
		currency = dsvc.DefaultCurrency
	}
	return &Formatter{Currency: currency}
}

func (f *Formatter) Confirmation(a *model.PriceAlert) (title, body string) {
	return "Price alert set", a.Message
}

func (f *Formatter) Trigger(a *model.PriceAlert, price float64) (title, body string) {
	title = a.Symbol + " price alert"
	body = fmt.Sprintf("%s is at %s. %s", a.Symbol, dsvc.FormatCurrency(price, f.Currency), a.Message)
	return title, body
}

// Render 每个提醒一行：状态着色，触发的提醒附带触发价格
func (f *Formatter) Render(alerts []model.PriceAlert) string {
	if len(alerts) == 0 {
		return colorize("[FOLIO] no alerts", ansiDim)
	}
	var sb strings.Builder
	for i := range alerts {
		a := &alerts[i]
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(colorize("[FOLIO] ", ansiDim))

		state := a.State()
		col := ansiDim
		switch state {
		case model.AlertArmed:
			col = ansiGreen
		case model.AlertFired:
			col = ansiYellow
		}
		sb.WriteString(colorize(fmt.Sprintf("%-8s", state), col))
		sb.WriteString(" ")
		sb.WriteString(a.ID)
		sb.WriteString("  ")
		sb.WriteString(a.Symbol)
		sb.WriteString(" ")
		sb.WriteString(f.condition(a))
		if a.TriggeredAt != nil {
			sb.WriteString(" ")
			sb.WriteString(colorize("@"+dsvc.FormatCurrency(a.TriggeredPrice, f.Currency), ansiYellow))
			sb.WriteString(" ")
			sb.WriteString(a.TriggeredAt.Format("2006-01-02 15:04"))
		}
	}
	return sb.String()
}

func (f *Formatter) condition(a *model.PriceAlert) string {
	switch a.Type {
	case model.AlertPriceAbove:
		return "≥ " + dsvc.FormatCurrency(a.TargetPrice, f.Currency)
	case model.AlertPriceBelow:
		return "≤ " + dsvc.FormatCurrency(a.TargetPrice, f.Currency)
	case model.AlertPercentageChange:
		s := "Δ " + dsvc.FormatPercent(a.Delta)
		if a.Delta < 0 {
			s = colorize(s, ansiRed)
		}
		if a.BaselinePrice > 0 {
			s += " from " + dsvc.FormatCurrency(a.BaselinePrice, f.Currency)
		}
		return s
	}
	return string(a.Type)
}
