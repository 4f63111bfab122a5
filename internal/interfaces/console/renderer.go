package console

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"folio/internal/domain"
	"folio/internal/domain/model"
	dsvc "folio/internal/domain/service"
)

const (
	ansiRed      = "\033[31m"
	ansiGreen    = "\033[32m"
	ansiClearEOL = "\033[K"
)

// Renderer 终端输出：实时看板和组合摘要
type Renderer struct {
	currency string
	color    bool
}

func NewRenderer(currency string, color bool) *Renderer {
	return &Renderer{currency: currency, color: color}
}

func (r *Renderer) paint(s, c string) string {
	if !r.color {
		return s
	}
	return c + s + ansiReset
}

// RenderLine 一行看板。live 时回到行首覆盖上一行
func (r *Renderer) RenderLine(symbols []string, snapshot map[string]domain.PriceState, live bool) string {
	var sb strings.Builder
	if live {
		sb.WriteString("\r")
	}
	sb.WriteString(r.paint("[FOLIO] ", ansiDim))

	for i, sym := range symbols {
		if i > 0 {
			sb.WriteString(r.paint("  ||  ", ansiDim))
		}
		st, ok := snapshot[sym]
		if !ok {
			continue
		}

		col, arrow := ansiYellow, " "
		switch st.Direction {
		case domain.DirectionUp:
			col, arrow = ansiGreen, "▲"
		case domain.DirectionDown:
			col, arrow = ansiRed, "▼"
		}
		sb.WriteString(sym)
		sb.WriteString(" ")
		sb.WriteString(r.paint(st.String()+arrow, col))
		if st.HasValue && st.Source != "" && st.Source != string(model.SourceLive) {
			sb.WriteString(r.paint("("+st.Source+")", ansiDim))
		}
	}

	if live && r.color {
		sb.WriteString(ansiClearEOL)
	}
	return sb.String()
}

// RenderSummary 组合指标和持仓表
func (r *Renderer) RenderSummary(w io.Writer, m dsvc.PortfolioMetrics, view []model.Position) {
	money := func(v float64) string { return dsvc.FormatCurrency(v, r.currency) }
	pnl := func(v float64, s string) string {
		switch {
		case v > 0:
			return r.paint(s, ansiGreen)
		case v < 0:
			return r.paint(s, ansiRed)
		}
		return s
	}

	fmt.Fprintf(w, "Portfolio (%d active, %d closed)\n", m.ActiveCount, m.ClosedCount)
	fmt.Fprintf(w, "  Value       %s\n", money(m.TotalValue))
	fmt.Fprintf(w, "  Invested    %s\n", money(m.TotalInvestment))
	fmt.Fprintf(w, "  P&L         %s\n", pnl(m.TotalPnL, money(m.TotalPnL)+" ("+dsvc.FormatPercent(m.TotalPnLPercent)+")"))
	fmt.Fprintf(w, "  Realized    %s\n", money(m.TotalRealizedPnL))
	fmt.Fprintf(w, "  Win rate    %.1f%%\n", m.WinRate)
	pf := fmt.Sprintf("%.2f", m.ProfitFactor.Value)
	if m.ProfitFactor.Infinite {
		pf = "∞"
	}
	fmt.Fprintf(w, "  Profit fac. %s\n", pf)
	fmt.Fprintf(w, "  Risk        %s (%.1f%%)\n", money(m.PortfolioRisk), m.PortfolioRiskPercent)

	if len(m.SectorAllocationPercent) > 0 {
		fmt.Fprintln(w, "\nSectors")
		for _, sector := range slices.Sorted(maps.Keys(m.SectorAllocationPercent)) {
			fmt.Fprintf(w, "  %-16s %6.1f%%\n", sector, m.SectorAllocationPercent[sector])
		}
	}

	fmt.Fprintf(w, "\n%-8s %-8s %10s %12s %12s %14s %9s\n", "SYMBOL", "STATUS", "QTY", "BUY", "PRICE", "P&L", "P&L %")
	fmt.Fprintln(w, strings.Repeat("-", 79))
	for _, p := range view {
		price := p.CurrentPrice
		if !p.IsActive {
			price = p.SellPrice
		}
		// 先按宽度排版再上色，避免转义序列打乱对齐
		fmt.Fprintf(w, "%-8s %-8s %10s %12s %12s %s %s\n",
			p.Symbol, p.Status(), trimFloat(p.Quantity), money(p.BuyPrice), money(price),
			pnl(p.PnL(), fmt.Sprintf("%14s", money(p.PnL()))),
			pnl(p.PnL(), fmt.Sprintf("%9s", dsvc.FormatPercent(p.PnLPercent()))))
	}
}

func trimFloat(v float64) string {
	s := fmt.Sprintf("%.4f", v)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
