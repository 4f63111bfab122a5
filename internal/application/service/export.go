package service

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/shopspring/decimal"

	"folio/internal/domain/model"
)

var csvHeader = []string{
	"Symbol", "Name", "Quantity", "Buy Price", "Current Price", "P&L", "P&L %", "Status", "Date Added",
}

const csvDateLayout = "2006-01-02"

// WriteCSV 按给定顺序导出持仓。数值使用最短的十进制表示
func WriteCSV(w io.Writer, positions []model.Position) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for i := range positions {
		p := &positions[i]
		row := []string{
			p.Symbol,
			p.Name,
			num(p.Quantity),
			num(p.BuyPrice),
			num(p.CurrentPrice),
			num(p.PnL()),
			num(p.PnLPercent()),
			p.Status(),
			p.DateAdded.Format(csvDateLayout),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row %s: %w", p.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportCSV writes the book in its stored order (newest first).
func (s *PositionService) ExportCSV(w io.Writer) error {
	return WriteCSV(w, s.Positions())
}

func num(v float64) string {
	return decimal.NewFromFloat(v).String()
}
