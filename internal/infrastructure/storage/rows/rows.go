// Package rows maps positions and alerts to SQL column values shared by the
// sqlite and postgres repositories.
package rows

import (
	"database/sql"
	"time"

	"folio/internal/domain/model"
)

const PositionColumns = `id, symbol, name, sector, quantity, buy_price, current_price, stop_loss, price_target,
thesis, tags, notes, date_added_ms, is_active, sell_price, sell_date_ms`

const AlertColumns = `id, symbol, alert_type, target_price, delta, baseline_price, message, is_active,
created_ms, triggered_ms, triggered_price`

type Scanner interface {
	Scan(dest ...any) error
}

// PositionArgs 顺序与 PositionColumns 一致
func PositionArgs(p *model.Position) []any {
	return []any{
		p.ID, p.Symbol, p.Name, p.Sector, p.Quantity, p.BuyPrice, p.CurrentPrice, p.StopLoss, p.PriceTarget,
		p.Thesis, p.Tags, p.Notes, p.DateAdded.UnixMilli(), p.IsActive, p.SellPrice, nullMillis(p.SellDate),
	}
}

func ScanPosition(s Scanner) (*model.Position, error) {
	var (
		p        model.Position
		added    int64
		sellDate sql.NullInt64
	)
	err := s.Scan(&p.ID, &p.Symbol, &p.Name, &p.Sector, &p.Quantity, &p.BuyPrice, &p.CurrentPrice, &p.StopLoss,
		&p.PriceTarget, &p.Thesis, &p.Tags, &p.Notes, &added, &p.IsActive, &p.SellPrice, &sellDate)
	if err != nil {
		return nil, err
	}
	p.DateAdded = time.UnixMilli(added)
	p.SellDate = fromNull(sellDate)
	return &p, nil
}

// AlertArgs 顺序与 AlertColumns 一致
func AlertArgs(a *model.PriceAlert) []any {
	return []any{
		a.ID, a.Symbol, string(a.Type), a.TargetPrice, a.Delta, a.BaselinePrice, a.Message, a.IsActive,
		a.CreatedDate.UnixMilli(), nullMillis(a.TriggeredAt), a.TriggeredPrice,
	}
}

func ScanAlert(s Scanner) (*model.PriceAlert, error) {
	var (
		a         model.PriceAlert
		typ       string
		created   int64
		triggered sql.NullInt64
	)
	err := s.Scan(&a.ID, &a.Symbol, &typ, &a.TargetPrice, &a.Delta, &a.BaselinePrice, &a.Message, &a.IsActive,
		&created, &triggered, &a.TriggeredPrice)
	if err != nil {
		return nil, err
	}
	a.Type = model.AlertType(typ)
	a.CreatedDate = time.UnixMilli(created)
	a.TriggeredAt = fromNull(triggered)
	return &a, nil
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromNull(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64)
	return &t
}
