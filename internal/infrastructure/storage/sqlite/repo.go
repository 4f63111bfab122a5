package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"folio/internal/application/port"
	"folio/internal/domain/model"
	"folio/internal/infrastructure/storage/rows"
)

type Repo struct {
	db *sql.DB
}

func New(path string) (*Repo, error) {
	// ensure directory exists
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS positions (
  id TEXT PRIMARY KEY,
  symbol TEXT NOT NULL,
  name TEXT NOT NULL DEFAULT '',
  sector TEXT NOT NULL DEFAULT '',
  quantity REAL NOT NULL,
  buy_price REAL NOT NULL,
  current_price REAL NOT NULL,
  stop_loss REAL NOT NULL DEFAULT 0,
  price_target REAL NOT NULL DEFAULT 0,
  thesis TEXT NOT NULL DEFAULT '',
  tags TEXT NOT NULL DEFAULT '',
  notes TEXT NOT NULL DEFAULT '',
  date_added_ms INTEGER NOT NULL,
  is_active INTEGER NOT NULL,
  sell_price REAL NOT NULL DEFAULT 0,
  sell_date_ms INTEGER,
  updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_positions_added ON positions(date_added_ms);
CREATE INDEX IF NOT EXISTS idx_positions_symbol ON positions(symbol);

CREATE TABLE IF NOT EXISTS price_alerts (
  id TEXT PRIMARY KEY,
  symbol TEXT NOT NULL,
  alert_type TEXT NOT NULL,
  target_price REAL NOT NULL DEFAULT 0,
  delta REAL NOT NULL DEFAULT 0,
  baseline_price REAL NOT NULL DEFAULT 0,
  message TEXT NOT NULL DEFAULT '',
  is_active INTEGER NOT NULL,
  created_ms INTEGER NOT NULL,
  triggered_ms INTEGER,
  triggered_price REAL NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_alerts_symbol ON price_alerts(symbol);

CREATE TABLE IF NOT EXISTS quotes (
  symbol TEXT PRIMARY KEY,
  price REAL NOT NULL,
  change REAL NOT NULL,
  change_percent REAL NOT NULL,
  source TEXT NOT NULL,
  ts_ms INTEGER NOT NULL
);
`)
	return err
}

func (r *Repo) List(ctx context.Context) ([]*model.Position, error) {
	rs, err := r.db.QueryContext(ctx, `SELECT `+rows.PositionColumns+` FROM positions ORDER BY date_added_ms DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rs.Close()

	var out []*model.Position
	for rs.Next() {
		p, err := rows.ScanPosition(rs)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rs.Err()
}

func (r *Repo) Create(ctx context.Context, p *model.Position) error {
	args := append(rows.PositionArgs(p), time.Now().UnixMilli())
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO positions(`+rows.PositionColumns+`, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, args...)
	return err
}

func (r *Repo) Update(ctx context.Context, p *model.Position) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE positions SET
		symbol=?, name=?, sector=?, quantity=?, buy_price=?, current_price=?, stop_loss=?, price_target=?,
		thesis=?, tags=?, notes=?, date_added_ms=?, is_active=?, sell_price=?, sell_date_ms=?, updated_at=?
		WHERE id=?
	`, append(rows.PositionArgs(p)[1:], time.Now().UnixMilli(), p.ID)...)
	if err != nil {
		return err
	}
	return affected(res, model.ErrPositionNotFound, p.ID)
}

func (r *Repo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM positions WHERE id=?`, id)
	return err
}

func (r *Repo) ListAlerts(ctx context.Context) ([]*model.PriceAlert, error) {
	rs, err := r.db.QueryContext(ctx, `SELECT `+rows.AlertColumns+` FROM price_alerts ORDER BY created_ms DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rs.Close()

	var out []*model.PriceAlert
	for rs.Next() {
		a, err := rows.ScanAlert(rs)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rs.Err()
}

func (r *Repo) SaveAlert(ctx context.Context, a *model.PriceAlert) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO price_alerts(`+rows.AlertColumns+`)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		symbol=excluded.symbol, alert_type=excluded.alert_type, target_price=excluded.target_price,
		delta=excluded.delta, baseline_price=excluded.baseline_price, message=excluded.message,
		is_active=excluded.is_active, triggered_ms=excluded.triggered_ms, triggered_price=excluded.triggered_price
	`, rows.AlertArgs(a)...)
	return err
}

func (r *Repo) DeleteAlert(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM price_alerts WHERE id=?`, id)
	return err
}

// Put 保存最后一次成功报价，供离线时回退
func (r *Repo) Put(ctx context.Context, q *model.Quote) error {
	if q == nil || q.Price <= 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO quotes(symbol, price, change, change_percent, source, ts_ms)
		VALUES(?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
		price=excluded.price, change=excluded.change, change_percent=excluded.change_percent,
		source=excluded.source, ts_ms=excluded.ts_ms
	`, q.Symbol, q.Price, q.Change, q.ChangePercent, string(q.Source), q.Timestamp.UnixMilli())
	return err
}

func (r *Repo) Get(ctx context.Context, symbol string) (*model.Quote, error) {
	var (
		q      model.Quote
		source string
		ts     int64
	)
	err := r.db.QueryRowContext(ctx, `SELECT symbol, price, change, change_percent, source, ts_ms FROM quotes WHERE symbol=?`,
		model.NormalizeSymbol(symbol)).Scan(&q.Symbol, &q.Price, &q.Change, &q.ChangePercent, &source, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	q.Source = model.QuoteSource(source)
	q.Timestamp = time.UnixMilli(ts)
	return &q, nil
}

func affected(res sql.Result, notFound error, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", notFound, id)
	}
	return nil
}

var (
	_ port.Store      = (*Repo)(nil)
	_ port.QuoteCache = (*Repo)(nil)
)
