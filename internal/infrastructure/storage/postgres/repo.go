package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"folio/internal/application/port"
	"folio/internal/domain/model"
	"folio/internal/infrastructure/storage/rows"
)

type Repo struct {
	db *sql.DB
}

func New(dsn string) (*Repo, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

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
  quantity DOUBLE PRECISION NOT NULL,
  buy_price DOUBLE PRECISION NOT NULL,
  current_price DOUBLE PRECISION NOT NULL,
  stop_loss DOUBLE PRECISION NOT NULL DEFAULT 0,
  price_target DOUBLE PRECISION NOT NULL DEFAULT 0,
  thesis TEXT NOT NULL DEFAULT '',
  tags TEXT NOT NULL DEFAULT '',
  notes TEXT NOT NULL DEFAULT '',
  date_added_ms BIGINT NOT NULL,
  is_active BOOLEAN NOT NULL,
  sell_price DOUBLE PRECISION NOT NULL DEFAULT 0,
  sell_date_ms BIGINT,
  updated_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_positions_added ON positions(date_added_ms);

CREATE TABLE IF NOT EXISTS price_alerts (
  id TEXT PRIMARY KEY,
  symbol TEXT NOT NULL,
  alert_type TEXT NOT NULL,
  target_price DOUBLE PRECISION NOT NULL DEFAULT 0,
  delta DOUBLE PRECISION NOT NULL DEFAULT 0,
  baseline_price DOUBLE PRECISION NOT NULL DEFAULT 0,
  message TEXT NOT NULL DEFAULT '',
  is_active BOOLEAN NOT NULL,
  created_ms BIGINT NOT NULL,
  triggered_ms BIGINT,
  triggered_price DOUBLE PRECISION NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_alerts_symbol ON price_alerts(symbol);
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
		VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`, args...)
	return err
}

func (r *Repo) Update(ctx context.Context, p *model.Position) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE positions SET
		symbol=$1, name=$2, sector=$3, quantity=$4, buy_price=$5, current_price=$6, stop_loss=$7, price_target=$8,
		thesis=$9, tags=$10, notes=$11, date_added_ms=$12, is_active=$13, sell_price=$14, sell_date_ms=$15, updated_at=$16
		WHERE id=$17
	`, append(rows.PositionArgs(p)[1:], time.Now().UnixMilli(), p.ID)...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", model.ErrPositionNotFound, p.ID)
	}
	return nil
}

func (r *Repo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM positions WHERE id=$1`, id)
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
		VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT(id) DO UPDATE SET
		symbol=EXCLUDED.symbol, alert_type=EXCLUDED.alert_type, target_price=EXCLUDED.target_price,
		delta=EXCLUDED.delta, baseline_price=EXCLUDED.baseline_price, message=EXCLUDED.message,
		is_active=EXCLUDED.is_active, triggered_ms=EXCLUDED.triggered_ms, triggered_price=EXCLUDED.triggered_price
	`, rows.AlertArgs(a)...)
	return err
}

func (r *Repo) DeleteAlert(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM price_alerts WHERE id=$1`, id)
	return err
}

// Ping 用于启动时检查连接
func (r *Repo) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return errors.Join(errors.New("postgres unreachable"), err)
	}
	return nil
}

var _ port.Store = (*Repo)(nil)
