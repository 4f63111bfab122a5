package port

import (
	"context"
	"time"

	"folio/internal/domain/model"
)

// QuoteProvider 行情数据源
type QuoteProvider interface {
	Quote(ctx context.Context, symbol string) (*model.Quote, error)
	History(ctx context.Context, symbol string, tf model.Timeframe) ([]model.Bar, error)
	Search(ctx context.Context, query string) ([]model.SymbolMatch, error)
}

// QuoteCache 最近一次成功报价的缓存
type QuoteCache interface {
	Put(ctx context.Context, q *model.Quote) error
	// Get returns (nil, nil) when nothing is cached for the symbol.
	Get(ctx context.Context, symbol string) (*model.Quote, error)
}

type Tick struct {
	Symbol   string  // "AAPL"
	PriceStr string  // raw string
	PriceNum float64 // parsed float64 (best-effort)
	Ts       int64   // unix ms
}

func (t Tick) Time() time.Time { return time.UnixMilli(t.Ts) }

type PriceFeed interface {
	Name() string
	Subscribe(ctx context.Context, symbols []string) (<-chan Tick, error)
}
