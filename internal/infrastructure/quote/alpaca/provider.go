// Package alpaca adapts the Alpaca market data and trading APIs to port.QuoteProvider.
package alpaca

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"folio/internal/application/port"
	"folio/internal/domain/model"
)

// MaxMatches 搜索结果上限
const MaxMatches = 5

type Config struct {
	APIKey    string
	APISecret string
	// Feed "iex" (免费) 或 "sip"
	Feed    string
	Timeout time.Duration
}

type Provider struct {
	md    *marketdata.Client
	trade *alpaca.Client
	now   func() time.Time
}

var _ port.QuoteProvider = (*Provider)(nil)

func NewProvider(cfg Config) *Provider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	httpc := &http.Client{Timeout: cfg.Timeout}
	return &Provider{
		md: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:     cfg.APIKey,
			APISecret:  cfg.APISecret,
			Feed:       marketdata.Feed(strings.ToLower(cfg.Feed)),
			HTTPClient: httpc,
		}),
		trade: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:     cfg.APIKey,
			APISecret:  cfg.APISecret,
			HTTPClient: httpc,
		}),
		now: time.Now,
	}
}

// Quote 最新成交价，涨跌相对前一交易日收盘
func (p *Provider) Quote(ctx context.Context, symbol string) (*model.Quote, error) {
	symbol = model.NormalizeSymbol(symbol)
	snap, err := call(ctx, func() (*marketdata.Snapshot, error) {
		return p.md.GetSnapshot(symbol, marketdata.GetSnapshotRequest{})
	})
	if err != nil {
		return nil, fmt.Errorf("alpaca snapshot %s: %w", symbol, err)
	}
	return snapshotQuote(symbol, snap, p.now())
}

func snapshotQuote(symbol string, snap *marketdata.Snapshot, now time.Time) (*model.Quote, error) {
	if snap == nil || snap.LatestTrade == nil || snap.LatestTrade.Price <= 0 {
		return nil, fmt.Errorf("no trade for %s", symbol)
	}
	q := &model.Quote{
		Symbol:    symbol,
		Price:     snap.LatestTrade.Price,
		Timestamp: snap.LatestTrade.Timestamp,
		Source:    model.SourceLive,
	}
	if q.Timestamp.IsZero() {
		q.Timestamp = now
	}
	if prev := snap.PrevDailyBar; prev != nil && prev.Close > 0 {
		q.Change = q.Price - prev.Close
		q.ChangePercent = q.Change / prev.Close * 100
	}
	return q, nil
}

func (p *Provider) History(ctx context.Context, symbol string, tf model.Timeframe) ([]model.Bar, error) {
	symbol = model.NormalizeSymbol(symbol)
	span, _ := tf.Lookback()
	req := marketdata.GetBarsRequest{
		TimeFrame: timeFrame(tf),
		Start:     p.now().Add(-span),
	}
	bars, err := call(ctx, func() ([]marketdata.Bar, error) {
		return p.md.GetBars(symbol, req)
	})
	if err != nil {
		return nil, fmt.Errorf("alpaca bars %s: %w", symbol, err)
	}
	out := make([]model.Bar, 0, len(bars))
	for _, b := range bars {
		out = append(out, model.Bar{
			Time:   b.Timestamp,
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: int64(b.Volume),
		})
	}
	return out, nil
}

func timeFrame(tf model.Timeframe) marketdata.TimeFrame {
	switch tf {
	case model.Timeframe1D:
		return marketdata.NewTimeFrame(5, marketdata.Min)
	case model.Timeframe1W:
		return marketdata.OneHour
	case model.Timeframe5Y:
		return marketdata.NewTimeFrame(1, marketdata.Week)
	default:
		return marketdata.OneDay
	}
}

// Search 在活跃美股中按代码或名称做子串匹配
func (p *Provider) Search(ctx context.Context, query string) ([]model.SymbolMatch, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return []model.SymbolMatch{}, nil
	}
	assets, err := call(ctx, func() ([]alpaca.Asset, error) {
		return p.trade.GetAssets(alpaca.GetAssetsRequest{
			Status:     "active",
			AssetClass: "us_equity",
		})
	})
	if err != nil {
		return nil, fmt.Errorf("alpaca assets: %w", err)
	}

	out := make([]model.SymbolMatch, 0, MaxMatches)
	for _, a := range assets {
		if strings.Contains(strings.ToLower(a.Symbol), q) || strings.Contains(strings.ToLower(a.Name), q) {
			out = append(out, model.SymbolMatch{Symbol: a.Symbol, Name: a.Name, Exchange: a.Exchange})
			if len(out) >= MaxMatches {
				break
			}
		}
	}
	return out, nil
}

// call SDK 不接收 context，这里在 ctx 结束时放弃等待
func call[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, errors.Join(ctx.Err(), errAbandoned)
	}
}

var errAbandoned = errors.New("alpaca request abandoned")
