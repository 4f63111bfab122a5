package quote

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"folio/internal/application/port"
	"folio/internal/domain/model"
)

// DefaultTimeout 单次主数据源调用的上限
const DefaultTimeout = 10 * time.Second

// Resilient 按顺序降级：主数据源 -> 最近一次成功的缓存报价 -> 演示数据。
// Quote 和 History 永远不返回错误；Search 失败时返回空列表。
type Resilient struct {
	primary port.QuoteProvider
	cache   port.QuoteCache
	demo    port.QuoteProvider
	timeout time.Duration
}

// NewResilient primary 与 cache 都可以为 nil（未配置凭据或缓存时）。
func NewResilient(primary port.QuoteProvider, cache port.QuoteCache, timeout time.Duration) *Resilient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Resilient{primary: primary, cache: cache, demo: NewDemo(), timeout: timeout}
}

func (r *Resilient) Quote(ctx context.Context, symbol string) (*model.Quote, error) {
	symbol = model.NormalizeSymbol(symbol)
	if r.primary != nil {
		q, err := r.live(ctx, symbol)
		if err == nil {
			return q, nil
		}
		log.Warn().Err(err).Str("symbol", symbol).Msg("live quote failed, falling back")
	}

	if r.cache != nil {
		cq, err := r.cache.Get(ctx, symbol)
		if err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("quote cache read failed")
		}
		if cq != nil && cq.Price > 0 {
			out := *cq
			out.Source = model.SourceCache
			return &out, nil
		}
	}
	return r.demo.Quote(ctx, symbol)
}

func (r *Resilient) live(ctx context.Context, symbol string) (*model.Quote, error) {
	qctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	q, err := r.primary.Quote(qctx, symbol)
	if err != nil {
		return nil, err
	}
	if q == nil || q.Price <= 0 {
		return nil, errEmptyQuote
	}
	out := *q
	out.Symbol = symbol
	if out.Source == "" {
		out.Source = model.SourceLive
	}
	if r.cache != nil {
		if err := r.cache.Put(ctx, &out); err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("quote cache write failed")
		}
	}
	return &out, nil
}

func (r *Resilient) History(ctx context.Context, symbol string, tf model.Timeframe) ([]model.Bar, error) {
	symbol = model.NormalizeSymbol(symbol)
	if r.primary != nil {
		hctx, cancel := context.WithTimeout(ctx, r.timeout)
		bars, err := r.primary.History(hctx, symbol, tf)
		cancel()
		if err == nil && len(bars) > 0 {
			return bars, nil
		}
		log.Warn().Err(err).Str("symbol", symbol).Str("timeframe", string(tf)).Msg("live history unavailable, using demo series")
	}
	return r.demo.History(ctx, symbol, tf)
}

func (r *Resilient) Search(ctx context.Context, query string) ([]model.SymbolMatch, error) {
	if r.primary == nil {
		return r.demo.Search(ctx, query)
	}
	sctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	out, err := r.primary.Search(sctx, query)
	if err != nil {
		log.Warn().Err(err).Str("query", query).Msg("symbol search failed")
		return []model.SymbolMatch{}, nil
	}
	if out == nil {
		out = []model.SymbolMatch{}
	}
	return out, nil
}

type quoteError string

func (e quoteError) Error() string { return string(e) }

const errEmptyQuote = quoteError("empty quote")
