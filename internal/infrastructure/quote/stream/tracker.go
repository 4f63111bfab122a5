package stream

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"folio/internal/application/port"
	"folio/internal/domain/model"
)

// DefaultMaxAge 超过这个时间的成交不再当作实时报价
const DefaultMaxAge = 2 * time.Minute

// Tracker 记录每个代码的最新成交。Quote 优先用新鲜成交，否则交给 base
type Tracker struct {
	base   port.QuoteProvider
	feed   port.PriceFeed
	cache  port.QuoteCache
	maxAge time.Duration
	now    func() time.Time

	mu        sync.RWMutex
	last      map[string]port.Tick
	prevClose map[string]float64 // 来自 base 报价，用于计算推送价的涨跌
}

var _ port.QuoteProvider = (*Tracker)(nil)

func NewTracker(base port.QuoteProvider, feed port.PriceFeed, cache port.QuoteCache, maxAge time.Duration) *Tracker {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Tracker{
		base:      base,
		feed:      feed,
		cache:     cache,
		maxAge:    maxAge,
		now:       time.Now,
		last:      make(map[string]port.Tick),
		prevClose: make(map[string]float64),
	}
}

// Run 每隔 every 检查一次 symbols()，集合变化时重新订阅
func (t *Tracker) Run(ctx context.Context, symbols func() []string, every time.Duration) error {
	var (
		current []string
		cancel  context.CancelFunc = func() {}
		ticks   <-chan port.Tick
	)
	defer func() { cancel() }()

	resubscribe := func() {
		want := normalize(symbols())
		if slices.Equal(want, current) {
			return
		}
		cancel()
		cancel, ticks, current = func() {}, nil, want
		if len(want) == 0 {
			log.Info().Str("feed", t.feed.Name()).Msg("no symbols to stream")
			return
		}
		sctx, c := context.WithCancel(ctx)
		ch, err := t.feed.Subscribe(sctx, want)
		if err != nil {
			c()
			current = nil
			log.Error().Err(err).Str("feed", t.feed.Name()).Msg("subscribe failed")
			return
		}
		cancel, ticks = c, ch
		log.Info().Str("feed", t.feed.Name()).Strs("symbols", want).Msg("stream subscribed")
	}

	check := time.NewTicker(every)
	defer check.Stop()
	resubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-check.C:
			resubscribe()
		case tick, ok := <-ticks:
			if !ok {
				// 订阅结束，下一轮重新建立
				ticks, current = nil, nil
				continue
			}
			t.record(ctx, tick)
		}
	}
}

func (t *Tracker) record(ctx context.Context, tick port.Tick) {
	t.mu.Lock()
	t.last[tick.Symbol] = tick
	t.mu.Unlock()
	if t.cache == nil {
		return
	}
	q := &model.Quote{Symbol: tick.Symbol, Price: tick.PriceNum, Timestamp: tick.Time(), Source: model.SourceLive}
	if err := t.cache.Put(ctx, q); err != nil {
		log.Warn().Err(err).Str("symbol", tick.Symbol).Msg("quote cache write failed")
	}
}

// Latest 返回最新成交，过期时 ok 为 false
func (t *Tracker) Latest(symbol string) (port.Tick, bool) {
	t.mu.RLock()
	tick, ok := t.last[model.NormalizeSymbol(symbol)]
	t.mu.RUnlock()
	if !ok || t.now().Sub(tick.Time()) > t.maxAge {
		return port.Tick{}, false
	}
	return tick, true
}

func (t *Tracker) Quote(ctx context.Context, symbol string) (*model.Quote, error) {
	symbol = model.NormalizeSymbol(symbol)
	if tick, fresh := t.Latest(symbol); fresh {
		q := &model.Quote{Symbol: symbol, Price: tick.PriceNum, Timestamp: tick.Time(), Source: model.SourceLive}
		t.mu.RLock()
		prev := t.prevClose[symbol]
		t.mu.RUnlock()
		if prev > 0 {
			q.Change = q.Price - prev
			q.ChangePercent = q.Change / prev * 100
		}
		return q, nil
	}

	q, err := t.base.Quote(ctx, symbol)
	if err == nil && q != nil && q.Price-q.Change > 0 {
		t.mu.Lock()
		t.prevClose[symbol] = q.Price - q.Change
		t.mu.Unlock()
	}
	return q, err
}

func (t *Tracker) History(ctx context.Context, symbol string, tf model.Timeframe) ([]model.Bar, error) {
	return t.base.History(ctx, symbol, tf)
}

func (t *Tracker) Search(ctx context.Context, query string) ([]model.SymbolMatch, error) {
	return t.base.Search(ctx, query)
}

func normalize(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = model.NormalizeSymbol(s); s != "" {
			out = append(out, s)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
