package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"folio/internal/application/port"
	"folio/internal/domain/model"
)

// PriceService 定期把活跃持仓的当前价格刷新为最新报价
type PriceService struct {
	book     *PositionService
	quotes   port.QuoteProvider
	parallel int
}

func NewPriceService(book *PositionService, quotes port.QuoteProvider, parallel int) *PriceService {
	if parallel <= 0 {
		parallel = 4
	}
	return &PriceService{book: book, quotes: quotes, parallel: parallel}
}

// Run refreshes immediately and then on every interval until ctx is done.
func (s *PriceService) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.RefreshOnce(ctx); err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Msg("price refresh incomplete")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RefreshOnce 拉取所有活跃代码的报价并写回持仓。
// 演示数据不会覆盖真实价格；单个代码失败只记录日志
func (s *PriceService) RefreshOnce(ctx context.Context) (int, error) {
	symbols := s.book.ActiveSymbols()
	if len(symbols) == 0 {
		return 0, nil
	}

	var mu sync.Mutex
	prices := make(map[string]float64, len(symbols))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallel)
	for _, sym := range symbols {
		g.Go(func() error {
			q, err := s.quotes.Quote(gctx, sym)
			if err != nil {
				log.Warn().Err(err).Str("symbol", sym).Msg("quote lookup failed")
				return nil
			}
			if q == nil || q.Source == model.SourceDemo || q.Price <= 0 {
				return nil
			}
			mu.Lock()
			prices[sym] = q.Price
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		return 0, ctx.Err()
	}
	n, err := s.book.UpdatePrices(ctx, prices)
	if n > 0 {
		log.Info().Int("updated", n).Int("symbols", len(symbols)).Msg("prices refreshed")
	}
	return n, err
}
