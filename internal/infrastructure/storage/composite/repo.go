package composite

import (
	"context"

	"folio/internal/application/port"
	"folio/internal/domain/model"
)

// QuoteCache 写入所有层；读取按顺序返回第一个命中
type QuoteCache struct {
	caches []port.QuoteCache
}

func New(caches ...port.QuoteCache) *QuoteCache {
	// nil 层会被忽略
	out := make([]port.QuoteCache, 0, len(caches))
	for _, c := range caches {
		if c != nil {
			out = append(out, c)
		}
	}
	return &QuoteCache{caches: out}
}

func (c *QuoteCache) Put(ctx context.Context, q *model.Quote) error {
	var firstErr error
	for _, cache := range c.caches {
		if err := cache.Put(ctx, q); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Get 跳过出错的层；所有层都未命中时返回第一个错误（如果有）
func (c *QuoteCache) Get(ctx context.Context, symbol string) (*model.Quote, error) {
	var firstErr error
	for _, cache := range c.caches {
		q, err := cache.Get(ctx, symbol)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if q != nil {
			return q, nil
		}
	}
	return nil, firstErr
}

var _ port.QuoteCache = (*QuoteCache)(nil)
