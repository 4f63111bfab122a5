// Package storage holds the in-memory store used when no database is configured.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"folio/internal/application/port"
	"folio/internal/domain/model"
)

// MemoryStore 进程内的持仓和提醒仓储，重启后数据丢失
type MemoryStore struct {
	mu        sync.RWMutex
	positions map[string]*model.Position
	alerts    map[string]*model.PriceAlert
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		positions: make(map[string]*model.Position),
		alerts:    make(map[string]*model.PriceAlert),
	}
}

func (s *MemoryStore) List(ctx context.Context) ([]*model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Position, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DateAdded.Equal(out[j].DateAdded) {
			return out[i].DateAdded.After(out[j].DateAdded)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) Create(ctx context.Context, p *model.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.positions[p.ID]; ok {
		return fmt.Errorf("position %s already exists", p.ID)
	}
	s.positions[p.ID] = p.Clone()
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, p *model.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.positions[p.ID]; !ok {
		return fmt.Errorf("%w: %s", model.ErrPositionNotFound, p.ID)
	}
	s.positions[p.ID] = p.Clone()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.positions, id)
	return nil
}

func (s *MemoryStore) ListAlerts(ctx context.Context) ([]*model.PriceAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.PriceAlert, 0, len(s.alerts))
	for _, a := range s.alerts {
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedDate.After(out[j].CreatedDate) })
	return out, nil
}

func (s *MemoryStore) SaveAlert(ctx context.Context, a *model.PriceAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts[a.ID] = a.Clone()
	return nil
}

func (s *MemoryStore) DeleteAlert(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.alerts, id)
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// MemoryQuoteCache 进程内的最后报价缓存
type MemoryQuoteCache struct {
	mu     sync.RWMutex
	quotes map[string]model.Quote
}

func NewMemoryQuoteCache() *MemoryQuoteCache {
	return &MemoryQuoteCache{quotes: make(map[string]model.Quote)}
}

func (c *MemoryQuoteCache) Put(ctx context.Context, q *model.Quote) error {
	if q == nil || q.Price <= 0 {
		return nil
	}
	c.mu.Lock()
	c.quotes[q.Symbol] = *q
	c.mu.Unlock()
	return nil
}

func (c *MemoryQuoteCache) Get(ctx context.Context, symbol string) (*model.Quote, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	q, ok := c.quotes[model.NormalizeSymbol(symbol)]
	if !ok {
		return nil, nil
	}
	return &q, nil
}

var (
	_ port.Store      = (*MemoryStore)(nil)
	_ port.QuoteCache = (*MemoryQuoteCache)(nil)
)
