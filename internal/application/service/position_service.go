package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"folio/internal/application/port"
	"folio/internal/domain/model"
	dsvc "folio/internal/domain/service"
)

// PositionService 持仓集合的唯一所有者。
// 所有变更（新增、平仓、编辑、删除、价格更新）先写仓储，成功后才修改内存，
// 并在同一把写锁内重新计算展示视图；读操作拿读锁并返回快照。
type PositionService struct {
	mu sync.RWMutex

	repo      port.PositionRepository
	positions []*model.Position // date added desc
	query     dsvc.Query
	displayed []*model.Position
	lastErr   error

	now   func() time.Time
	newID func() string
}

func NewPositionService(repo port.PositionRepository) *PositionService {
	return &PositionService{
		repo:  repo,
		query: dsvc.DefaultQuery(),
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Load 从仓储重新加载全部持仓。失败时保留内存中的旧数据
func (s *PositionService) Load(ctx context.Context) error {
	list, err := s.repo.List(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		return s.fail("fetch", err)
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].DateAdded.After(list[j].DateAdded) })
	s.positions = list
	s.lastErr = nil
	s.recompute()
	log.Info().Int("positions", len(list)).Msg("positions loaded")
	return nil
}

func (s *PositionService) Add(ctx context.Context, in model.PositionInput) (model.Position, error) {
	pos, err := model.NewPosition(s.newID(), in, s.now())
	if err != nil {
		return model.Position{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.Create(ctx, pos); err != nil {
		return model.Position{}, s.fail("create", err)
	}
	s.lastErr = nil
	s.positions = append([]*model.Position{pos}, s.positions...)
	sort.SliceStable(s.positions, func(i, j int) bool {
		return s.positions[i].DateAdded.After(s.positions[j].DateAdded)
	})
	s.recompute()

	log.Info().Str("id", pos.ID).Str("symbol", pos.Symbol).Msg("position added")
	return *pos.Clone(), nil
}

// Close 平仓。已平仓的持仓返回 model.ErrAlreadyClosed
func (s *PositionService) Close(ctx context.Context, id string, sellPrice float64) (model.Position, error) {
	return s.mutate(ctx, id, func(p *model.Position) error {
		return p.Close(sellPrice, s.now())
	})
}

func (s *PositionService) Edit(ctx context.Context, id string, e model.PositionEdit) (model.Position, error) {
	return s.mutate(ctx, id, func(p *model.Position) error {
		return p.Apply(e)
	})
}

// Update applies an arbitrary mutation to one position.
func (s *PositionService) Update(ctx context.Context, id string, fn func(*model.Position) error) (model.Position, error) {
	return s.mutate(ctx, id, fn)
}

func (s *PositionService) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return fmt.Errorf("%w: %s", model.ErrPositionNotFound, id)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return s.fail("delete", err)
	}
	s.lastErr = nil
	s.positions = append(s.positions[:idx:idx], s.positions[idx+1:]...)
	s.recompute()

	log.Info().Str("id", id).Msg("position deleted")
	return nil
}

// UpdatePrices 按代码批量更新活跃持仓的当前价格，返回实际更新的数量
func (s *PositionService) UpdatePrices(ctx context.Context, prices map[string]float64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	updated := 0
	for i, p := range s.positions {
		price, ok := prices[p.Symbol]
		if !ok || !p.IsActive || p.CurrentPrice == price {
			continue
		}
		next := p.Clone()
		if !next.UpdateCurrentPrice(price) {
			continue
		}
		if err := s.repo.Update(ctx, next); err != nil {
			if firstErr == nil {
				firstErr = s.fail("update", err)
			}
			continue
		}
		s.positions[i] = next
		updated++
	}
	if updated > 0 {
		s.recompute()
	}
	if firstErr == nil {
		s.lastErr = nil
	}
	return updated, firstErr
}

func (s *PositionService) Get(id string) (model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return model.Position{}, fmt.Errorf("%w: %s", model.ErrPositionNotFound, id)
	}
	return *s.positions[idx].Clone(), nil
}

// Positions returns a snapshot of every position, newest first.
func (s *PositionService) Positions() []model.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return values(s.positions)
}

// ActiveSymbols 活跃持仓涉及的代码（去重）
func (s *PositionService) ActiveSymbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	var out []string
	for _, p := range s.positions {
		if !p.IsActive {
			continue
		}
		if _, ok := seen[p.Symbol]; ok {
			continue
		}
		seen[p.Symbol] = struct{}{}
		out = append(out, p.Symbol)
	}
	return out
}

// Portfolio 在读锁内对快照做汇总，调用方拿到的排行榜不与内部数据共享
func (s *PositionService) Portfolio() dsvc.PortfolioMetrics {
	s.mu.RLock()
	snap := clones(s.positions)
	s.mu.RUnlock()
	return dsvc.Aggregate(snap)
}

// SetQuery 替换展示视图的全部输入并同步重算
func (s *PositionService) SetQuery(q dsvc.Query) []model.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q.Filter == "" {
		q.Filter = dsvc.FilterAll
	}
	if q.Sort == "" {
		q.Sort = dsvc.SortDateAdded
	}
	s.query = q
	s.recompute()
	return values(s.displayed)
}

func (s *PositionService) SetSearch(search string) []model.Position {
	return s.setQuery(func(q *dsvc.Query) { q.Search = search })
}

func (s *PositionService) SetFilter(f dsvc.Filter) []model.Position {
	return s.setQuery(func(q *dsvc.Query) { q.Filter = f })
}

func (s *PositionService) SetSort(k dsvc.SortKey) []model.Position {
	return s.setQuery(func(q *dsvc.Query) { q.Sort = k })
}

func (s *PositionService) Query() dsvc.Query {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.query
}

// Displayed 当前视图（已搜索、过滤、排序）
func (s *PositionService) Displayed() []model.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return values(s.displayed)
}

// LastError 最近一次存储失败；成功操作后清空
func (s *PositionService) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

func (s *PositionService) setQuery(fn func(*dsvc.Query)) []model.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.query)
	s.recompute()
	return values(s.displayed)
}

func (s *PositionService) mutate(ctx context.Context, id string, fn func(*model.Position) error) (model.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return model.Position{}, fmt.Errorf("%w: %s", model.ErrPositionNotFound, id)
	}
	next := s.positions[idx].Clone()
	if err := fn(next); err != nil {
		return model.Position{}, err
	}
	if err := s.repo.Update(ctx, next); err != nil {
		return model.Position{}, s.fail("update", err)
	}
	s.lastErr = nil
	s.positions[idx] = next
	s.recompute()
	return *next.Clone(), nil
}

// recompute must be called with the write lock held.
func (s *PositionService) recompute() {
	s.displayed = dsvc.Apply(s.positions, s.query)
}

func (s *PositionService) indexOf(id string) int {
	for i, p := range s.positions {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func (s *PositionService) fail(op string, err error) error {
	var se *model.StorageError
	if !errors.As(err, &se) {
		se = &model.StorageError{Op: op, Err: err}
	}
	s.lastErr = se
	log.Error().Err(err).Str("op", op).Msg("position storage failed")
	return se
}

func clones(in []*model.Position) []*model.Position {
	out := make([]*model.Position, len(in))
	for i, p := range in {
		out[i] = p.Clone()
	}
	return out
}

func values(in []*model.Position) []model.Position {
	out := make([]model.Position, len(in))
	for i, p := range in {
		out[i] = *p.Clone()
	}
	return out
}
