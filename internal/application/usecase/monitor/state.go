package monitor

import (
	"context"
	"sort"

	"folio/internal/domain/model"
)

type entry struct {
	alert *model.PriceAlert
	// gen 每次布防或撤防时递增，旧一代的查询结果被丢弃
	gen      uint64
	inflight bool
	cancel   context.CancelFunc
}

// abandon 取消正在进行的查询，结果回来时会因代数不匹配被丢弃
func (e *entry) abandon() {
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.inflight = false
	e.gen++
}

type tickState struct {
	pending int
	waiters []chan struct{}
}

// State 提醒集合。只在所有者 goroutine 中访问，因此不加锁
type State struct {
	entries  map[string]*entry
	ticks    map[uint64]*tickState
	lastTick uint64
}

func NewState() *State {
	return &State{
		entries: make(map[string]*entry),
		ticks:   make(map[uint64]*tickState),
	}
}

func (s *State) Put(a *model.PriceAlert) *entry {
	if old, ok := s.entries[a.ID]; ok {
		old.alert = a
		return old
	}
	e := &entry{alert: a}
	s.entries[a.ID] = e
	return e
}

func (s *State) Get(id string) (*entry, bool) {
	e, ok := s.entries[id]
	return e, ok
}

func (s *State) Delete(id string) {
	if e, ok := s.entries[id]; ok {
		e.abandon()
		delete(s.entries, id)
	}
}

// Armed 返回需要在本轮查询报价的条目（跳过仍有查询在途的）
func (s *State) Armed() []*entry {
	out := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		if e.alert.IsActive && !e.inflight {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].alert.ID < out[j].alert.ID })
	return out
}

// Snapshot returns copies of every alert, newest first.
func (s *State) Snapshot() []model.PriceAlert {
	out := make([]model.PriceAlert, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, *e.alert.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedDate.Equal(out[j].CreatedDate) {
			return out[i].CreatedDate.After(out[j].CreatedDate)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *State) AbandonAll() {
	for _, e := range s.entries {
		e.abandon()
	}
}

// BeginTick registers a tick expecting n results.
func (s *State) BeginTick(n int, done chan struct{}) uint64 {
	s.lastTick++
	id := s.lastTick
	if n == 0 {
		if done != nil {
			close(done)
		}
		return id
	}
	ts := &tickState{pending: n}
	if done != nil {
		ts.waiters = append(ts.waiters, done)
	}
	s.ticks[id] = ts
	return id
}

// Settle 记录一个查询完成；该轮全部完成时唤醒等待者
func (s *State) Settle(tick uint64) {
	ts, ok := s.ticks[tick]
	if !ok {
		return
	}
	ts.pending--
	if ts.pending > 0 {
		return
	}
	for _, ch := range ts.waiters {
		close(ch)
	}
	delete(s.ticks, tick)
}

// ReleaseTicks wakes every waiter; used on shutdown.
func (s *State) ReleaseTicks() {
	for id, ts := range s.ticks {
		for _, ch := range ts.waiters {
			close(ch)
		}
		delete(s.ticks, id)
	}
}
