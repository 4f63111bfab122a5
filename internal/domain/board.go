package domain

import (
	"strings"
	"sync"
)

// Board 实时看板：按顺序记录一组代码的最新价格
type Board struct {
	mu      sync.RWMutex
	order   []string
	symbols map[string]*PriceState
}

func NewBoard(symbols []string) *Board {
	b := &Board{symbols: make(map[string]*PriceState)}
	b.SetSymbols(symbols)
	return b
}

// SetSymbols 替换代码列表，保留仍在列表中的代码的状态
func (b *Board) SetSymbols(symbols []string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	order := make([]string, 0, len(symbols))
	next := make(map[string]*PriceState, len(symbols))
	for _, s := range symbols {
		u := strings.ToUpper(strings.TrimSpace(s))
		if u == "" {
			continue
		}
		if _, dup := next[u]; dup {
			continue
		}
		order = append(order, u)
		if st := b.symbols[u]; st != nil {
			next[u] = st
		} else {
			next[u] = &PriceState{}
		}
	}
	b.order = order
	b.symbols = next
}

// Update returns true if the price has changed. Unknown symbols are ignored.
func (b *Board) Update(symbol, price, source string) bool {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	price = strings.TrimSpace(price)
	if symbol == "" || price == "" {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.symbols[symbol]
	if st == nil {
		return false
	}
	return st.Update(price, source)
}

// Snapshot returns a copy of the current state.
func (b *Board) Snapshot() map[string]PriceState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	snap := make(map[string]PriceState, len(b.symbols))
	for sym, st := range b.symbols {
		snap[sym] = *st
	}
	return snap
}

// Symbols returns ordered list of symbols
func (b *Board) Symbols() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, len(b.order))
	copy(out, b.order)
	return out
}
