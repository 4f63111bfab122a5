package service

import (
	"fmt"
	"sort"
	"strings"

	"folio/internal/domain/model"
)

type Filter string

const (
	FilterAll          Filter = "all"
	FilterActive       Filter = "active"
	FilterClosed       Filter = "closed"
	FilterProfitable   Filter = "profitable"
	FilterUnprofitable Filter = "unprofitable"
)

type SortKey string

const (
	SortDateAdded   SortKey = "date_added"
	SortSymbol      SortKey = "symbol"
	SortPerformance SortKey = "performance"
	SortValue       SortKey = "value"
	SortRisk        SortKey = "risk"
)

func ParseFilter(s string) (Filter, error) {
	f := Filter(strings.ToLower(strings.TrimSpace(s)))
	switch f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterActive, FilterClosed, FilterProfitable, FilterUnprofitable:
		return f, nil
	}
	return "", fmt.Errorf("%w: filter %q is unknown", model.ErrInvalidInput, s)
}

func ParseSort(s string) (SortKey, error) {
	k := SortKey(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case "", "dateadded":
		return SortDateAdded, nil
	case SortDateAdded, SortSymbol, SortPerformance, SortValue, SortRisk:
		return k, nil
	}
	return "", fmt.Errorf("%w: sort %q is unknown", model.ErrInvalidInput, s)
}

// Query 展示视图的三个输入
type Query struct {
	Search string  `json:"search"`
	Filter Filter  `json:"filter"`
	Sort   SortKey `json:"sort"`
}

func DefaultQuery() Query {
	return Query{Filter: FilterAll, Sort: SortDateAdded}
}

// Apply 依次执行搜索、过滤、排序，返回新切片，不修改输入
func Apply(positions []*model.Position, q Query) []*model.Position {
	out := make([]*model.Position, 0, len(positions))
	needle := strings.ToLower(strings.TrimSpace(q.Search))
	for _, p := range positions {
		if !matchSearch(p, needle) || !matchFilter(p, q.Filter) {
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, sortLess(out, q.Sort))
	return out
}

func matchSearch(p *model.Position, needle string) bool {
	if needle == "" {
		return true
	}
	return strings.Contains(strings.ToLower(p.Symbol), needle) ||
		strings.Contains(strings.ToLower(p.Name), needle) ||
		strings.Contains(strings.ToLower(p.Sector), needle)
}

func matchFilter(p *model.Position, f Filter) bool {
	switch f {
	case FilterActive:
		return p.IsActive
	case FilterClosed:
		return !p.IsActive
	case FilterProfitable:
		return p.PnL() > 0
	case FilterUnprofitable:
		return p.PnL() < 0
	default:
		return true
	}
}

func sortLess(ps []*model.Position, key SortKey) func(i, j int) bool {
	switch key {
	case SortSymbol:
		return func(i, j int) bool { return ps[i].Symbol < ps[j].Symbol }
	case SortPerformance:
		return func(i, j int) bool { return ps[i].PnLPercent() > ps[j].PnLPercent() }
	case SortValue:
		return func(i, j int) bool { return ps[i].CurrentValue() > ps[j].CurrentValue() }
	case SortRisk:
		return func(i, j int) bool { return ps[i].RiskAmount() > ps[j].RiskAmount() }
	default:
		return func(i, j int) bool { return ps[i].DateAdded.After(ps[j].DateAdded) }
	}
}
