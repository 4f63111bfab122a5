package service

import (
	"encoding/json"
	"sort"
	"strings"

	"folio/internal/domain/model"
)

// TopN 排行榜长度
const TopN = 5

// OtherSector 没有填写行业的持仓归入此类
const OtherSector = "Other"

// ProfitFactor 盈亏比。亏损总和为 0 且有盈利时为无穷大，用标记位表示而不是 +Inf
type ProfitFactor struct {
	Value    float64
	Infinite bool
}

func (pf ProfitFactor) MarshalJSON() ([]byte, error) {
	if pf.Infinite {
		return json.Marshal("inf")
	}
	return json.Marshal(pf.Value)
}

func (pf *ProfitFactor) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*pf = ProfitFactor{Infinite: s == "inf"}
		return nil
	}
	pf.Infinite = false
	return json.Unmarshal(b, &pf.Value)
}

// RankedPosition 排行条目，带上排序所依据的指标
type RankedPosition struct {
	*model.Position
	UnrealizedPnL        float64 `json:"unrealized_pnl"`
	UnrealizedPnLPercent float64 `json:"unrealized_pnl_percent"`
	CurrentValue         float64 `json:"current_value"`
}

// PortfolioMetrics 组合层面的汇总指标。每次读取都重新计算
type PortfolioMetrics struct {
	TotalValue         float64 `json:"total_value"`
	TotalInvestment    float64 `json:"total_investment"`
	TotalUnrealizedPnL float64 `json:"total_unrealized_pnl"`
	TotalRealizedPnL   float64 `json:"total_realized_pnl"`
	TotalPnL           float64 `json:"total_pnl"`
	TotalPnLPercent    float64 `json:"total_pnl_percent"`

	WinRate      float64      `json:"win_rate"`
	AverageWin   float64      `json:"average_win"`
	AverageLoss  float64      `json:"average_loss"`
	ProfitFactor ProfitFactor `json:"profit_factor"`

	SectorAllocation        map[string]float64 `json:"sector_allocation"`
	SectorAllocationPercent map[string]float64 `json:"sector_allocation_percent"`

	TopPerformers    []RankedPosition `json:"top_performers"`
	WorstPerformers  []RankedPosition `json:"worst_performers"`
	LargestPositions []RankedPosition `json:"largest_positions"`

	PortfolioRisk        float64 `json:"portfolio_risk"`
	PortfolioRiskPercent float64 `json:"portfolio_risk_percent"`

	PositionCount int `json:"position_count"`
	ActiveCount   int `json:"active_count"`
	ClosedCount   int `json:"closed_count"`
}

// Aggregate 从完整持仓集合（包括已平仓）计算组合指标。所有除法都有零保护
func Aggregate(positions []*model.Position) PortfolioMetrics {
	m := PortfolioMetrics{
		SectorAllocation:        make(map[string]float64),
		SectorAllocationPercent: make(map[string]float64),
		PositionCount:           len(positions),
	}

	active := make([]*model.Position, 0, len(positions))
	var wins, losses []float64
	var winSum, lossSum float64

	for _, p := range positions {
		m.TotalInvestment += p.TotalInvestment()

		if p.IsActive {
			active = append(active, p)
			value := p.CurrentValue()
			m.TotalValue += value
			m.TotalUnrealizedPnL += p.UnrealizedPnL()
			m.PortfolioRisk += p.RiskAmount()
			m.SectorAllocation[sectorKey(p.Sector)] += value
			continue
		}

		realized := p.RealizedPnL()
		m.TotalRealizedPnL += realized
		switch {
		case realized > 0:
			wins = append(wins, realized)
			winSum += realized
		case realized < 0:
			losses = append(losses, realized)
			lossSum += realized
		}
	}

	m.ActiveCount = len(active)
	m.ClosedCount = len(positions) - len(active)
	m.TotalPnL = m.TotalUnrealizedPnL + m.TotalRealizedPnL
	m.TotalPnLPercent = percent(m.TotalPnL, m.TotalInvestment)

	m.WinRate = percent(float64(len(wins)), float64(m.ClosedCount))
	m.AverageWin = mean(winSum, len(wins))
	m.AverageLoss = mean(lossSum, len(losses))
	m.ProfitFactor = profitFactor(winSum, lossSum)

	if m.TotalValue > 0 {
		for sector, v := range m.SectorAllocation {
			m.SectorAllocationPercent[sector] = v / m.TotalValue * 100
		}
	}
	m.PortfolioRiskPercent = percent(m.PortfolioRisk, m.TotalValue)

	m.TopPerformers = rank(active, func(a, b *model.Position) bool {
		return a.UnrealizedPnLPercent() > b.UnrealizedPnLPercent()
	})
	m.WorstPerformers = rank(active, func(a, b *model.Position) bool {
		return a.UnrealizedPnLPercent() < b.UnrealizedPnLPercent()
	})
	m.LargestPositions = rank(active, func(a, b *model.Position) bool {
		return a.CurrentValue() > b.CurrentValue()
	})
	return m
}

func profitFactor(winSum, lossSum float64) ProfitFactor {
	if lossSum == 0 {
		if winSum > 0 {
			return ProfitFactor{Infinite: true}
		}
		return ProfitFactor{}
	}
	return ProfitFactor{Value: winSum / -lossSum}
}

// rank 稳定排序后取前 TopN 个，输入切片不被修改
func rank(in []*model.Position, less func(a, b *model.Position) bool) []RankedPosition {
	sorted := make([]*model.Position, len(in))
	copy(sorted, in)
	sort.SliceStable(sorted, func(i, j int) bool { return less(sorted[i], sorted[j]) })
	if len(sorted) > TopN {
		sorted = sorted[:TopN]
	}
	out := make([]RankedPosition, 0, len(sorted))
	for _, p := range sorted {
		out = append(out, RankedPosition{
			Position:             p,
			UnrealizedPnL:        p.UnrealizedPnL(),
			UnrealizedPnLPercent: p.UnrealizedPnLPercent(),
			CurrentValue:         p.CurrentValue(),
		})
	}
	return out
}

func sectorKey(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return OtherSector
	}
	return s
}

func percent(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den * 100
}

func mean(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
