package model

import (
	"math"
	"strings"
	"time"
)

// MinPrice 当前价格下限
const MinPrice = 0.01

// Position 单笔持仓。派生指标全部按需计算，不做缓存
type Position struct {
	ID           string     `json:"id"`
	Symbol       string     `json:"symbol"`
	Name         string     `json:"name"`
	Sector       string     `json:"sector"`
	Quantity     float64    `json:"quantity"`
	BuyPrice     float64    `json:"buy_price"`
	CurrentPrice float64    `json:"current_price"`
	StopLoss     float64    `json:"stop_loss"`
	PriceTarget  float64    `json:"price_target"`
	Thesis       string     `json:"thesis,omitempty"`
	Tags         string     `json:"tags,omitempty"` // comma separated
	Notes        string     `json:"notes,omitempty"`
	DateAdded    time.Time  `json:"date_added"`
	IsActive     bool       `json:"is_active"`
	SellPrice    float64    `json:"sell_price"`
	SellDate     *time.Time `json:"sell_date,omitempty"`
}

// PositionInput 创建持仓的原始输入
type PositionInput struct {
	Symbol       string  `json:"symbol"`
	Name         string  `json:"name"`
	Sector       string  `json:"sector"`
	Quantity     float64 `json:"quantity"`
	BuyPrice     float64 `json:"buy_price"`
	CurrentPrice float64 `json:"current_price"`
	StopLoss     float64 `json:"stop_loss"`
	PriceTarget  float64 `json:"price_target"`
	Thesis       string  `json:"thesis"`
	Tags         string  `json:"tags"`
	Notes        string  `json:"notes"`
}

// PositionEdit 编辑持仓，nil 字段保持不变
type PositionEdit struct {
	Name        *string  `json:"name,omitempty"`
	Sector      *string  `json:"sector,omitempty"`
	Quantity    *float64 `json:"quantity,omitempty"`
	BuyPrice    *float64 `json:"buy_price,omitempty"`
	StopLoss    *float64 `json:"stop_loss,omitempty"`
	PriceTarget *float64 `json:"price_target,omitempty"`
	Thesis      *string  `json:"thesis,omitempty"`
	Tags        *string  `json:"tags,omitempty"`
	Notes       *string  `json:"notes,omitempty"`
}

// NewPosition 校验输入并构造一个活跃持仓。非法数值在此处拒绝，
// 唯一的自动修正是当前价格下限 0.01
func NewPosition(id string, in PositionInput, now time.Time) (*Position, error) {
	symbol := NormalizeSymbol(in.Symbol)
	if symbol == "" {
		return nil, invalid("symbol", "is empty")
	}
	if err := positive("quantity", in.Quantity); err != nil {
		return nil, err
	}
	if err := positive("buy_price", in.BuyPrice); err != nil {
		return nil, err
	}
	if err := nonNegative("current_price", in.CurrentPrice); err != nil {
		return nil, err
	}
	if err := nonNegative("stop_loss", in.StopLoss); err != nil {
		return nil, err
	}
	if err := nonNegative("price_target", in.PriceTarget); err != nil {
		return nil, err
	}

	current := in.CurrentPrice
	if current == 0 {
		current = in.BuyPrice
	}

	return &Position{
		ID:           id,
		Symbol:       symbol,
		Name:         strings.TrimSpace(in.Name),
		Sector:       strings.TrimSpace(in.Sector),
		Quantity:     in.Quantity,
		BuyPrice:     in.BuyPrice,
		CurrentPrice: floorPrice(current),
		StopLoss:     in.StopLoss,
		PriceTarget:  in.PriceTarget,
		Thesis:       in.Thesis,
		Tags:         strings.Join(SplitTags(in.Tags), ","),
		Notes:        in.Notes,
		DateAdded:    now,
		IsActive:     true,
	}, nil
}

// Clone 深拷贝，供写入前的试算
func (p *Position) Clone() *Position {
	c := *p
	if p.SellDate != nil {
		d := *p.SellDate
		c.SellDate = &d
	}
	return &c
}

// Close 平仓：sellPrice、sellDate、isActive 一起变化。重复平仓被拒绝
func (p *Position) Close(sellPrice float64, at time.Time) error {
	if !p.IsActive {
		return ErrAlreadyClosed
	}
	if err := positive("sell_price", sellPrice); err != nil {
		return err
	}
	p.SellPrice = sellPrice
	p.SellDate = &at
	p.IsActive = false
	return nil
}

// UpdateCurrentPrice returns false when the position is closed.
func (p *Position) UpdateCurrentPrice(price float64) bool {
	if !p.IsActive {
		return false
	}
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return false
	}
	p.CurrentPrice = floorPrice(price)
	return true
}

// Apply 应用编辑。数量和买入价只能在持仓活跃时修改
func (p *Position) Apply(e PositionEdit) error {
	if e.Quantity != nil || e.BuyPrice != nil {
		if !p.IsActive {
			return ErrAlreadyClosed
		}
	}
	if e.Quantity != nil {
		if err := positive("quantity", *e.Quantity); err != nil {
			return err
		}
	}
	if e.BuyPrice != nil {
		if err := positive("buy_price", *e.BuyPrice); err != nil {
			return err
		}
	}
	if e.StopLoss != nil {
		if err := nonNegative("stop_loss", *e.StopLoss); err != nil {
			return err
		}
	}
	if e.PriceTarget != nil {
		if err := nonNegative("price_target", *e.PriceTarget); err != nil {
			return err
		}
	}

	if e.Name != nil {
		p.Name = strings.TrimSpace(*e.Name)
	}
	if e.Sector != nil {
		p.Sector = strings.TrimSpace(*e.Sector)
	}
	if e.Quantity != nil {
		p.Quantity = *e.Quantity
	}
	if e.BuyPrice != nil {
		p.BuyPrice = *e.BuyPrice
	}
	if e.StopLoss != nil {
		p.StopLoss = *e.StopLoss
	}
	if e.PriceTarget != nil {
		p.PriceTarget = *e.PriceTarget
	}
	if e.Thesis != nil {
		p.Thesis = *e.Thesis
	}
	if e.Tags != nil {
		p.Tags = strings.Join(SplitTags(*e.Tags), ",")
	}
	if e.Notes != nil {
		p.Notes = *e.Notes
	}
	return nil
}

func (p *Position) TotalInvestment() float64 { return p.Quantity * p.BuyPrice }
func (p *Position) CurrentValue() float64    { return p.Quantity * p.CurrentPrice }

func (p *Position) UnrealizedPnL() float64 {
	if !p.IsActive {
		return 0
	}
	return p.CurrentValue() - p.TotalInvestment()
}

func (p *Position) UnrealizedPnLPercent() float64 {
	inv := p.TotalInvestment()
	if !p.IsActive || inv == 0 {
		return 0
	}
	return p.UnrealizedPnL() / inv * 100
}

func (p *Position) RealizedPnL() float64 {
	if p.IsActive {
		return 0
	}
	return p.Quantity * (p.SellPrice - p.BuyPrice)
}

func (p *Position) RealizedPnLPercent() float64 {
	if p.IsActive || p.BuyPrice == 0 {
		return 0
	}
	return (p.SellPrice - p.BuyPrice) / p.BuyPrice * 100
}

// PnL 活跃持仓取未实现盈亏，已平仓取已实现盈亏
func (p *Position) PnL() float64 {
	if p.IsActive {
		return p.UnrealizedPnL()
	}
	return p.RealizedPnL()
}

func (p *Position) PnLPercent() float64 {
	if p.IsActive {
		return p.UnrealizedPnLPercent()
	}
	return p.RealizedPnLPercent()
}

func (p *Position) RiskAmount() float64 {
	return p.Quantity * math.Abs(p.BuyPrice-p.StopLoss)
}

func (p *Position) PotentialReward() float64 {
	return p.Quantity * math.Abs(p.PriceTarget-p.BuyPrice)
}

func (p *Position) RiskRewardRatio() float64 {
	risk := p.RiskAmount()
	if risk == 0 {
		return 0
	}
	return p.PotentialReward() / risk
}

// ProgressToTarget is only defined when the target sits above the entry.
func (p *Position) ProgressToTarget() (float64, bool) {
	if p.PriceTarget <= p.BuyPrice {
		return 0, false
	}
	return (p.CurrentPrice - p.BuyPrice) / (p.PriceTarget - p.BuyPrice) * 100, true
}

func (p *Position) TagList() []string { return SplitTags(p.Tags) }

func (p *Position) Status() string {
	if p.IsActive {
		return "Active"
	}
	return "Closed"
}

// NormalizeSymbol 去空白并转大写
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// SplitTags 拆分逗号分隔的标签，丢弃空项和重复项
func SplitTags(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	seen := map[string]struct{}{}
	for _, t := range parts {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func floorPrice(p float64) float64 {
	if p < MinPrice {
		return MinPrice
	}
	return p
}

func positive(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return invalid(field, "is not a number")
	}
	if v <= 0 {
		return invalid(field, "must be positive")
	}
	return nil
}

func nonNegative(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return invalid(field, "is not a number")
	}
	if v < 0 {
		return invalid(field, "must not be negative")
	}
	return nil
}
