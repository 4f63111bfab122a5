package quote

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"sort"
	"strings"
	"time"

	"folio/internal/domain/model"
)

// Demo 离线演示数据：同一代码同一天得到同样的报价和走势
type Demo struct {
	now func() time.Time
}

func NewDemo() *Demo { return &Demo{now: time.Now} }

var demoUniverse = []model.SymbolMatch{
	{Symbol: "AAPL", Name: "Apple Inc.", Exchange: "NASDAQ"},
	{Symbol: "AMZN", Name: "Amazon.com Inc.", Exchange: "NASDAQ"},
	{Symbol: "BP", Name: "BP p.l.c.", Exchange: "NYSE"},
	{Symbol: "GOOGL", Name: "Alphabet Inc.", Exchange: "NASDAQ"},
	{Symbol: "JNJ", Name: "Johnson & Johnson", Exchange: "NYSE"},
	{Symbol: "JPM", Name: "JPMorgan Chase & Co.", Exchange: "NYSE"},
	{Symbol: "META", Name: "Meta Platforms Inc.", Exchange: "NASDAQ"},
	{Symbol: "MSFT", Name: "Microsoft Corporation", Exchange: "NASDAQ"},
	{Symbol: "NVDA", Name: "NVIDIA Corporation", Exchange: "NASDAQ"},
	{Symbol: "SPY", Name: "SPDR S&P 500 ETF Trust", Exchange: "ARCA"},
	{Symbol: "TSLA", Name: "Tesla Inc.", Exchange: "NASDAQ"},
	{Symbol: "V", Name: "Visa Inc.", Exchange: "NYSE"},
	{Symbol: "XOM", Name: "Exxon Mobil Corporation", Exchange: "NYSE"},
}

func (d *Demo) Quote(ctx context.Context, symbol string) (*model.Quote, error) {
	symbol = model.NormalizeSymbol(symbol)
	now := d.now()
	base := basePrice(symbol)
	prev := base * wobble(symbol, dayIndex(now)-1)
	price := round2(base * wobble(symbol, dayIndex(now)))
	change := round2(price - prev)
	return &model.Quote{
		Symbol:        symbol,
		Price:         price,
		Change:        change,
		ChangePercent: round2(change / prev * 100),
		Timestamp:     now,
		Source:        model.SourceDemo,
	}, nil
}

// History 生成一段随机游走，终点接近当日演示价格
func (d *Demo) History(ctx context.Context, symbol string, tf model.Timeframe) ([]model.Bar, error) {
	symbol = model.NormalizeSymbol(symbol)
	span, step := tf.Lookback()
	n := int(span / step)
	if n > 400 {
		n = 400
	}
	now := d.now().Truncate(step)
	seed := hash(symbol)
	rng := rand.New(rand.NewPCG(seed, uint64(dayIndex(now))))

	price := basePrice(symbol) * wobble(symbol, dayIndex(now)-n/5)
	bars := make([]model.Bar, 0, n)
	for i := n - 1; i >= 0; i-- {
		open := price
		move := (rng.Float64() - 0.5) * 0.03 * open
		closePx := math.Max(open+move, model.MinPrice)
		hi := math.Max(open, closePx) * (1 + rng.Float64()*0.01)
		lo := math.Min(open, closePx) * (1 - rng.Float64()*0.01)
		bars = append(bars, model.Bar{
			Time:   now.Add(-time.Duration(i) * step),
			Open:   round2(open),
			High:   round2(hi),
			Low:    round2(math.Max(lo, model.MinPrice)),
			Close:  round2(closePx),
			Volume: int64(100_000 + rng.IntN(5_000_000)),
		})
		price = closePx
	}
	return bars, nil
}

func (d *Demo) Search(ctx context.Context, query string) ([]model.SymbolMatch, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return []model.SymbolMatch{}, nil
	}
	out := make([]model.SymbolMatch, 0, 5)
	for _, m := range demoUniverse {
		if strings.Contains(strings.ToLower(m.Symbol), q) || strings.Contains(strings.ToLower(m.Name), q) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.HasPrefix(strings.ToLower(out[i].Symbol), q) && !strings.HasPrefix(strings.ToLower(out[j].Symbol), q)
	})
	if len(out) > 5 {
		out = out[:5]
	}
	return out, nil
}

func hash(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}

// basePrice 20 到 500 之间
func basePrice(symbol string) float64 {
	return 20 + float64(hash(symbol)%48000)/100
}

// wobble ±3% daily variation
func wobble(symbol string, day int) float64 {
	phase := float64(hash(symbol)%360) * math.Pi / 180
	return 1 + 0.03*math.Sin(float64(day)/3+phase)
}

func dayIndex(t time.Time) int {
	return int(t.UTC().Unix() / 86400)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
