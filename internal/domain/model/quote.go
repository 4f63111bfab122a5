package model

import (
	"fmt"
	"strings"
	"time"
)

type QuoteSource string

const (
	SourceLive  QuoteSource = "live"
	SourceCache QuoteSource = "cache"
	SourceDemo  QuoteSource = "demo"
)

// Quote 当前报价
type Quote struct {
	Symbol        string      `json:"symbol"`
	Price         float64     `json:"price"`
	Change        float64     `json:"change"`
	ChangePercent float64     `json:"change_percent"`
	Timestamp     time.Time   `json:"ts"`
	Source        QuoteSource `json:"source"`
}

// Bar OHLCV 数据点
type Bar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// SymbolMatch 搜索结果
type SymbolMatch struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Exchange string `json:"exchange,omitempty"`
}

type Timeframe string

const (
	Timeframe1D Timeframe = "1D"
	Timeframe1W Timeframe = "1W"
	Timeframe1M Timeframe = "1M"
	Timeframe3M Timeframe = "3M"
	Timeframe1Y Timeframe = "1Y"
	Timeframe5Y Timeframe = "5Y"
)

func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(strings.ToUpper(strings.TrimSpace(s)))
	switch tf {
	case "":
		return Timeframe1M, nil
	case Timeframe1D, Timeframe1W, Timeframe1M, Timeframe3M, Timeframe1Y, Timeframe5Y:
		return tf, nil
	}
	return "", invalid("timeframe", fmt.Sprintf("%q is unknown", s))
}

// Lookback returns how far back the series reaches and the spacing of its points.
func (tf Timeframe) Lookback() (span, step time.Duration) {
	const day = 24 * time.Hour
	switch tf {
	case Timeframe1D:
		return day, 5 * time.Minute
	case Timeframe1W:
		return 7 * day, time.Hour
	case Timeframe3M:
		return 90 * day, day
	case Timeframe1Y:
		return 365 * day, day
	case Timeframe5Y:
		return 5 * 365 * day, 7 * day
	default:
		return 30 * day, day
	}
}
