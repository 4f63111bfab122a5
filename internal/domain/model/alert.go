package model

import (
	"fmt"
	"math"
	"strings"
	"time"
)

type AlertType string

const (
	AlertPriceAbove       AlertType = "price_above"
	AlertPriceBelow       AlertType = "price_below"
	AlertPercentageChange AlertType = "percentage_change"
)

func ParseAlertType(s string) (AlertType, error) {
	switch AlertType(strings.ToLower(strings.TrimSpace(s))) {
	case AlertPriceAbove:
		return AlertPriceAbove, nil
	case AlertPriceBelow:
		return AlertPriceBelow, nil
	case AlertPercentageChange:
		return AlertPercentageChange, nil
	}
	return "", invalid("alert_type", fmt.Sprintf("%q is unknown", s))
}

// AlertState 由 IsActive 和 TriggeredAt 推导
type AlertState string

const (
	AlertArmed    AlertState = "armed"
	AlertFired    AlertState = "fired"
	AlertDisarmed AlertState = "disarmed"
)

// PriceAlert 价格提醒。每次布防最多触发一次
type PriceAlert struct {
	ID             string     `json:"id"`
	Symbol         string     `json:"symbol"`
	TargetPrice    float64    `json:"target_price"`
	Type           AlertType  `json:"alert_type"`
	Delta          float64    `json:"delta,omitempty"`          // percent, percentage_change only
	BaselinePrice  float64    `json:"baseline_price,omitempty"` // captured at arming
	Message        string     `json:"message"`
	IsActive       bool       `json:"is_active"`
	CreatedDate    time.Time  `json:"created_date"`
	TriggeredAt    *time.Time `json:"triggered_at,omitempty"`
	TriggeredPrice float64    `json:"triggered_price,omitempty"`
}

// AlertInput 新建提醒的原始输入
type AlertInput struct {
	Symbol      string  `json:"symbol"`
	Type        string  `json:"alert_type"`
	TargetPrice float64 `json:"target_price"`
	Delta       float64 `json:"delta"`
	Message     string  `json:"message"`
}

func NewPriceAlert(id string, in AlertInput, now time.Time) (*PriceAlert, error) {
	symbol := NormalizeSymbol(in.Symbol)
	if symbol == "" {
		return nil, invalid("symbol", "is empty")
	}
	typ, err := ParseAlertType(in.Type)
	if err != nil {
		return nil, err
	}

	a := &PriceAlert{
		ID:          id,
		Symbol:      symbol,
		Type:        typ,
		Message:     strings.TrimSpace(in.Message),
		IsActive:    true,
		CreatedDate: now,
	}
	switch typ {
	case AlertPriceAbove, AlertPriceBelow:
		if err := positive("target_price", in.TargetPrice); err != nil {
			return nil, err
		}
		a.TargetPrice = in.TargetPrice
	case AlertPercentageChange:
		if math.IsNaN(in.Delta) || math.IsInf(in.Delta, 0) || in.Delta == 0 {
			return nil, invalid("delta", "must be a non-zero percentage")
		}
		a.Delta = in.Delta
	}
	if a.Message == "" {
		a.Message = a.Describe()
	}
	return a, nil
}

func (a *PriceAlert) State() AlertState {
	switch {
	case a.IsActive:
		return AlertArmed
	case a.TriggeredAt != nil:
		return AlertFired
	default:
		return AlertDisarmed
	}
}

// Evaluate 判断观察价格是否满足触发条件。percentage_change 在没有基准价时不触发
func (a *PriceAlert) Evaluate(price float64) bool {
	if price <= 0 || math.IsNaN(price) {
		return false
	}
	switch a.Type {
	case AlertPriceAbove:
		return price >= a.TargetPrice
	case AlertPriceBelow:
		return price <= a.TargetPrice
	case AlertPercentageChange:
		if a.BaselinePrice <= 0 {
			return false
		}
		change := (price - a.BaselinePrice) / a.BaselinePrice * 100
		if a.Delta > 0 {
			return change >= a.Delta
		}
		return change <= a.Delta
	}
	return false
}

// NeedsBaseline reports whether a percentage alert still waits for its reference price.
func (a *PriceAlert) NeedsBaseline() bool {
	return a.Type == AlertPercentageChange && a.BaselinePrice <= 0
}

// Fire 标记为已触发
func (a *PriceAlert) Fire(price float64, at time.Time) {
	a.IsActive = false
	a.TriggeredAt = &at
	a.TriggeredPrice = price
}

// Arm 重新布防，清除上一次触发记录和基准价
func (a *PriceAlert) Arm() {
	a.IsActive = true
	a.TriggeredAt = nil
	a.TriggeredPrice = 0
	if a.Type == AlertPercentageChange {
		a.BaselinePrice = 0
	}
}

func (a *PriceAlert) Disarm() { a.IsActive = false }

func (a *PriceAlert) Describe() string {
	switch a.Type {
	case AlertPriceAbove:
		return fmt.Sprintf("%s rose to %.2f or above", a.Symbol, a.TargetPrice)
	case AlertPriceBelow:
		return fmt.Sprintf("%s fell to %.2f or below", a.Symbol, a.TargetPrice)
	case AlertPercentageChange:
		return fmt.Sprintf("%s moved %+.2f%%", a.Symbol, a.Delta)
	}
	return a.Symbol
}

// ConfirmationID / TriggerID 是该提醒在通知端使用的两个标识
func (a *PriceAlert) ConfirmationID() string { return ConfirmationID(a.ID) }
func (a *PriceAlert) TriggerID() string      { return TriggerID(a.ID) }

func ConfirmationID(alertID string) string { return "alert:" + alertID + ":set" }
func TriggerID(alertID string) string      { return "alert:" + alertID + ":fired" }

func (a *PriceAlert) Clone() *PriceAlert {
	c := *a
	if a.TriggeredAt != nil {
		t := *a.TriggeredAt
		c.TriggeredAt = &t
	}
	return &c
}
