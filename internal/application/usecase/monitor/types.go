package monitor

import (
	"context"
	"time"

	"folio/internal/application/port"
	"folio/internal/domain/model"
)

const (
	DefaultInterval     = 60 * time.Second
	DefaultQuoteTimeout = 10 * time.Second
	DefaultParallel     = 8
)

type ServiceDeps struct {
	Quotes   port.QuoteProvider
	Notifier port.Notifier
	Repo     port.AlertRepository // nil keeps alerts in memory only

	Interval     time.Duration // polling period
	QuoteTimeout time.Duration // per lookup
	Parallel     int           // concurrent lookups per tick
	Currency     string        // used in notification bodies
}

func (d *ServiceDeps) applyDefaults() {
	if d.Interval <= 0 {
		d.Interval = DefaultInterval
	}
	if d.QuoteTimeout <= 0 {
		d.QuoteTimeout = DefaultQuoteTimeout
	}
	if d.Parallel <= 0 {
		d.Parallel = DefaultParallel
	}
	if d.Repo == nil {
		d.Repo = NewNoopRepo()
	}
}

// lookupResult 报价查询结果，回传给所有者 goroutine
type lookupResult struct {
	alertID string
	gen     uint64
	tick    uint64 // 0 for baseline captures outside a tick
	quote   *model.Quote
	err     error
}

// command 在所有者 goroutine 中执行
type command func(ctx context.Context)
