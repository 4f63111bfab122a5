package alpaca

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"folio/internal/domain/model"
)

func TestSnapshotQuote(t *testing.T) {
	ts := time.Date(2024, 6, 3, 14, 30, 0, 0, time.UTC)
	snap := &marketdata.Snapshot{
		LatestTrade:  &marketdata.Trade{Price: 105, Timestamp: ts},
		PrevDailyBar: &marketdata.Bar{Close: 100},
	}
	q, err := snapshotQuote("AAPL", snap, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if q.Price != 105 || q.Change != 5 || math.Abs(q.ChangePercent-5) > 1e-9 {
		t.Errorf("quote: %+v", q)
	}
	if q.Source != model.SourceLive || !q.Timestamp.Equal(ts) {
		t.Errorf("meta: %+v", q)
	}

	if _, err := snapshotQuote("AAPL", &marketdata.Snapshot{}, time.Now()); err == nil {
		t.Error("expected error without a trade")
	}
}

func TestTimeFrameMapping(t *testing.T) {
	if got := timeFrame(model.Timeframe1W); got != marketdata.OneHour {
		t.Errorf("1W: %v", got)
	}
	if got := timeFrame(model.Timeframe3M); got != marketdata.OneDay {
		t.Errorf("3M: %v", got)
	}
	if got := timeFrame(model.Timeframe1D); got.N != 5 || got.Unit != marketdata.Min {
		t.Errorf("1D: %v", got)
	}
}

func TestCallHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	block := make(chan struct{})
	defer close(block)
	_, err := call(ctx, func() (int, error) {
		<-block
		return 1, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected cancellation, got %v", err)
	}
}
