package console

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"folio/internal/domain"
	"folio/internal/domain/model"
	dsvc "folio/internal/domain/service"
)

func TestRenderLine(t *testing.T) {
	b := domain.NewBoard([]string{"AAPL", "MSFT", "NVDA"})
	b.Update("AAPL", "100", "live")
	b.Update("AAPL", "101.5", "live")
	b.Update("MSFT", "400", "demo")

	r := NewRenderer("USD", false)
	got := r.RenderLine(b.Symbols(), b.Snapshot(), false)
	want := "[FOLIO] AAPL 101.50▲  ||  MSFT 400.00 (demo)  ||  NVDA -- "
	if got != want {
		t.Errorf("got  %q\nwant %q", got, want)
	}

	live := r.RenderLine(b.Symbols(), b.Snapshot(), true)
	if !strings.HasPrefix(live, "\r") {
		t.Errorf("live line should start with carriage return: %q", live)
	}
}

func TestRenderSummary(t *testing.T) {
	now := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	win, _ := model.NewPosition("a", model.PositionInput{Symbol: "AAPL", Sector: "Tech", Quantity: 10, BuyPrice: 100, CurrentPrice: 110}, now)
	loss, _ := model.NewPosition("b", model.PositionInput{Symbol: "XOM", Sector: "Energy", Quantity: 2, BuyPrice: 50}, now)
	_ = loss.Close(40, now)

	positions := []*model.Position{win, loss}
	var buf bytes.Buffer
	NewRenderer("USD", false).RenderSummary(&buf, dsvc.Aggregate(positions), []model.Position{*win, *loss})
	out := buf.String()

	for _, want := range []string{
		"Portfolio (1 active, 1 closed)",
		"Value       $1,100.00",
		"AAPL     Active",
		"XOM      Closed",
		"+10.00%",
		"-$20.00",
		"Tech",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\033[") {
		t.Error("plain output must not contain escape codes")
	}
}
