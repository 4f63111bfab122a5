package console

import (
	"bytes"
	"context"
	"testing"
	"time"

	"folio/internal/application/port"
)

func TestSinkPlain(t *testing.T) {
	var buf bytes.Buffer
	s := NewSink(&buf, false)

	ts := time.Date(2024, 5, 1, 9, 30, 0, 0, time.Local).UnixMilli()
	if err := s.Send(context.Background(), port.Notification{ID: "x", Title: "AAPL price alert", Body: "AAPL is at $101.00", Ts: ts}); err != nil {
		t.Fatal(err)
	}
	if err := s.Retract(context.Background(), []string{"alert:1:set", "alert:1:fired"}); err != nil {
		t.Fatal(err)
	}

	want := "2024-05-01 09:30:00 AAPL price alert AAPL is at $101.00\nwithdrawn: alert:1:set, alert:1:fired\n"
	if buf.String() != want {
		t.Errorf("got %q\nwant %q", buf.String(), want)
	}
}
