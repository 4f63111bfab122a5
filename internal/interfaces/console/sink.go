package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"folio/internal/application/port"
)

const (
	ansiReset  = "\033[0m"
	ansiBold   = "\033[1m"
	ansiDim    = "\033[2m"
	ansiYellow = "\033[33m"
)

// Sink 把通知打印到终端
type Sink struct {
	mu    sync.Mutex
	w     io.Writer
	color bool
}

func NewSink(w io.Writer, color bool) *Sink {
	if w == nil {
		w = os.Stdout
	}
	return &Sink{w: w, color: color}
}

func (s *Sink) Name() string { return "console" }

func (s *Sink) Send(ctx context.Context, n port.Notification) error {
	ts := time.UnixMilli(n.Ts)
	if n.Ts == 0 {
		ts = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintf(s.w, "%s %s %s\n",
		s.paint(ts.Format("2006-01-02 15:04:05"), ansiDim),
		s.paint(n.Title, ansiBold+ansiYellow),
		n.Body)
	return err
}

func (s *Sink) Retract(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintf(s.w, "%s\n", s.paint("withdrawn: "+strings.Join(ids, ", "), ansiDim))
	return err
}

func (s *Sink) paint(v, c string) string {
	if !s.color {
		return v
	}
	return c + v + ansiReset
}

var (
	_ port.Sender    = (*Sink)(nil)
	_ port.Retractor = (*Sink)(nil)
)
