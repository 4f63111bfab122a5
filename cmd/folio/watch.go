package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"

	"folio/internal/domain"
	"folio/internal/infrastructure/svc"
	"folio/internal/interfaces/console"
)

type watchCmd struct {
	every time.Duration
}

func (*watchCmd) Name() string     { return "watch" }
func (*watchCmd) Synopsis() string { return "show a live price line for held symbols" }
func (*watchCmd) Usage() string {
	return `folio watch [-every 5s] [SYMBOL ...]

  Without arguments watches the symbols of all active positions.
`
}

func (c *watchCmd) SetFlags(f *flag.FlagSet) {
	f.DurationVar(&c.every, "every", 5*time.Second, "refresh interval")
}

func (c *watchCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	sc, err := bootstrap(ctx, true)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer sc.Close()

	symbols := func() []string {
		if f.NArg() > 0 {
			return f.Args()
		}
		return sc.Book.ActiveSymbols()
	}
	if len(symbols()) == 0 {
		fmt.Fprintln(os.Stderr, "nothing to watch: no active positions and no symbols given")
		return subcommands.ExitUsageError
	}

	g, gctx := errgroup.WithContext(ctx)
	if tr := sc.Tracker(); tr != nil {
		g.Go(func() error { return tr.Run(gctx, symbols, c.every) })
	}
	g.Go(func() error { return watch(gctx, sc, symbols, c.every) })
	if err := g.Wait(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	fmt.Println()
	return subcommands.ExitSuccess
}

func watch(ctx context.Context, sc *svc.ServiceContext, symbols func() []string, every time.Duration) error {
	board := domain.NewBoard(symbols())
	r := console.NewRenderer(sc.Config.App.Currency, sc.Config.App.LogPretty)

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		board.SetSymbols(symbols())
		for _, sym := range board.Symbols() {
			q, err := sc.Quotes.Quote(ctx, sym)
			if err != nil || q == nil {
				continue
			}
			board.Update(sym, strconv.FormatFloat(q.Price, 'f', -1, 64), string(q.Source))
		}
		fmt.Print(r.RenderLine(board.Symbols(), board.Snapshot(), true))

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
