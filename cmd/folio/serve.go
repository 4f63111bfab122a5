package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	httpapi "folio/internal/interfaces/http"
)

type serveCmd struct {
	addr string
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "run the alert engine, price refresher and HTTP API" }
func (*serveCmd) Usage() string {
	return `folio serve [-addr :8080]

  Runs until interrupted. Alerts are evaluated every alerts.interval_sec,
  position prices are refreshed every app.refresh_interval_sec.
`
}

func (c *serveCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.addr, "addr", "", "listen address, overrides http.addr")
}

func (c *serveCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	sc, err := bootstrap(ctx, false)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer sc.Close()

	addr := sc.Config.HTTP.Addr
	if c.addr != "" {
		addr = c.addr
	}
	handler := httpapi.NewHandler(sc.Book, sc.Prices, sc.Alerts, sc.Quotes, sc.Config.App.Currency)
	server := httpapi.NewServer(addr, handler)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sc.Alerts.Run(gctx) })
	g.Go(func() error { return sc.Prices.Run(gctx, sc.Config.RefreshInterval()) })
	g.Go(func() error { return server.Run(gctx) })
	if tr := sc.Tracker(); tr != nil {
		g.Go(func() error { return tr.Run(gctx, sc.Book.ActiveSymbols, sc.Config.RefreshInterval()) })
	}

	log.Info().Str("addr", addr).Str("currency", sc.Config.App.Currency).Msg("folio started")
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("folio exited")
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
