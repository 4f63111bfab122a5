package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	dsvc "folio/internal/domain/service"
	"folio/internal/interfaces/console"
)

type summaryCmd struct {
	refresh bool
	search  string
	filter  string
	sort    string
}

func (*summaryCmd) Name() string     { return "summary" }
func (*summaryCmd) Synopsis() string { return "print portfolio metrics and positions" }
func (*summaryCmd) Usage() string {
	return `folio summary [-refresh] [-search text] [-filter all|active|closed|profitable|unprofitable] [-sort date_added|symbol|performance|value|risk]
`
}

func (c *summaryCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.refresh, "refresh", false, "fetch current prices before printing")
	f.StringVar(&c.search, "search", "", "substring matched against symbol, name, sector and tags")
	f.StringVar(&c.filter, "filter", "all", "position filter")
	f.StringVar(&c.sort, "sort", "date_added", "sort key")
}

func (c *summaryCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	filter, err := dsvc.ParseFilter(c.filter)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}
	sortKey, err := dsvc.ParseSort(c.sort)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}

	sc, err := bootstrap(ctx, true)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer sc.Close()

	if c.refresh {
		if _, err := sc.Prices.RefreshOnce(ctx); err != nil {
			fmt.Fprintln(os.Stderr, "price refresh:", err)
		}
	}

	view := sc.Book.SetQuery(dsvc.Query{Search: c.search, Filter: filter, Sort: sortKey})
	console.NewRenderer(sc.Config.App.Currency, sc.Config.App.LogPretty).RenderSummary(os.Stdout, sc.Book.Portfolio(), view)
	return subcommands.ExitSuccess
}
