package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"folio/internal/domain/model"
	"folio/internal/infrastructure/svc"
)

type alertsCmd struct {
	in model.AlertInput
}

func (*alertsCmd) Name() string     { return "alerts" }
func (*alertsCmd) Synopsis() string { return "list, add, toggle, remove or check price alerts" }
func (*alertsCmd) Usage() string {
	return `folio alerts [flags] list
folio alerts -symbol AAPL -type price_above|price_below -target 200 [-message text] add
folio alerts -symbol AAPL -type percentage_change -delta -5 [-message text] add
folio alerts toggle <id>
folio alerts remove <id>
folio alerts check

  "check" runs one evaluation round and fires alerts whose condition holds.
`
}

func (c *alertsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.in.Symbol, "symbol", "", "ticker symbol")
	f.StringVar(&c.in.Type, "type", "price_above", "price_above, price_below or percentage_change")
	f.Float64Var(&c.in.TargetPrice, "target", 0, "target price for price_above/price_below")
	f.Float64Var(&c.in.Delta, "delta", 0, "signed percent move for percentage_change")
	f.StringVar(&c.in.Message, "message", "", "text appended to the notification")
}

func (c *alertsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	action := "list"
	if f.NArg() > 0 {
		action = f.Arg(0)
	}
	id := ""
	if action == "toggle" || action == "remove" {
		if f.NArg() < 2 {
			fmt.Fprintf(os.Stderr, "alerts %s needs an alert id\n", action)
			return subcommands.ExitUsageError
		}
		id = f.Arg(1)
	}

	sc, err := bootstrap(ctx, true)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer sc.Close()

	if err := runAlerts(ctx, sc, func(ctx context.Context) error {
		return c.do(ctx, sc, action, id)
	}); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func (c *alertsCmd) do(ctx context.Context, sc *svc.ServiceContext, action, id string) error {
	switch action {
	case "list":
	case "add":
		a, err := sc.Alerts.Add(ctx, c.in)
		if err != nil {
			return err
		}
		fmt.Printf("added %s\n", a.ID)
	case "toggle":
		a, err := sc.Alerts.Toggle(ctx, id)
		if err != nil {
			return err
		}
		fmt.Printf("%s is now %s\n", a.ID, a.State())
	case "remove":
		if err := sc.Alerts.Remove(ctx, id); err != nil {
			return err
		}
		fmt.Printf("removed %s\n", id)
	case "check":
		if err := sc.Alerts.Evaluate(ctx); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown action %q", action)
	}

	list, err := sc.Alerts.Alerts(ctx)
	if err != nil {
		return err
	}
	fmt.Print(sc.Alerts.Formatter().Render(list))
	return nil
}

// runAlerts 在引擎运行期间执行 fn，结束后停止引擎
func runAlerts(ctx context.Context, sc *svc.ServiceContext, fn func(context.Context) error) error {
	rctx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- sc.Alerts.Run(rctx) }()

	err := fn(ctx)
	cancel()
	if runErr := <-done; err == nil {
		err = runErr
	}
	return err
}
