// Command energyctl is a terminal client for the energy exchange.
//
// Every invocation restores the persisted session and revalidates it
// before running the subcommand:
//
//	energyctl login -email ada@example.com -password secret1
//	energyctl market -sort price -max-price 60
//	energyctl create -type buy -amount 5 -price 48
//	energyctl ticker -max-price 60
//	energyctl watch
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/xtrntr/energytrade/internal/app"
	"github.com/xtrntr/energytrade/internal/config"
	"github.com/xtrntr/energytrade/internal/exchangeapi"
	"github.com/xtrntr/energytrade/internal/logging"
	"github.com/xtrntr/energytrade/internal/trading"
)

// env is what a subcommand runs against
type env struct {
	app    *app.App
	out    io.Writer
	errOut io.Writer
	json   bool
}

type command struct {
	usage string
	run   func(ctx context.Context, e *env, args []string) error
}

var commands = map[string]command{
	"register":     {"register -name NAME -email EMAIL -password PASSWORD", cmdRegister},
	"login":        {"login -email EMAIL -password PASSWORD", cmdLogin},
	"logout":       {"logout", cmdLogout},
	"whoami":       {"whoami", cmdWhoami},
	"balance":      {"balance", cmdBalance},
	"market":       {"market [filter flags]", cmdMarket},
	"hint":         {"hint", cmdHint},
	"orders":       {"orders [-type buy|sell] [-status S] [-search TEXT] [filter flags]", cmdOrders},
	"order":        {"order ID", cmdOrder},
	"create":       {"create -type buy|sell -amount MWH -price EUR", cmdCreate},
	"edit":         {"edit ID [-amount MWH] [-price EUR]", cmdEdit},
	"cancel":       {"cancel ID", cmdCancel},
	"fulfilled":    {"fulfilled", cmdFulfilled},
	"transactions": {"transactions [-type buy|sell] [filter flags]", cmdTransactions},
	"stats":        {"stats [-tz ZONE]", cmdStats},
	"dashboard":    {"dashboard", cmdDashboard},
	"ticker":       {"ticker [-count N] [filter flags]", cmdTicker},
	"watch":        {"watch [-interval DURATION]", cmdWatch},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("energyctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", os.Getenv("ENERGY_CONFIG"), "path to YAML config file")
	envFile := fs.String("env-file", ".env", "dotenv file to load")
	asJSON := fs.Bool("json", false, "print JSON instead of tables")
	fs.Usage = func() { usage(fs) }
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}
	name, rest := fs.Arg(0), fs.Args()[1:]
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "energyctl: unknown command %q\n", name)
		fs.Usage()
		return 2
	}

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		fmt.Fprintf(stderr, "energyctl: %v\n", err)
		return 1
	}
	logger, err := logging.New(stderr, logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Service: "energyctl"})
	if err != nil {
		fmt.Fprintf(stderr, "energyctl: %v\n", err)
		return 1
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(stderr, "energyctl: %v\n", err)
		return 1
	}
	defer a.Close()

	a.Session.CheckAuth(ctx)

	e := &env{app: a, out: stdout, errOut: stderr, json: *asJSON}
	if err := cmd.run(ctx, e, rest); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 2
		}
		fmt.Fprintf(stderr, "energyctl %s: %s\n", name, describe(err))
		return 1
	}
	return 0
}

func usage(fs *flag.FlagSet) {
	w := fs.Output()
	fmt.Fprintln(w, "usage: energyctl [-config FILE] [-env-file FILE] [-json] COMMAND [args]")
	fmt.Fprintln(w, "\ncommands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %s\n", commands[name].usage)
	}
	fmt.Fprintln(w, "\nglobal flags:")
	fs.PrintDefaults()
}

// describe turns an error into a message for the terminal
func describe(err error) string {
	var verr *trading.ValidationError
	switch {
	case errors.As(err, &verr):
		return verr.Error()
	case errors.Is(err, trading.ErrNotAuthenticated):
		return "not signed in, run energyctl login"
	case exchangeapi.IsCredential(err):
		return "the exchange rejected the session, run energyctl login"
	case exchangeapi.IsTransient(err):
		return "exchange unreachable: " + err.Error()
	}
	return err.Error()
}
