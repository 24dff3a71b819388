package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/xtrntr/energytrade/internal/auth"
	"github.com/xtrntr/energytrade/internal/exchangeapi"
	"github.com/xtrntr/energytrade/internal/market"
	"github.com/xtrntr/energytrade/internal/models"
)

func cmdRegister(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("register", e.errOut)
	name := fs.String("name", "", "display name")
	email := fs.String("email", "", "email address")
	password := fs.String("password", os.Getenv("ENERGY_PASSWORD"), "password (default $ENERGY_PASSWORD)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	id, err := e.app.Desk.Register(ctx, models.Registration{Name: *name, Email: *email, Password: *password})
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "registered user %d, now run energyctl login\n", id)
	return nil
}

func cmdLogin(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("login", e.errOut)
	email := fs.String("email", "", "email address")
	password := fs.String("password", os.Getenv("ENERGY_PASSWORD"), "password (default $ENERGY_PASSWORD)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	err := e.app.Desk.SignIn(ctx, *email, *password)
	if exchangeapi.IsCredential(err) {
		return errors.New("invalid email or password")
	}
	if err != nil {
		return err
	}
	e.app.Desk.Wait()
	return printWhoami(e, e.app.Session.Snapshot())
}

func cmdLogout(ctx context.Context, e *env, _ []string) error {
	if err := e.app.Session.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(e.out, "signed out")
	return nil
}

func cmdWhoami(_ context.Context, e *env, _ []string) error {
	return printWhoami(e, e.app.Session.Snapshot())
}

func cmdBalance(ctx context.Context, e *env, _ []string) error {
	b, err := e.app.Desk.Balance(ctx)
	if err != nil {
		return err
	}
	return printBalance(e, b)
}

func cmdMarket(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("market", e.errOut)
	var ff filterFlags
	ff.register(fs, string(market.SortByPrice))
	if err := fs.Parse(args); err != nil {
		return err
	}
	spec, err := ff.spec()
	if err != nil {
		return err
	}

	view, err := e.app.Desk.Market(ctx, spec)
	if err != nil {
		return err
	}
	return printMarket(e, view)
}

func cmdHint(ctx context.Context, e *env, _ []string) error {
	stats, ok, err := e.app.Desk.PriceHint(ctx)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(e.out, "no open sell orders")
		return nil
	}
	return printStats(e, "asking prices", stats)
}

func cmdOrders(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("orders", e.errOut)
	typ := fs.String("type", "", "only buy or sell orders")
	status := fs.String("status", "", "only orders in this status (open, completed, canceled)")
	search := fs.String("search", "", "match id, price or amount")
	var ff filterFlags
	ff.register(fs, string(market.SortByDate))
	if err := fs.Parse(args); err != nil {
		return err
	}
	t, err := parseOrderType(*typ)
	if err != nil {
		return err
	}
	spec, err := ff.spec()
	if err != nil {
		return err
	}
	if ff.sortBy == string(market.SortByDate) && !flagSet(fs, "dir") {
		spec.Direction = market.Desc
	}

	orders, err := e.app.Desk.Orders(ctx, market.OrderQuery{Type: t, Status: models.OrderStatus(*status), Search: *search}, spec)
	if err != nil {
		return err
	}
	return printOrders(e, orders)
}

func cmdOrder(ctx context.Context, e *env, args []string) error {
	id, err := parseID(args)
	if err != nil {
		return err
	}
	o, err := e.app.Desk.Order(ctx, id)
	if err != nil {
		return err
	}
	return printOrders(e, []models.Order{o})
}

func cmdCreate(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("create", e.errOut)
	typ := fs.String("type", "", "buy or sell")
	amount := fs.Float64("amount", 0, "amount in MWh")
	price := fs.Float64("price", 0, "price in EUR/MWh")
	if err := fs.Parse(args); err != nil {
		return err
	}

	o, err := e.app.Desk.PlaceOrder(ctx, models.CreateOrderRequest{
		OrderType:      models.OrderType(*typ),
		AmountMWh:      *amount,
		PriceEURPerMWh: *price,
	})
	if err != nil {
		return err
	}
	return printOrders(e, []models.Order{o})
}

func cmdEdit(ctx context.Context, e *env, args []string) error {
	if len(args) == 0 {
		return errors.New("expected an order id")
	}
	id, err := parseID(args[:1])
	if err != nil {
		return err
	}
	fs := newFlagSet("edit", e.errOut)
	var amount, price optFloat
	fs.Var(&amount, "amount", "new amount in MWh")
	fs.Var(&price, "price", "new price in EUR/MWh")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	o, err := e.app.Desk.EditOrder(ctx, id, models.UpdateOrderRequest{AmountMWh: amount.v, PriceEURPerMWh: price.v})
	if err != nil {
		return err
	}
	return printOrders(e, []models.Order{o})
}

func cmdCancel(ctx context.Context, e *env, args []string) error {
	id, err := parseID(args)
	if err != nil {
		return err
	}
	if err := e.app.Desk.CancelOrder(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(e.out, "order %d canceled\n", id)
	return nil
}

func cmdFulfilled(ctx context.Context, e *env, _ []string) error {
	f, err := e.app.Desk.Fulfilled(ctx)
	if err != nil {
		return err
	}
	return printFulfillment(e, f)
}

func cmdTransactions(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("transactions", e.errOut)
	typ := fs.String("type", "", "only buy or sell transactions")
	var ff filterFlags
	ff.register(fs, string(market.SortByDate))
	if err := fs.Parse(args); err != nil {
		return err
	}
	t, err := parseOrderType(*typ)
	if err != nil {
		return err
	}
	spec, err := ff.spec()
	if err != nil {
		return err
	}
	if ff.sortBy == string(market.SortByDate) && !flagSet(fs, "dir") {
		spec.Direction = market.Desc
	}

	view, err := e.app.Desk.Transactions(ctx, t, spec)
	if err != nil {
		return err
	}
	return printTransactions(e, view)
}

func cmdStats(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("stats", e.errOut)
	tz := fs.String("tz", "Local", "time zone used to group days")
	if err := fs.Parse(args); err != nil {
		return err
	}
	loc, err := time.LoadLocation(*tz)
	if err != nil {
		return fmt.Errorf("unknown time zone %q", *tz)
	}

	view, err := e.app.Desk.Statistics(ctx, loc)
	if err != nil {
		return err
	}
	return printStatistics(e, view)
}

func cmdDashboard(ctx context.Context, e *env, _ []string) error {
	view, err := e.app.Desk.Dashboard(ctx)
	if err != nil {
		return err
	}
	return printDashboard(e, view)
}

// cmdTicker streams the market feed, applying the same filters as the
// market command to every update
func cmdTicker(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("ticker", e.errOut)
	count := fs.Int("count", 0, "stop after this many updates (0 runs until interrupted)")
	var ff filterFlags
	ff.register(fs, string(market.SortByPrice))
	if err := fs.Parse(args); err != nil {
		return err
	}
	spec, err := ff.spec()
	if err != nil {
		return err
	}

	ticker := e.app.Desk.Ticker(spec)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	watch, err := e.app.Client.WatchMarket(ctx)
	if err != nil {
		return err
	}

	n := 0
	for u := range watch.Updates() {
		if err := printTick(e, u, ticker.View(ctx, u)); err != nil {
			return err
		}
		n++
		if *count > 0 && n >= *count {
			return nil
		}
	}
	return watch.Err()
}

// cmdWatch keeps the session revalidated and prints every state change
// until interrupted. Metrics are served on the configured address.
func cmdWatch(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("watch", e.errOut)
	interval := fs.Duration("interval", e.app.Config.Session.RevalidateInterval, "revalidation interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if addr := e.app.Config.Metrics.Addr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", e.app.Metrics.Handler())
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				e.app.Logger.Warn("metrics server stopped", "error", err)
			}
		}()
		defer srv.Close()
		e.app.Logger.Info("metrics listening", "addr", addr)
	}

	updates, unsubscribe := e.app.Session.Subscribe()
	defer unsubscribe()
	refresher := e.app.Session.StartRefresh(ctx, *interval)
	defer refresher.Stop()

	printSnapshot(e, e.app.Session.Snapshot())
	for {
		select {
		case snap, ok := <-updates:
			if !ok {
				return nil
			}
			printSnapshot(e, snap)
			if snap.Status == auth.StatusInvalid {
				fmt.Fprintln(e.out, "session rejected by the exchange, run energyctl login")
			}
		case <-refresher.Done():
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

// flagSet reports whether the named flag was given on the command line
func flagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}
