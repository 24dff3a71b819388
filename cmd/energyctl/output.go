package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/xtrntr/energytrade/internal/auth"
	"github.com/xtrntr/energytrade/internal/market"
	"github.com/xtrntr/energytrade/internal/models"
	"github.com/xtrntr/energytrade/internal/trading"
)

const timeLayout = "2006-01-02 15:04"

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func eur(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func printWhoami(e *env, snap auth.Snapshot) error {
	if e.json {
		return printJSON(e.out, struct {
			Status string       `json:"status"`
			User   *models.User `json:"user,omitempty"`
		}{snap.Status.String(), snap.User})
	}
	printSnapshot(e, snap)
	return nil
}

func printSnapshot(e *env, snap auth.Snapshot) {
	switch {
	case snap.User != nil:
		fmt.Fprintf(e.out, "%s  user %d  %s EUR  %s MWh\n", snap.Status, snap.User.UserID, eur(snap.User.MoneyEUR), num(snap.User.EnergyMWh))
	case snap.Authenticated:
		fmt.Fprintf(e.out, "%s  profile not loaded\n", snap.Status)
	default:
		fmt.Fprintln(e.out, snap.Status)
	}
}

func printBalance(e *env, b models.Balance) error {
	if e.json {
		return printJSON(e.out, b)
	}
	fmt.Fprintf(e.out, "money   %s EUR\nenergy  %s MWh\n", eur(b.MoneyEUR), num(b.EnergyMWh))
	return nil
}

func printStats(e *env, title string, s market.Statistics) error {
	if e.json {
		return printJSON(e.out, s)
	}
	fmt.Fprintf(e.out, "%s: %d orders, %s MWh, avg %s, min %s, max %s EUR/MWh\n",
		title, s.Count, num(s.TotalEnergy), eur(s.AvgPrice), eur(s.MinPrice), eur(s.MaxPrice))
	return nil
}

func writeListings(w io.Writer, listings []models.MarketListing) {
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tSELLER\tAMOUNT MWh\tPRICE EUR/MWh\tTOTAL EUR\tCREATED")
	for _, l := range listings {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", l.ID, l.SellerName, num(l.AmountMWh), eur(l.PriceEURPerMWh),
			eur(l.AmountMWh*l.PriceEURPerMWh), l.CreatedAt.Local().Format(timeLayout))
	}
	tw.Flush()
}

func printMarket(e *env, view trading.MarketView) error {
	if e.json {
		return printJSON(e.out, view)
	}
	if len(view.Listings) == 0 {
		fmt.Fprintf(e.out, "no listings match (%d available)\n", view.Available)
		return nil
	}
	writeListings(e.out, view.Listings)
	fmt.Fprintln(e.out)
	if view.HasStats {
		printStats(e, "market", view.Stats)
	}
	if !view.OwnExcluded {
		fmt.Fprintln(e.out, "note: your own orders could not be filtered out")
	}
	return nil
}

func writeOrders(w io.Writer, orders []models.Order) {
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tTYPE\tSTATUS\tAMOUNT MWh\tPRICE EUR/MWh\tCREATED\tUPDATED")
	for _, o := range orders {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n", o.ID, o.OrderType, o.Status, num(o.AmountMWh), eur(o.PriceEURPerMWh),
			o.CreatedAt.Local().Format(timeLayout), o.UpdatedAt.Local().Format(timeLayout))
	}
	tw.Flush()
}

func printOrders(e *env, orders []models.Order) error {
	if e.json {
		return printJSON(e.out, orders)
	}
	if len(orders) == 0 {
		fmt.Fprintln(e.out, "no orders")
		return nil
	}
	writeOrders(e.out, orders)
	return nil
}

func writeTransactions(w io.Writer, txs []models.Transaction) {
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tTYPE\tAMOUNT MWh\tPRICE EUR/MWh\tTOTAL EUR\tDATE")
	for _, t := range txs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", t.ID, t.TransactionType, num(t.AmountMWh), eur(t.PriceEURPerMWh),
			eur(t.TotalEUR), t.CreatedAt.Local().Format(timeLayout))
	}
	tw.Flush()
}

func writePosition(w io.Writer, p market.NetPosition) {
	fmt.Fprintf(w, "bought %s MWh for %s EUR in %d trades (avg %s)\n", num(p.BoughtEnergy), eur(p.BoughtValue), p.Buys, eur(p.AvgBuyPrice))
	fmt.Fprintf(w, "sold   %s MWh for %s EUR in %d trades (avg %s)\n", num(p.SoldEnergy), eur(p.SoldValue), p.Sells, eur(p.AvgSellPrice))
	fmt.Fprintf(w, "net    %s MWh, %s EUR\n", num(p.NetEnergy), eur(p.NetValue))
}

func printTransactions(e *env, view trading.TransactionsView) error {
	if e.json {
		return printJSON(e.out, view)
	}
	if len(view.Transactions) == 0 {
		fmt.Fprintln(e.out, "no transactions")
		return nil
	}
	writeTransactions(e.out, view.Transactions)
	fmt.Fprintln(e.out)
	writePosition(e.out, view.Position)
	return nil
}

func printFulfillment(e *env, f market.Fulfillment) error {
	if e.json {
		return printJSON(e.out, f)
	}
	if len(f.Orders) == 0 {
		fmt.Fprintln(e.out, "no completed orders")
		return nil
	}
	writeOrders(e.out, f.Orders)
	fmt.Fprintln(e.out)
	fmt.Fprintf(e.out, "bought %s MWh worth %s EUR in %d orders\n", num(f.BuyAmount), eur(f.BuyValue), f.BuyOrders)
	fmt.Fprintf(e.out, "sold   %s MWh worth %s EUR in %d orders\n", num(f.SellAmount), eur(f.SellValue), f.SellOrders)
	return nil
}

func printStatistics(e *env, view trading.StatisticsView) error {
	if e.json {
		return printJSON(e.out, view)
	}
	printBalance(e, view.Balance)
	fmt.Fprintln(e.out)
	writePosition(e.out, view.Position)

	fmt.Fprintln(e.out)
	tw := newTable(e.out)
	fmt.Fprintln(tw, "STATUS\tORDERS")
	for _, c := range view.ByStatus {
		fmt.Fprintf(tw, "%s\t%d\n", c.Status, c.Count)
	}
	fmt.Fprintf(tw, "buy\t%d\nsell\t%d\n", view.ByType.Buy, view.ByType.Sell)
	tw.Flush()

	if len(view.DailyPrices) > 0 {
		fmt.Fprintln(e.out)
		tw = newTable(e.out)
		fmt.Fprintln(tw, "DAY\tTRADES\tAMOUNT MWh\tAVG PRICE EUR/MWh")
		for _, d := range view.DailyPrices {
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", d.Day, d.Trades, num(d.TotalAmount), eur(d.AvgPrice))
		}
		tw.Flush()
	}

	fmt.Fprintln(e.out)
	if view.HasOrderStats {
		printStats(e, "orders", view.OrderStats)
	}
	if view.HasTradeStats {
		printStats(e, "trades", view.TradeStats)
	}
	return nil
}

func printDashboard(e *env, view trading.DashboardView) error {
	if e.json {
		return printJSON(e.out, view)
	}
	printBalance(e, view.Balance)
	fmt.Fprintf(e.out, "open orders  %d of %d\n\n", view.OpenOrders, len(view.Orders))
	writePosition(e.out, view.Position)

	if len(view.RecentTransactions) > 0 {
		fmt.Fprintln(e.out, "\nrecent transactions")
		writeTransactions(e.out, view.RecentTransactions)
	}
	if len(view.TopListings) > 0 {
		fmt.Fprintln(e.out, "\nbest offers")
		writeListings(e.out, view.TopListings)
	}
	return nil
}

func printTick(e *env, u models.BookUpdate, view trading.MarketView) error {
	if e.json {
		return json.NewEncoder(e.out).Encode(struct {
			Sequence uint64             `json:"sequence"`
			Reason   string             `json:"reason"`
			At       time.Time          `json:"at"`
			View     trading.MarketView `json:"market"`
		}{u.Sequence, u.Reason, u.At, view})
	}
	line := fmt.Sprintf("%s #%d %-8s %d listings", u.At.Local().Format(time.TimeOnly), u.Sequence, u.Reason, len(view.Listings))
	if view.HasStats {
		line += fmt.Sprintf(", %s MWh, best %s, avg %s EUR/MWh", num(view.Stats.TotalEnergy), eur(view.Stats.MinPrice), eur(view.Stats.AvgPrice))
	}
	_, err := fmt.Fprintln(e.out, line)
	return err
}
