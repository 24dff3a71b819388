package main

import (
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xtrntr/energytrade/internal/market"
	"github.com/xtrntr/energytrade/internal/models"
)

// optFloat is a float flag that stays nil unless set
type optFloat struct{ v *float64 }

func (o *optFloat) String() string {
	if o == nil || o.v == nil {
		return ""
	}
	return strconv.FormatFloat(*o.v, 'f', -1, 64)
}

func (o *optFloat) Set(s string) error {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	o.v = &v
	return nil
}

// filterFlags binds the market filter and sort flags to a flag set
type filterFlags struct {
	minPrice, maxPrice   optFloat
	minAmount, maxAmount optFloat
	from, to             string
	sortBy, direction    string
}

func (f *filterFlags) register(fs *flag.FlagSet, defaultSort string) {
	fs.Var(&f.minPrice, "min-price", "minimum price in EUR/MWh")
	fs.Var(&f.maxPrice, "max-price", "maximum price in EUR/MWh")
	fs.Var(&f.minAmount, "min-amount", "minimum amount in MWh")
	fs.Var(&f.maxAmount, "max-amount", "maximum amount in MWh")
	fs.StringVar(&f.from, "from", "", "earliest creation time (YYYY-MM-DD or RFC 3339)")
	fs.StringVar(&f.to, "to", "", "latest creation time (YYYY-MM-DD or RFC 3339)")
	fs.StringVar(&f.sortBy, "sort", defaultSort, "sort by price, amount or date")
	fs.StringVar(&f.direction, "dir", "asc", "sort direction, asc or desc")
}

func (f *filterFlags) spec() (market.FilterSpec, error) {
	spec := market.FilterSpec{
		MinPrice:  f.minPrice.v,
		MaxPrice:  f.maxPrice.v,
		MinAmount: f.minAmount.v,
		MaxAmount: f.maxAmount.v,
	}
	var err error
	if spec.SortBy, err = market.ParseSortKey(f.sortBy); err != nil {
		return market.FilterSpec{}, err
	}
	if spec.Direction, err = market.ParseDirection(f.direction); err != nil {
		return market.FilterSpec{}, err
	}
	if f.from != "" {
		t, _, err := parseTime(f.from)
		if err != nil {
			return market.FilterSpec{}, fmt.Errorf("invalid -from %q", f.from)
		}
		spec.From = &t
	}
	if f.to != "" {
		t, dateOnly, err := parseTime(f.to)
		if err != nil {
			return market.FilterSpec{}, fmt.Errorf("invalid -to %q", f.to)
		}
		if dateOnly {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		spec.To = &t
	}
	return spec, nil
}

func parseTime(s string) (time.Time, bool, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, false, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, s, time.Local)
	return t, true, err
}

func parseOrderType(s string) (models.OrderType, error) {
	t := models.OrderType(strings.ToLower(strings.TrimSpace(s)))
	if t != "" && !t.Valid() {
		return "", fmt.Errorf("type must be buy or sell, got %q", s)
	}
	return t, nil
}

func parseID(args []string) (int, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("expected exactly one order id")
	}
	id, err := strconv.Atoi(args[0])
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid order id %q", args[0])
	}
	return id, nil
}

func newFlagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("energyctl "+name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}
