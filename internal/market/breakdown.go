package market

import (
	"slices"
	"time"

	"github.com/xtrntr/energytrade/internal/models"
)

// StatusCount is the number of orders in one status
type StatusCount struct {
	Status models.OrderStatus `json:"status"`
	Count  int                `json:"count"`
}

// CountByStatus counts orders per status. Known statuses come first in
// lifecycle order, unknown ones follow alphabetically; empty buckets are omitted.
func CountByStatus(orders []models.Order) []StatusCount {
	counts := make(map[models.OrderStatus]int)
	for _, o := range orders {
		counts[o.Status]++
	}

	rank := map[models.OrderStatus]int{
		models.OrderStatusOpen:      0,
		models.OrderStatusCompleted: 1,
		models.OrderStatusCanceled:  2,
	}
	out := make([]StatusCount, 0, len(counts))
	for status, n := range counts {
		out = append(out, StatusCount{Status: status, Count: n})
	}
	slices.SortFunc(out, func(a, b StatusCount) int {
		ra, okA := rank[a.Status]
		rb, okB := rank[b.Status]
		switch {
		case okA && okB:
			return ra - rb
		case okA:
			return -1
		case okB:
			return 1
		}
		if a.Status < b.Status {
			return -1
		}
		if a.Status > b.Status {
			return 1
		}
		return 0
	})
	return out
}

// TypeCount is the number of buy and sell orders
type TypeCount struct {
	Buy  int `json:"buy"`
	Sell int `json:"sell"`
}

// CountByType counts orders per side
func CountByType(orders []models.Order) TypeCount {
	var tc TypeCount
	for _, o := range orders {
		switch o.OrderType {
		case models.OrderTypeBuy:
			tc.Buy++
		case models.OrderTypeSell:
			tc.Sell++
		}
	}
	return tc
}

// DailyPrice is the price activity of one calendar day
type DailyPrice struct {
	Day         string  `json:"day"`
	AvgPrice    float64 `json:"avg_price_eur_per_mwh"`
	TotalAmount float64 `json:"total_amount_mwh"`
	Trades      int     `json:"trades"`
}

// DailyPrices groups transactions by calendar day in loc (UTC when nil) and
// averages their unit prices. Days are returned in ascending order.
func DailyPrices(transactions []models.Transaction, loc *time.Location) []DailyPrice {
	if loc == nil {
		loc = time.UTC
	}

	type bucket struct {
		prices, amounts accumulator
		n               int
	}
	buckets := make(map[string]*bucket)
	for _, t := range transactions {
		day := t.CreatedAt.In(loc).Format(time.DateOnly)
		b, ok := buckets[day]
		if !ok {
			b = &bucket{}
			buckets[day] = b
		}
		b.prices.add(t.PriceEURPerMWh)
		b.amounts.add(t.AmountMWh)
		b.n++
	}

	out := make([]DailyPrice, 0, len(buckets))
	for day, b := range buckets {
		out = append(out, DailyPrice{
			Day:         day,
			AvgPrice:    b.prices.div(b.n),
			TotalAmount: b.amounts.value(),
			Trades:      b.n,
		})
	}
	slices.SortFunc(out, func(a, b DailyPrice) int {
		if a.Day < b.Day {
			return -1
		}
		if a.Day > b.Day {
			return 1
		}
		return 0
	})
	return out
}

// Fulfillment summarizes completed orders
type Fulfillment struct {
	Orders     []models.Order `json:"orders"`
	BuyOrders  int            `json:"buy_orders"`
	SellOrders int            `json:"sell_orders"`
	BuyAmount  float64        `json:"buy_amount_mwh"`
	SellAmount float64        `json:"sell_amount_mwh"`
	BuyValue   float64        `json:"buy_value_eur"`
	SellValue  float64        `json:"sell_value_eur"`
}

// ComputeFulfillment keeps the completed orders and totals them per side.
// Values are amount times unit price.
func ComputeFulfillment(orders []models.Order) Fulfillment {
	f := Fulfillment{Orders: make([]models.Order, 0)}
	var buyAmt, sellAmt, buyVal, sellVal accumulator
	for _, o := range orders {
		if o.Status != models.OrderStatusCompleted {
			continue
		}
		f.Orders = append(f.Orders, o)
		switch o.OrderType {
		case models.OrderTypeBuy:
			f.BuyOrders++
			buyAmt.add(o.AmountMWh)
			buyVal.addProduct(o.AmountMWh, o.PriceEURPerMWh)
		case models.OrderTypeSell:
			f.SellOrders++
			sellAmt.add(o.AmountMWh)
			sellVal.addProduct(o.AmountMWh, o.PriceEURPerMWh)
		}
	}
	f.BuyAmount = buyAmt.value()
	f.SellAmount = sellAmt.value()
	f.BuyValue = buyVal.value()
	f.SellValue = sellVal.value()
	return f
}
