package market

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/xtrntr/energytrade/internal/models"
)

// Statistics summarizes a non-empty collection of quotes
type Statistics struct {
	Count       int     `json:"count"`
	TotalEnergy float64 `json:"total_energy_mwh"`
	AvgPrice    float64 `json:"avg_price_eur_per_mwh"`
	MinPrice    float64 `json:"min_price_eur_per_mwh"`
	MaxPrice    float64 `json:"max_price_eur_per_mwh"`
}

// ComputeStatistics summarizes items. The average price is the arithmetic
// mean of unit prices. ok is false for an empty collection, in which case
// the returned Statistics is the zero value and must not be displayed.
func ComputeStatistics[T models.Quote](items []T) (stats Statistics, ok bool) {
	if len(items) == 0 {
		return Statistics{}, false
	}

	var energy, prices accumulator
	stats.MinPrice = items[0].UnitPrice()
	stats.MaxPrice = items[0].UnitPrice()
	for _, item := range items {
		price := item.UnitPrice()
		energy.add(item.Quantity())
		prices.add(price)
		if price < stats.MinPrice {
			stats.MinPrice = price
		}
		if price > stats.MaxPrice {
			stats.MaxPrice = price
		}
	}

	stats.Count = len(items)
	stats.TotalEnergy = energy.value()
	stats.AvgPrice = prices.div(len(items))
	return stats, true
}

// accumulator sums float64 values in decimal so that totals do not depend
// on float rounding order. Non-finite inputs bypass the decimal path.
type accumulator struct {
	sum        decimal.Decimal
	special    float64
	hasSpecial bool
}

func (a *accumulator) add(v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		a.special += v
		a.hasSpecial = true
		return
	}
	a.sum = a.sum.Add(decimal.NewFromFloat(v))
}

func (a *accumulator) addProduct(x, y float64) {
	if math.IsNaN(x) || math.IsInf(x, 0) || math.IsNaN(y) || math.IsInf(y, 0) {
		a.special += x * y
		a.hasSpecial = true
		return
	}
	a.sum = a.sum.Add(decimal.NewFromFloat(x).Mul(decimal.NewFromFloat(y)))
}

func (a accumulator) minus(b accumulator) accumulator {
	return accumulator{
		sum:        a.sum.Sub(b.sum),
		special:    a.special - b.special,
		hasSpecial: a.hasSpecial || b.hasSpecial,
	}
}

func (a accumulator) value() float64 {
	f := a.sum.InexactFloat64()
	if a.hasSpecial {
		return f + a.special
	}
	return f
}

func (a accumulator) div(n int) float64 {
	if n == 0 {
		return 0
	}
	if a.hasSpecial {
		return a.value() / float64(n)
	}
	return a.sum.Div(decimal.NewFromInt(int64(n))).InexactFloat64()
}

// ratio returns a / b, or 0 when b is zero
func ratio(a, b accumulator) float64 {
	if a.hasSpecial || b.hasSpecial {
		bv := b.value()
		if bv == 0 {
			return 0
		}
		return a.value() / bv
	}
	if b.sum.IsZero() {
		return 0
	}
	return a.sum.Div(b.sum).InexactFloat64()
}
