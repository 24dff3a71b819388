package models

import "time"

// Quote is the read-only view shared by orders, listings and transactions
// that the aggregation engine filters, sorts and summarizes.
type Quote interface {
	UnitPrice() float64
	Quantity() float64
	Timestamp() time.Time
}

func (o Order) UnitPrice() float64   { return o.PriceEURPerMWh }
func (o Order) Quantity() float64    { return o.AmountMWh }
func (o Order) Timestamp() time.Time { return o.CreatedAt }

func (l MarketListing) UnitPrice() float64   { return l.PriceEURPerMWh }
func (l MarketListing) Quantity() float64    { return l.AmountMWh }
func (l MarketListing) Timestamp() time.Time { return l.CreatedAt }

func (t Transaction) UnitPrice() float64   { return t.PriceEURPerMWh }
func (t Transaction) Quantity() float64    { return t.AmountMWh }
func (t Transaction) Timestamp() time.Time { return t.CreatedAt }
