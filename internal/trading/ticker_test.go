package trading

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xtrntr/energytrade/internal/market"
	"github.com/xtrntr/energytrade/internal/models"
)

func book(reason string, ls ...models.MarketListing) models.BookUpdate {
	return models.BookUpdate{Reason: reason, Listings: ls}
}

func TestTicker_HidesOrdersPlacedAfterStart(t *testing.T) {
	ex := &fakeExchange{}
	d, _ := newDesk(ex, true)
	ticker := d.Ticker(market.FilterSpec{SortBy: market.SortByPrice})
	ctx := context.Background()

	view := ticker.View(ctx, book(models.ReasonSnapshot, listing(1, 50, 10)))
	assert.Equal(t, []int{1}, listingIDs(view.Listings))
	assert.True(t, view.OwnExcluded)

	tests := []struct {
		reason string
		id     int
	}{
		{models.ReasonOrder, 2},
		{models.ReasonTrade, 3},
		{models.ReasonUpdate, 4},
	}
	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			ex.orders = append(ex.orders, models.Order{ID: tt.id, OrderType: models.OrderTypeSell})
			view := ticker.View(ctx, book(tt.reason, listing(1, 50, 10), listing(tt.id, 40, 5)))
			assert.Equal(t, []int{1}, listingIDs(view.Listings))
			assert.Equal(t, 1, view.Available)
		})
	}
}

func TestTicker_CancelReusesOwnOrders(t *testing.T) {
	ex := &fakeExchange{orders: []models.Order{{ID: 2}}}
	d, _ := newDesk(ex, true)
	ticker := d.Ticker(market.FilterSpec{})
	ctx := context.Background()

	ticker.View(ctx, book(models.ReasonSnapshot, listing(1, 50, 10), listing(2, 40, 5)))
	ex.calls = nil

	view := ticker.View(ctx, book(models.ReasonCancel, listing(2, 40, 5)))
	assert.Empty(t, view.Listings)
	assert.False(t, ex.called("orders"))
}

func TestTicker_KeepsLastOwnOrdersOnError(t *testing.T) {
	ex := &fakeExchange{orders: []models.Order{{ID: 2}}}
	d, _ := newDesk(ex, true)
	ticker := d.Ticker(market.FilterSpec{})
	ctx := context.Background()

	ticker.View(ctx, book(models.ReasonSnapshot, listing(2, 40, 5)))
	ex.ordersErr = errors.New("connection reset")

	view := ticker.View(ctx, book(models.ReasonOrder, listing(1, 50, 10), listing(2, 40, 5)))
	assert.Equal(t, []int{1}, listingIDs(view.Listings))
	assert.True(t, view.OwnExcluded)
}

func TestTicker_SignedOutShowsWholeMarket(t *testing.T) {
	ex := &fakeExchange{orders: []models.Order{{ID: 2}}}
	d, _ := newDesk(ex, false)

	view := d.Ticker(market.FilterSpec{}).View(context.Background(), book(models.ReasonSnapshot, listing(1, 50, 10), listing(2, 40, 5)))
	assert.Len(t, view.Listings, 2)
	assert.False(t, view.OwnExcluded)
	assert.False(t, ex.called("orders"))
}
