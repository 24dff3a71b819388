package trading

import (
	"context"

	"github.com/xtrntr/energytrade/internal/market"
	"github.com/xtrntr/energytrade/internal/models"
)

// MarketTicker turns market feed updates into market views. The user's own
// orders are refetched whenever an update may have added one to the book,
// so a listing placed after the feed started is still hidden.
type MarketTicker struct {
	desk *Desk
	spec market.FilterSpec
	own  market.IDSet
}

// Ticker returns a MarketTicker filtering and sorting by spec
func (d *Desk) Ticker(spec market.FilterSpec) *MarketTicker {
	return &MarketTicker{desk: d, spec: spec}
}

// View returns the market view for u. When the own orders cannot be
// refetched the last known set is kept.
func (t *MarketTicker) View(ctx context.Context, u models.BookUpdate) MarketView {
	if u.Reason != models.ReasonCancel || t.own == nil {
		t.refresh(ctx)
	}
	return NewMarketView(u.Listings, t.own, t.spec)
}

func (t *MarketTicker) refresh(ctx context.Context) {
	if !t.desk.session.IsAuthenticated() {
		t.own = nil
		return
	}
	orders, err := t.desk.exchange.Orders(ctx, models.OrderFilter{})
	if err != nil {
		t.desk.logger.Warn("own orders unavailable for ticker", "error", t.desk.readError(ctx, err))
		return
	}
	t.own = market.NewIDSet(orders)
}
