package trading

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xtrntr/energytrade/internal/auth"
	"github.com/xtrntr/energytrade/internal/exchangeapi"
	"github.com/xtrntr/energytrade/internal/market"
	"github.com/xtrntr/energytrade/internal/models"
)

// ErrNotAuthenticated is returned before any request when a read or
// mutation needs a session and there is none
var ErrNotAuthenticated = errors.New("trading: not authenticated")

const (
	recentTransactions = 5
	topListings        = 3
)

// Exchange is the subset of the exchange API the desk uses
type Exchange interface {
	Login(ctx context.Context, email, password string) (string, error)
	Register(ctx context.Context, reg models.Registration) (int, error)
	Balance(ctx context.Context) (models.Balance, error)
	Orders(ctx context.Context, filter models.OrderFilter) ([]models.Order, error)
	SellOrders(ctx context.Context, filter models.OrderFilter) ([]models.MarketListing, error)
	Order(ctx context.Context, id int) (models.Order, error)
	CreateOrder(ctx context.Context, req models.CreateOrderRequest) (models.Order, error)
	UpdateOrder(ctx context.Context, id int, req models.UpdateOrderRequest) error
	DeleteOrder(ctx context.Context, id int) error
	Transactions(ctx context.Context) ([]models.Transaction, error)
}

// Session is the subset of the session manager the desk uses
type Session interface {
	Login(ctx context.Context, token string) error
	RefreshProfile(ctx context.Context) error
	CheckAuth(ctx context.Context) auth.Snapshot
	IsAuthenticated() bool
}

// Desk turns exchange reads into views: it asks the session whether the
// user is signed in, fetches, and runs the aggregation engine.
type Desk struct {
	exchange Exchange
	session  Session
	logger   *slog.Logger

	wg sync.WaitGroup
}

func NewDesk(exchange Exchange, session Session, logger *slog.Logger) *Desk {
	if logger == nil {
		logger = slog.Default()
	}
	return &Desk{exchange: exchange, session: session, logger: logger}
}

// Wait blocks until background work started by SignIn has finished
func (d *Desk) Wait() {
	d.wg.Wait()
}

// MarketView is the market screen
type MarketView struct {
	Listings []models.MarketListing `json:"listings"`
	// Available is the number of listings before filtering
	Available int               `json:"available"`
	Stats     market.Statistics `json:"stats"`
	HasStats  bool              `json:"has_stats"`
	// OwnExcluded is false when the user's own orders could not be
	// determined and the listings are unfiltered
	OwnExcluded bool `json:"own_excluded"`
}

// Market lists open sell orders from other users, filtered and sorted by
// spec. Statistics describe the filtered listings.
func (d *Desk) Market(ctx context.Context, spec market.FilterSpec) (MarketView, error) {
	var (
		listings []models.MarketListing
		own      market.IDSet
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		listings, err = d.exchange.SellOrders(gctx, models.OrderFilter{})
		return err
	})
	if d.session.IsAuthenticated() {
		g.Go(func() error {
			orders, err := d.exchange.Orders(gctx, models.OrderFilter{})
			if err != nil {
				d.logger.Warn("own orders unavailable, market shown unfiltered", "error", err)
				return nil
			}
			own = market.NewIDSet(orders)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return MarketView{}, d.readError(ctx, fmt.Errorf("load market: %w", err))
	}

	return NewMarketView(listings, own, spec), nil
}

// NewMarketView hides the listings in own, then filters and sorts the rest
// by spec. A nil own leaves the listings unfiltered.
func NewMarketView(listings []models.MarketListing, own market.IDSet, spec market.FilterSpec) MarketView {
	visible := market.ExcludeOwnOrders(listings, own)
	filtered := market.FilterAndSort(visible, spec)
	stats, ok := market.ComputeStatistics(filtered)

	return MarketView{
		Listings:    filtered,
		Available:   len(visible),
		Stats:       stats,
		HasStats:    ok,
		OwnExcluded: own != nil,
	}
}

// PriceHint summarizes the prices currently asked on the market, for
// suggesting a price when placing an order
func (d *Desk) PriceHint(ctx context.Context) (market.Statistics, bool, error) {
	view, err := d.Market(ctx, market.FilterSpec{})
	if err != nil {
		return market.Statistics{}, false, err
	}
	return view.Stats, view.HasStats, nil
}

// DashboardView is the landing screen
type DashboardView struct {
	Balance            models.Balance         `json:"balance"`
	Orders             []models.Order         `json:"orders"`
	OpenOrders         int                    `json:"open_orders"`
	RecentTransactions []models.Transaction   `json:"recent_transactions"`
	TopListings        []models.MarketListing `json:"top_listings"`
	Position           market.NetPosition     `json:"position"`
}

// Dashboard loads balance, orders, transactions and the market in
// parallel. Any failure fails the whole view.
func (d *Desk) Dashboard(ctx context.Context) (DashboardView, error) {
	if !d.session.IsAuthenticated() {
		return DashboardView{}, ErrNotAuthenticated
	}

	var (
		view     DashboardView
		txs      []models.Transaction
		listings []models.MarketListing
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		view.Balance, err = d.exchange.Balance(gctx)
		return err
	})
	g.Go(func() (err error) {
		view.Orders, err = d.exchange.Orders(gctx, models.OrderFilter{})
		return err
	})
	g.Go(func() (err error) {
		txs, err = d.exchange.Transactions(gctx)
		return err
	})
	g.Go(func() (err error) {
		listings, err = d.exchange.SellOrders(gctx, models.OrderFilter{})
		return err
	})
	if err := g.Wait(); err != nil {
		return DashboardView{}, d.readError(ctx, fmt.Errorf("load dashboard: %w", err))
	}

	for _, o := range view.Orders {
		if o.Status == models.OrderStatusOpen {
			view.OpenOrders++
		}
	}
	view.Position = market.ComputeNetPosition(txs)

	newest := market.FilterAndSort(txs, market.FilterSpec{SortBy: market.SortByDate, Direction: market.Desc})
	view.RecentTransactions = newest[:min(recentTransactions, len(newest))]

	cheapest := market.FilterAndSort(
		market.ExcludeOwnOrders(listings, market.NewIDSet(view.Orders)),
		market.FilterSpec{SortBy: market.SortByPrice},
	)
	view.TopListings = cheapest[:min(topListings, len(cheapest))]
	return view, nil
}

// StatisticsView is the statistics screen
type StatisticsView struct {
	Balance          models.Balance       `json:"balance"`
	Position         market.NetPosition   `json:"position"`
	ByStatus         []market.StatusCount `json:"by_status"`
	ByType           market.TypeCount     `json:"by_type"`
	DailyPrices      []market.DailyPrice  `json:"daily_prices"`
	OrderStats       market.Statistics    `json:"order_stats"`
	HasOrderStats    bool                 `json:"has_order_stats"`
	TradeStats       market.Statistics    `json:"trade_stats"`
	HasTradeStats    bool                 `json:"has_trade_stats"`
	TransactionCount int                  `json:"transaction_count"`
}

// Statistics loads transactions, orders and balance in parallel and
// derives the breakdowns. Days are grouped in loc, UTC when nil.
func (d *Desk) Statistics(ctx context.Context, loc *time.Location) (StatisticsView, error) {
	if !d.session.IsAuthenticated() {
		return StatisticsView{}, ErrNotAuthenticated
	}

	var (
		view   StatisticsView
		orders []models.Order
		txs    []models.Transaction
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		txs, err = d.exchange.Transactions(gctx)
		return err
	})
	g.Go(func() (err error) {
		orders, err = d.exchange.Orders(gctx, models.OrderFilter{})
		return err
	})
	g.Go(func() (err error) {
		view.Balance, err = d.exchange.Balance(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return StatisticsView{}, d.readError(ctx, fmt.Errorf("load statistics: %w", err))
	}

	view.Position = market.ComputeNetPosition(txs)
	view.ByStatus = market.CountByStatus(orders)
	view.ByType = market.CountByType(orders)
	view.DailyPrices = market.DailyPrices(txs, loc)
	view.OrderStats, view.HasOrderStats = market.ComputeStatistics(orders)
	view.TradeStats, view.HasTradeStats = market.ComputeStatistics(txs)
	view.TransactionCount = len(txs)
	return view, nil
}

// Orders lists the user's orders narrowed by q and filtered and sorted by spec
func (d *Desk) Orders(ctx context.Context, q market.OrderQuery, spec market.FilterSpec) ([]models.Order, error) {
	if !d.session.IsAuthenticated() {
		return nil, ErrNotAuthenticated
	}
	orders, err := d.exchange.Orders(ctx, models.OrderFilter{Type: q.Type})
	if err != nil {
		return nil, d.readError(ctx, fmt.Errorf("load orders: %w", err))
	}
	return market.FilterAndSort(market.FilterOrders(orders, q), spec), nil
}

// Order fetches one order
func (d *Desk) Order(ctx context.Context, id int) (models.Order, error) {
	if !d.session.IsAuthenticated() {
		return models.Order{}, ErrNotAuthenticated
	}
	if id <= 0 {
		return models.Order{}, invalid("id", "must be a positive order id")
	}
	o, err := d.exchange.Order(ctx, id)
	if err != nil {
		return models.Order{}, d.readError(ctx, fmt.Errorf("load order %d: %w", id, err))
	}
	return o, nil
}

// Fulfilled summarizes the user's completed orders
func (d *Desk) Fulfilled(ctx context.Context) (market.Fulfillment, error) {
	if !d.session.IsAuthenticated() {
		return market.Fulfillment{}, ErrNotAuthenticated
	}
	orders, err := d.exchange.Orders(ctx, models.OrderFilter{})
	if err != nil {
		return market.Fulfillment{}, d.readError(ctx, fmt.Errorf("load orders: %w", err))
	}
	f := market.ComputeFulfillment(orders)
	f.Orders = market.FilterAndSort(f.Orders, market.FilterSpec{SortBy: market.SortByDate, Direction: market.Desc})
	return f, nil
}

// TransactionsView is the transaction history screen
type TransactionsView struct {
	Transactions []models.Transaction `json:"transactions"`
	Position     market.NetPosition   `json:"position"`
}

// Transactions lists settled transactions of type t (all when empty),
// filtered and sorted by spec. The position describes the listed rows.
func (d *Desk) Transactions(ctx context.Context, t models.OrderType, spec market.FilterSpec) (TransactionsView, error) {
	if !d.session.IsAuthenticated() {
		return TransactionsView{}, ErrNotAuthenticated
	}
	txs, err := d.exchange.Transactions(ctx)
	if err != nil {
		return TransactionsView{}, d.readError(ctx, fmt.Errorf("load transactions: %w", err))
	}
	rows := market.FilterAndSort(market.FilterTransactionsByType(txs, t), spec)
	return TransactionsView{Transactions: rows, Position: market.ComputeNetPosition(rows)}, nil
}

// Balance fetches the account balance
func (d *Desk) Balance(ctx context.Context) (models.Balance, error) {
	if !d.session.IsAuthenticated() {
		return models.Balance{}, ErrNotAuthenticated
	}
	b, err := d.exchange.Balance(ctx)
	if err != nil {
		return models.Balance{}, d.readError(ctx, fmt.Errorf("load balance: %w", err))
	}
	return b, nil
}

// PlaceOrder validates req and submits it. Input errors are reported before
// any request; the balance checks are skipped if the balance cannot be read.
func (d *Desk) PlaceOrder(ctx context.Context, req models.CreateOrderRequest) (models.Order, error) {
	if err := ValidateCreate(req, nil); err != nil {
		return models.Order{}, err
	}
	if !d.session.IsAuthenticated() {
		return models.Order{}, ErrNotAuthenticated
	}

	var bal *models.Balance
	if b, err := d.exchange.Balance(ctx); err != nil {
		d.logger.Warn("balance unavailable, skipping funds check", "error", err)
	} else {
		bal = &b
	}
	if err := ValidateCreate(req, bal); err != nil {
		return models.Order{}, err
	}

	order, err := d.exchange.CreateOrder(ctx, req)
	if err != nil {
		return models.Order{}, err
	}
	d.logger.Info("order placed", "id", order.ID, "type", order.OrderType, "amount_mwh", order.AmountMWh, "price", order.PriceEURPerMWh)
	return order, nil
}

// EditOrder changes an open order and returns it as stored afterwards.
// Fields equal to the current values are not sent; when nothing differs
// the current order is returned without an update request.
func (d *Desk) EditOrder(ctx context.Context, id int, req models.UpdateOrderRequest) (models.Order, error) {
	if err := ValidateUpdate(req, nil); err != nil {
		return models.Order{}, err
	}
	if !d.session.IsAuthenticated() {
		return models.Order{}, ErrNotAuthenticated
	}

	current, err := d.exchange.Order(ctx, id)
	if err != nil {
		return models.Order{}, err
	}
	if err := ValidateUpdate(req, &current); err != nil {
		return models.Order{}, err
	}

	if req.AmountMWh != nil && *req.AmountMWh == current.AmountMWh {
		req.AmountMWh = nil
	}
	if req.PriceEURPerMWh != nil && *req.PriceEURPerMWh == current.PriceEURPerMWh {
		req.PriceEURPerMWh = nil
	}
	if req.AmountMWh == nil && req.PriceEURPerMWh == nil {
		return current, nil
	}

	if err := d.exchange.UpdateOrder(ctx, id, req); err != nil {
		return models.Order{}, err
	}
	d.logger.Info("order updated", "id", id)
	return d.exchange.Order(ctx, id)
}

// CancelOrder deletes an open order
func (d *Desk) CancelOrder(ctx context.Context, id int) error {
	if id <= 0 {
		return invalid("id", "must be a positive order id")
	}
	if !d.session.IsAuthenticated() {
		return ErrNotAuthenticated
	}
	if err := d.exchange.DeleteOrder(ctx, id); err != nil {
		return err
	}
	d.logger.Info("order canceled", "id", id)
	return nil
}

// SignIn exchanges credentials for a token, adopts it, and fetches the
// profile in the background. Use Wait to join the profile fetch.
func (d *Desk) SignIn(ctx context.Context, email, password string) error {
	if err := ValidateCredentials(models.Credentials{Email: email, Password: password}); err != nil {
		return err
	}
	token, err := d.exchange.Login(ctx, email, password)
	if err != nil {
		return err
	}
	loginErr := d.session.Login(ctx, token)

	profileCtx := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.session.RefreshProfile(profileCtx); err != nil {
			d.logger.Debug("profile after sign in", "error", err)
		}
	}()
	return loginErr
}

// Register creates an account; it does not sign in
func (d *Desk) Register(ctx context.Context, reg models.Registration) (int, error) {
	if err := ValidateRegistration(reg); err != nil {
		return 0, err
	}
	return d.exchange.Register(ctx, reg)
}

// readError lets the session re-check a token the exchange just rejected,
// so that a revoked token invalidates the session.
func (d *Desk) readError(ctx context.Context, err error) error {
	if exchangeapi.IsCredential(err) && ctx.Err() == nil {
		snap := d.session.CheckAuth(ctx)
		d.logger.Warn("exchange rejected the session token", "status", snap.Status.String())
	}
	return err
}
