package market

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtrntr/energytrade/internal/models"
)

var base = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func listing(id int, amount, price float64, age time.Duration) models.MarketListing {
	return models.MarketListing{
		ID:             id,
		OrderType:      models.OrderTypeSell,
		AmountMWh:      amount,
		PriceEURPerMWh: price,
		Status:         models.OrderStatusOpen,
		CreatedAt:      base.Add(age),
	}
}

func listingIDs(ls []models.MarketListing) []int {
	out := make([]int, 0, len(ls))
	for _, l := range ls {
		out = append(out, l.ID)
	}
	return out
}

func TestExcludeOwnOrders(t *testing.T) {
	listings := []models.MarketListing{
		listing(1, 1, 10, 0),
		listing(2, 1, 11, 0),
		listing(5, 1, 12, 0),
		listing(7, 1, 13, 0),
	}
	own := NewIDSet([]models.Order{{ID: 2}, {ID: 5}, {ID: 99}})

	got := ExcludeOwnOrders(listings, own)
	assert.Equal(t, []int{1, 7}, listingIDs(got))

	// idempotent
	assert.Equal(t, got, ExcludeOwnOrders(got, own))

	// input untouched
	assert.Len(t, listings, 4)
}

func TestExcludeOwnOrders_UndeterminedSet(t *testing.T) {
	listings := []models.MarketListing{listing(1, 1, 10, 0), listing(2, 1, 11, 0)}

	got := ExcludeOwnOrders(listings, nil)
	assert.Equal(t, []int{1, 2}, listingIDs(got))

	empty := NewIDSet(nil)
	require.NotNil(t, empty)
	assert.Equal(t, []int{1, 2}, listingIDs(ExcludeOwnOrders(listings, empty)))
}

func TestExcludeOwnOrders_Empty(t *testing.T) {
	got := ExcludeOwnOrders(nil, NewIDSet([]models.Order{{ID: 1}}))
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestFilterAndSort(t *testing.T) {
	listings := []models.MarketListing{
		listing(1, 5, 30, 3*time.Hour),
		listing(2, 2, 10, 1*time.Hour),
		listing(3, 8, 20, 2*time.Hour),
		listing(4, 2, 10, 0),
	}

	tests := []struct {
		name string
		spec FilterSpec
		want []int
	}{
		{
			name: "default is price ascending and stable",
			spec: FilterSpec{},
			want: []int{2, 4, 3, 1},
		},
		{
			name: "price descending keeps ties in input order",
			spec: FilterSpec{SortBy: SortByPrice, Direction: Desc},
			want: []int{1, 3, 2, 4},
		},
		{
			name: "amount ascending",
			spec: FilterSpec{SortBy: SortByAmount},
			want: []int{2, 4, 1, 3},
		},
		{
			name: "date descending",
			spec: FilterSpec{SortBy: SortByDate, Direction: Desc},
			want: []int{1, 3, 2, 4},
		},
		{
			name: "inclusive price bounds",
			spec: FilterSpec{MinPrice: Bound(10), MaxPrice: Bound(20)},
			want: []int{2, 4, 3},
		},
		{
			name: "inclusive amount bounds",
			spec: FilterSpec{MinAmount: Bound(5), MaxAmount: Bound(8), SortBy: SortByAmount},
			want: []int{1, 3},
		},
		{
			name: "empty range",
			spec: FilterSpec{MinPrice: Bound(100)},
			want: []int{},
		},
		{
			name: "unknown key falls back to price",
			spec: FilterSpec{SortBy: "volume"},
			want: []int{2, 4, 3, 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterAndSort(listings, tt.spec)
			assert.Equal(t, tt.want, listingIDs(got))
			assert.Equal(t, got, FilterAndSort(got, tt.spec), "filtering a filtered result changes nothing")
		})
	}

	// the input slice is never reordered
	assert.Equal(t, []int{1, 2, 3, 4}, listingIDs(listings))
}

func TestFilterAndSort_DateBounds(t *testing.T) {
	txs := []models.Transaction{
		{ID: 1, CreatedAt: base},
		{ID: 2, CreatedAt: base.Add(24 * time.Hour)},
		{ID: 3, CreatedAt: base.Add(48 * time.Hour)},
	}
	from := base.Add(24 * time.Hour)
	to := base.Add(48 * time.Hour)

	got := FilterAndSort(txs, FilterSpec{From: &from, To: &to, SortBy: SortByDate})
	require.Len(t, got, 2)
	assert.Equal(t, 2, got[0].ID)
	assert.Equal(t, 3, got[1].ID)
	assert.Equal(t, got, FilterAndSort(got, FilterSpec{From: &from, To: &to, SortBy: SortByDate}))
}

func TestFilterAndSort_NaNNeverMatchesBound(t *testing.T) {
	listings := []models.MarketListing{listing(1, 1, math.NaN(), 0), listing(2, 1, 5, 0)}
	got := FilterAndSort(listings, FilterSpec{MinPrice: Bound(0)})
	assert.Equal(t, []int{2}, listingIDs(got))
}

func TestParseSortKeyAndDirection(t *testing.T) {
	k, err := ParseSortKey("")
	require.NoError(t, err)
	assert.Equal(t, SortByPrice, k)

	k, err = ParseSortKey(" Date ")
	require.NoError(t, err)
	assert.Equal(t, SortByDate, k)

	_, err = ParseSortKey("volume")
	assert.Error(t, err)

	d, err := ParseDirection("DESC")
	require.NoError(t, err)
	assert.Equal(t, Desc, d)

	_, err = ParseDirection("up")
	assert.Error(t, err)
}

func TestComputeStatistics(t *testing.T) {
	stats, ok := ComputeStatistics([]models.MarketListing{
		listing(1, 2, 10, 0),
		listing(2, 3, 20, 0),
	})
	require.True(t, ok)
	assert.Equal(t, 2, stats.Count)
	assert.Equal(t, 5.0, stats.TotalEnergy)
	assert.Equal(t, 15.0, stats.AvgPrice)
	assert.Equal(t, 10.0, stats.MinPrice)
	assert.Equal(t, 20.0, stats.MaxPrice)
}

func TestComputeStatistics_Empty(t *testing.T) {
	stats, ok := ComputeStatistics([]models.Order{})
	assert.False(t, ok)
	assert.Equal(t, Statistics{}, stats)
}

func TestComputeStatistics_DecimalTotals(t *testing.T) {
	items := []models.MarketListing{
		listing(1, 0.1, 1, 0),
		listing(2, 0.2, 1, 0),
	}
	stats, ok := ComputeStatistics(items)
	require.True(t, ok)
	assert.Equal(t, 0.3, stats.TotalEnergy)
}

func TestComputeNetPosition(t *testing.T) {
	pos := ComputeNetPosition([]models.Transaction{
		{ID: 1, TransactionType: models.OrderTypeBuy, AmountMWh: 5, PriceEURPerMWh: 10, TotalEUR: 50},
		{ID: 2, TransactionType: models.OrderTypeSell, AmountMWh: 2, PriceEURPerMWh: 15, TotalEUR: 30},
	})

	assert.Equal(t, 3.0, pos.NetEnergy)
	assert.Equal(t, -20.0, pos.NetValue)
	assert.Equal(t, 10.0, pos.AvgBuyPrice)
	assert.Equal(t, 15.0, pos.AvgSellPrice)
	assert.Equal(t, 1, pos.Buys)
	assert.Equal(t, 1, pos.Sells)
}

func TestComputeNetPosition_Empty(t *testing.T) {
	assert.Equal(t, NetPosition{}, ComputeNetPosition(nil))
}

func TestComputeNetPosition_WeightedAverage(t *testing.T) {
	pos := ComputeNetPosition([]models.Transaction{
		{TransactionType: models.OrderTypeBuy, AmountMWh: 1, TotalEUR: 10},
		{TransactionType: models.OrderTypeBuy, AmountMWh: 3, TotalEUR: 90},
	})
	assert.Equal(t, 25.0, pos.AvgBuyPrice)
	assert.Zero(t, pos.AvgSellPrice)
}

func TestCountBreakdowns(t *testing.T) {
	orders := []models.Order{
		{ID: 1, OrderType: models.OrderTypeBuy, Status: models.OrderStatusCompleted},
		{ID: 2, OrderType: models.OrderTypeSell, Status: models.OrderStatusOpen},
		{ID: 3, OrderType: models.OrderTypeSell, Status: models.OrderStatusOpen},
		{ID: 4, OrderType: models.OrderTypeBuy, Status: "pending"},
	}

	assert.Equal(t, []StatusCount{
		{Status: models.OrderStatusOpen, Count: 2},
		{Status: models.OrderStatusCompleted, Count: 1},
		{Status: "pending", Count: 1},
	}, CountByStatus(orders))
	assert.Equal(t, TypeCount{Buy: 2, Sell: 2}, CountByType(orders))
}

func TestDailyPrices(t *testing.T) {
	txs := []models.Transaction{
		{PriceEURPerMWh: 30, AmountMWh: 1, CreatedAt: base.Add(24 * time.Hour)},
		{PriceEURPerMWh: 10, AmountMWh: 2, CreatedAt: base},
		{PriceEURPerMWh: 20, AmountMWh: 3, CreatedAt: base.Add(time.Hour)},
	}

	days := DailyPrices(txs, nil)
	require.Len(t, days, 2)
	assert.Equal(t, DailyPrice{Day: "2025-03-10", AvgPrice: 15, TotalAmount: 5, Trades: 2}, days[0])
	assert.Equal(t, DailyPrice{Day: "2025-03-11", AvgPrice: 30, TotalAmount: 1, Trades: 1}, days[1])
}

func TestComputeFulfillment(t *testing.T) {
	f := ComputeFulfillment([]models.Order{
		{ID: 1, OrderType: models.OrderTypeBuy, AmountMWh: 2, PriceEURPerMWh: 10, Status: models.OrderStatusCompleted},
		{ID: 2, OrderType: models.OrderTypeSell, AmountMWh: 3, PriceEURPerMWh: 20, Status: models.OrderStatusCompleted},
		{ID: 3, OrderType: models.OrderTypeSell, AmountMWh: 9, PriceEURPerMWh: 99, Status: models.OrderStatusOpen},
	})

	require.Len(t, f.Orders, 2)
	assert.Equal(t, 1, f.BuyOrders)
	assert.Equal(t, 1, f.SellOrders)
	assert.Equal(t, 20.0, f.BuyValue)
	assert.Equal(t, 60.0, f.SellValue)
	assert.Equal(t, 3.0, f.SellAmount)
}

func TestFilterOrders(t *testing.T) {
	orders := []models.Order{
		{ID: 12, OrderType: models.OrderTypeBuy, AmountMWh: 1.5, PriceEURPerMWh: 40, Status: models.OrderStatusOpen},
		{ID: 7, OrderType: models.OrderTypeSell, AmountMWh: 3, PriceEURPerMWh: 125, Status: models.OrderStatusCompleted},
		{ID: 31, OrderType: models.OrderTypeSell, AmountMWh: 10, PriceEURPerMWh: 55, Status: models.OrderStatusOpen},
	}

	orderIDs := func(os []models.Order) []int {
		out := []int{}
		for _, o := range os {
			out = append(out, o.ID)
		}
		return out
	}

	assert.Equal(t, []int{7, 31}, orderIDs(FilterOrders(orders, OrderQuery{Type: models.OrderTypeSell})))
	assert.Equal(t, []int{12, 31}, orderIDs(FilterOrders(orders, OrderQuery{Status: models.OrderStatusOpen})))
	assert.Equal(t, []int{12}, orderIDs(FilterOrders(orders, OrderQuery{Search: "1.5"})))
	assert.Equal(t, []int{7}, orderIDs(FilterOrders(orders, OrderQuery{Search: "125"})))
	assert.Equal(t, []int{31}, orderIDs(FilterOrders(orders, OrderQuery{Type: models.OrderTypeSell, Search: "10"})))
	assert.Empty(t, FilterOrders(orders, OrderQuery{Search: "zzz"}))
}

func TestFilterTransactionsByType(t *testing.T) {
	txs := []models.Transaction{
		{ID: 1, TransactionType: models.OrderTypeBuy},
		{ID: 2, TransactionType: models.OrderTypeSell},
	}
	assert.Len(t, FilterTransactionsByType(txs, ""), 2)
	got := FilterTransactionsByType(txs, models.OrderTypeSell)
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].ID)
}
