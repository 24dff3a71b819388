package exchangesim

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtrntr/energytrade/internal/exchangeapi"
	"github.com/xtrntr/energytrade/internal/logging"
	"github.com/xtrntr/energytrade/internal/metrics"
	"github.com/xtrntr/energytrade/internal/models"
)

func next(t *testing.T, w *exchangeapi.MarketWatch) models.BookUpdate {
	t.Helper()
	select {
	case u, ok := <-w.Updates():
		require.True(t, ok, "feed closed: %v", w.Err())
		return u
	case <-time.After(5 * time.Second):
		t.Fatal("no book update")
	}
	return models.BookUpdate{}
}

func TestFeed_SnapshotAndUpdates(t *testing.T) {
	m := metrics.New()
	sim, ts := newTestServer(t, WithMetrics(m))
	seller, _ := signUp(t, ts.URL, "Ada")
	buyer, _ := signUp(t, ts.URL, "Bob")
	first := place(t, seller, models.OrderTypeSell, 10, 40)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watch, err := buyer.WatchMarket(ctx)
	require.NoError(t, err)

	snap := next(t, watch)
	assert.Equal(t, "snapshot", snap.Reason)
	require.Len(t, snap.Listings, 1)
	assert.Equal(t, first.ID, snap.Listings[0].ID)
	assert.Equal(t, "Ada", snap.Listings[0].SellerName)
	assert.Equal(t, 1, sim.Feed().Subscribers())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FeedSubscribers))

	place(t, buyer, models.OrderTypeBuy, 4, 45)
	u := next(t, watch)
	assert.Equal(t, "trade", u.Reason)
	assert.Greater(t, u.Sequence, snap.Sequence)
	require.Len(t, u.Listings, 1)
	assert.Equal(t, 6.0, u.Listings[0].AmountMWh)

	// a buy that fills nothing leaves the book alone
	place(t, buyer, models.OrderTypeBuy, 1, 10)
	second := place(t, seller, models.OrderTypeSell, 5, 50)
	u = next(t, watch)
	assert.Equal(t, "order", u.Reason)
	assert.Len(t, u.Listings, 2)

	price := 39.0
	require.NoError(t, seller.UpdateOrder(ctx, second.ID, models.UpdateOrderRequest{PriceEURPerMWh: &price}))
	u = next(t, watch)
	assert.Equal(t, "update", u.Reason)
	require.Len(t, u.Listings, 2)
	assert.Equal(t, second.ID, u.Listings[0].ID, "cheapest first")

	require.NoError(t, seller.DeleteOrder(ctx, second.ID))
	u = next(t, watch)
	assert.Equal(t, "cancel", u.Reason)
	assert.Len(t, u.Listings, 1)

	cancel()
	for range watch.Updates() {
	}
	assert.NoError(t, watch.Err())
	assert.Eventually(t, func() bool { return sim.Feed().Subscribers() == 0 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.FeedSubscribers))
}

func TestFeed_OutageFailsHandshake(t *testing.T) {
	sim, ts := newTestServer(t)
	sim.SetOutage(true)

	c := exchangeapi.NewClient(ts.URL, 5*time.Second, nil, exchangeapi.WithLogger(logging.Discard()))
	_, err := c.WatchMarket(context.Background())
	require.Error(t, err)
	assert.True(t, exchangeapi.IsTransient(err))
	assert.Equal(t, http.StatusServiceUnavailable, exchangeapi.StatusCode(err))
}

func TestFeed_ChecksOrigin(t *testing.T) {
	_, ts := newTestServer(t)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/market"

	tests := []struct {
		origin string
		ok     bool
	}{
		{"", true},
		{"http://localhost:3000", true},
		{"http://evil.example", false},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			header := http.Header{}
			if tt.origin != "" {
				header.Set("Origin", tt.origin)
			}
			conn, resp, err := websocket.DefaultDialer.Dial(url, header)
			if tt.ok {
				require.NoError(t, err)
				conn.Close()
				return
			}
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		})
	}
}
