package exchangeapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xtrntr/energytrade/internal/models"
)

const marketFeedRoute = "/ws/market"

// WatchMarket subscribes to the market feed. The first update is a
// snapshot of the open sell book. The channel is closed when ctx is done
// or the connection drops; Err reports why.
func (c *Client) WatchMarket(ctx context.Context) (*MarketWatch, error) {
	u, err := url.Parse(c.baseURL + marketFeedRoute)
	if err != nil {
		return nil, fmt.Errorf("exchange: feed url: %w", err)
	}
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.httpClient.Timeout,
	}
	start := time.Now()
	conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	c.observe(http.MethodGet, marketFeedRoute, status, time.Since(start))
	if err != nil {
		op := "GET " + marketFeedRoute
		if resp != nil && resp.StatusCode >= 400 {
			apiErr := decodeError(resp)
			if resp.StatusCode >= 500 {
				return nil, &TransientError{Op: op, Err: apiErr}
			}
			return nil, apiErr
		}
		return nil, &TransientError{Op: op, Err: err}
	}

	w := &MarketWatch{
		updates: make(chan models.BookUpdate),
		done:    make(chan struct{}),
	}
	go w.read(ctx, conn)
	go func() {
		select {
		case <-ctx.Done():
		case <-w.done:
		}
		conn.Close()
	}()
	c.logger.Debug("market feed connected", "url", u.String())
	return w, nil
}

// MarketWatch is an open market feed subscription
type MarketWatch struct {
	updates chan models.BookUpdate
	done    chan struct{}
	err     error
}

// Updates delivers book updates in sequence order
func (w *MarketWatch) Updates() <-chan models.BookUpdate {
	return w.updates
}

// Err returns the reason the feed ended, nil after a cancel. It is only
// meaningful once Updates is closed.
func (w *MarketWatch) Err() error {
	return w.err
}

func (w *MarketWatch) read(ctx context.Context, conn *websocket.Conn) {
	defer close(w.updates)
	defer close(w.done)

	for {
		var u models.BookUpdate
		if err := conn.ReadJSON(&u); err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				w.err = &TransientError{Op: "read market feed", Err: err}
			}
			return
		}
		select {
		case w.updates <- u:
		case <-ctx.Done():
			return
		}
	}
}
