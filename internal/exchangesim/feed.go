package exchangesim

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xtrntr/energytrade/internal/metrics"
	"github.com/xtrntr/energytrade/internal/models"
)

const (
	feedBuffer     = 16
	feedWriteWait  = 10 * time.Second
	feedPongWait   = 60 * time.Second
	feedPingPeriod = feedPongWait * 9 / 10
)

type feedClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Feed fans the open sell book out to websocket subscribers. A subscriber
// that falls feedBuffer messages behind is disconnected.
type Feed struct {
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	clients map[*feedClient]struct{}
	seq     uint64
}

func newFeed(logger *slog.Logger, m *metrics.Metrics) *Feed {
	return &Feed{
		logger:  logger,
		metrics: m,
		clients: make(map[*feedClient]struct{}),
	}
}

// Subscribers returns the number of connected clients
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

// messageLocked encodes the book under the next sequence number
func (f *Feed) messageLocked(reason string, book []models.Order, at time.Time) []byte {
	f.seq++
	data, err := json.Marshal(models.BookUpdate{
		Sequence: f.seq,
		Reason:   reason,
		Listings: listings(book),
		At:       at,
	})
	if err != nil {
		f.logger.Error("encode book update", "error", err)
		return nil
	}
	return data
}

// Publish sends the book to every subscriber without blocking
func (f *Feed) Publish(reason string, book []models.Order, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.clients) == 0 {
		return
	}
	data := f.messageLocked(reason, book, at)
	if data == nil {
		return
	}
	for c := range f.clients {
		select {
		case c.send <- data:
		default:
			f.logger.Warn("market feed subscriber too slow, disconnecting")
			if f.metrics != nil {
				f.metrics.FeedDrop()
			}
			f.removeLocked(c)
		}
	}
}

func (f *Feed) add(c *feedClient, reason string, book []models.Order, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clients[c] = struct{}{}
	if f.metrics != nil {
		f.metrics.FeedSubscribed(1)
	}
	if data := f.messageLocked(reason, book, at); data != nil {
		c.send <- data
	}
}

func (f *Feed) remove(c *feedClient) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeLocked(c)
}

func (f *Feed) removeLocked(c *feedClient) {
	if _, ok := f.clients[c]; !ok {
		return
	}
	delete(f.clients, c)
	close(c.send)
	if f.metrics != nil {
		f.metrics.FeedSubscribed(-1)
	}
}

// writePump owns all writes to the connection
func (f *Feed) writePump(c *feedClient) {
	ticker := time.NewTicker(feedPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				f.logger.Debug("market feed write failed", "error", err)
				f.remove(c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				f.remove(c)
				return
			}
		}
	}
}

func (s *Server) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(s.cfg.AllowedOrigins, "*") || slices.Contains(s.cfg.AllowedOrigins, origin)
		},
	}
}

// handleMarketFeed streams the open sell book: a snapshot on connect, then
// one update per change
func (s *Server) handleMarketFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("market feed upgrade failed", "error", err)
		return
	}

	c := &feedClient{conn: conn, send: make(chan []byte, feedBuffer)}
	s.feed.add(c, models.ReasonSnapshot, s.store.SellOrders(Range{}), s.now())
	go s.feed.writePump(c)

	// Subscribers never send anything; reading detects the close and
	// handles pongs.
	conn.SetReadDeadline(time.Now().Add(feedPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(feedPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	s.feed.remove(c)
}

// publishBook pushes the current book after a change
func (s *Server) publishBook(reason string) {
	s.feed.Publish(reason, s.store.SellOrders(Range{}), s.now())
}

func listings(orders []models.Order) []models.MarketListing {
	out := make([]models.MarketListing, len(orders))
	for i, o := range orders {
		out[i] = models.MarketListing{
			ID:             o.ID,
			UserID:         o.UserID,
			OrderType:      o.OrderType,
			AmountMWh:      o.AmountMWh,
			PriceEURPerMWh: o.PriceEURPerMWh,
			Status:         o.Status,
			CreatedAt:      o.CreatedAt,
			UpdatedAt:      o.UpdatedAt,
			SellerName:     o.UserName,
		}
	}
	return out
}
