package exchangeapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/xtrntr/energytrade/internal/models"
)

const maxErrorBody = 64 << 10

// TokenSource supplies the bearer token for authenticated calls. An empty
// token means the request is sent without an Authorization header.
type TokenSource interface {
	Token() string
}

// StaticToken is a TokenSource that always returns the same token
type StaticToken string

func (t StaticToken) Token() string { return string(t) }

// TokenFunc adapts a function to a TokenSource. It lets a client be built
// before the session that owns the token.
type TokenFunc func() string

func (f TokenFunc) Token() string { return f() }

// Observer is told about every completed request
type Observer interface {
	ObserveRequest(method, route string, status int, elapsed time.Duration)
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger used for request tracing
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithObserver sets the request observer
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// Client talks to the exchange REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	logger     *slog.Logger
	observer   Observer
}

// NewClient creates a client for the API at baseURL. tokens may be nil for
// a client that only calls public endpoints.
func NewClient(baseURL string, timeout time.Duration, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		tokens:     tokens,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Login exchanges credentials for a token
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	creds := models.Credentials{Email: email, Password: password}
	if err := c.do(ctx, http.MethodPost, "/login", "/login", "", creds, &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", fmt.Errorf("exchange: login response carried no token")
	}
	return resp.Token, nil
}

// Register creates an account and returns its user id
func (c *Client) Register(ctx context.Context, reg models.Registration) (int, error) {
	var resp struct {
		UserID int `json:"user_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/register", "/register", "", reg, &resp); err != nil {
		return 0, err
	}
	return resp.UserID, nil
}

// Profile fetches the profile of the current token's account
func (c *Client) Profile(ctx context.Context) (models.User, error) {
	return c.ProfileWithToken(ctx, c.token())
}

// ProfileWithToken fetches the profile using token instead of the client's
// TokenSource. It is how a candidate token is validated before adoption.
func (c *Client) ProfileWithToken(ctx context.Context, token string) (models.User, error) {
	var u models.User
	err := c.do(ctx, http.MethodGet, "/auth/profile", "/auth/profile", token, nil, &u)
	return u, err
}

// Balance fetches the account balance
func (c *Client) Balance(ctx context.Context) (models.Balance, error) {
	var b models.Balance
	err := c.do(ctx, http.MethodGet, "/balance", "/balance", c.token(), nil, &b)
	return b, err
}

// Orders lists the caller's own orders, newest first
func (c *Client) Orders(ctx context.Context, filter models.OrderFilter) ([]models.Order, error) {
	q := url.Values{}
	if filter.Type != "" {
		q.Set("type", string(filter.Type))
	}
	setRange(q, filter)

	var orders []models.Order
	if err := c.do(ctx, http.MethodGet, "/orders", withQuery("/orders", q), c.token(), nil, &orders); err != nil {
		return nil, err
	}
	return nonNil(orders), nil
}

// SellOrders lists every open sell order on the exchange. The type field of
// filter is ignored.
func (c *Client) SellOrders(ctx context.Context, filter models.OrderFilter) ([]models.MarketListing, error) {
	q := url.Values{}
	setRange(q, filter)

	var listings []models.MarketListing
	if err := c.do(ctx, http.MethodGet, "/orders/sell", withQuery("/orders/sell", q), c.token(), nil, &listings); err != nil {
		return nil, err
	}
	return nonNil(listings), nil
}

// Order fetches a single order
func (c *Client) Order(ctx context.Context, id int) (models.Order, error) {
	var o models.Order
	err := c.do(ctx, http.MethodGet, "/orders/{id}", orderPath(id), c.token(), nil, &o)
	return o, err
}

// CreateOrder places an order and returns it as stored by the exchange
func (c *Client) CreateOrder(ctx context.Context, req models.CreateOrderRequest) (models.Order, error) {
	var o models.Order
	err := c.do(ctx, http.MethodPost, "/orders", "/orders", c.token(), req, &o)
	return o, err
}

// UpdateOrder changes the amount and/or price of an open order
func (c *Client) UpdateOrder(ctx context.Context, id int, req models.UpdateOrderRequest) error {
	return c.do(ctx, http.MethodPut, "/orders/{id}", orderPath(id), c.token(), req, nil)
}

// DeleteOrder removes an open order
func (c *Client) DeleteOrder(ctx context.Context, id int) error {
	return c.do(ctx, http.MethodDelete, "/orders/{id}", orderPath(id), c.token(), nil, nil)
}

// Transactions lists the caller's settled transactions, newest first
func (c *Client) Transactions(ctx context.Context) ([]models.Transaction, error) {
	var txs []models.Transaction
	if err := c.do(ctx, http.MethodGet, "/transactions", "/transactions", c.token(), nil, &txs); err != nil {
		return nil, err
	}
	return nonNil(txs), nil
}

func (c *Client) token() string {
	if c.tokens == nil {
		return ""
	}
	return c.tokens.Token()
}

// do sends one request. route is the templated path used for logs and
// metrics, path the concrete one. A nil out discards the response body.
func (c *Client) do(ctx context.Context, method, route, path, token string, in, out any) error {
	op := method + " " + route

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("exchange: encode %s: %w", op, err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("exchange: build %s: %w", op, err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		c.observe(method, route, 0, elapsed)
		c.logger.Debug("exchange request failed", "op", op, "request_id", requestID, "error", err)
		return &TransientError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	c.observe(method, route, resp.StatusCode, elapsed)
	c.logger.Debug("exchange request",
		"op", op,
		"status", resp.StatusCode,
		"request_id", requestID,
		"elapsed", elapsed,
	)

	if resp.StatusCode >= 400 {
		apiErr := decodeError(resp)
		if resp.StatusCode >= 500 {
			return &TransientError{Op: op, Err: apiErr}
		}
		return apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("exchange: decode %s: %w", op, err)
	}
	return nil
}

func (c *Client) observe(method, route string, status int, elapsed time.Duration) {
	if c.observer != nil {
		c.observer.ObserveRequest(method, route, status, elapsed)
	}
}

func decodeError(resp *http.Response) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(raw) == 0 {
		return apiErr
	}
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &payload) == nil {
		if payload.Error != "" {
			apiErr.Message = payload.Error
			return apiErr
		}
		if payload.Message != "" {
			apiErr.Message = payload.Message
			return apiErr
		}
	}
	apiErr.Message = strings.TrimSpace(string(raw))
	return apiErr
}

func setRange(q url.Values, filter models.OrderFilter) {
	if filter.From != "" {
		q.Set("from", filter.From)
	}
	if filter.To != "" {
		q.Set("to", filter.To)
	}
}

func withQuery(path string, q url.Values) string {
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}

func orderPath(id int) string {
	return "/orders/" + strconv.Itoa(id)
}

// nonNil turns a decoded JSON null into an empty slice
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
