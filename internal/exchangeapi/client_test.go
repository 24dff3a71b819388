package exchangeapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtrntr/energytrade/internal/models"
)

type recordingObserver struct {
	mu     sync.Mutex
	routes []string
	codes  []int
}

func (o *recordingObserver) ObserveRequest(method, route string, status int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.routes = append(o.routes, method+" "+route)
	o.codes = append(o.codes, status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestClient_AuthorizationHeader(t *testing.T) {
	var gotAuth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		_, err := uuid.Parse(r.Header.Get("X-Request-ID"))
		assert.NoError(t, err)
		writeJSON(w, http.StatusOK, models.Balance{MoneyEUR: 100, EnergyMWh: 4})
	}))
	defer srv.Close()

	anon := NewClient(srv.URL, time.Second, nil)
	_, err := anon.Balance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "", gotAuth.Load())

	authed := NewClient(srv.URL, time.Second, StaticToken("tok-1"))
	bal, err := authed.Balance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-1", gotAuth.Load())
	assert.Equal(t, 100.0, bal.MoneyEUR)
	assert.Equal(t, 4.0, bal.EnergyMWh)
}

func TestClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		credential bool
		transient  bool
		message    string
	}{
		{name: "401", status: http.StatusUnauthorized, body: `{"error":"invalid token"}`, credential: true, message: "invalid token"},
		{name: "403", status: http.StatusForbidden, body: `{"error":"unauthorized"}`, message: "unauthorized"},
		{name: "400 plain text", status: http.StatusBadRequest, body: "bad input", message: "bad input"},
		{name: "500", status: http.StatusInternalServerError, body: `{"error":"boom"}`, transient: true, message: "boom"},
		{name: "503", status: http.StatusServiceUnavailable, transient: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewClient(srv.URL, time.Second, StaticToken("t"))
			_, err := c.Profile(context.Background())
			require.Error(t, err)
			assert.Equal(t, tt.credential, IsCredential(err))
			assert.Equal(t, tt.transient, IsTransient(err))
			assert.Equal(t, tt.status, StatusCode(err))

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.message, apiErr.Message)
		})
	}
}

func TestClient_NetworkFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(url, time.Second, StaticToken("t"))
	_, err := c.Profile(context.Background())
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.False(t, IsCredential(err))
}

func TestClient_TimeoutIsTransient(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(srv.URL, 50*time.Millisecond, StaticToken("t"))
	_, err := c.Profile(context.Background())
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestClient_NullCollectionsAreEmpty(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/orders", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("null")) })
	r.Get("/orders/sell", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("null")) })
	r.Get("/transactions", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("null")) })
	srv := httptest.NewServer(r)
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, StaticToken("t"))
	ctx := context.Background()

	orders, err := c.Orders(ctx, models.OrderFilter{})
	require.NoError(t, err)
	assert.NotNil(t, orders)
	assert.Empty(t, orders)

	listings, err := c.SellOrders(ctx, models.OrderFilter{})
	require.NoError(t, err)
	assert.NotNil(t, listings)

	txs, err := c.Transactions(ctx)
	require.NoError(t, err)
	assert.NotNil(t, txs)
}

func TestClient_OrderEndpoints(t *testing.T) {
	obs := &recordingObserver{}
	var mu sync.Mutex
	var calls []string

	r := chi.NewRouter()
	r.Get("/orders", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls = append(calls, "list "+r.URL.RawQuery)
		mu.Unlock()
		writeJSON(w, http.StatusOK, []models.Order{{ID: 3, OrderType: models.OrderTypeBuy}})
	})
	r.Post("/orders", func(w http.ResponseWriter, r *http.Request) {
		var req models.CreateOrderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		writeJSON(w, http.StatusCreated, models.Order{
			ID: 9, OrderType: req.OrderType, AmountMWh: req.AmountMWh,
			PriceEURPerMWh: req.PriceEURPerMWh, Status: models.OrderStatusOpen,
		})
	})
	r.Put("/orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		var req models.UpdateOrderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Nil(t, req.AmountMWh)
		require.NotNil(t, req.PriceEURPerMWh)
		assert.Equal(t, 42.0, *req.PriceEURPerMWh)
		mu.Lock()
		calls = append(calls, "put "+chi.URLParam(r, "id"))
		mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]string{"message": "order updated successfully"})
	})
	r.Delete("/orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls = append(calls, "delete "+chi.URLParam(r, "id"))
		mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]string{"message": "order deleted successfully"})
	})
	r.Get("/orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, StaticToken("t"), WithObserver(obs))
	ctx := context.Background()

	orders, err := c.Orders(ctx, models.OrderFilter{Type: models.OrderTypeBuy, From: "2025-01-01"})
	require.NoError(t, err)
	require.Len(t, orders, 1)

	created, err := c.CreateOrder(ctx, models.CreateOrderRequest{
		OrderType: models.OrderTypeSell, AmountMWh: 2, PriceEURPerMWh: 30,
	})
	require.NoError(t, err)
	assert.Equal(t, 9, created.ID)
	assert.Equal(t, models.OrderTypeSell, created.OrderType)

	price := 42.0
	require.NoError(t, c.UpdateOrder(ctx, 9, models.UpdateOrderRequest{PriceEURPerMWh: &price}))
	require.NoError(t, c.DeleteOrder(ctx, 9))

	_, err = c.Order(ctx, 77)
	assert.Equal(t, http.StatusNotFound, StatusCode(err))
	assert.False(t, IsTransient(err))

	assert.Equal(t, []string{"list from=2025-01-01&type=buy", "put 9", "delete 9"}, calls)
	assert.Equal(t, []string{
		"GET /orders", "POST /orders", "PUT /orders/{id}", "DELETE /orders/{id}", "GET /orders/{id}",
	}, obs.routes)
	assert.Equal(t, []int{200, 201, 200, 200, 404}, obs.codes)
}

func TestClient_LoginAndRegister(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/login", func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		var creds models.Credentials
		require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		if creds.Password != "secret" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"token": "jwt-abc"})
	})
	r.Post("/register", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, map[string]int{"user_id": 12})
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, StaticToken("stale"))
	ctx := context.Background()

	tok, err := c.Login(ctx, "a@b.c", "secret")
	require.NoError(t, err)
	assert.Equal(t, "jwt-abc", tok)

	_, err = c.Login(ctx, "a@b.c", "wrong")
	assert.True(t, IsCredential(err))

	id, err := c.Register(ctx, models.Registration{Name: "a", Email: "a@b.c", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, 12, id)
}

func TestClient_ProfileWithTokenOverridesSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer candidate", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, models.User{UserID: 5, EnergyMWh: 1, MoneyEUR: 2})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, StaticToken("held"))
	u, err := c.ProfileWithToken(context.Background(), "candidate")
	require.NoError(t, err)
	assert.Equal(t, 5, u.UserID)
}
