package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/xtrntr/energytrade/internal/config"
	"github.com/xtrntr/energytrade/internal/exchangesim"
	"github.com/xtrntr/energytrade/internal/logging"
	"github.com/xtrntr/energytrade/internal/models"
	"github.com/xtrntr/energytrade/internal/trading"
)

type result struct {
	code   int
	stdout string
	stderr string
}

// cli runs energyctl against the simulator with its session in tokenPath
func cli(t *testing.T, url, tokenPath string, args ...string) result {
	t.Helper()
	t.Setenv("ENERGY_API_URL", url)
	t.Setenv("ENERGY_TOKEN_STORE", "file")
	t.Setenv("ENERGY_TOKEN_PATH", tokenPath)
	t.Setenv("ENERGY_LOG_LEVEL", "error")
	t.Setenv("ENERGY_METRICS_ADDR", "")

	var stdout, stderr bytes.Buffer
	argv := append([]string{"-env-file", filepath.Join(t.TempDir(), "missing.env")}, args...)
	code := run(context.Background(), argv, &stdout, &stderr)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func newSim(t *testing.T) string {
	t.Helper()
	sim := exchangesim.New(config.Default().Sim, exchangesim.WithLogger(logging.Discard()), exchangesim.WithBcryptCost(bcrypt.MinCost))
	ts := httptest.NewServer(sim)
	t.Cleanup(ts.Close)
	return ts.URL
}

func signUp(t *testing.T, url, tokenPath, name string) {
	t.Helper()
	email := name + "@example.com"
	r := cli(t, url, tokenPath, "register", "-name", name, "-email", email, "-password", "secret1")
	require.Equal(t, 0, r.code, r.stderr)
	r = cli(t, url, tokenPath, "login", "-email", email, "-password", "secret1")
	require.Equal(t, 0, r.code, r.stderr)
	require.Contains(t, r.stdout, "authenticated")
}

func TestRun_Usage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 2, run(context.Background(), nil, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "usage: energyctl")
	assert.Contains(t, stderr.String(), "transactions [-type buy|sell]")

	stderr.Reset()
	assert.Equal(t, 2, run(context.Background(), []string{"bogus"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), `unknown command "bogus"`)
}

func TestRun_RequiresSignIn(t *testing.T) {
	url := newSim(t)
	path := filepath.Join(t.TempDir(), "token")

	r := cli(t, url, path, "balance")
	assert.Equal(t, 1, r.code)
	assert.Contains(t, r.stderr, "not signed in")

	r = cli(t, url, path, "whoami")
	assert.Equal(t, 0, r.code)
	assert.Equal(t, "unauthenticated\n", r.stdout)
}

func TestRun_LoginRejected(t *testing.T) {
	url := newSim(t)
	path := filepath.Join(t.TempDir(), "token")

	r := cli(t, url, path, "login", "-email", "nobody@example.com", "-password", "secret1")
	assert.Equal(t, 1, r.code)
	assert.Contains(t, r.stderr, "invalid email or password")
}

func TestRun_ValidationErrors(t *testing.T) {
	url := newSim(t)
	path := filepath.Join(t.TempDir(), "token")
	signUp(t, url, path, "ada")

	tests := []struct {
		name string
		args []string
	}{
		{"negative amount", []string{"create", "-type", "buy", "-amount", "-1", "-price", "40"}},
		{"unknown type", []string{"create", "-type", "hold", "-amount", "1", "-price", "40"}},
		{"unaffordable", []string{"create", "-type", "buy", "-amount", "1000", "-price", "1000"}},
		{"bad sort key", []string{"market", "-sort", "volume"}},
		{"bad order id", []string{"order", "abc"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := cli(t, url, path, tt.args...)
			assert.Equal(t, 1, r.code)
			assert.Contains(t, r.stderr, "energyctl "+tt.args[0]+":")
		})
	}
}

func TestRun_TradingFlow(t *testing.T) {
	url := newSim(t)
	dir := t.TempDir()
	seller := filepath.Join(dir, "seller")
	buyer := filepath.Join(dir, "buyer")
	signUp(t, url, seller, "ada")
	signUp(t, url, buyer, "bob")

	r := cli(t, url, seller, "create", "-type", "sell", "-amount", "10", "-price", "45")
	require.Equal(t, 0, r.code, r.stderr)
	r = cli(t, url, seller, "create", "-type", "sell", "-amount", "5", "-price", "60")
	require.Equal(t, 0, r.code, r.stderr)

	// sellers do not see their own listings
	r = cli(t, url, seller, "-json", "market")
	require.Equal(t, 0, r.code, r.stderr)
	var own trading.MarketView
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &own))
	assert.Empty(t, own.Listings)
	assert.Zero(t, own.Available)

	r = cli(t, url, buyer, "-json", "market", "-max-price", "50")
	require.Equal(t, 0, r.code, r.stderr)
	var view trading.MarketView
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &view))
	require.Len(t, view.Listings, 1)
	assert.Equal(t, 45.0, view.Listings[0].PriceEURPerMWh)
	assert.True(t, view.HasStats)

	r = cli(t, url, buyer, "ticker", "-count", "1", "-max-price", "50")
	require.Equal(t, 0, r.code, r.stderr)
	assert.Contains(t, r.stdout, "snapshot")
	assert.Contains(t, r.stdout, "1 listings, 10 MWh, best 45.00")

	r = cli(t, url, buyer, "hint")
	require.Equal(t, 0, r.code, r.stderr)
	assert.Contains(t, r.stdout, "asking prices: 2 orders")

	r = cli(t, url, buyer, "-json", "create", "-type", "buy", "-amount", "4", "-price", "50")
	require.Equal(t, 0, r.code, r.stderr)
	var placed []models.Order
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &placed))
	require.Len(t, placed, 1)
	assert.Equal(t, models.OrderStatusCompleted, placed[0].Status)

	r = cli(t, url, buyer, "-json", "balance")
	require.Equal(t, 0, r.code, r.stderr)
	var bal models.Balance
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &bal))
	assert.InDelta(t, 10000-4*45.0, bal.MoneyEUR, 1e-9)
	assert.InDelta(t, 104.0, bal.EnergyMWh, 1e-9)

	r = cli(t, url, seller, "-json", "transactions", "-type", "sell")
	require.Equal(t, 0, r.code, r.stderr)
	var txs trading.TransactionsView
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &txs))
	require.Len(t, txs.Transactions, 1)
	assert.Equal(t, 180.0, txs.Transactions[0].TotalEUR)
	assert.InDelta(t, -4.0, txs.Position.NetEnergy, 1e-9)

	r = cli(t, url, buyer, "fulfilled")
	require.Equal(t, 0, r.code, r.stderr)
	assert.Contains(t, r.stdout, "bought 4 MWh worth 200.00 EUR in 1 orders")

	r = cli(t, url, seller, "stats", "-tz", "UTC")
	require.Equal(t, 0, r.code, r.stderr)
	assert.Contains(t, r.stdout, "STATUS")
	assert.Contains(t, r.stdout, "trades: 1 orders")

	r = cli(t, url, buyer, "dashboard")
	require.Equal(t, 0, r.code, r.stderr)
	assert.Contains(t, r.stdout, "best offers")
	assert.Contains(t, r.stdout, "recent transactions")
}

func TestRun_EditAndCancel(t *testing.T) {
	url := newSim(t)
	path := filepath.Join(t.TempDir(), "token")
	signUp(t, url, path, "ada")

	r := cli(t, url, path, "-json", "create", "-type", "sell", "-amount", "10", "-price", "45")
	require.Equal(t, 0, r.code, r.stderr)
	var placed []models.Order
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &placed))
	id := strconv.Itoa(placed[0].ID)

	r = cli(t, url, path, "-json", "edit", id, "-price", "47.5")
	require.Equal(t, 0, r.code, r.stderr)
	var edited []models.Order
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &edited))
	assert.Equal(t, 47.5, edited[0].PriceEURPerMWh)
	assert.Equal(t, 10.0, edited[0].AmountMWh)

	r = cli(t, url, path, "cancel", id)
	require.Equal(t, 0, r.code, r.stderr)
	assert.Equal(t, "order "+id+" canceled\n", r.stdout)

	r = cli(t, url, path, "-json", "orders", "-status", "canceled")
	require.Equal(t, 0, r.code, r.stderr)
	var orders []models.Order
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &orders))
	require.Len(t, orders, 1)
	assert.Equal(t, placed[0].ID, orders[0].ID)

	r = cli(t, url, path, "logout")
	require.Equal(t, 0, r.code, r.stderr)
	r = cli(t, url, path, "orders")
	assert.Equal(t, 1, r.code)
	assert.Contains(t, r.stderr, "not signed in")
}
