// Command seed fills a running exchange with two traders and a few trades
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/xtrntr/energytrade/internal/exchangeapi"
	"github.com/xtrntr/energytrade/internal/logging"
	"github.com/xtrntr/energytrade/internal/models"
)

const password = "password123"

type trader struct {
	name   string
	email  string
	client *exchangeapi.Client
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "exchange base URL")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	seller, err := signIn(ctx, *baseURL, "trader1")
	if err != nil {
		log.Fatalf("Failed to prepare trader1: %v", err)
	}
	buyer, err := signIn(ctx, *baseURL, "trader2")
	if err != nil {
		log.Fatalf("Failed to prepare trader2: %v", err)
	}

	// First check if we already have trades
	txs, err := buyer.client.Transactions(ctx)
	if err != nil {
		log.Fatalf("Failed to check trades: %v", err)
	}
	if len(txs) > 0 {
		fmt.Printf("Exchange already has %d trades for %s. No need to seed.\n", len(txs), buyer.name)
		os.Exit(0)
	}

	// Sell orders from trader1, cheapest first gets filled first
	sells := []models.CreateOrderRequest{
		{OrderType: models.OrderTypeSell, AmountMWh: 10, PriceEURPerMWh: 42},
		{OrderType: models.OrderTypeSell, AmountMWh: 15, PriceEURPerMWh: 45.5},
		{OrderType: models.OrderTypeSell, AmountMWh: 20, PriceEURPerMWh: 51},
		{OrderType: models.OrderTypeSell, AmountMWh: 5, PriceEURPerMWh: 60},
	}
	for i, req := range sells {
		if _, err := seller.client.CreateOrder(ctx, req); err != nil {
			log.Fatalf("Failed to create sell order %d: %v", i+1, err)
		}
	}

	// Buy orders from trader2 execute immediately against the book
	buys := []models.CreateOrderRequest{
		{OrderType: models.OrderTypeBuy, AmountMWh: 8, PriceEURPerMWh: 45},
		{OrderType: models.OrderTypeBuy, AmountMWh: 12, PriceEURPerMWh: 50},
		{OrderType: models.OrderTypeBuy, AmountMWh: 6, PriceEURPerMWh: 40},
	}
	for i, req := range buys {
		o, err := buyer.client.CreateOrder(ctx, req)
		if err != nil {
			log.Fatalf("Failed to create buy order %d: %v", i+1, err)
		}
		fmt.Printf("Buy order %d: %.1f MWh, status %s\n", o.ID, o.AmountMWh, o.Status)
	}

	txs, err = buyer.client.Transactions(ctx)
	if err != nil {
		log.Fatalf("Failed to list trades: %v", err)
	}
	fmt.Printf("Successfully seeded the exchange with %d trades!\n", len(txs))
}

// signIn logs name in, registering the account first when it does not exist
func signIn(ctx context.Context, baseURL, name string) (*trader, error) {
	anon := exchangeapi.NewClient(baseURL, 10*time.Second, nil, exchangeapi.WithLogger(logging.Discard()))
	t := &trader{name: name, email: name + "@example.com"}

	token, err := anon.Login(ctx, t.email, password)
	if exchangeapi.IsCredential(err) {
		if _, err := anon.Register(ctx, models.Registration{Name: name, Email: t.email, Password: password}); err != nil {
			return nil, fmt.Errorf("register: %w", err)
		}
		token, err = anon.Login(ctx, t.email, password)
	}
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	t.client = exchangeapi.NewClient(baseURL, 10*time.Second, exchangeapi.StaticToken(token), exchangeapi.WithLogger(logging.Discard()))
	return t, nil
}
