package exchangesim

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/xtrntr/energytrade/internal/models"
)

// openSellsLocked returns the open sell orders in execution priority:
// lowest price first, then earliest time
func (s *Store) openSellsLocked() []*models.Order {
	var sells []*models.Order
	for _, o := range s.orders {
		if o.OrderType == models.OrderTypeSell && o.Status == models.OrderStatusOpen {
			sells = append(sells, o)
		}
	}
	sort.Slice(sells, func(i, j int) bool {
		if sells[i].PriceEURPerMWh == sells[j].PriceEURPerMWh {
			if sells[i].CreatedAt.Equal(sells[j].CreatedAt) {
				return sells[i].ID < sells[j].ID
			}
			return sells[i].CreatedAt.Before(sells[j].CreatedAt)
		}
		return sells[i].PriceEURPerMWh < sells[j].PriceEURPerMWh
	})
	return sells
}

// executeBuyLocked fills buy against open sell orders priced at or below
// it. Fills trade at the sell price and never match the buyer's own sells.
// A partially filled order keeps the remaining amount and stays open.
func (s *Store) executeBuyLocked(buy *models.Order) []models.Transaction {
	var fills []models.Transaction
	remaining := decimal.NewFromFloat(buy.AmountMWh)

	for _, sell := range s.openSellsLocked() {
		if !remaining.IsPositive() {
			break
		}
		if sell.PriceEURPerMWh > buy.PriceEURPerMWh {
			break
		}
		if sell.UserID == buy.UserID {
			continue
		}

		available := decimal.NewFromFloat(sell.AmountMWh)
		qty := decimal.Min(remaining, available)
		fills = append(fills, s.settleLocked(buy, sell, qty)...)

		left := available.Sub(qty)
		if left.IsPositive() {
			sell.AmountMWh = left.InexactFloat64()
		} else {
			sell.Status = models.OrderStatusCompleted
		}
		sell.UpdatedAt = s.now()
		remaining = remaining.Sub(qty)
	}

	if len(fills) == 0 {
		return nil
	}
	if remaining.IsPositive() {
		buy.AmountMWh = remaining.InexactFloat64()
	} else {
		buy.Status = models.OrderStatusCompleted
	}
	buy.UpdatedAt = s.now()
	return fills
}

// settleLocked records one fill as a buy and a sell transaction and moves
// money and energy between the two accounts
func (s *Store) settleLocked(buy, sell *models.Order, qty decimal.Decimal) []models.Transaction {
	price := decimal.NewFromFloat(sell.PriceEURPerMWh)
	total := qty.Mul(price)
	now := s.now()

	buyer, seller := s.users[buy.UserID], s.users[sell.UserID]
	buyer.Money = buyer.Money.Sub(total)
	buyer.Energy = buyer.Energy.Add(qty)
	seller.Money = seller.Money.Add(total)
	seller.Energy = seller.Energy.Sub(qty)

	buyID, sellID := buy.ID, sell.ID
	pair := []models.Transaction{
		{UserID: buy.UserID, OrderID: &buyID, TransactionType: models.OrderTypeBuy},
		{UserID: sell.UserID, OrderID: &sellID, TransactionType: models.OrderTypeSell},
	}
	for i := range pair {
		s.nextTx++
		pair[i].ID = s.nextTx
		pair[i].AmountMWh = qty.InexactFloat64()
		pair[i].PriceEURPerMWh = sell.PriceEURPerMWh
		pair[i].TotalEUR = total.InexactFloat64()
		pair[i].CreatedAt = now
	}
	s.txs = append(s.txs, pair...)
	return pair
}
