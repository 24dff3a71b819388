package market

import (
	"strconv"
	"strings"

	"github.com/xtrntr/energytrade/internal/models"
)

// OrderQuery narrows a user's own order list. Empty fields match everything.
type OrderQuery struct {
	Type   models.OrderType
	Status models.OrderStatus
	Search string
}

// FilterOrders keeps the orders matching q in their original order. Search
// is a substring match against the id, unit price and amount as written in
// shortest decimal form.
func FilterOrders(orders []models.Order, q OrderQuery) []models.Order {
	search := strings.TrimSpace(q.Search)
	out := make([]models.Order, 0, len(orders))
	for _, o := range orders {
		if q.Type != "" && o.OrderType != q.Type {
			continue
		}
		if q.Status != "" && o.Status != q.Status {
			continue
		}
		if search != "" && !matchesSearch(o, search) {
			continue
		}
		out = append(out, o)
	}
	return out
}

func matchesSearch(o models.Order, term string) bool {
	return strings.Contains(strconv.Itoa(o.ID), term) ||
		strings.Contains(formatNumber(o.PriceEURPerMWh), term) ||
		strings.Contains(formatNumber(o.AmountMWh), term)
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FilterTransactionsByType keeps transactions of type t; empty t keeps all
func FilterTransactionsByType(transactions []models.Transaction, t models.OrderType) []models.Transaction {
	out := make([]models.Transaction, 0, len(transactions))
	for _, tx := range transactions {
		if t == "" || tx.TransactionType == t {
			out = append(out, tx)
		}
	}
	return out
}
