package market

import "github.com/xtrntr/energytrade/internal/models"

// NetPosition summarizes settled transactions. Positive NetEnergy means
// energy was accumulated; positive NetValue means a net profit.
type NetPosition struct {
	Buys         int     `json:"buy_transactions"`
	Sells        int     `json:"sell_transactions"`
	BoughtEnergy float64 `json:"bought_mwh"`
	SoldEnergy   float64 `json:"sold_mwh"`
	BoughtValue  float64 `json:"bought_eur"`
	SoldValue    float64 `json:"sold_eur"`
	NetEnergy    float64 `json:"net_energy_mwh"`
	NetValue     float64 `json:"net_value_eur"`
	AvgBuyPrice  float64 `json:"avg_buy_price_eur_per_mwh"`
	AvgSellPrice float64 `json:"avg_sell_price_eur_per_mwh"`
}

// ComputeNetPosition derives net energy (bought - sold) and net value
// (sold - bought revenue) from transactions. Average prices are weighted by
// amount and are zero for a side without transactions.
func ComputeNetPosition(transactions []models.Transaction) NetPosition {
	var pos NetPosition
	var boughtMWh, soldMWh, boughtEUR, soldEUR accumulator

	for _, t := range transactions {
		switch t.TransactionType {
		case models.OrderTypeBuy:
			pos.Buys++
			boughtMWh.add(t.AmountMWh)
			boughtEUR.add(t.TotalEUR)
		case models.OrderTypeSell:
			pos.Sells++
			soldMWh.add(t.AmountMWh)
			soldEUR.add(t.TotalEUR)
		}
	}

	pos.BoughtEnergy = boughtMWh.value()
	pos.SoldEnergy = soldMWh.value()
	pos.BoughtValue = boughtEUR.value()
	pos.SoldValue = soldEUR.value()

	pos.NetEnergy = boughtMWh.minus(soldMWh).value()
	pos.NetValue = soldEUR.minus(boughtEUR).value()

	if pos.Buys > 0 {
		pos.AvgBuyPrice = ratio(boughtEUR, boughtMWh)
	}
	if pos.Sells > 0 {
		pos.AvgSellPrice = ratio(soldEUR, soldMWh)
	}
	return pos
}
