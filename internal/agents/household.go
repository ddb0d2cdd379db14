package agents

import (
	"iter"
	"log/slog"

	"github.com/talgya/glade-market/internal/economy"
)

// Household sells its members' labor and buys food. Labor does not keep:
// whatever was not sold by the end of a tick is gone at the next.
type Household struct {
	Name    string
	Members int64
	Food    economy.Good
	Labor   economy.Good
	Pantry  int64 // Meals per member to keep in stock
	Hunger  int   // Consecutive ticks without enough food
	Account

	catalog *economy.Catalog
}

// NewHousehold creates a household with coins and no stock.
func NewHousehold(name string, members int64, food, labor economy.Good, catalog *economy.Catalog, currency economy.Good, coins float64) *Household {
	return &Household{
		Name:    name,
		Members: members,
		Food:    food,
		Labor:   labor,
		Pantry:  2,
		Account: newAccount(currency, coins),
		catalog: catalog,
	}
}

func (h *Household) String() string { return h.Name }

// Tick eats one meal per member and refreshes the labor on offer.
func (h *Household) Tick(dt float64) error {
	if h.Stock.Take(h.Food, h.Members) {
		h.Hunger = 0
	} else {
		h.Stock[h.Food] = 0
		h.Hunger++
		if h.Hunger%60 == 0 {
			slog.Info("household going hungry", "household", h.Name, "ticks", h.Hunger)
		}
	}
	h.Stock[h.Labor] = h.Members
	return nil
}

// SellOrders offers the day's labor at the base wage.
func (h *Household) SellOrders() iter.Seq[*economy.Order] {
	return func(yield func(*economy.Order) bool) {
		if n := h.Stock.Count(h.Labor); n > 0 {
			yield(economy.Ask(h.Labor, h.Currency, n, h.catalog.BaseValue(h.Labor), h))
		}
	}
}

// BuyOrders bids for food, paying more the longer the household has gone hungry.
func (h *Household) BuyOrders() iter.Seq[*economy.Order] {
	return func(yield func(*economy.Order) bool) {
		want := h.Members*h.Pantry - h.Stock.Count(h.Food)
		if want <= 0 {
			return
		}
		premium := 0.1 * float64(h.Hunger)
		if premium > 1 {
			premium = 1
		}
		price := h.catalog.BaseValue(h.Food) * (1 + premium)
		if price > 0 {
			if afford := int64(h.Coins / price); afford < want {
				want = afford
			}
		}
		if want > 0 {
			yield(economy.Bid(h.Food, h.Currency, want, price, h))
		}
	}
}

// OnTradeExecuted moves goods and coins for a settled trade.
func (h *Household) OnTradeExecuted(t economy.TradeResult) error {
	return h.settle(h, t)
}
