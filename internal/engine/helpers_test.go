package engine

import (
	"iter"

	"github.com/talgya/glade-market/internal/economy"
)

type brokenTrader struct{}

func (brokenTrader) SellOrders() iter.Seq[*economy.Order] {
	return func(func(*economy.Order) bool) { panic("stock table missing") }
}
func (brokenTrader) BuyOrders() iter.Seq[*economy.Order]        { return economy.Orders() }
func (brokenTrader) OnTradeExecuted(economy.TradeResult) error { return nil }
