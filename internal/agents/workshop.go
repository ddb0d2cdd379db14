package agents

import (
	"iter"
	"log/slog"

	"github.com/talgya/glade-market/internal/economy"
)

// Workshop is a production building. Each tick it runs its recipe once if
// the inputs are in stock, then offers output above Keep and bids for
// enough inputs to hold Reserve batches.
type Workshop struct {
	Name    string
	Recipe  Recipe
	Keep    int64   // Output units never offered
	Reserve int64   // Input batches to hold
	Margin  float64 // Bid above / ask below base value, 0.1 = 10%
	Yield   *Harvest
	Account

	catalog *economy.Catalog
	tick    uint64
}

// NewWorkshop creates a workshop with an empty stock.
func NewWorkshop(name string, r Recipe, catalog *economy.Catalog, currency economy.Good, coins float64) *Workshop {
	return &Workshop{
		Name:    name,
		Recipe:  r,
		Keep:    0,
		Reserve: 2,
		Margin:  0.1,
		Account: newAccount(currency, coins),
		catalog: catalog,
	}
}

func (w *Workshop) String() string { return w.Name }

// SetTick sets the harvest clock to the last completed tick, for resuming
// a saved run.
func (w *Workshop) SetTick(tick uint64) { w.tick = tick }

// Tick crafts one batch.
func (w *Workshop) Tick(dt float64) error {
	w.tick++
	if n := w.Recipe.Craft(w.Stock, w.Yield.Factor(w.tick)); n > 0 {
		slog.Debug("workshop produced", "workshop", w.Name, "good", w.Recipe.Output, "qty", n)
	}
	return nil
}

// SellOrders offers surplus output, discounted further the larger the surplus.
func (w *Workshop) SellOrders() iter.Seq[*economy.Order] {
	return func(yield func(*economy.Order) bool) {
		surplus := w.Stock.Count(w.Recipe.Output) - w.Keep
		if surplus <= 0 {
			return
		}
		base := w.catalog.BaseValue(w.Recipe.Output)
		discount := w.Margin + 0.02*float64(surplus-1)
		if discount > 0.5 {
			discount = 0.5
		}
		yield(economy.Ask(w.Recipe.Output, w.Currency, surplus, base*(1-discount), w))
	}
}

// BuyOrders bids for missing inputs within the current purse.
func (w *Workshop) BuyOrders() iter.Seq[*economy.Order] {
	return func(yield func(*economy.Order) bool) {
		budget := w.Coins
		for _, in := range w.Recipe.Inputs {
			need := in.Qty*w.Reserve - w.Stock.Count(in.Good)
			if need <= 0 {
				continue
			}
			price := w.catalog.BaseValue(in.Good) * (1 + w.Margin)
			if price > 0 {
				if afford := int64(budget / price); afford < need {
					need = afford
				}
			}
			if need <= 0 {
				continue
			}
			budget -= float64(need) * price
			if !yield(economy.Bid(in.Good, w.Currency, need, price, w)) {
				return
			}
		}
	}
}

// OnTradeExecuted moves goods and coins for a settled trade.
func (w *Workshop) OnTradeExecuted(t economy.TradeResult) error {
	return w.settle(w, t)
}

// OnOrderRejected logs refused orders.
func (w *Workshop) OnOrderRejected(o *economy.Order, err error) {
	slog.Warn("workshop order rejected", "workshop", w.Name, "order", o.String(), "error", err)
}
