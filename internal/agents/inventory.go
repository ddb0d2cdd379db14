// Package agents provides the trading participants that populate a
// settlement: production workshops and households.
package agents

import (
	"errors"
	"fmt"

	"github.com/talgya/glade-market/internal/economy"
)

var (
	ErrNotCounterparty = errors.New("trade does not involve this participant")
	ErrOverdrawn       = errors.New("settlement would overdraw stock")
)

// Inventory holds whole-unit quantities of goods.
type Inventory map[economy.Good]int64

// Count returns the quantity of g held.
func (inv Inventory) Count(g economy.Good) int64 { return inv[g] }

// Add adds n units of g.
func (inv Inventory) Add(g economy.Good, n int64) { inv[g] += n }

// Take removes n units of g. Returns false and leaves the inventory
// untouched if there are fewer than n.
func (inv Inventory) Take(g economy.Good, n int64) bool {
	if inv[g] < n {
		return false
	}
	inv[g] -= n
	return true
}

// Clone returns a copy of inv.
func (inv Inventory) Clone() Inventory {
	out := make(Inventory, len(inv))
	for g, n := range inv {
		out[g] = n
	}
	return out
}

// Account is the stock and purse a participant settles trades into.
type Account struct {
	Currency economy.Good
	Stock    Inventory
	Coins    float64 // Balance in Currency
}

func newAccount(currency economy.Good, coins float64) Account {
	return Account{Currency: currency, Stock: make(Inventory), Coins: coins}
}

// settle applies t to the account for whichever sides self posted.
// A self-trade applies both sides and nets to nothing.
func (a *Account) settle(self economy.Participant, t economy.TradeResult) error {
	isBid := t.Bid.Participant == self
	isAsk := t.Ask.Participant == self
	if !isBid && !isAsk {
		return fmt.Errorf("trade %s/%s: %w", t.Ask.ID, t.Bid.ID, ErrNotCounterparty)
	}
	if t.Ask.Currency != a.Currency {
		return fmt.Errorf("trade settles in %s, account holds %s", t.Ask.Currency, a.Currency)
	}

	amount := t.Notional()
	if isBid {
		a.Stock.Add(t.Bid.Commodity, t.Quantity)
		a.Coins -= amount
	}
	if isAsk {
		if !a.Stock.Take(t.Ask.Commodity, t.Quantity) {
			return fmt.Errorf("sell %d %s: %w", t.Quantity, t.Ask.Commodity, ErrOverdrawn)
		}
		a.Coins += amount
	}
	return nil
}
