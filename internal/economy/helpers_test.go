package economy

import (
	"errors"
	"iter"
)

const (
	grain Good = "grain"
	coin  Good = "coin"
	bread Good = "bread"
)

// stubTrader is a scripted participant.
type stubTrader struct {
	name     string
	sells    []*Order
	buys     []*Order
	received []TradeResult
	rejected []error
	fail     error
	panicky  bool

	// log shared across traders to check global callback order
	log *[]string
}

func (s *stubTrader) SellOrders() iter.Seq[*Order] { return Orders(s.sells...) }
func (s *stubTrader) BuyOrders() iter.Seq[*Order]  { return Orders(s.buys...) }

func (s *stubTrader) OnTradeExecuted(t TradeResult) error {
	if s.log != nil {
		*s.log = append(*s.log, s.name)
	}
	if s.panicky {
		panic("settlement blew up")
	}
	s.received = append(s.received, t)
	return s.fail
}

func (s *stubTrader) OnOrderRejected(o *Order, err error) {
	s.rejected = append(s.rejected, err)
}

// panicSeller panics while producing its sell orders.
type panicSeller struct{ stubTrader }

func (p *panicSeller) SellOrders() iter.Seq[*Order] {
	return func(yield func(*Order) bool) {
		panic("inventory corrupted")
	}
}

var errSettle = errors.New("ledger closed")
