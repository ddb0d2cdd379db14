package economy

import (
	"cmp"
	"fmt"
	"slices"
)

// OrderBook holds the live bids and asks for one pair within one tick.
// It is filled during order collection, cleared once, and thrown away.
type OrderBook struct {
	pair Pair
	bids []*Order // Quantity > 0, in submission order until Clear sorts them
	asks []*Order // Quantity < 0
	held map[*Order]struct{}
}

// NewOrderBook creates an empty book for pair.
func NewOrderBook(pair Pair) *OrderBook {
	return &OrderBook{pair: pair}
}

// Pair returns the book's key.
func (b *OrderBook) Pair() Pair { return b.pair }

// Len returns the number of live bids and asks.
func (b *OrderBook) Len() (bids, asks int) {
	return len(b.bids), len(b.asks)
}

// AddBid appends a buy order.
func (b *OrderBook) AddBid(o *Order) error {
	if err := b.admit(o); err != nil {
		return err
	}
	if !o.IsBuy() {
		return fmt.Errorf("add bid %s: %w", o.ID, ErrWrongSide)
	}
	b.hold(o)
	b.bids = append(b.bids, o)
	return nil
}

// AddAsk appends a sell order.
func (b *OrderBook) AddAsk(o *Order) error {
	if err := b.admit(o); err != nil {
		return err
	}
	if o.IsBuy() {
		return fmt.Errorf("add ask %s: %w", o.ID, ErrWrongSide)
	}
	b.hold(o)
	b.asks = append(b.asks, o)
	return nil
}

// Add routes o to the side its quantity sign selects.
func (b *OrderBook) Add(o *Order) error {
	if o.IsBuy() {
		return b.AddBid(o)
	}
	return b.AddAsk(o)
}

func (b *OrderBook) admit(o *Order) error {
	if err := o.Validate(); err != nil {
		return err
	}
	if o.Pair() != b.pair {
		return fmt.Errorf("order %s for %s added to %s book", o.ID, o.Pair(), b.pair)
	}
	if _, dup := b.held[o]; dup {
		return fmt.Errorf("order %s: %w", o.ID, ErrDuplicateOrder)
	}
	return nil
}

func (b *OrderBook) hold(o *Order) {
	if b.held == nil {
		b.held = make(map[*Order]struct{})
	}
	b.held[o] = struct{}{}
}

// Clear matches crossing orders by price-time priority and returns the
// trades in the order they were made. Bids are taken highest price first,
// asks lowest first, and equal prices keep submission order. Each match
// settles at the midpoint of the two limits. Whatever is left unmatched
// is dropped, so the book is empty afterwards.
func (b *OrderBook) Clear() []TradeResult {
	defer func() {
		b.bids = nil
		b.asks = nil
		b.held = nil
	}()
	if len(b.bids) == 0 || len(b.asks) == 0 {
		return nil
	}

	slices.SortStableFunc(b.bids, func(x, y *Order) int {
		return cmp.Compare(y.UnitPrice, x.UnitPrice)
	})
	slices.SortStableFunc(b.asks, func(x, y *Order) int {
		return cmp.Compare(x.UnitPrice, y.UnitPrice)
	})

	var trades []TradeResult
	bi, ai := 0, 0
	for bi < len(b.bids) && ai < len(b.asks) {
		bid, ask := b.bids[bi], b.asks[ai]
		// Orders are shared pointers; skip any already exhausted elsewhere.
		if bid.Quantity <= 0 {
			bi++
			continue
		}
		if ask.Quantity >= 0 {
			ai++
			continue
		}
		if bid.UnitPrice < ask.UnitPrice {
			break
		}

		qty := min(bid.Magnitude(), ask.Magnitude())
		price := (bid.UnitPrice + ask.UnitPrice) / 2
		trades = append(trades, TradeResult{Ask: ask, Bid: bid, Quantity: qty, Price: price})

		bid.Quantity -= qty
		ask.Quantity += qty
		if bid.Quantity == 0 {
			bi++
		}
		if ask.Quantity == 0 {
			ai++
		}
	}
	return trades
}
