package economy

import (
	"errors"
	"fmt"
	"iter"
	"math"

	"github.com/google/uuid"
)

// Order validation errors.
var (
	ErrZeroQuantity       = errors.New("order quantity is zero")
	ErrQuantityRange      = errors.New("order quantity out of range")
	ErrInvalidPrice       = errors.New("order unit price is negative or not a number")
	ErrSamePair           = errors.New("order commodity equals its currency")
	ErrNoParticipant      = errors.New("order has no participant")
	ErrForeignParticipant = errors.New("order names a participant other than its poster")
	ErrWrongSide          = errors.New("order side does not match book side")
	ErrDuplicateOrder     = errors.New("order already in the book")
	ErrOrderLimit         = errors.New("per-tick order limit reached")
)

// Order is an intent to trade Commodity for Currency at a limit price.
// Positive Quantity is a bid for that many units, negative is an ask.
// Clearing only moves Quantity toward zero; the sign never flips.
type Order struct {
	ID          uuid.UUID
	Commodity   Good
	Currency    Good
	Quantity    int64
	UnitPrice   float64
	Participant Participant
}

// NewOrder creates an order with a fresh ID.
func NewOrder(commodity, currency Good, qty int64, unitPrice float64, p Participant) *Order {
	return &Order{
		ID:          uuid.New(),
		Commodity:   commodity,
		Currency:    currency,
		Quantity:    qty,
		UnitPrice:   unitPrice,
		Participant: p,
	}
}

// Bid is shorthand for a buy order of qty units.
func Bid(commodity, currency Good, qty int64, unitPrice float64, p Participant) *Order {
	return NewOrder(commodity, currency, qty, unitPrice, p)
}

// Ask is shorthand for a sell order of qty units. qty is a magnitude.
func Ask(commodity, currency Good, qty int64, unitPrice float64, p Participant) *Order {
	return NewOrder(commodity, currency, -qty, unitPrice, p)
}

// IsBuy reports whether the order is a bid.
func (o *Order) IsBuy() bool { return o.Quantity > 0 }

// Magnitude returns |Quantity|. math.MinInt64 has no positive
// counterpart and saturates to math.MaxInt64; Validate rejects it.
func (o *Order) Magnitude() int64 {
	switch {
	case o.Quantity == math.MinInt64:
		return math.MaxInt64
	case o.Quantity < 0:
		return -o.Quantity
	}
	return o.Quantity
}

// Pair returns the book key for the order.
func (o *Order) Pair() Pair {
	return Pair{Commodity: o.Commodity, Currency: o.Currency}
}

// Validate checks the intake rules. The returned error wraps one of the
// sentinel errors above.
func (o *Order) Validate() error {
	switch {
	case o.Quantity == 0:
		return fmt.Errorf("order %s: %w", o.ID, ErrZeroQuantity)
	case o.Quantity == math.MinInt64:
		return fmt.Errorf("order %s: quantity %d: %w", o.ID, o.Quantity, ErrQuantityRange)
	case o.UnitPrice < 0 || math.IsNaN(o.UnitPrice) || math.IsInf(o.UnitPrice, 0):
		return fmt.Errorf("order %s: price %v: %w", o.ID, o.UnitPrice, ErrInvalidPrice)
	case o.Commodity == o.Currency:
		return fmt.Errorf("order %s: %s: %w", o.ID, o.Commodity, ErrSamePair)
	case o.Participant == nil:
		return fmt.Errorf("order %s: %w", o.ID, ErrNoParticipant)
	}
	return nil
}

func (o *Order) String() string {
	side := "ask"
	if o.IsBuy() {
		side = "bid"
	}
	return fmt.Sprintf("%s %d %s @ %.4g %s", side, o.Magnitude(), o.Commodity, o.UnitPrice, o.Currency)
}

// TradeResult records one match between an ask and a bid.
// Ask and Bid point at the matched orders as they stood when clearing
// finished; Quantity and Price describe this match only.
type TradeResult struct {
	Ask      *Order
	Bid      *Order
	Quantity int64
	Price    float64 // Settled unit price, midpoint of the two limits
}

// Pair returns the pair the trade cleared on.
func (t TradeResult) Pair() Pair { return t.Ask.Pair() }

// Notional returns Quantity * Price in the pair's currency.
func (t TradeResult) Notional() float64 {
	return float64(t.Quantity) * t.Price
}

// Participant is anything that posts orders to a Market and is told
// about the trades it was party to.
//
// SellOrders and BuyOrders are each consumed exactly once per tick.
// OnTradeExecuted runs once per trade per side, so a participant on
// both sides of one trade hears about it twice.
type Participant interface {
	SellOrders() iter.Seq[*Order]
	BuyOrders() iter.Seq[*Order]
	OnTradeExecuted(TradeResult) error
}

// Rejecter is implemented by participants that want to hear about orders
// refused at intake.
type Rejecter interface {
	OnOrderRejected(o *Order, err error)
}

// Orders adapts a slice into a sequence, for participants that build
// their orders eagerly.
func Orders(orders ...*Order) iter.Seq[*Order] {
	return func(yield func(*Order) bool) {
		for _, o := range orders {
			if !yield(o) {
				return
			}
		}
	}
}
