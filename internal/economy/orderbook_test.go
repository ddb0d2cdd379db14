package economy

import (
	"errors"
	"math"
	"testing"
)

func TestClearScenarios(t *testing.T) {
	tr := &stubTrader{name: "t"}

	type want struct {
		qty   int64
		price float64
	}
	tests := []struct {
		name  string
		bids  []*Order
		asks  []*Order
		want  []want
		check func(t *testing.T, bids, asks []*Order)
	}{
		{
			name: "partial bid fill",
			bids: []*Order{Bid(grain, coin, 5, 10, tr)},
			asks: []*Order{Ask(grain, coin, 3, 8, tr)},
			want: []want{{3, 9.0}},
			check: func(t *testing.T, bids, asks []*Order) {
				if bids[0].Quantity != 2 {
					t.Errorf("bid remainder = %d, want 2", bids[0].Quantity)
				}
				if asks[0].Quantity != 0 {
					t.Errorf("ask remainder = %d, want 0", asks[0].Quantity)
				}
			},
		},
		{
			name: "two asks walk the bid",
			bids: []*Order{Bid(grain, coin, 5, 9, tr)},
			asks: []*Order{Ask(grain, coin, 4, 9, tr), Ask(grain, coin, 2, 7, tr)},
			want: []want{{2, 8.0}, {3, 9.0}},
			check: func(t *testing.T, bids, asks []*Order) {
				if bids[0].Quantity != 0 {
					t.Errorf("bid remainder = %d, want 0", bids[0].Quantity)
				}
				if asks[0].Quantity != -1 {
					t.Errorf("ask2 remainder = %d, want -1", asks[0].Quantity)
				}
			},
		},
		{
			name: "non-crossing",
			bids: []*Order{Bid(grain, coin, 1, 5, tr)},
			asks: []*Order{Ask(grain, coin, 1, 6, tr)},
		},
		{
			name: "equal prices trade",
			bids: []*Order{Bid(grain, coin, 4, 6, tr)},
			asks: []*Order{Ask(grain, coin, 4, 6, tr)},
			want: []want{{4, 6.0}},
		},
		{
			name: "fractional midpoint kept",
			bids: []*Order{Bid(grain, coin, 1, 3, tr)},
			asks: []*Order{Ask(grain, coin, 1, 2, tr)},
			want: []want{{1, 2.5}},
		},
		{
			name: "bids only",
			bids: []*Order{Bid(grain, coin, 1, 5, tr), Bid(grain, coin, 2, 9, tr)},
		},
		{
			name: "asks only",
			asks: []*Order{Ask(grain, coin, 1, 5, tr)},
		},
		{
			name: "empty",
		},
		{
			name: "stops at first non-crossing pair",
			bids: []*Order{Bid(grain, coin, 2, 10, tr), Bid(grain, coin, 2, 4, tr)},
			asks: []*Order{Ask(grain, coin, 1, 6, tr), Ask(grain, coin, 3, 8, tr)},
			want: []want{{1, 8.0}, {1, 9.0}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			book := NewOrderBook(Pair{grain, coin})
			for _, o := range tt.bids {
				if err := book.AddBid(o); err != nil {
					t.Fatalf("AddBid: %v", err)
				}
			}
			for _, o := range tt.asks {
				if err := book.AddAsk(o); err != nil {
					t.Fatalf("AddAsk: %v", err)
				}
			}

			trades := book.Clear()
			if len(trades) != len(tt.want) {
				t.Fatalf("got %d trades, want %d: %+v", len(trades), len(tt.want), trades)
			}
			for i, w := range tt.want {
				if trades[i].Quantity != w.qty || trades[i].Price != w.price {
					t.Errorf("trade[%d] = qty %d @ %v, want qty %d @ %v",
						i, trades[i].Quantity, trades[i].Price, w.qty, w.price)
				}
			}
			if tt.check != nil {
				tt.check(t, tt.bids, tt.asks)
			}
		})
	}
}

func TestClearOrdersAskBeforeHigherAsk(t *testing.T) {
	tr := &stubTrader{}
	cheap := Ask(grain, coin, 2, 7, tr)
	dear := Ask(grain, coin, 4, 9, tr)
	bid := Bid(grain, coin, 5, 9, tr)

	book := NewOrderBook(Pair{grain, coin})
	book.AddAsk(dear)
	book.AddAsk(cheap)
	book.AddBid(bid)

	trades := book.Clear()
	if len(trades) != 2 {
		t.Fatalf("got %d trades, want 2", len(trades))
	}
	if trades[0].Ask != cheap || trades[1].Ask != dear {
		t.Errorf("asks matched out of price order")
	}
	for _, trade := range trades {
		if trade.Bid != bid {
			t.Errorf("trade bid = %v, want the single bid", trade.Bid)
		}
	}
}

func TestClearTimePriorityAtEqualPrice(t *testing.T) {
	first := &stubTrader{name: "first"}
	second := &stubTrader{name: "second"}

	book := NewOrderBook(Pair{grain, coin})
	book.AddAsk(Ask(grain, coin, 3, 5, first))
	book.AddAsk(Ask(grain, coin, 3, 5, second))
	book.AddBid(Bid(grain, coin, 4, 5, first))

	trades := book.Clear()
	if len(trades) != 2 {
		t.Fatalf("got %d trades, want 2", len(trades))
	}
	if trades[0].Ask.Participant != first || trades[0].Quantity != 3 {
		t.Errorf("first trade should fill the earlier ask fully, got %+v", trades[0])
	}
	if trades[1].Ask.Participant != second || trades[1].Quantity != 1 {
		t.Errorf("second trade should take 1 from the later ask, got %+v", trades[1])
	}
}

func TestClearTwiceIsEmpty(t *testing.T) {
	tr := &stubTrader{}
	book := NewOrderBook(Pair{grain, coin})
	book.AddBid(Bid(grain, coin, 5, 10, tr))
	book.AddAsk(Ask(grain, coin, 3, 8, tr))

	if got := len(book.Clear()); got != 1 {
		t.Fatalf("first clear: %d trades, want 1", got)
	}
	if got := book.Clear(); len(got) != 0 {
		t.Fatalf("second clear: %d trades, want 0", len(got))
	}
	if b, a := book.Len(); b != 0 || a != 0 {
		t.Errorf("book not empty after clear: %d bids, %d asks", b, a)
	}
}

func TestOrderBookRejects(t *testing.T) {
	tr := &stubTrader{}
	book := NewOrderBook(Pair{grain, coin})

	tests := []struct {
		name string
		add  func(*Order) error
		o    *Order
		want error
	}{
		{"zero quantity", book.AddBid, NewOrder(grain, coin, 0, 1, tr), ErrZeroQuantity},
		{"negative price", book.AddBid, Bid(grain, coin, 1, -1, tr), ErrInvalidPrice},
		{"same pair", book.AddAsk, Ask(coin, coin, 1, 1, tr), ErrSamePair},
		{"ask in bid side", book.AddBid, Ask(grain, coin, 1, 1, tr), ErrWrongSide},
		{"bid in ask side", book.AddAsk, Bid(grain, coin, 1, 1, tr), ErrWrongSide},
		{"no participant", book.AddBid, Bid(grain, coin, 1, 1, nil), ErrNoParticipant},
		{"min int64 ask", book.AddAsk, NewOrder(grain, coin, math.MinInt64, 1, tr), ErrQuantityRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.add(tt.o); !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}

	if err := book.AddBid(Bid(bread, coin, 1, 1, tr)); err == nil {
		t.Error("order for another pair was accepted")
	}
	if b, a := book.Len(); b != 0 || a != 0 {
		t.Errorf("rejected orders entered the book: %d bids, %d asks", b, a)
	}
}

func TestOrderIsBuy(t *testing.T) {
	if !Bid(grain, coin, 1, 1, nil).IsBuy() {
		t.Error("bid reported as sell")
	}
	ask := Ask(grain, coin, 3, 1, nil)
	if ask.IsBuy() || ask.Quantity != -3 || ask.Magnitude() != 3 {
		t.Errorf("ask = qty %d, magnitude %d", ask.Quantity, ask.Magnitude())
	}
}

func TestOrderBookRejectsSameOrderTwice(t *testing.T) {
	tr := &stubTrader{}
	book := NewOrderBook(Pair{grain, coin})
	bid := Bid(grain, coin, 3, 10, tr)

	if err := book.AddBid(bid); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if err := book.Add(bid); !errors.Is(err, ErrDuplicateOrder) {
		t.Fatalf("second add = %v, want ErrDuplicateOrder", err)
	}
	book.AddAsk(Ask(grain, coin, 10, 8, tr))

	trades := book.Clear()
	if len(trades) != 1 || trades[0].Quantity != 3 {
		t.Fatalf("trades = %+v, want one fill of 3", trades)
	}

	// A cleared book forgets what it held.
	if err := book.AddBid(Bid(grain, coin, 1, 1, tr)); err != nil {
		t.Errorf("add after clear: %v", err)
	}
}

func TestClearSkipsExhaustedOrders(t *testing.T) {
	tr := &stubTrader{}
	book := NewOrderBook(Pair{grain, coin})
	spent := Bid(grain, coin, 4, 12, tr)
	book.AddBid(spent)
	book.AddBid(Bid(grain, coin, 2, 10, tr))
	book.AddAsk(Ask(grain, coin, 5, 8, tr))
	spent.Quantity = 0

	trades := book.Clear()
	if len(trades) != 1 || trades[0].Quantity != 2 || trades[0].Price != 9 {
		t.Fatalf("trades = %+v, want one fill of 2 @ 9", trades)
	}
}

func TestMagnitudeSaturates(t *testing.T) {
	o := NewOrder(grain, coin, math.MinInt64, 1, nil)
	if got := o.Magnitude(); got != math.MaxInt64 {
		t.Errorf("Magnitude() = %d, want MaxInt64", got)
	}
	if got := Ask(grain, coin, 7, 1, nil).Magnitude(); got != 7 {
		t.Errorf("Magnitude() = %d, want 7", got)
	}
}
