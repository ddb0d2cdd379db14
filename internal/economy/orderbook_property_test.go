package economy

import (
	"testing"

	"pgregory.net/rapid"
)

type drawnBook struct {
	bids, asks []*Order
	before     map[*Order]int64
}

func drawBook(t *rapid.T) drawnBook {
	tr := &stubTrader{}
	d := drawnBook{before: make(map[*Order]int64)}
	nb := rapid.IntRange(0, 8).Draw(t, "bids")
	na := rapid.IntRange(0, 8).Draw(t, "asks")
	for i := 0; i < nb; i++ {
		o := Bid(grain, coin,
			rapid.Int64Range(1, 50).Draw(t, "bidQty"),
			float64(rapid.IntRange(0, 40).Draw(t, "bidPrice")), tr)
		d.bids = append(d.bids, o)
		d.before[o] = o.Quantity
	}
	for i := 0; i < na; i++ {
		o := Ask(grain, coin,
			rapid.Int64Range(1, 50).Draw(t, "askQty"),
			float64(rapid.IntRange(0, 40).Draw(t, "askPrice")), tr)
		d.asks = append(d.asks, o)
		d.before[o] = o.Quantity
	}
	return d
}

func (d drawnBook) clear(t *rapid.T) []TradeResult {
	book := NewOrderBook(Pair{grain, coin})
	for _, o := range d.bids {
		if err := book.AddBid(o); err != nil {
			t.Fatalf("AddBid: %v", err)
		}
	}
	for _, o := range d.asks {
		if err := book.AddAsk(o); err != nil {
			t.Fatalf("AddAsk: %v", err)
		}
	}
	return book.Clear()
}

func TestProperty_TradesCrossAndSettleAtMidpoint(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		d := drawBook(t)
		for i, tr := range d.clear(t) {
			if tr.Bid.UnitPrice < tr.Ask.UnitPrice {
				t.Fatalf("trade[%d] with bid %v below ask %v", i, tr.Bid.UnitPrice, tr.Ask.UnitPrice)
			}
			if want := (tr.Bid.UnitPrice + tr.Ask.UnitPrice) / 2; tr.Price != want {
				t.Fatalf("trade[%d] price %v, want midpoint %v", i, tr.Price, want)
			}
			if tr.Quantity <= 0 {
				t.Fatalf("trade[%d] non-positive quantity %d", i, tr.Quantity)
			}
		}
	})
}

func TestProperty_QuantityConserved(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		d := drawBook(t)
		matched := make(map[*Order]int64)
		for _, tr := range d.clear(t) {
			matched[tr.Bid] += tr.Quantity
			matched[tr.Ask] += tr.Quantity
		}
		for _, o := range d.bids {
			if o.Quantity < 0 {
				t.Fatalf("bid flipped sign: %d", o.Quantity)
			}
			if d.before[o]-o.Quantity != matched[o] {
				t.Fatalf("bid lost quantity: before %d, after %d, matched %d", d.before[o], o.Quantity, matched[o])
			}
		}
		for _, o := range d.asks {
			if o.Quantity > 0 {
				t.Fatalf("ask flipped sign: %d", o.Quantity)
			}
			if o.Quantity-d.before[o] != matched[o] {
				t.Fatalf("ask lost quantity: before %d, after %d, matched %d", d.before[o], o.Quantity, matched[o])
			}
		}
	})
}

func TestProperty_NoCrossRemains(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		d := drawBook(t)
		d.clear(t)

		bestBid, bestAsk := -1.0, -1.0
		for _, o := range d.bids {
			if o.Quantity > 0 && o.UnitPrice > bestBid {
				bestBid = o.UnitPrice
			}
		}
		for _, o := range d.asks {
			if o.Quantity < 0 && (bestAsk < 0 || o.UnitPrice < bestAsk) {
				bestAsk = o.UnitPrice
			}
		}
		if bestBid >= 0 && bestAsk >= 0 && bestBid >= bestAsk {
			t.Fatalf("unmatched crossing orders left: bid %v >= ask %v", bestBid, bestAsk)
		}
	})
}

func TestProperty_CrossingPairTrades(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		askPrice := rapid.IntRange(0, 1000).Draw(t, "askPrice")
		premium := rapid.IntRange(0, 1000).Draw(t, "premium")
		qty := rapid.Int64Range(1, 100).Draw(t, "qty")
		tr := &stubTrader{}

		book := NewOrderBook(Pair{grain, coin})
		book.AddAsk(Ask(grain, coin, qty, float64(askPrice), tr))
		book.AddBid(Bid(grain, coin, qty, float64(askPrice+premium), tr))

		trades := book.Clear()
		if len(trades) != 1 || trades[0].Quantity != qty {
			t.Fatalf("crossing pair produced %+v", trades)
		}
	})
}
