package economy

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// ErrCollectionFailed wraps a panic raised while a participant produced
// its orders. The tick is abandoned before any book is cleared.
var ErrCollectionFailed = errors.New("order collection failed")

// TradeObserver is told about every completed tick, after all settlement
// callbacks have run. Observers are called in the order they were added.
type TradeObserver interface {
	ObserveTick(report TickReport, trades []TradeResult) error
}

// ObserverFunc adapts a function to TradeObserver.
type ObserverFunc func(TickReport, []TradeResult) error

func (f ObserverFunc) ObserveTick(r TickReport, trades []TradeResult) error { return f(r, trades) }

// Options configures a Market.
type Options struct {
	// MaxOrdersPerTick caps accepted orders per tick across all books.
	// Orders beyond the cap are rejected with ErrOrderLimit. 0 means no cap.
	MaxOrdersPerTick int
	Logger           *slog.Logger
}

// PairSummary aggregates one book's trades for a tick.
type PairSummary struct {
	Pair     Pair    `json:"pair"`
	Bids     int     `json:"bids"`
	Asks     int     `json:"asks"`
	Trades   int     `json:"trades"`
	Volume   int64   `json:"volume"`
	Notional float64 `json:"notional"`
	VWAP     float64 `json:"vwap"` // 0 when nothing traded
}

// TickReport describes one completed market tick.
type TickReport struct {
	Tick             uint64        `json:"tick"`
	Accepted         int           `json:"accepted"`
	Rejected         int           `json:"rejected"`
	Books            int           `json:"books"`
	Trades           int           `json:"trades"`
	Volume           int64         `json:"volume"`
	CallbackFailures int           `json:"callback_failures"`
	Pairs            []PairSummary `json:"pairs"`
}

// Market runs one double auction per pair every tick. It owns the
// participant registry for the life of the simulation; books exist only
// inside a single call to Tick.
//
// Within a tick all orders are collected before any book is cleared, and
// all books are cleared before any participant is notified.
type Market struct {
	opts Options
	log  *slog.Logger

	mu           sync.Mutex
	participants []Participant
	observers    []TradeObserver
	tick         uint64
	last         TickReport
}

// NewMarket creates a market with no participants.
func NewMarket(opts Options) *Market {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Market{opts: opts, log: logger.With("component", "market")}
}

// Register appends p to the registry. Order of registration is the order
// participants are asked for orders. Registering twice is a no-op.
// Participants must be comparable (pointer receivers are).
func (m *Market) Register(p Participant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if slices.Contains(m.participants, p) {
		return
	}
	m.participants = append(m.participants, p)
}

// Unregister removes p. Takes effect from the next tick if called during one.
func (m *Market) Unregister(p Participant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i := slices.Index(m.participants, p); i >= 0 {
		m.participants = slices.Delete(m.participants, i, i+1)
	}
}

// Participants returns a copy of the registry in registration order.
func (m *Market) Participants() []Participant {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.participants)
}

// AddObserver appends an observer.
func (m *Market) AddObserver(o TradeObserver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, o)
}

// SetTick sets the counter of the last completed tick, for resuming a saved run.
func (m *Market) SetTick(tick uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tick = tick
}

// LastReport returns the report of the most recent completed tick.
func (m *Market) LastReport() TickReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// bookSet keeps books in first-touch order so logs and trade order are
// reproducible for a given collection order.
type bookSet struct {
	byPair map[Pair]*OrderBook
	order  []*OrderBook
}

func (s *bookSet) get(pair Pair) *OrderBook {
	if b, ok := s.byPair[pair]; ok {
		return b
	}
	b := NewOrderBook(pair)
	s.byPair[pair] = b
	s.order = append(s.order, b)
	return b
}

// Tick runs one full market round. dt is accepted for the scheduler
// contract and not used. A non-nil error means nothing was cleared or
// settled this tick.
func (m *Market) Tick(dt float64) error {
	m.mu.Lock()
	m.tick++
	tick := m.tick
	participants := slices.Clone(m.participants)
	observers := slices.Clone(m.observers)
	m.mu.Unlock()

	books := &bookSet{byPair: make(map[Pair]*OrderBook)}
	report := TickReport{Tick: tick}

	for i, p := range participants {
		if err := m.collect(p, books, &report); err != nil {
			m.log.Error("market tick aborted", "tick", tick, "participant", i, "error", err)
			return fmt.Errorf("market tick %d: participant %d: %w", tick, i, err)
		}
	}

	var trades []TradeResult
	for _, b := range books.order {
		nb, na := b.Len()
		cleared := b.Clear()
		report.Pairs = append(report.Pairs, summarize(b.Pair(), nb, na, cleared))
		trades = append(trades, cleared...)
	}
	report.Books = len(books.order)
	report.Trades = len(trades)

	for _, t := range trades {
		report.Volume += t.Quantity
		if err := m.notify(t.Ask.Participant, t); err != nil {
			report.CallbackFailures++
			m.log.Warn("settlement callback failed", "tick", tick, "side", "ask", "pair", t.Pair(), "error", err)
		}
		if err := m.notify(t.Bid.Participant, t); err != nil {
			report.CallbackFailures++
			m.log.Warn("settlement callback failed", "tick", tick, "side", "bid", "pair", t.Pair(), "error", err)
		}
	}

	for _, o := range observers {
		if err := observe(o, report, trades); err != nil {
			m.log.Warn("trade observer failed", "tick", tick, "error", err)
		}
	}

	m.mu.Lock()
	m.last = report
	m.mu.Unlock()

	m.log.Debug("market tick",
		"tick", tick,
		"accepted", report.Accepted,
		"rejected", report.Rejected,
		"books", report.Books,
		"trades", report.Trades,
		"volume", report.Volume,
	)
	return nil
}

func (m *Market) collect(p Participant, books *bookSet, report *TickReport) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrCollectionFailed, r)
		}
	}()
	for o := range p.SellOrders() {
		m.intake(p, o, false, books, report)
	}
	for o := range p.BuyOrders() {
		m.intake(p, o, true, books, report)
	}
	return nil
}

func (m *Market) intake(p Participant, o *Order, buy bool, books *bookSet, report *TickReport) {
	if o == nil {
		return
	}
	if o.Participant == nil {
		o.Participant = p
	}

	var err error
	switch {
	case o.Participant != p:
		err = fmt.Errorf("order %s: %w", o.ID, ErrForeignParticipant)
	case m.opts.MaxOrdersPerTick > 0 && report.Accepted >= m.opts.MaxOrdersPerTick:
		err = fmt.Errorf("order %s: %w", o.ID, ErrOrderLimit)
	case buy != o.IsBuy() && o.Quantity != 0:
		err = fmt.Errorf("order %s: %w", o.ID, ErrWrongSide)
	default:
		// Validate before touching the book map so a bad order never creates one.
		if err = o.Validate(); err == nil {
			err = books.get(o.Pair()).Add(o)
		}
	}

	if err == nil {
		report.Accepted++
		return
	}
	report.Rejected++
	m.log.Debug("order rejected", "tick", report.Tick, "order", o.String(), "error", err)
	if r, ok := p.(Rejecter); ok {
		r.OnOrderRejected(o, err)
	}
}

// notify delivers one settlement callback, turning a panic into an error.
func (m *Market) notify(p Participant, t TradeResult) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in settlement callback: %v", r)
		}
	}()
	return p.OnTradeExecuted(t)
}

func observe(o TradeObserver, r TickReport, trades []TradeResult) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in trade observer: %v", rec)
		}
	}()
	return o.ObserveTick(r, trades)
}

func summarize(pair Pair, bids, asks int, trades []TradeResult) PairSummary {
	s := PairSummary{Pair: pair, Bids: bids, Asks: asks, Trades: len(trades)}
	for _, t := range trades {
		s.Volume += t.Quantity
		s.Notional += t.Notional()
	}
	if s.Volume > 0 {
		s.VWAP = s.Notional / float64(s.Volume)
	}
	return s
}
