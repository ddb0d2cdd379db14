package persistence

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/talgya/glade-market/internal/economy"
)

// TradeRecord is one stored trade.
type TradeRecord struct {
	ID        int64   `db:"id" json:"id"`
	Market    string  `db:"market" json:"market"`
	Tick      uint64  `db:"tick" json:"tick"`
	Seq       int     `db:"seq" json:"seq"` // Position within the tick's clearing order
	Commodity string  `db:"commodity" json:"commodity"`
	Currency  string  `db:"currency" json:"currency"`
	Quantity  int64   `db:"quantity" json:"quantity"`
	Price     float64 `db:"price" json:"price"`
	AskOrder  string  `db:"ask_order" json:"ask_order"`
	BidOrder  string  `db:"bid_order" json:"bid_order"`
	Seller    string  `db:"seller" json:"seller"`
	Buyer     string  `db:"buyer" json:"buyer"`
}

// PairStats aggregates stored trades for one pair.
type PairStats struct {
	Trades   int64   `db:"trades" json:"trades"`
	Volume   int64   `db:"volume" json:"volume"`
	Notional float64 `db:"notional" json:"notional"`
	Low      float64 `db:"low" json:"low"`
	High     float64 `db:"high" json:"high"`
}

// Ledger records every completed tick of one market. It implements
// economy.TradeObserver.
type Ledger struct {
	db     *DB
	market string
}

// Ledger returns a ledger writing under the given market name.
func (db *DB) Ledger(market string) *Ledger {
	return &Ledger{db: db, market: market}
}

// ObserveTick writes the tick's trades and report in one transaction.
func (l *Ledger) ObserveTick(r economy.TickReport, trades []economy.TradeResult) error {
	pairsJSON, err := json.Marshal(r.Pairs)
	if err != nil {
		return fmt.Errorf("encode pairs: %w", err)
	}

	tx, err := l.db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// A tick recorded again after a resume replaces what was stored for it.
	if _, err := tx.Exec("DELETE FROM trades WHERE market = ? AND tick = ?", l.market, r.Tick); err != nil {
		return fmt.Errorf("clear tick %d: %w", r.Tick, err)
	}

	if len(trades) > 0 {
		stmt, err := tx.Preparex(`INSERT INTO trades
			(market, tick, seq, commodity, currency, quantity, price,
			 ask_order, bid_order, seller, buyer)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, t := range trades {
			_, err := stmt.Exec(
				l.market, r.Tick, i, string(t.Ask.Commodity), string(t.Ask.Currency),
				t.Quantity, t.Price, t.Ask.ID.String(), t.Bid.ID.String(),
				participantName(t.Ask.Participant), participantName(t.Bid.Participant),
			)
			if err != nil {
				return fmt.Errorf("insert trade %d of tick %d: %w", i, r.Tick, err)
			}
		}
	}

	_, err = tx.Exec(`INSERT OR REPLACE INTO tick_reports
		(market, tick, accepted, rejected, books, trades, volume, callback_failures, pairs_json, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.market, r.Tick, r.Accepted, r.Rejected, r.Books, r.Trades, r.Volume,
		r.CallbackFailures, string(pairsJSON), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert report %d: %w", r.Tick, err)
	}

	return tx.Commit()
}

// RecentTrades returns up to limit trades, newest first. An empty market
// matches all markets.
func (db *DB) RecentTrades(market string, limit int) ([]TradeRecord, error) {
	var out []TradeRecord
	err := db.conn.Select(&out, `SELECT id, market, tick, seq, commodity, currency, quantity, price,
			ask_order, bid_order, seller, buyer
		FROM trades
		WHERE (? = '' OR market = ?)
		ORDER BY id DESC LIMIT ?`,
		market, market, limit,
	)
	return out, err
}

// PairStats aggregates all stored trades for pair in market.
func (db *DB) PairStats(market string, pair economy.Pair) (PairStats, error) {
	var s PairStats
	err := db.conn.Get(&s, `SELECT COUNT(*) AS trades,
			COALESCE(SUM(quantity), 0) AS volume,
			COALESCE(SUM(quantity * price), 0) AS notional,
			COALESCE(MIN(price), 0) AS low,
			COALESCE(MAX(price), 0) AS high
		FROM trades WHERE market = ? AND commodity = ? AND currency = ?`,
		market, string(pair.Commodity), string(pair.Currency),
	)
	return s, err
}

// TickCount returns how many tick reports are stored for market.
func (db *DB) TickCount(market string) (int, error) {
	var n int
	err := db.conn.Get(&n, "SELECT COUNT(*) FROM tick_reports WHERE market = ?", market)
	return n, err
}

func participantName(p economy.Participant) string {
	if s, ok := p.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T@%p", p, p)
}
