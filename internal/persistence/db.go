// Package persistence provides SQLite storage for the trade ledger and
// run metadata. Books are never stored: they do not outlive a tick.
package persistence

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// DB wraps a SQLite connection.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One writer; SQLite serializes anyway and this keeps :memory: usable.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		market TEXT NOT NULL,
		tick INTEGER NOT NULL,
		seq INTEGER NOT NULL,
		commodity TEXT NOT NULL,
		currency TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		price REAL NOT NULL,
		ask_order TEXT NOT NULL,
		bid_order TEXT NOT NULL,
		seller TEXT NOT NULL,
		buyer TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tick_reports (
		market TEXT NOT NULL,
		tick INTEGER NOT NULL,
		accepted INTEGER NOT NULL,
		rejected INTEGER NOT NULL,
		books INTEGER NOT NULL,
		trades INTEGER NOT NULL,
		volume INTEGER NOT NULL,
		callback_failures INTEGER NOT NULL,
		pairs_json TEXT NOT NULL,
		recorded_at TEXT NOT NULL,
		PRIMARY KEY (market, tick)
	);

	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	DELETE FROM trades WHERE id NOT IN (
		SELECT MIN(id) FROM trades GROUP BY market, tick, seq
	);
	DROP INDEX IF EXISTS idx_trades_tick;
	CREATE UNIQUE INDEX IF NOT EXISTS idx_trades_key ON trades(market, tick, seq);
	CREATE INDEX IF NOT EXISTS idx_trades_pair ON trades(commodity, currency);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// SaveMeta stores a key-value pair in run metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM world_meta WHERE key = ?", key)
	return value, err
}

// Prune deletes trades and reports older than keepTicks behind tick.
func (db *DB) Prune(tick, keepTicks uint64) error {
	if tick <= keepTicks {
		return nil
	}
	cutoff := tick - keepTicks
	start := time.Now()
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec("DELETE FROM trades WHERE tick < ?", cutoff)
	if err != nil {
		return fmt.Errorf("prune trades: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM tick_reports WHERE tick < ?", cutoff); err != nil {
		return fmt.Errorf("prune reports: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	slog.Debug("ledger pruned", "before_tick", cutoff, "trades", n, "took", time.Since(start))
	return nil
}

// Rewind deletes trades and reports recorded after tick, so a run resumed
// from an older save does not keep rows from ticks it will replay.
func (db *DB) Rewind(tick uint64) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM trades WHERE tick > ?", tick); err != nil {
		return fmt.Errorf("rewind trades: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM tick_reports WHERE tick > ?", tick); err != nil {
		return fmt.Errorf("rewind reports: %w", err)
	}
	return tx.Commit()
}
