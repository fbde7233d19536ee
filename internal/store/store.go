// Package store persists signals, swap attempts, and wallet snapshots to a
// local sqlite database. The core treats it as an append/update sink; the
// dashboard reads back through the List helpers.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// Swap statuses. Every record starts PENDING and ends in exactly one of the
// terminal states.
const (
	StatusPending   = "PENDING"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
)

// Store wraps a sqlite handle. Methods are safe for concurrent use; sqlite
// serializes writers and WAL keeps readers off their backs.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open creates the database file (and parent directory) if needed and runs
// schema migration.
func Open(path string, log zerolog.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single writer connection keeps "database is locked" errors away.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, log: log.With().Str("comp", "store").Logger()}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL`,
		`PRAGMA synchronous=NORMAL`,
		`CREATE TABLE IF NOT EXISTS signals (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			received_at TEXT NOT NULL,
			action TEXT NOT NULL,
			symbol TEXT NOT NULL,
			kind TEXT,
			timeframe TEXT,
			amount REAL,
			price REAL,
			note TEXT,
			raw_payload TEXT,
			account_id TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS swaps (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			account_id TEXT NOT NULL,
			account_label TEXT,
			input_token TEXT NOT NULL,
			output_token TEXT NOT NULL,
			input_amount REAL NOT NULL,
			output_amount REAL,
			price REAL,
			slippage REAL,
			input_usd REAL,
			output_usd REAL,
			input_price_usd REAL,
			output_price_usd REAL,
			fee_usd REAL,
			signature TEXT,
			status TEXT NOT NULL,
			created_at TEXT NOT NULL,
			completed_at TEXT,
			error TEXT,
			meta TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS wallet_state (
			account_id TEXT NOT NULL,
			token TEXT NOT NULL,
			balance REAL NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (account_id, token)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_received_at ON signals(received_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_swaps_created_at ON swaps(created_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func nowISO() string { return time.Now().UTC().Format(time.RFC3339Nano) }

// RecordSignal appends an inbound signal for observability.
func (s *Store) RecordSignal(action, symbol, kind, timeframe string, amount, price float64, note string, payload map[string]string) (int64, error) {
	raw, _ := json.Marshal(payload)
	res, err := s.db.Exec(
		`INSERT INTO signals (received_at, action, symbol, kind, timeframe, amount, price, note, raw_payload)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nowISO(), action, symbol, kind, timeframe, nullFloat(amount), nullFloat(price), note, string(raw),
	)
	if err != nil {
		return 0, fmt.Errorf("record signal: %w", err)
	}
	return res.LastInsertId()
}

// CreateSwap opens a PENDING record for one attempt. It must be called
// before the first external call of the pipeline so a total failure is
// still auditable.
func (s *Store) CreateSwap(accountID, accountLabel, inputToken, outputToken string, inputAmount float64, meta map[string]any) (int64, error) {
	metaRaw, _ := json.Marshal(meta)
	res, err := s.db.Exec(
		`INSERT INTO swaps (account_id, account_label, input_token, output_token, input_amount, status, created_at, meta)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		accountID, accountLabel, inputToken, outputToken, inputAmount, StatusPending, nowISO(), string(metaRaw),
	)
	if err != nil {
		return 0, fmt.Errorf("create swap: %w", err)
	}
	return res.LastInsertId()
}

// Completion carries the terminal fields of a successful attempt. The USD
// enrichment pointers stay nil when the lookups were unavailable.
type Completion struct {
	Signature      string
	OutputAmount   float64
	Price          float64
	Slippage       float64
	InputUSD       *float64
	OutputUSD      *float64
	InputPriceUSD  *float64
	OutputPriceUSD *float64
	FeeUSD         *float64
}

// CompleteSwap finalizes a record as COMPLETED.
func (s *Store) CompleteSwap(id int64, c Completion) error {
	_, err := s.db.Exec(
		`UPDATE swaps SET status = ?, signature = ?, output_amount = ?, price = ?, slippage = ?,
		        input_usd = ?, output_usd = ?, input_price_usd = ?, output_price_usd = ?, fee_usd = ?,
		        completed_at = ?
		 WHERE id = ?`,
		StatusCompleted, c.Signature, c.OutputAmount, c.Price, c.Slippage,
		c.InputUSD, c.OutputUSD, c.InputPriceUSD, c.OutputPriceUSD, c.FeeUSD,
		nowISO(), id,
	)
	if err != nil {
		return fmt.Errorf("complete swap %d: %w", id, err)
	}
	return nil
}

// FailSwap finalizes a record as FAILED with a human-readable error.
func (s *Store) FailSwap(id int64, errMsg string) error {
	_, err := s.db.Exec(
		`UPDATE swaps SET status = ?, error = ?, completed_at = ? WHERE id = ?`,
		StatusFailed, errMsg, nowISO(), id,
	)
	if err != nil {
		return fmt.Errorf("fail swap %d: %w", id, err)
	}
	return nil
}

// SwapRow mirrors one swaps table row for the dashboard.
type SwapRow struct {
	ID             int64    `json:"id"`
	AccountID      string   `json:"account_id"`
	AccountLabel   string   `json:"account_label"`
	InputToken     string   `json:"input_token"`
	OutputToken    string   `json:"output_token"`
	InputAmount    float64  `json:"input_amount"`
	OutputAmount   *float64 `json:"output_amount"`
	Price          *float64 `json:"price"`
	Slippage       *float64 `json:"slippage"`
	InputUSD       *float64 `json:"input_usd"`
	OutputUSD      *float64 `json:"output_usd"`
	InputPriceUSD  *float64 `json:"input_price_usd"`
	OutputPriceUSD *float64 `json:"output_price_usd"`
	FeeUSD         *float64 `json:"fee_usd"`
	Signature      *string  `json:"signature"`
	Status         string   `json:"status"`
	CreatedAt      string   `json:"created_at"`
	CompletedAt    *string  `json:"completed_at"`
	Error          *string  `json:"error"`
}

// ListSwaps returns recent swaps, newest first, with optional filters.
func (s *Store) ListSwaps(accountID, status string, limit int) ([]SwapRow, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, account_id, account_label, input_token, output_token, input_amount,
	                 output_amount, price, slippage, input_usd, output_usd, input_price_usd,
	                 output_price_usd, fee_usd, signature, status, created_at, completed_at, error
	          FROM swaps WHERE 1=1`
	args := []any{}
	if accountID != "" {
		query += " AND account_id = ?"
		args = append(args, accountID)
	}
	if status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list swaps: %w", err)
	}
	defer rows.Close()

	var out []SwapRow
	for rows.Next() {
		var r SwapRow
		var label sql.NullString
		if err := rows.Scan(&r.ID, &r.AccountID, &label, &r.InputToken, &r.OutputToken, &r.InputAmount,
			&r.OutputAmount, &r.Price, &r.Slippage, &r.InputUSD, &r.OutputUSD, &r.InputPriceUSD,
			&r.OutputPriceUSD, &r.FeeUSD, &r.Signature, &r.Status, &r.CreatedAt, &r.CompletedAt, &r.Error); err != nil {
			return nil, fmt.Errorf("scan swap: %w", err)
		}
		r.AccountLabel = label.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetSwap fetches a single record by id.
func (s *Store) GetSwap(id int64) (*SwapRow, error) {
	rows, err := s.ListSwaps("", "", 0)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		if rows[i].ID == id {
			return &rows[i], nil
		}
	}
	return nil, sql.ErrNoRows
}

// SignalRow mirrors one signals table row.
type SignalRow struct {
	ID         int64    `json:"id"`
	ReceivedAt string   `json:"received_at"`
	Action     string   `json:"action"`
	Symbol     string   `json:"symbol"`
	Kind       *string  `json:"kind"`
	Timeframe  *string  `json:"timeframe"`
	Amount     *float64 `json:"amount"`
	Price      *float64 `json:"price"`
	Note       *string  `json:"note"`
}

// ListSignals returns recent signals, newest first.
func (s *Store) ListSignals(limit int) ([]SignalRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT id, received_at, action, symbol, kind, timeframe, amount, price, note
		 FROM signals ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list signals: %w", err)
	}
	defer rows.Close()

	var out []SignalRow
	for rows.Next() {
		var r SignalRow
		if err := rows.Scan(&r.ID, &r.ReceivedAt, &r.Action, &r.Symbol, &r.Kind, &r.Timeframe, &r.Amount, &r.Price, &r.Note); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpsertWalletBalance records the latest observed balance for a token.
func (s *Store) UpsertWalletBalance(accountID, token string, balance float64) error {
	_, err := s.db.Exec(
		`INSERT INTO wallet_state (account_id, token, balance, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(account_id, token)
		 DO UPDATE SET balance = excluded.balance, updated_at = excluded.updated_at`,
		accountID, token, balance, nowISO(),
	)
	if err != nil {
		return fmt.Errorf("upsert wallet balance: %w", err)
	}
	return nil
}

// WalletBalances returns the latest recorded balances for an account.
func (s *Store) WalletBalances(accountID string) (map[string]float64, error) {
	rows, err := s.db.Query(`SELECT token, balance FROM wallet_state WHERE account_id = ?`, accountID)
	if err != nil {
		return nil, fmt.Errorf("wallet balances: %w", err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var token string
		var bal float64
		if err := rows.Scan(&token, &bal); err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		out[token] = bal
	}
	return out, rows.Err()
}

func nullFloat(v float64) any {
	if v == 0 {
		return nil
	}
	return v
}
