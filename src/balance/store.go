package balance

import (
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/Laende/cakedefi-kryptosekken-converter/src/logger"
)

// SQLiteStore persists year-end balances as (year, currency, amount) rows
// with the amount kept as a decimal string.
type SQLiteStore struct {
	db *sql.DB
}

// OpenStore opens (creating if necessary) the balance database.
func OpenStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening balance database %s: %w", path, err)
	}

	createStmt := `
	CREATE TABLE IF NOT EXISTS balance_history (
		year INTEGER NOT NULL,
		currency TEXT NOT NULL,
		amount TEXT NOT NULL,
		PRIMARY KEY (year, currency)
	);`
	if _, err := db.Exec(createStmt); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing balance database %s: %w", path, err)
	}
	return &SQLiteStore{db: db}, nil
}

// Load reads the full balance history. Rows with unparseable amounts are
// skipped with a warning rather than failing the load.
func (s *SQLiteStore) Load() (map[int]map[string]decimal.Decimal, error) {
	rows, err := s.db.Query(`SELECT year, currency, amount FROM balance_history ORDER BY year, currency`)
	if err != nil {
		return nil, fmt.Errorf("loading balance history: %w", err)
	}
	defer rows.Close()

	history := make(map[int]map[string]decimal.Decimal)
	for rows.Next() {
		var year int
		var currency, amountStr string
		if err := rows.Scan(&year, &currency, &amountStr); err != nil {
			return nil, fmt.Errorf("scanning balance row: %w", err)
		}
		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			logger.L.Warn("Skipping malformed balance row", "year", year, "currency", currency, "amount", amountStr)
			continue
		}
		if history[year] == nil {
			history[year] = make(map[string]decimal.Decimal)
		}
		history[year][currency] = amount
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading balance history: %w", err)
	}
	return history, nil
}

// Save replaces the stored history. Negligible balances are dropped on
// write so floating dust never accumulates across runs.
func (s *SQLiteStore) Save(history map[int]map[string]decimal.Decimal) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning balance save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM balance_history`); err != nil {
		return fmt.Errorf("clearing balance history: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO balance_history (year, currency, amount) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing balance insert: %w", err)
	}
	defer stmt.Close()

	for year, balances := range history {
		for currency, amount := range balances {
			if isNegligible(amount) {
				continue
			}
			if _, err := stmt.Exec(year, currency, amount.String()); err != nil {
				return fmt.Errorf("saving balance %d/%s: %w", year, currency, err)
			}
		}
	}
	return tx.Commit()
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
