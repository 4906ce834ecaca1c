package marketdata

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/folio/internal/database"
)

// CachedPrice is one row of the price cache.
type CachedPrice struct {
	Ticker    string
	Price     float64
	FetchedAt time.Time
}

// PriceRepository stores fetched prices in the cache database so repeated
// analysis runs do not hammer the quote API.
type PriceRepository struct {
	db *database.DB
}

// NewPriceRepository creates the repository and ensures the schema exists.
func NewPriceRepository(db *database.DB) (*PriceRepository, error) {
	schema := `
		CREATE TABLE IF NOT EXISTS prices (
			ticker     TEXT PRIMARY KEY,
			price      REAL NOT NULL,
			fetched_at TIMESTAMP NOT NULL
		)`
	if _, err := db.Conn().Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create prices table: %w", err)
	}
	return &PriceRepository{db: db}, nil
}

// Upsert stores one price, replacing any previous row for the ticker.
func (r *PriceRepository) Upsert(ticker string, price float64, fetchedAt time.Time) error {
	query := `
		INSERT INTO prices (ticker, price, fetched_at) VALUES (?, ?, ?)
		ON CONFLICT(ticker) DO UPDATE SET price = excluded.price, fetched_at = excluded.fetched_at`
	if _, err := r.db.Conn().Exec(query, ticker, price, fetchedAt.UTC()); err != nil {
		return fmt.Errorf("failed to upsert price for %s: %w", ticker, err)
	}
	return nil
}

// Get returns the cached price for one ticker, or ok=false when absent.
func (r *PriceRepository) Get(ticker string) (CachedPrice, bool, error) {
	row := r.db.Conn().QueryRow(`SELECT ticker, price, fetched_at FROM prices WHERE ticker = ?`, ticker)
	var cached CachedPrice
	if err := row.Scan(&cached.Ticker, &cached.Price, &cached.FetchedAt); err != nil {
		if err == sql.ErrNoRows {
			return CachedPrice{}, false, nil
		}
		return CachedPrice{}, false, fmt.Errorf("failed to read price for %s: %w", ticker, err)
	}
	return cached, true, nil
}

// GetAll returns every cached price keyed by ticker.
func (r *PriceRepository) GetAll() (map[string]CachedPrice, error) {
	rows, err := r.db.Conn().Query(`SELECT ticker, price, fetched_at FROM prices`)
	if err != nil {
		return nil, fmt.Errorf("failed to read prices: %w", err)
	}
	defer rows.Close()

	out := make(map[string]CachedPrice)
	for rows.Next() {
		var cached CachedPrice
		if err := rows.Scan(&cached.Ticker, &cached.Price, &cached.FetchedAt); err != nil {
			return nil, fmt.Errorf("failed to scan price row: %w", err)
		}
		out[cached.Ticker] = cached
	}
	return out, rows.Err()
}
