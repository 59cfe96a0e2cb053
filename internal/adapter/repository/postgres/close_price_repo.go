package postgres

import (
	"context"
	"fmt"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/simaogato/dipledger-backend/internal/domain"
)

// ClosePriceRepository implements domain.ClosePriceRepository and
// domain.PriceFeed over the stock_prices table
type ClosePriceRepository struct {
	db *DB
}

// NewClosePriceRepository creates a new close price repository
func NewClosePriceRepository(db *DB) *ClosePriceRepository {
	return &ClosePriceRepository{db: db}
}

// Upsert writes daily closes; a second fetch on the same trade date replaces the first
func (r *ClosePriceRepository) Upsert(ctx context.Context, closes []domain.ClosePrice) error {
	if len(closes) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO stock_prices (symbol, trade_date, close, fetched_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (symbol, trade_date)
		DO UPDATE SET close = EXCLUDED.close, fetched_at = EXCLUDED.fetched_at
	`
	for _, c := range closes {
		if _, err := tx.ExecContext(ctx, query, c.Symbol, c.TradeDate, c.Close.String(), c.FetchedAt); err != nil {
			return fmt.Errorf("failed to upsert close for %s: %w", c.Symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Latest returns the two most recent closes per symbol as current and previous.
// A symbol with a single stored close uses it for both.
func (r *ClosePriceRepository) Latest(ctx context.Context, symbols []string) (domain.PriceMap, error) {
	query := `
		SELECT symbol, close
		FROM (
			SELECT symbol, close,
				ROW_NUMBER() OVER (PARTITION BY symbol ORDER BY trade_date DESC) AS rn
			FROM stock_prices
			WHERE symbol = ANY($1)
		) ranked
		WHERE rn <= 2
		ORDER BY symbol, rn
	`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(symbols))
	if err != nil {
		return nil, fmt.Errorf("failed to get latest closes: %w", err)
	}
	defer rows.Close()

	prices := make(domain.PriceMap, len(symbols))
	for rows.Next() {
		var symbol, closeStr string
		if err := rows.Scan(&symbol, &closeStr); err != nil {
			return nil, fmt.Errorf("failed to scan close: %w", err)
		}
		closeValue, err := decimal.NewFromString(closeStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse close for %s: %w", symbol, err)
		}

		quote, seen := prices[symbol]
		if !seen {
			prices[symbol] = domain.Quote{Current: closeValue, Previous: closeValue}
			continue
		}
		quote.Previous = closeValue
		prices[symbol] = quote
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate closes: %w", err)
	}
	return prices, nil
}

// Fetch serves stored closes as a price feed
func (r *ClosePriceRepository) Fetch(ctx context.Context, symbols []string) (domain.PriceMap, error) {
	return r.Latest(ctx, symbols)
}
