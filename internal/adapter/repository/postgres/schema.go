package postgres

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS portfolios (
		id                UUID PRIMARY KEY,
		user_id           UUID NOT NULL,
		name              TEXT NOT NULL,
		daily_buy_amount  NUMERIC NOT NULL,
		start_date        TIMESTAMPTZ NOT NULL,
		fee_rate          NUMERIC NOT NULL DEFAULT 0,
		strategy          JSONB NOT NULL DEFAULT '{}'::jsonb,
		is_closed         BOOLEAN NOT NULL DEFAULT false,
		closed_at         TIMESTAMPTZ,
		final_sell_amount NUMERIC,
		alarm_config      JSONB
	)`,
	`CREATE INDEX IF NOT EXISTS portfolios_user_id_idx ON portfolios (user_id)`,
	`CREATE TABLE IF NOT EXISTS trades (
		id           UUID PRIMARY KEY,
		portfolio_id UUID NOT NULL REFERENCES portfolios (id) ON DELETE CASCADE,
		type         TEXT NOT NULL CHECK (type IN ('BUY', 'SELL')),
		instrument   TEXT NOT NULL,
		date         TIMESTAMPTZ NOT NULL,
		price        NUMERIC NOT NULL,
		quantity     NUMERIC NOT NULL,
		fee          NUMERIC NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS trades_portfolio_id_idx ON trades (portfolio_id)`,
	`CREATE TABLE IF NOT EXISTS settlement_history (
		id              UUID PRIMARY KEY,
		portfolio_id    UUID NOT NULL,
		user_id         UUID NOT NULL,
		portfolio_name  TEXT NOT NULL,
		total_invested  NUMERIC NOT NULL,
		total_return    NUMERIC NOT NULL,
		total_profit    NUMERIC NOT NULL,
		yield_rate      NUMERIC NOT NULL,
		start_date      TIMESTAMPTZ NOT NULL,
		end_date        TIMESTAMPTZ NOT NULL,
		strategy_detail TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS settlement_history_user_id_idx ON settlement_history (user_id, end_date DESC)`,
	`CREATE TABLE IF NOT EXISTS stock_prices (
		symbol     TEXT NOT NULL,
		trade_date DATE NOT NULL,
		close      NUMERIC NOT NULL,
		fetched_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (symbol, trade_date)
	)`,
}

// EnsureSchema creates the ledger tables when they are missing. It is safe to
// run on every start.
func EnsureSchema(ctx context.Context, db *DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
